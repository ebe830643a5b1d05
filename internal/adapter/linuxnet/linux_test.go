//go:build linux

package linuxnet

import (
	"net"
	"net/netip"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

func TestAddrMutationFiltersPermanentAddresses(t *testing.T) {
	permanent := netlink.Addr{
		IPNet: &net.IPNet{IP: net.ParseIP("192.0.2.5")},
		Flags: unix.IFA_F_PERMANENT,
	}
	_, ok := addrMutation(1, permanent)
	assert.Check(t, !ok)

	dynamic := netlink.Addr{IPNet: &net.IPNet{IP: net.ParseIP("192.0.2.5")}}
	mu, ok := addrMutation(1, dynamic)
	assert.Check(t, ok)
	assert.Check(t, mu != nil)
}

func TestDefaultRouteFieldsRequiresZeroPrefixAndGateway(t *testing.T) {
	gw := net.ParseIP("192.0.2.1")

	noGateway := netlink.Route{LinkIndex: 2}
	_, _, ok := defaultRouteFields(noGateway)
	assert.Check(t, !ok)

	withSpecificDst := netlink.Route{
		LinkIndex: 2,
		Gw:        gw,
		Dst:       &net.IPNet{IP: net.ParseIP("10.0.0.0"), Mask: net.CIDRMask(24, 32)},
	}
	_, _, ok = defaultRouteFields(withSpecificDst)
	assert.Check(t, !ok)

	eligible := netlink.Route{LinkIndex: 2, Gw: gw, Priority: 100}
	addr, priority, ok := defaultRouteFields(eligible)
	assert.Check(t, ok)
	assert.Check(t, is.Equal(addr, mustAddr("192.0.2.1")))
	assert.Check(t, is.Equal(priority, uint32(100)))
}

func TestIsLoopbackAndHasCarrier(t *testing.T) {
	assert.Check(t, isLoopback(unix.IFF_LOOPBACK))
	assert.Check(t, !isLoopback(unix.IFF_UP))
	assert.Check(t, hasCarrier(unix.IFF_LOWER_UP))
	assert.Check(t, !hasCarrier(unix.IFF_UP))
}

func TestLinkMutationTypes(t *testing.T) {
	newLink := netlink.LinkUpdate{}
	newLink.Header.Type = unix.RTM_NEWLINK
	newLink.IfInfomsg.Index = 4
	newLink.IfInfomsg.Flags = unix.IFF_LOWER_UP
	mu, ok := linkMutation(newLink)
	assert.Check(t, ok)
	assert.Check(t, mu != nil)

	delLink := netlink.LinkUpdate{}
	delLink.Header.Type = unix.RTM_DELLINK
	delLink.IfInfomsg.Index = 4
	mu, ok = linkMutation(delLink)
	assert.Check(t, ok)
	assert.Check(t, mu != nil)

	other := netlink.LinkUpdate{}
	other.Header.Type = unix.RTM_NEWADDR
	_, ok = linkMutation(other)
	assert.Check(t, !ok)
}

func TestClassifyDistinguishesOverrunFromProtocol(t *testing.T) {
	overrun := classify(unix.ENOBUFS)
	protocol := classify(unix.ECONNREFUSED)
	assert.Check(t, cerrdefs.IsDataLoss(overrun) && !cerrdefs.IsAborted(overrun))
	assert.Check(t, cerrdefs.IsAborted(protocol) && !cerrdefs.IsDataLoss(protocol))
}
