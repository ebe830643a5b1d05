//go:build linux

// Package linuxnet implements the Linux platform adapter by speaking the
// NETLINK_ROUTE protocol through github.com/vishvananda/netlink, the same
// library daemon/libnetwork's bridge, macvlan and overlay drivers in the
// teacher repo use for link, address and route manipulation.
package linuxnet

import (
	"context"
	"errors"
	"net/netip"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"

	"github.com/moby/connectivity/internal/adapter"
	"github.com/moby/connectivity/internal/kinderr"
	"github.com/moby/connectivity/internal/state"
)

// Adapter speaks route-netlink: one handle for the three initial table
// dumps, and three separate subscription sockets for the live feed (the
// vishvananda/netlink subscribe functions each open their own socket,
// mirroring how pkg/netmon-shaped monitors in the wider ecosystem keep
// link and route subscriptions independent).
type Adapter struct {
	log    logrus.FieldLogger
	nsPath string
	ns     netns.NsHandle
	hasNS  bool
	handle *netlink.Handle

	linkDone  chan struct{}
	addrDone  chan struct{}
	routeDone chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger overrides the adapter's logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(a *Adapter) { a.log = log }
}

// WithNamespace observes a network namespace other than the caller's own,
// identified by its bind-mount path (e.g. "/var/run/netns/foo" or
// "/proc/<pid>/ns/net"). Without this option the adapter observes the
// namespace it was constructed in, which is almost always what a host
// connectivity observer wants.
func WithNamespace(path string) Option {
	return func(a *Adapter) { a.nsPath = path }
}

// New opens the netlink handle used for snapshot reads. Subscriptions are
// opened lazily in Watch.
func New(opts ...Option) (*Adapter, error) {
	a := &Adapter{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logrus.StandardLogger()
	}

	if a.nsPath != "" {
		ns, err := netns.GetFromPath(a.nsPath)
		if err != nil {
			return nil, kinderr.Configuration(pkgerrors.Wrapf(err, "opening network namespace %q", a.nsPath))
		}
		a.ns = ns
		a.hasNS = true

		handle, err := netlink.NewHandleAt(ns, unix.NETLINK_ROUTE)
		if err != nil {
			ns.Close()
			return nil, kinderr.Configuration(pkgerrors.Wrap(err, "opening netlink handle in namespace"))
		}
		a.handle = handle
		return a, nil
	}

	handle, err := netlink.NewHandle(unix.NETLINK_ROUTE)
	if err != nil {
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "opening netlink handle"))
	}
	a.handle = handle
	return a, nil
}

// Snapshot reads links, then each link's addresses, then default routes
// for both families in a single route dump.
func (a *Adapter) Snapshot(ctx context.Context) ([]state.Mutation, error) {
	links, err := a.handle.LinkList()
	if err != nil {
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "listing links"))
	}

	var mutations []state.Mutation
	for _, link := range links {
		attrs := link.Attrs()
		mutations = append(mutations, state.AddLink(attrs.Index, isLoopback(attrs.RawFlags), hasCarrier(attrs.RawFlags)))

		addrs, err := a.handle.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, kinderr.Configuration(pkgerrors.Wrapf(err, "listing addresses for link %q", attrs.Name))
		}
		for _, addr := range addrs {
			ip, ok := addrMutation(attrs.Index, addr)
			if ok {
				mutations = append(mutations, ip)
			}
		}
	}

	routes, err := a.handle.RouteList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "listing routes"))
	}
	for _, route := range routes {
		if mu, ok := routeMutation(route.LinkIndex, route); ok {
			mutations = append(mutations, mu)
		}
	}

	return mutations, nil
}

// Watch subscribes to link, address and route multicast groups and
// normalizes every message into adapter.Event values on a single channel.
func (a *Adapter) Watch(ctx context.Context) (<-chan adapter.Event, error) {
	linkCh := make(chan netlink.LinkUpdate)
	addrCh := make(chan netlink.AddrUpdate)
	routeCh := make(chan netlink.RouteUpdate)
	errCh := make(chan error, 3)

	a.linkDone = make(chan struct{})
	a.addrDone = make(chan struct{})
	a.routeDone = make(chan struct{})

	errCB := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var nsOpt *netns.NsHandle
	if a.hasNS {
		nsOpt = &a.ns
	}

	if err := netlink.LinkSubscribeWithOptions(linkCh, a.linkDone, netlink.LinkSubscribeOptions{ErrorCallback: errCB, Namespace: nsOpt}); err != nil {
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "subscribing to link updates"))
	}
	if err := netlink.AddrSubscribeWithOptions(addrCh, a.addrDone, netlink.AddrSubscribeOptions{ErrorCallback: errCB, Namespace: nsOpt}); err != nil {
		close(a.linkDone)
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "subscribing to address updates"))
	}
	if err := netlink.RouteSubscribeWithOptions(routeCh, a.routeDone, netlink.RouteSubscribeOptions{ErrorCallback: errCB, Namespace: nsOpt}); err != nil {
		close(a.linkDone)
		close(a.addrDone)
		return nil, kinderr.Configuration(pkgerrors.Wrap(err, "subscribing to route updates"))
	}

	out := make(chan adapter.Event)
	go a.pump(ctx, linkCh, addrCh, routeCh, errCh, out)
	return out, nil
}

func (a *Adapter) pump(ctx context.Context, linkCh <-chan netlink.LinkUpdate, addrCh <-chan netlink.AddrUpdate, routeCh <-chan netlink.RouteUpdate, errCh <-chan error, out chan<- adapter.Event) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.linkDone:
			return
		case err := <-errCh:
			classified := classify(err)
			a.log.WithError(classified).Debug("connectivity: netlink subscription reported an error")
			a.send(ctx, out, adapter.Event{Err: classified})
			return
		case up, ok := <-linkCh:
			if !ok {
				return
			}
			if mu, ok := linkMutation(up); ok {
				if !a.send(ctx, out, adapter.Event{Mutation: mu}) {
					return
				}
			}
		case up, ok := <-addrCh:
			if !ok {
				return
			}
			if mu, ok := addrUpdateMutation(up); ok {
				if !a.send(ctx, out, adapter.Event{Mutation: mu}) {
					return
				}
			}
		case up, ok := <-routeCh:
			if !ok {
				return
			}
			if mu, ok := routeUpdateMutation(up); ok {
				if !a.send(ctx, out, adapter.Event{Mutation: mu}) {
					return
				}
			}
		}
	}
}

// send delivers ev on out, returning false instead of blocking forever if
// ctx is cancelled or Close has fired (a.linkDone closes) before a reader
// picks it up — mirrors the windowsnet adapter's guarded send.
func (a *Adapter) send(ctx context.Context, out chan<- adapter.Event, ev adapter.Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-a.linkDone:
		return false
	}
}

// classify distinguishes a socket overrun (ENOBUFS on the underlying
// recvmsg) from any other netlink protocol error. vishvananda/netlink
// surfaces both through the same ErrorCallback, since it doesn't expose
// the raw NetlinkPayload::Overrun framing a lower-level netlink-proto
// binding would; the syscall errno is the Go-native equivalent signal.
func classify(err error) error {
	if errors.Is(err, unix.ENOBUFS) {
		return kinderr.Overrun(err)
	}
	return kinderr.Protocol(err)
}

// Close tears down the subscription sockets. Safe to call more than once.
func (a *Adapter) Close() error {
	closeOnce(a.linkDone)
	closeOnce(a.addrDone)
	closeOnce(a.routeDone)
	if a.handle != nil {
		a.handle.Close()
	}
	if a.hasNS {
		a.ns.Close()
	}
	return nil
}

func closeOnce(ch chan struct{}) {
	if ch == nil {
		return
	}
	select {
	case <-ch:
	default:
		close(ch)
	}
}

func isLoopback(rawFlags uint32) bool {
	return rawFlags&unix.IFF_LOOPBACK != 0
}

func hasCarrier(rawFlags uint32) bool {
	return rawFlags&unix.IFF_LOWER_UP != 0
}

func linkMutation(up netlink.LinkUpdate) (state.Mutation, bool) {
	switch up.Header.Type {
	case unix.RTM_NEWLINK:
		return state.AddLink(int(up.Index), isLoopback(up.IfInfomsg.Flags), hasCarrier(up.IfInfomsg.Flags)), true
	case unix.RTM_DELLINK:
		return state.RemoveLink(int(up.Index)), true
	default:
		return nil, false
	}
}

// addrMutation converts one entry from a snapshot AddrList into an
// AddAddress mutation, applying the permanent-address filter (I2).
func addrMutation(key int, addr netlink.Addr) (state.Mutation, bool) {
	if addr.Flags&unix.IFA_F_PERMANENT != 0 {
		return nil, false
	}
	ip, ok := toAddr(addr.IPNet.IP)
	if !ok {
		return nil, false
	}
	return state.AddAddress(key, ip), true
}

func addrUpdateMutation(up netlink.AddrUpdate) (state.Mutation, bool) {
	if up.Flags&unix.IFA_F_PERMANENT != 0 {
		return nil, false
	}
	ip, ok := toAddr(up.LinkAddress.IP)
	if !ok {
		return nil, false
	}
	if up.NewAddr {
		return state.AddAddress(up.LinkIndex, ip), true
	}
	return state.RemoveAddress(up.LinkIndex, ip), true
}

// routeMutation converts one entry from a snapshot RouteList into an
// AddDefaultRoute mutation, applying the default-route test (I3).
func routeMutation(key int, route netlink.Route) (state.Mutation, bool) {
	gw, priority, ok := defaultRouteFields(route)
	if !ok {
		return nil, false
	}
	return state.AddDefaultRoute(key, gw, priority), true
}

func routeUpdateMutation(up netlink.RouteUpdate) (state.Mutation, bool) {
	gw, priority, ok := defaultRouteFields(up.Route)
	if !ok {
		return nil, false
	}
	switch up.Type {
	case unix.RTM_NEWROUTE:
		return state.AddDefaultRoute(up.Route.LinkIndex, gw, priority), true
	case unix.RTM_DELROUTE:
		return state.RemoveDefaultRoute(up.Route.LinkIndex, gw, priority), true
	default:
		return nil, false
	}
}

// defaultRouteFields implements I3: only default routes (zero-length,
// all-zero prefix) that carry both an output interface and a gateway
// attribute contribute. The priority is route.Priority as reported by the
// netlink library, which gives 0 both for a metric of 0 and for a route
// with no priority attribute, so routes without a priority are not
// excluded.
func defaultRouteFields(route netlink.Route) (gw netip.Addr, priority uint32, ok bool) {
	if route.LinkIndex == 0 || route.Gw == nil {
		return netip.Addr{}, 0, false
	}
	if route.Dst != nil {
		ones, _ := route.Dst.Mask.Size()
		if ones != 0 || !route.Dst.IP.IsUnspecified() {
			return netip.Addr{}, 0, false
		}
	}
	gw, ok = toAddr(route.Gw)
	if !ok {
		return netip.Addr{}, 0, false
	}
	return gw, uint32(route.Priority), true
}

func toAddr(ip []byte) (netip.Addr, bool) {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}
