// Package state holds the platform-independent shadow of the host's
// interfaces, addresses, and default routes, and derives a Connectivity
// verdict from it. It performs no I/O; platform adapters translate OS
// events into Mutation values and the driver applies them here.
package state

import "net/netip"

// Gateway identifies a default route's next hop. Priority (the route
// metric) participates in identity, per spec: two default routes via the
// same address at different metrics are distinct entries.
type Gateway struct {
	Addr     netip.Addr
	Priority uint32
}

// iface is the per-interface shadow. Kept unexported: there is no public
// API for per-interface state, only the derived Connectivity verdict.
type iface struct {
	carrier    bool
	v4Addrs    set[netip.Addr]
	v6Addrs    set[netip.Addr]
	v4Gateways set[Gateway]
	v6Gateways set[Gateway]
}

func newIface() *iface {
	return &iface{
		v4Addrs:    newSet[netip.Addr](),
		v6Addrs:    newSet[netip.Addr](),
		v4Gateways: newSet[Gateway](),
		v6Gateways: newSet[Gateway](),
	}
}

func (ifc *iface) clone() *iface {
	return &iface{
		carrier:    ifc.carrier,
		v4Addrs:    ifc.v4Addrs.clone(),
		v6Addrs:    ifc.v6Addrs.clone(),
		v4Gateways: ifc.v4Gateways.clone(),
		v6Gateways: ifc.v6Gateways.clone(),
	}
}

func (ifc *iface) equal(o *iface) bool {
	return ifc.carrier == o.carrier &&
		ifc.v4Addrs.equal(o.v4Addrs) &&
		ifc.v6Addrs.equal(o.v6Addrs) &&
		ifc.v4Gateways.equal(o.v4Gateways) &&
		ifc.v6Gateways.equal(o.v6Gateways)
}

// Model is the mutable shadow of the host's non-loopback interfaces. It is
// owned exclusively by one driver task; nothing else may touch it
// concurrently.
type Model struct {
	ifaces map[int]*iface
}

// NewModel returns an empty shadow.
func NewModel() *Model {
	return &Model{ifaces: make(map[int]*iface)}
}

func (m *Model) upsert(key int) *iface {
	ifc, ok := m.ifaces[key]
	if !ok {
		ifc = newIface()
		m.ifaces[key] = ifc
	}
	return ifc
}

// Apply applies a single normalized mutation to the shadow.
func (m *Model) Apply(mu Mutation) {
	mu.apply(m)
}

// Len reports the number of tracked (non-loopback) interfaces. Used by
// tests; not meaningful as public per-interface API.
func (m *Model) Len() int {
	return len(m.ifaces)
}

// Clone returns a deep copy, used by property tests to check round-trip
// and idempotence properties without aliasing the original.
func (m *Model) Clone() *Model {
	out := NewModel()
	for k, v := range m.ifaces {
		out.ifaces[k] = v.clone()
	}
	return out
}

// Equal reports whether two shadows hold the same facts. Connectivity is a
// pure function of this state (P3), so equal shadows always yield equal
// verdicts.
func (m *Model) Equal(o *Model) bool {
	if len(m.ifaces) != len(o.ifaces) {
		return false
	}
	for k, a := range m.ifaces {
		b, ok := o.ifaces[k]
		if !ok || !a.equal(b) {
			return false
		}
	}
	return true
}
