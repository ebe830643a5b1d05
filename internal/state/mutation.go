package state

import "net/netip"

// Mutation is one of the six normalized operations in spec §4.1. Adapters
// build Mutation values with the constructors below; only the driver's
// Model.Apply unwraps them.
type Mutation interface {
	apply(*Model)
}

func v4(a netip.Addr) bool {
	return a.Is4() || a.Is4In6()
}

type addLink struct {
	key      int
	loopback bool
	carrier  bool
}

func (mu addLink) apply(m *Model) {
	if mu.loopback {
		return
	}
	m.upsert(mu.key).carrier = mu.carrier
}

// AddLink upserts an interface and sets its carrier state. Loopback
// interfaces are dropped here (I5); address/route sets are preserved if
// the interface already exists.
func AddLink(key int, loopback, carrier bool) Mutation {
	return addLink{key: key, loopback: loopback, carrier: carrier}
}

type removeLink struct {
	key int
}

func (mu removeLink) apply(m *Model) {
	delete(m.ifaces, mu.key)
}

// RemoveLink drops the interface entirely, forgetting its addresses and
// routes. Not round-trippable against AddLink (P1's documented exception).
func RemoveLink(key int) Mutation {
	return removeLink{key: key}
}

type addAddress struct {
	key  int
	addr netip.Addr
}

func (mu addAddress) apply(m *Model) {
	ifc := m.upsert(mu.key)
	if v4(mu.addr) {
		ifc.v4Addrs.add(mu.addr.Unmap())
	} else {
		ifc.v6Addrs.add(mu.addr)
	}
}

// AddAddress upserts an interface (carrier defaults false) and records the
// address. Permanent addresses must be filtered by the adapter before
// calling this (I2); the state model has no notion of permanence.
func AddAddress(key int, addr netip.Addr) Mutation {
	return addAddress{key: key, addr: addr}
}

type removeAddress struct {
	key  int
	addr netip.Addr
}

func (mu removeAddress) apply(m *Model) {
	ifc, ok := m.ifaces[mu.key]
	if !ok {
		return
	}
	if v4(mu.addr) {
		ifc.v4Addrs.remove(mu.addr.Unmap())
	} else {
		ifc.v6Addrs.remove(mu.addr)
	}
}

// RemoveAddress drops an address from an existing interface. A missing
// interface or absent address is a no-op (I6).
func RemoveAddress(key int, addr netip.Addr) Mutation {
	return removeAddress{key: key, addr: addr}
}

type addDefaultRoute struct {
	key      int
	gateway  netip.Addr
	priority uint32
}

func (mu addDefaultRoute) apply(m *Model) {
	ifc := m.upsert(mu.key)
	gw := Gateway{Addr: mu.gateway.Unmap(), Priority: mu.priority}
	if v4(mu.gateway) {
		ifc.v4Gateways.add(gw)
	} else {
		ifc.v6Gateways.add(gw)
	}
}

// AddDefaultRoute upserts an interface and records a (gateway, priority)
// pair. Priority participates in identity (I3's tie-break note).
func AddDefaultRoute(key int, gateway netip.Addr, priority uint32) Mutation {
	return addDefaultRoute{key: key, gateway: gateway, priority: priority}
}

type removeDefaultRoute struct {
	key      int
	gateway  netip.Addr
	priority uint32
}

func (mu removeDefaultRoute) apply(m *Model) {
	ifc, ok := m.ifaces[mu.key]
	if !ok {
		return
	}
	gw := Gateway{Addr: mu.gateway.Unmap(), Priority: mu.priority}
	if v4(mu.gateway) {
		ifc.v4Gateways.remove(gw)
	} else {
		ifc.v6Gateways.remove(gw)
	}
}

// RemoveDefaultRoute drops a (gateway, priority) pair from an existing
// interface. A missing interface or absent pair is a no-op (I6).
func RemoveDefaultRoute(key int, gateway netip.Addr, priority uint32) Mutation {
	return removeDefaultRoute{key: key, gateway: gateway, priority: priority}
}
