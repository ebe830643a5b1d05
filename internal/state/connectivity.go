package state

// Level is the ordered connectivity judgment for one IP family.
type Level int

const (
	LevelNone Level = iota
	LevelNetwork
	LevelInternet
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelNetwork:
		return "network"
	case LevelInternet:
		return "internet"
	default:
		return "unknown"
	}
}

// Connectivity is the emitted verdict: a level per IP family.
type Connectivity struct {
	IPv4 Level
	IPv6 Level
}

// Any is the better of the two families.
func (c Connectivity) Any() Level {
	return max(c.IPv4, c.IPv6)
}

// All is the worse of the two families.
func (c Connectivity) All() Level {
	return min(c.IPv4, c.IPv6)
}

// levelFor folds one interface's family state into I4's three-way judgment.
func levelFor(carrier bool, addrs, gateways int) Level {
	if !carrier || addrs == 0 {
		return LevelNone
	}
	if gateways == 0 {
		return LevelNetwork
	}
	return LevelInternet
}

// Connectivity derives the verdict from the whole shadow, per I4: the
// per-family level is the maximum across interfaces.
func (m *Model) Connectivity() Connectivity {
	var out Connectivity
	for _, ifc := range m.ifaces {
		out.IPv4 = max(out.IPv4, levelFor(ifc.carrier, ifc.v4Addrs.len(), ifc.v4Gateways.len()))
		out.IPv6 = max(out.IPv6, levelFor(ifc.carrier, ifc.v6Addrs.len(), ifc.v6Gateways.len()))
	}
	return out
}
