//go:build windows

package windowsnet

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

// Neither github.com/Microsoft/go-winio nor github.com/Microsoft/hcsshim
// (the teacher's Windows syscall libraries) expose GetIfTable2,
// GetUnicastIpAddressTable, GetIpForwardTable2 or the MIB change
// notification pair, so this one adapter reaches one level below them to
// the iphlpapi.dll layer golang.org/x/sys/windows itself is built on.
var (
	modiphlpapi = windows.NewLazySystemDLL("iphlpapi.dll")

	procGetIfTable2              = modiphlpapi.NewProc("GetIfTable2")
	procGetUnicastIpAddressTable = modiphlpapi.NewProc("GetUnicastIpAddressTable")
	procGetIpForwardTable2       = modiphlpapi.NewProc("GetIpForwardTable2")
	procFreeMibTable             = modiphlpapi.NewProc("FreeMibTable")
	procNotifyIpInterfaceChange  = modiphlpapi.NewProc("NotifyIpInterfaceChange")
	procCancelMibChangeNotify2   = modiphlpapi.NewProc("CancelMibChangeNotify2")
)

const (
	afUnspec = 0
	afInet   = windows.AF_INET
	afInet6  = windows.AF_INET6
)

// ifOperStatusUp is IF_OPER_STATUS's IfOperStatusUp member (ifdef.h).
const ifOperStatusUp = 1

// ifTypeSoftwareLoopback is IFTYPE_SOFTWARE_LOOPBACK (RFC 2863 ifType 24).
const ifTypeSoftwareLoopback = 24

// mibNotificationType mirrors the MIB_NOTIFICATION_TYPE enum.
type mibNotificationType uint32

const (
	mibParameterNotification mibNotificationType = iota
	mibAddInstance
	mibDeleteInstance
	mibInitialNotification
)

// validLifetimeInfinite is the sentinel ValidLifetime value Windows uses
// for a statically-assigned, non-expiring unicast address (spec §4.3's
// "Windows analogue of permanent").
const validLifetimeInfinite = 0xFFFFFFFF

// sockaddrInet mirrors SOCKADDR_INET: a 2-byte address family discriminant
// followed by the address bytes, laid out wide enough to hold either a
// sockaddr_in or a sockaddr_in6 without a C union.
type sockaddrInet struct {
	family uint16
	port   uint16
	addr   [16]byte
	scope  uint32
	_      uint32 // sockaddr_in6 reserved tail
}

func (s *sockaddrInet) ip() ([]byte, bool) {
	switch s.family {
	case afInet:
		return s.addr[:4], true
	case afInet6:
		return s.addr[:16], true
	default:
		return nil, false
	}
}

func (s *sockaddrInet) isAllZero() bool {
	ip, ok := s.ip()
	if !ok {
		return true
	}
	for _, b := range ip {
		if b != 0 {
			return false
		}
	}
	return true
}

// mibIfRow2 mirrors the fields of MIB_IF_ROW2 this adapter reads. The
// struct carries the real field order and widths up through OperStatus so
// that array-of-rows pointer arithmetic over a MIB_IF_TABLE2 stays valid;
// everything past OperStatus (media/connection/statistics counters) is
// collapsed into a single padding tail, since nothing past that point is
// consumed here.
type mibIfRow2 struct {
	interfaceLuid                uint64
	interfaceIndex               uint32
	interfaceGUID                [16]byte
	alias                        [257]uint16
	description                  [257]uint16
	physicalAddressLength        uint32
	physicalAddress              [32]byte
	permanentPhysicalAddress     [32]byte
	mtu                          uint32
	ifType                       uint32
	tunnelType                   uint32
	mediaType                    uint32
	physicalMediumType           uint32
	accessType                   uint32
	directionType                uint32
	interfaceAndOperStatusFlags  byte
	_                            [3]byte // alignment to the next uint32
	operStatus                   uint32
	tail                         [168]byte // AdminStatus .. OutQLen, unused
}

// mibUnicastIPAddressRow mirrors MIB_UNICASTIPADDRESS_ROW.
type mibUnicastIPAddressRow struct {
	address            sockaddrInet
	interfaceLuid      uint64
	interfaceIndex     uint32
	prefixOrigin       uint32
	suffixOrigin       uint32
	validLifetime      uint32
	preferredLifetime  uint32
	onLinkPrefixLength byte
	skipAsSource       byte
	dadState           uint32
	scopeID            uint32
	creationTimeStamp  int64
}

// ipAddressPrefix mirrors IP_ADDRESS_PREFIX.
type ipAddressPrefix struct {
	prefix       sockaddrInet
	prefixLength byte
	_            [3]byte
}

// mibIPForwardRow2 mirrors the fields of MIB_IPFORWARD_ROW2 this adapter
// reads, with the same trailing-padding convention as mibIfRow2.
type mibIPForwardRow2 struct {
	interfaceLuid       uint64
	interfaceIndex      uint32
	destinationPrefix   ipAddressPrefix
	nextHop             sockaddrInet
	sitePrefixLength    byte
	validLifetime       uint32
	preferredLifetime   uint32
	metric              uint32
	protocol            uint32
	loopback            byte
	autoconfigureAddr   byte
	publish             byte
	immortal            byte
	age                 uint32
	origin              uint32
	tail                [16]byte // Table, minor fields not consumed here
}

func getIfTable2() ([]mibIfRow2, func(), error) {
	var table uintptr
	r0, _, _ := procGetIfTable2.Call(uintptr(unsafe.Pointer(&table)))
	if r0 != 0 {
		return nil, func() {}, windows.Errno(r0)
	}
	free := func() { procFreeMibTable.Call(table) }

	numEntries := *(*uint32)(unsafe.Pointer(table))
	rowSize := unsafe.Sizeof(mibIfRow2{})
	base := table + unsafe.Sizeof(uint64(0)) // NumEntries is padded to 8 bytes before Table[]
	rows := make([]mibIfRow2, numEntries)
	for i := range rows {
		rows[i] = *(*mibIfRow2)(unsafe.Pointer(base + uintptr(i)*rowSize))
	}
	return rows, free, nil
}

func getUnicastIPAddressTable(family uint16) ([]mibUnicastIPAddressRow, func(), error) {
	var table uintptr
	r0, _, _ := procGetUnicastIpAddressTable.Call(uintptr(family), uintptr(unsafe.Pointer(&table)))
	if r0 != 0 {
		return nil, func() {}, windows.Errno(r0)
	}
	free := func() { procFreeMibTable.Call(table) }

	numEntries := *(*uint32)(unsafe.Pointer(table))
	rowSize := unsafe.Sizeof(mibUnicastIPAddressRow{})
	base := table + unsafe.Sizeof(uint64(0))
	rows := make([]mibUnicastIPAddressRow, numEntries)
	for i := range rows {
		rows[i] = *(*mibUnicastIPAddressRow)(unsafe.Pointer(base + uintptr(i)*rowSize))
	}
	return rows, free, nil
}

func getIPForwardTable2(family uint16) ([]mibIPForwardRow2, func(), error) {
	var table uintptr
	r0, _, _ := procGetIpForwardTable2.Call(uintptr(family), uintptr(unsafe.Pointer(&table)))
	if r0 != 0 {
		return nil, func() {}, windows.Errno(r0)
	}
	free := func() { procFreeMibTable.Call(table) }

	numEntries := *(*uint32)(unsafe.Pointer(table))
	rowSize := unsafe.Sizeof(mibIPForwardRow2{})
	base := table + unsafe.Sizeof(uint64(0))
	rows := make([]mibIPForwardRow2, numEntries)
	for i := range rows {
		rows[i] = *(*mibIPForwardRow2)(unsafe.Pointer(base + uintptr(i)*rowSize))
	}
	return rows, free, nil
}

// notifyIPInterfaceChange registers fn to run (on an OS thread, per
// spec §4.4's concurrency note) on every Parameter/Add/Delete/
// InitialNotification callback. The returned handle is passed to
// cancelMibChangeNotify2 to deregister.
func notifyIPInterfaceChange(fn func(notificationType mibNotificationType)) (windows.Handle, error) {
	var handle windows.Handle
	callback := windows.NewCallback(func(callerContext uintptr, row uintptr, notificationType uint32) uintptr {
		fn(mibNotificationType(notificationType))
		return 0
	})
	r0, _, _ := procNotifyIpInterfaceChange.Call(
		uintptr(afUnspec), // both families in one registration
		callback,
		0,
		0, // InitialNotification = FALSE; the caller runs its own first scan
		uintptr(unsafe.Pointer(&handle)),
	)
	if r0 != 0 {
		return 0, windows.Errno(r0)
	}
	return handle, nil
}

func cancelMibChangeNotify2(handle windows.Handle) {
	procCancelMibChangeNotify2.Call(uintptr(handle))
}
