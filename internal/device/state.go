package device

import "strings"

// ManagerState is the adapter state reported by the central manager.
type ManagerState int

const (
	StateUnknown ManagerState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s ManagerState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "poweredOff"
	case StatePoweredOn:
		return "poweredOn"
	default:
		return "invalid"
	}
}

// IsTransient reports whether the state is expected to change on its own
// (the adapter is still starting up or resetting).
func (s ManagerState) IsTransient() bool {
	return s == StateUnknown || s == StateResetting
}

// PeripheralState is the live connection state of a peripheral.
type PeripheralState int

const (
	PeripheralDisconnected PeripheralState = iota
	PeripheralConnecting
	PeripheralConnected
	PeripheralDisconnecting
)

func (s PeripheralState) String() string {
	switch s {
	case PeripheralDisconnected:
		return "disconnected"
	case PeripheralConnecting:
		return "connecting"
	case PeripheralConnected:
		return "connected"
	case PeripheralDisconnecting:
		return "disconnecting"
	default:
		return "invalid"
	}
}

// Property is a bit set of characteristic properties.
// Bit values follow the GATT characteristic properties field.
type Property uint8

const (
	PropBroadcast            Property = 0x01
	PropRead                 Property = 0x02
	PropWriteWithoutResponse Property = 0x04
	PropWrite                Property = 0x08
	PropNotify               Property = 0x10
	PropIndicate             Property = 0x20
	PropSignedWrite          Property = 0x40
	PropExtended             Property = 0x80
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether all bits of o are set.
func (p Property) Has(o Property) bool {
	return p&o == o
}

func (p Property) String() string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p.Has(pn.p) {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// ParseProperties parses a comma separated property list such as "read,notify".
// Unknown names are ignored.
func ParseProperties(s string) Property {
	var p Property
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		for _, pn := range propertyNames {
			if pn.name == part {
				p |= pn.p
			}
		}
	}
	return p
}
