package ble

import (
	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
)

// Adapter and peripheral states.
type (
	ManagerState    = device.ManagerState
	PeripheralState = device.PeripheralState
	Property        = device.Property
)

const (
	StateUnknown      = device.StateUnknown
	StateResetting    = device.StateResetting
	StateUnsupported  = device.StateUnsupported
	StateUnauthorized = device.StateUnauthorized
	StatePoweredOff   = device.StatePoweredOff
	StatePoweredOn    = device.StatePoweredOn
)

// Peripheral link states. The names differ from the device package because
// PeripheralDisconnected is an event here.
const (
	LinkDisconnected  = device.PeripheralDisconnected
	LinkConnecting    = device.PeripheralConnecting
	LinkConnected     = device.PeripheralConnected
	LinkDisconnecting = device.PeripheralDisconnecting
)

// GATT attributes as discovered on a peripheral.
type (
	Service        = device.Service
	Characteristic = device.Characteristic
	Descriptor     = device.Descriptor
	Advertisement  = device.Advertisement
)

// Events published on the central's event channel.
type (
	Event                                  = central.Event
	StateChanged                           = central.StateChanged
	WillRestoreState                       = central.WillRestoreState
	PeripheralNameUpdated                  = central.PeripheralNameUpdated
	PeripheralServicesInvalidated          = central.PeripheralServicesInvalidated
	CharacteristicValueChanged             = central.CharacteristicValueChanged
	CharacteristicNotificationStateChanged = central.CharacteristicNotificationStateChanged
	PeripheralDisconnected                 = central.PeripheralDisconnected
)

// CallOption customizes a single request.
type CallOption = central.CallOption

// WithTimeout overrides the timeout of one request.
var WithTimeout = central.WithTimeout

// Errors reported to callbacks. Match them with errors.Is and errors.As.
var (
	ErrUnsupported          = device.ErrUnsupported
	ErrUnauthorized         = device.ErrUnauthorized
	ErrBluetoothOff         = device.ErrBluetoothOff
	ErrInvalidPeripheral    = device.ErrInvalidPeripheral
	ErrConnectUnknownReason = device.ErrConnectUnknownReason
	ErrTimeout              = device.ErrTimeout
	ErrClosed               = device.ErrClosed
)

type (
	TimeoutError                = device.TimeoutError
	PlatformError               = device.PlatformError
	NotFoundError               = device.NotFoundError
	ScanTerminatedError         = device.ScanTerminatedError
	InvalidDescriptorValueError = device.InvalidDescriptorValueError
)
