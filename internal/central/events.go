package central

import "github.com/srg/blecb/internal/device"

// Event is published on the coordinator's event hub.
type Event interface {
	EventName() string
}

// StateChanged is published on every adapter state update.
type StateChanged struct {
	State device.ManagerState
}

// WillRestoreState is published when the platform restores peripherals from a previous session.
type WillRestoreState struct {
	Peripherals []*Peripheral
}

// PeripheralNameUpdated is published when a peripheral's name changes.
type PeripheralNameUpdated struct {
	Peripheral *Peripheral
	Name       string
}

// PeripheralServicesInvalidated is published when the peripheral's GATT database changed.
type PeripheralServicesInvalidated struct {
	Peripheral *Peripheral
	Services   []device.Service
}

// CharacteristicValueChanged carries a value update nobody was waiting for,
// i.e. a notification or indication on a subscribed characteristic.
type CharacteristicValueChanged struct {
	Peripheral     *Peripheral
	Characteristic device.Characteristic
	Value          []byte
	Err            error
}

// CharacteristicNotificationStateChanged is published on every notification state update.
type CharacteristicNotificationStateChanged struct {
	Peripheral     *Peripheral
	Characteristic device.Characteristic
	Notifying      bool
	Err            error
}

// PeripheralDisconnected is published on every disconnection, requested or not.
type PeripheralDisconnected struct {
	Peripheral *Peripheral
	Err        error
}

func (StateChanged) EventName() string                           { return "state-changed" }
func (WillRestoreState) EventName() string                       { return "will-restore-state" }
func (PeripheralNameUpdated) EventName() string                  { return "peripheral-name-updated" }
func (PeripheralServicesInvalidated) EventName() string          { return "peripheral-services-invalidated" }
func (CharacteristicValueChanged) EventName() string             { return "characteristic-value-changed" }
func (CharacteristicNotificationStateChanged) EventName() string { return "characteristic-notification-state-changed" }
func (PeripheralDisconnected) EventName() string                 { return "peripheral-disconnected" }

// ScanEventKind distinguishes scan callback invocations.
type ScanEventKind int

const (
	ScanStarted ScanEventKind = iota
	ScanResult
	ScanStopped
)

func (k ScanEventKind) String() string {
	switch k {
	case ScanStarted:
		return "started"
	case ScanResult:
		return "result"
	case ScanStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ScanEvent is delivered to a scan session's callback.
//
// Started comes first, then any number of Result, then exactly one Stopped.
// A session that could not start only receives Stopped with Err set.
type ScanEvent struct {
	Kind ScanEventKind

	// Result only
	Peripheral    *Peripheral
	Advertisement device.Advertisement
	RSSI          int

	// Stopped only: the distinct peripherals seen during the session, and the reason
	// when the stop was not requested by the caller or the timeout.
	Peripherals []*Peripheral
	Err         error
}
