package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blecb/internal/device"
)

var (
	// ErrNotConnected is reported for GATT directives issued without a live link.
	ErrNotConnected = errors.New("peripheral is not connected")
	// ErrConnectionLost is reported when the link drops without a disconnect request.
	ErrConnectionLost = errors.New("connection lost")
)

// NormalizeError maps known go-ble error strings to the sentinel errors above and
// in package device. The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "unauthorized"), containsIgnoreCase(msg, "not permitted"):
		return fmt.Errorf("%w: %v", device.ErrUnauthorized, err)
	case containsIgnoreCase(msg, "unsupported"), containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case containsIgnoreCase(msg, "device not connected"), containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

// stateFor maps a device creation error to the adapter state it implies.
func stateFor(err error) device.ManagerState {
	switch {
	case err == nil:
		return device.StatePoweredOn
	case errors.Is(err, device.ErrBluetoothOff):
		return device.StatePoweredOff
	case errors.Is(err, device.ErrUnauthorized):
		return device.StateUnauthorized
	default:
		return device.StateUnsupported
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
