package main

import (
	"errors"
	"fmt"

	"github.com/srg/blecb/pkg/ble"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was still using it.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error from the central into a message a user can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var (
		timeout  *ble.TimeoutError
		notFound *ble.NotFoundError
		platform *ble.PlatformError
	)
	switch {
	case errors.Is(err, ble.ErrBluetoothOff):
		return "Bluetooth is turned off, turn it on and try again"
	case errors.Is(err, ble.ErrUnauthorized):
		return "this terminal is not allowed to use Bluetooth, grant access in the system settings"
	case errors.Is(err, ble.ErrUnsupported):
		return "Bluetooth LE is not available on this machine"
	case errors.Is(err, ErrConnectionLost):
		return "the peripheral disconnected unexpectedly"
	case errors.As(err, &timeout):
		return fmt.Sprintf("%s timed out, is the peripheral in range?", timeout.Operation)
	case errors.As(err, &notFound):
		return notFound.Error()
	case errors.Is(err, ble.ErrInvalidUUID):
		return err.Error()
	case errors.As(err, &platform):
		return fmt.Sprintf("%s failed: %v", platform.Operation, platform.Err)
	}
	return err.Error()
}
