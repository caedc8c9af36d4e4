package device

import (
	"errors"
	"fmt"
	"strings"
)

// Adapter availability and handle errors
var (
	ErrUnsupported          = errors.New("bluetooth low energy is not supported on this adapter")
	ErrUnauthorized         = errors.New("bluetooth use is not authorized")
	ErrBluetoothOff         = errors.New("bluetooth is turned off")
	ErrInvalidPeripheral    = errors.New("invalid or stale peripheral handle")
	ErrConnectUnknownReason = errors.New("peripheral failed to connect for an unknown reason")
	ErrTimeout              = errors.New("timeout")
	ErrClosed               = errors.New("bluetooth central is closed")
)

// UnavailableError maps a stable non-powered-on adapter state to its error.
// Returns nil for poweredOn and for transient states.
func UnavailableError(state ManagerState) error {
	switch state {
	case StateUnsupported:
		return ErrUnsupported
	case StateUnauthorized:
		return ErrUnauthorized
	case StatePoweredOff:
		return ErrBluetoothOff
	default:
		return nil
	}
}

// TimeoutError is returned when an operation's timer fires before the platform answered.
type TimeoutError struct {
	Operation string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: operation timed out", e.Operation)
}

// Is makes errors.Is(err, ErrTimeout) hold for every TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// PlatformError wraps an error reported by the platform through a delegate callback.
type PlatformError struct {
	Operation string
	Err       error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %v", e.Operation, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // missing UUIDs
}

func (e *NotFoundError) Error() string {
	switch len(e.UUIDs) {
	case 0:
		return fmt.Sprintf("%s not found", e.Resource)
	case 1:
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	default:
		return fmt.Sprintf("%ss not found: %s", e.Resource, strings.Join(e.UUIDs, ", "))
	}
}

// Is allows errors.Is to compare NotFoundError values by Resource
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return t.Resource == "" || t.Resource == e.Resource
}

// IsNotFound reports whether err is a NotFoundError for the given resource.
// An empty resource matches any NotFoundError.
func IsNotFound(err error, resource string) bool {
	return errors.Is(err, &NotFoundError{Resource: resource})
}

// ScanTerminatedError is reported when an active scan is stopped because the adapter left poweredOn.
type ScanTerminatedError struct {
	State ManagerState
}

func (e *ScanTerminatedError) Error() string {
	return fmt.Sprintf("scan terminated unexpectedly: adapter is %s", e.State)
}

// Unwrap exposes the matching unavailability error, if any.
func (e *ScanTerminatedError) Unwrap() error {
	return UnavailableError(e.State)
}

// InvalidDescriptorValueError is returned when a descriptor value has no byte representation.
type InvalidDescriptorValueError struct {
	Descriptor string
	Value      any
}

func (e *InvalidDescriptorValueError) Error() string {
	return fmt.Sprintf("descriptor %q has an invalid value of type %T", e.Descriptor, e.Value)
}
