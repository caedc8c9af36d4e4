package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnavailableError(t *testing.T) {
	tests := []struct {
		state    ManagerState
		expected error
	}{
		{StateUnknown, nil},
		{StateResetting, nil},
		{StatePoweredOn, nil},
		{StateUnsupported, ErrUnsupported},
		{StateUnauthorized, ErrUnauthorized},
		{StatePoweredOff, ErrBluetoothOff},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, UnavailableError(tt.state))
		})
	}
}

func TestManagerState_IsTransient(t *testing.T) {
	assert.True(t, StateUnknown.IsTransient())
	assert.True(t, StateResetting.IsTransient())
	assert.False(t, StatePoweredOn.IsTransient())
	assert.False(t, StatePoweredOff.IsTransient())
	assert.False(t, StateUnauthorized.IsTransient())
	assert.False(t, StateUnsupported.IsTransient())
	assert.Equal(t, "invalid", ManagerState(42).String())
}

func TestTimeoutError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &TimeoutError{Operation: "read characteristic value"})

	assert.True(t, errors.Is(err, ErrTimeout), "TimeoutError MUST match ErrTimeout")
	assert.Contains(t, err.Error(), "read characteristic value")
}

func TestPlatformError_Unwrap(t *testing.T) {
	cause := errors.New("att error 0x05")
	err := &PlatformError{Operation: "write characteristic value", Err: cause}

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "write characteristic value: att error 0x05", err.Error())
}

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		expected string
	}{
		{"no uuids", &NotFoundError{Resource: "service"}, "service not found"},
		{"single uuid", &NotFoundError{Resource: "descriptor", UUIDs: []string{"2902"}}, `descriptor "2902" not found`},
		{"many uuids", &NotFoundError{Resource: "characteristic", UUIDs: []string{"2a19", "2a37"}}, "characteristics not found: 2a19, 2a37"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestIsNotFound(t *testing.T) {
	err := fmt.Errorf("lookup: %w", &NotFoundError{Resource: "service", UUIDs: []string{"180f"}})

	assert.True(t, IsNotFound(err, "service"))
	assert.True(t, IsNotFound(err, ""), "empty resource MUST match any NotFoundError")
	assert.False(t, IsNotFound(err, "characteristic"))
	assert.False(t, IsNotFound(errors.New("other"), ""))
}

func TestScanTerminatedError(t *testing.T) {
	err := &ScanTerminatedError{State: StatePoweredOff}

	assert.True(t, errors.Is(err, ErrBluetoothOff), "termination by power-off MUST unwrap to ErrBluetoothOff")
	assert.Contains(t, err.Error(), "poweredOff")

	resetting := &ScanTerminatedError{State: StateResetting}
	assert.Nil(t, errors.Unwrap(resetting))
}

func TestProperty(t *testing.T) {
	p := ParseProperties("read, Notify,bogus")

	assert.True(t, p.Has(PropRead))
	assert.True(t, p.Has(PropNotify))
	assert.False(t, p.Has(PropWrite))
	assert.Equal(t, "read,notify", p.String())
	assert.Equal(t, "", Property(0).String())
}
