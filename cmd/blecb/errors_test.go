package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blecb/pkg/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"powered off", fmt.Errorf("read failed: %w", ble.ErrBluetoothOff), "Bluetooth is turned off, turn it on and try again"},
		{"unauthorized", ble.ErrUnauthorized, "this terminal is not allowed to use Bluetooth, grant access in the system settings"},
		{"unsupported", ble.ErrUnsupported, "Bluetooth LE is not available on this machine"},
		{"link loss", fmt.Errorf("%w: eof", ErrConnectionLost), "the peripheral disconnected unexpectedly"},
		{"timeout", &ble.TimeoutError{Operation: "read"}, "read timed out, is the peripheral in range?"},
		{"not found", fmt.Errorf("read failed: %w", &ble.NotFoundError{Resource: "service", UUIDs: []string{"180d"}}), `service "180d" not found`},
		{"platform", &ble.PlatformError{Operation: "connect", Err: errors.New("refused")}, "connect failed: refused"},
		{"other", errors.New("boom"), "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestParseWriteData(t *testing.T) {
	defer func(v bool) { writeHex = v }(writeHex)

	writeHex = false
	data, err := parseWriteData("hi")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), data, "text MUST be sent as is")

	writeHex = true
	for _, in := range []string{"0102", "01 02", "01:02", "01-02", "0x01 0x02"} {
		data, err := parseWriteData(in)
		require.NoError(t, err, in)
		assert.Equal(t, []byte{1, 2}, data, "separators MUST be ignored in %q", in)
	}

	_, err = parseWriteData("123")
	assert.ErrorContains(t, err, "invalid hex data", "odd length MUST be rejected")
}
