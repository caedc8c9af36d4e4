package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupAcceptsEveryUUIDForm(t *testing.T) {
	for _, in := range []string{
		"180d",
		"0x180D",
		"0000180d-0000-1000-8000-00805f9b34fb",
		"0000180d00001000800000805f9b34fb",
		"{0000180D-0000-1000-8000-00805F9B34FB}",
	} {
		assert.Equal(t, "Heart Rate", LookupService(in), "%q MUST resolve", in)
	}
}

func TestLookupByCategory(t *testing.T) {
	tests := []struct {
		name   string
		lookup func(string) string
		uuid   string
		want   string
	}{
		{"service", LookupService, "180f", "Battery Service"},
		{"vendor service", LookupService, "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "Nordic UART Service"},
		{"characteristic", LookupCharacteristic, "2A19", "Battery Level"},
		{"descriptor", LookupDescriptor, "2902", "Client Characteristic Configuration"},
		{"wrong category", LookupService, "2a19", ""},
		{"unknown", LookupCharacteristic, "ffff", ""},
		{"any category", Lookup, "2901", "Characteristic User Description"},
		{"any category unknown", Lookup, "ffff", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.lookup(tt.uuid))
		})
	}
}
