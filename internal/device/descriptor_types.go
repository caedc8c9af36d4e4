package device

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known GATT descriptor UUIDs (16-bit short form, normalized)
const (
	DescriptorExtendedProperties = "2900"
	DescriptorUserDescription    = "2901"
	DescriptorClientConfig       = "2902"
	DescriptorServerConfig       = "2903"
	DescriptorPresentationFormat = "2904"
	DescriptorAggregateFormat    = "2905"
	DescriptorValidRange         = "2906"
)

// ClientConfig is the Client Characteristic Configuration descriptor (0x2902).
type ClientConfig struct {
	Notifications bool
	Indications   bool
}

// PresentationFormat is the Characteristic Presentation Format descriptor (0x2904).
type PresentationFormat struct {
	Format      uint8
	Exponent    int8
	Unit        uint16
	Namespace   uint8
	Description uint16
}

// ParseClientConfig parses a 2-byte CCCD value: bit 0 notifications, bit 1 indications.
func ParseClientConfig(data []byte) (*ClientConfig, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ClientConfig{
		Notifications: value&0x0001 != 0,
		Indications:   value&0x0002 != 0,
	}, nil
}

// ParseUserDescription parses a user description, dropping NUL padding.
func ParseUserDescription(data []byte) (string, error) {
	str := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 in user description")
	}
	return str, nil
}

// ParsePresentationFormat parses the 7-byte presentation format value.
func ParsePresentationFormat(data []byte) (*PresentationFormat, error) {
	if len(data) != 7 {
		return nil, fmt.Errorf("invalid length for presentation format: expected 7, got %d", len(data))
	}
	return &PresentationFormat{
		Format:      data[0],
		Exponent:    int8(data[1]),
		Unit:        binary.LittleEndian.Uint16(data[2:4]),
		Namespace:   data[4],
		Description: binary.LittleEndian.Uint16(data[5:7]),
	}, nil
}

// DecodeDescriptorValue converts raw descriptor bytes to the typed value platforms
// expose: uint16 for the 2-byte configuration descriptors, string for the user
// description and the raw bytes for everything else. Malformed well-known values
// are returned as raw bytes.
func DecodeDescriptorValue(uuid string, data []byte) any {
	if data == nil {
		return nil
	}
	switch NormalizeUUID(uuid) {
	case DescriptorExtendedProperties, DescriptorClientConfig, DescriptorServerConfig:
		if len(data) == 2 {
			return binary.LittleEndian.Uint16(data)
		}
	case DescriptorUserDescription:
		if s, err := ParseUserDescription(data); err == nil {
			return s
		}
	}
	return append([]byte(nil), data...)
}
