package device

import (
	"encoding/binary"
	"fmt"
)

// DescriptorBytes converts a descriptor value to its wire bytes.
//
// Platforms may decode well-known descriptors (user description as a string,
// client configuration as a number); those are re-encoded little-endian.
// Values of any other type fail with InvalidDescriptorValueError.
func DescriptorBytes(dsc Descriptor) ([]byte, error) {
	switch v := dsc.Value().(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case uint8:
		return []byte{v}, nil
	case uint16:
		return binary.LittleEndian.AppendUint16(nil, v), nil
	case uint32:
		return binary.LittleEndian.AppendUint32(nil, v), nil
	case fmt.Stringer:
		return []byte(v.String()), nil
	default:
		return nil, &InvalidDescriptorValueError{Descriptor: dsc.UUID(), Value: v}
	}
}
