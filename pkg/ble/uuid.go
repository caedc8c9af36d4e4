package ble

import (
	"errors"
	"fmt"

	blelib "github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/blecb/internal/device"
)

// ErrInvalidUUID is reported when a UUID-like argument cannot be converted.
var ErrInvalidUUID = errors.New("invalid UUID")

// UUIDLike is any value accepted where an attribute UUID is expected:
//   - string in short ("180F"), 0x ("0x180f"), dashed, braced or undashed 128-bit form
//   - uint16 or int holding a 16-bit assigned number
//   - github.com/go-ble/ble.UUID
//   - github.com/google/uuid.UUID
//   - a discovered Service, Characteristic or Descriptor
type UUIDLike = any

// CanonicalUUID converts v to the canonical lowercase key used by the cache.
func CanonicalUUID(v UUIDLike) (string, error) {
	switch u := v.(type) {
	case string:
		n, err := device.ParseUUID(u)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidUUID, err)
		}
		return n, nil
	case uint16:
		return fmt.Sprintf("%04x", u), nil
	case int:
		if u < 0 || u > 0xFFFF {
			return "", fmt.Errorf("%w: %d is not a 16-bit UUID", ErrInvalidUUID, u)
		}
		return fmt.Sprintf("%04x", u), nil
	case blelib.UUID:
		switch u.Len() {
		case 2, 4, 16:
			return device.NormalizeUUID(u.String()), nil
		default:
			return "", fmt.Errorf("%w: unexpected length %d", ErrInvalidUUID, u.Len())
		}
	case uuid.UUID:
		return device.NormalizeUUID(u.String()), nil
	case device.Attribute:
		return u.UUID(), nil
	}
	return "", fmt.Errorf("%w: unsupported type %T", ErrInvalidUUID, v)
}

// canonicalUUIDs converts a list; nil stays nil so that "no filter" is preserved.
func canonicalUUIDs(vs []UUIDLike) ([]string, error) {
	if vs == nil {
		return nil, nil
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		n, err := CanonicalUUID(v)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
