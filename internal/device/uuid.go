package device

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal key format (lowercase, no dashes).
// Handles both standard UUID format (with dashes) and already normalized format (without dashes).
// Also strips 0x prefix and braces if present (e.g., "0x2902" -> "2902").
// For full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb),
// extracts the 16-bit short form (xxxx).
func NormalizeUUID(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	if uuids == nil {
		return nil
	}
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = NormalizeUUID(u)
	}
	return result
}

// ParseUUID normalizes s and checks that it is a well-formed 16, 32 or 128-bit UUID.
func ParseUUID(s string) (string, error) {
	n := NormalizeUUID(s)
	switch len(n) {
	case 4, 8:
		if _, err := hex.DecodeString(n); err != nil {
			return "", fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return n, nil
	case 32:
		if _, err := uuid.Parse(n); err != nil {
			return "", fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return n, nil
	default:
		return "", fmt.Errorf("invalid UUID %q: unexpected length %d", s, len(n))
	}
}

// ExpandUUID returns the dashed 128-bit form of a normalized UUID,
// placing 16 and 32-bit UUIDs on the Bluetooth SIG base.
func ExpandUUID(s string) string {
	n := NormalizeUUID(s)
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	}
	u, err := uuid.Parse(n)
	if err != nil {
		return n
	}
	return u.String()
}

// ShortenUUID returns a truncated version of a UUID for display purposes.
// Returns the first eight characters for long UUIDs and short UUIDs by themselves.
func ShortenUUID(uuid string) string {
	if len(uuid) > 8 {
		return uuid[:8]
	}
	return uuid
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("at least one UUID is required")
	}

	result := make([]string, 0, len(uuids))
	for i, u := range uuids {
		if u == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		normalized, err := ParseUUID(u)
		if err != nil {
			return nil, fmt.Errorf("UUID at index %d: %w", i, err)
		}
		result = append(result, normalized)
	}
	return result, nil
}
