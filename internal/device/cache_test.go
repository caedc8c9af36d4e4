package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartition(t *testing.T) {
	available := []stubAttr{{"180f"}, {"0000180d-0000-1000-8000-00805f9b34fb"}, {"1234"}}

	tests := []struct {
		name        string
		requested   []string
		wantFound   []stubAttr
		wantMissing []string
	}{
		{
			name:        "all found",
			requested:   []string{"180F", "180d"},
			wantFound:   []stubAttr{{"180f"}, {"0000180d-0000-1000-8000-00805f9b34fb"}},
			wantMissing: nil,
		},
		{
			name:        "partially found",
			requested:   []string{"ffff", "1234", "aaaa"},
			wantFound:   []stubAttr{{"1234"}},
			wantMissing: []string{"ffff", "aaaa"},
		},
		{
			name:        "duplicates in request are collapsed",
			requested:   []string{"180f", "0x180F", "eeee", "EEEE"},
			wantFound:   []stubAttr{{"180f"}},
			wantMissing: []string{"eeee"},
		},
		{
			name:        "empty request finds nothing",
			requested:   nil,
			wantFound:   nil,
			wantMissing: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, missing := Partition(tt.requested, available)
			assert.Equal(t, tt.wantFound, found)
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}

func TestPartition_FirstOccurrenceWins(t *testing.T) {
	available := []stubAttr{{"2a19"}, {"2A19"}}

	found, missing := Partition([]string{"2a19"}, available)

	assert.Equal(t, []stubAttr{{"2a19"}}, found, "only the first attribute per UUID MUST be returned")
	assert.Empty(t, missing)
}

func TestPartition_NothingAvailable(t *testing.T) {
	found, missing := Partition[stubAttr]([]string{"180f"}, nil)

	assert.Empty(t, found)
	assert.Equal(t, []string{"180f"}, missing)
}
