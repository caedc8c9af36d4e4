package notify

import (
	"fmt"
	"sync/atomic"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
)

// MaxRecorderSize guards against accidental misconfiguration.
const MaxRecorderSize uint32 = 64 * 1024

// Recorder keeps the most recent events in an overlapped ring buffer.
// Once full, recording a new event drops the oldest one. All methods are thread-safe.
type Recorder[E any] struct {
	buffer  mpmc.RichOverlappedRingBuffer[E]
	metrics Metrics
}

// NewRecorder creates a recorder holding up to size events (the buffer may round up).
func NewRecorder[E any](size uint32) (*Recorder[E], error) {
	if size == 0 {
		return nil, fmt.Errorf("recorder size must be > 0")
	}
	if size > MaxRecorderSize {
		return nil, fmt.Errorf("recorder size %d exceeds maximum %d", size, MaxRecorderSize)
	}
	return &Recorder[E]{buffer: mpmc.NewOverlappedRingBuffer[E](size)}, nil
}

// Record stores e.
func (r *Recorder[E]) Record(e E) error {
	overwrites, err := r.buffer.EnqueueM(e)
	if err != nil {
		return fmt.Errorf("unexpected buffer.Enqueue error: %w", err)
	}
	r.metrics.addOverwritten(int64(overwrites))
	r.metrics.addWritten(1)
	return nil
}

// Drain removes and returns the recorded events, oldest first.
func (r *Recorder[E]) Drain() []E {
	var out []E
	for !r.buffer.IsEmpty() {
		e, err := r.buffer.Dequeue()
		if err != nil {
			break
		}
		out = append(out, e)
		r.metrics.addProcessed(1)
	}
	return out
}

// IsEmpty reports whether nothing is recorded.
func (r *Recorder[E]) IsEmpty() bool {
	return r.buffer.IsEmpty()
}

// GetMetrics returns a snapshot of the recorder counters.
func (r *Recorder[E]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&r.metrics.Processed),
		Written:     atomic.LoadInt64(&r.metrics.Written),
		Overwritten: atomic.LoadInt64(&r.metrics.Overwritten),
	}
}
