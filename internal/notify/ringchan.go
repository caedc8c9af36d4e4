package notify

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: if the buffer is full, the oldest element is discarded.
// Consumers read from C() like a normal channel until Close.
//
//	rc := notify.NewRingChannel[Event](3)
//	for i := 0; i < 10; i++ {
//	    rc.Send(ev)
//	}
//	for v := range rc.C() {
//	    ...
//	}
//
// Only the last 3 sends above are delivered.
type RingChannel[T any] struct {
	mu      sync.Mutex // serializes producers against Close
	ch      chan T
	closed  bool
	metrics Metrics
}

// NewRingChannel creates a RingChannel with the given capacity.
func NewRingChannel[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("notify: ring channel capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through C are not counted as Processed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest buffered element if full.
// Returns false if the channel is closed.
func (rc *RingChannel[T]) Send(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.metrics.addWritten(1)
			return true
		default:
		}
		// A consumer may drain concurrently, so the drop is itself non-blocking.
		select {
		case <-rc.ch:
			rc.metrics.addOverwritten(1)
		default:
		}
	}
}

// Receive blocks until a value is available or the channel is closed.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.addProcessed(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.metrics.addProcessed(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the channel. Further sends are dropped. Safe to call twice.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// GetMetrics returns a snapshot of current metrics values.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics provides lock-free counters for RingChannel and Recorder.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int64) {
	atomic.AddInt64(&m.Processed, n)
}

func (m *Metrics) addWritten(n int64) {
	atomic.AddInt64(&m.Written, n)
}

func (m *Metrics) addOverwritten(n int64) {
	atomic.AddInt64(&m.Overwritten, n)
}
