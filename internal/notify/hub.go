// Package notify fans engine events out to external listeners.
//
// A Hub delivers each published event to callback subscribers in subscription
// order, to channel subscribers through overwrite-oldest RingChannels, and
// optionally into a Recorder holding the most recent events.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Hub is an observer registry for events of type E.
type Hub[E any] struct {
	mu       sync.Mutex
	nextID   uint64
	handlers *orderedmap.OrderedMap[uint64, func(E)]
	channels *orderedmap.OrderedMap[uint64, *RingChannel[E]]
	recorder *Recorder[E]
	closed   bool
	logger   *logrus.Logger
}

// NewHub creates a hub. recorder may be nil.
func NewHub[E any](recorder *Recorder[E], logger *logrus.Logger) *Hub[E] {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub[E]{
		handlers: orderedmap.New[uint64, func(E)](),
		channels: orderedmap.New[uint64, *RingChannel[E]](),
		recorder: recorder,
		logger:   logger,
	}
}

// Subscribe registers fn and returns a function removing it.
// Handlers run on the publisher's goroutine and must not block.
func (h *Hub[E]) Subscribe(fn func(E)) (cancel func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}
	h.nextID++
	id := h.nextID
	h.handlers.Set(id, fn)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.handlers.Delete(id)
	}
}

// Channel registers a buffered subscription. When the consumer falls behind the
// oldest undelivered events are dropped. cancel closes the channel.
func (h *Hub[E]) Channel(capacity int) (rc *RingChannel[E], cancel func()) {
	rc = NewRingChannel[E](capacity)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		rc.Close()
		return rc, func() {}
	}
	h.nextID++
	id := h.nextID
	h.channels.Set(id, rc)
	return rc, func() {
		h.mu.Lock()
		_, ok := h.channels.Delete(id)
		h.mu.Unlock()
		if ok {
			rc.Close()
		}
	}
}

// Publish delivers e to every subscriber.
func (h *Hub[E]) Publish(e E) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	handlers := make([]func(E), 0, h.handlers.Len())
	for pair := h.handlers.Oldest(); pair != nil; pair = pair.Next() {
		handlers = append(handlers, pair.Value)
	}
	channels := make([]*RingChannel[E], 0, h.channels.Len())
	for pair := h.channels.Oldest(); pair != nil; pair = pair.Next() {
		channels = append(channels, pair.Value)
	}
	h.mu.Unlock()

	if h.recorder != nil {
		if err := h.recorder.Record(e); err != nil {
			h.logger.WithField("error", err).Warn("Failed to record event")
		}
	}
	for _, rc := range channels {
		rc.Send(e)
	}
	for _, fn := range handlers {
		fn(e)
	}
}

// Recorder returns the hub's recorder, or nil.
func (h *Hub[E]) Recorder() *Recorder[E] {
	return h.recorder
}

// Len returns the number of active subscriptions.
func (h *Hub[E]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handlers.Len() + h.channels.Len()
}

// Close removes all subscribers and closes channel subscriptions.
func (h *Hub[E]) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	channels := make([]*RingChannel[E], 0, h.channels.Len())
	for pair := h.channels.Oldest(); pair != nil; pair = pair.Next() {
		channels = append(channels, pair.Value)
	}
	h.handlers = orderedmap.New[uint64, func(E)]()
	h.channels = orderedmap.New[uint64, *RingChannel[E]]()
	h.mu.Unlock()

	for _, rc := range channels {
		rc.Close()
	}
}
