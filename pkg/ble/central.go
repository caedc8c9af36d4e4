// Package ble is the public entry point: a BLE central whose every operation
// takes a completion callback.
//
// Callbacks run on the central's dispatch goroutine, one at a time, and must not
// block. Requests for the same attribute are issued strictly one after another;
// a request implicitly connects and discovers whatever it depends on.
//
//	c, err := ble.NewCentral()
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	p := c.RetrievePeripherals("AA:BB:CC:DD:EE:FF")[0]
//	p.ReadValue(0x180F, 0x2A19, func(value []byte, err error) {
//	    ...
//	})
package ble

import (
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/devicefactory"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/notify"
	"github.com/srg/blecb/pkg/config"
)

// PlatformFactory creates the platform central delivering its delegate calls on q.
type PlatformFactory func(q *dispatch.Queue, cacheSize int, logger *logrus.Logger) (device.Central, error)

type options struct {
	cfg      *config.Config
	logger   *logrus.Logger
	platform PlatformFactory
}

// Option configures NewCentral.
type Option func(*options)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithLogger sets the logger. By default the configuration builds one.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithPlatform replaces the go-ble platform, e.g. with an in-memory fake.
func WithPlatform(f PlatformFactory) Option {
	return func(o *options) {
		o.platform = f
	}
}

// Central owns the dispatch queue, the platform central and the request engine
// for its lifetime.
type Central struct {
	cfg    *config.Config
	logger *logrus.Logger

	queue    *dispatch.Queue
	platform device.Central
	events   *notify.Hub[Event]
	recorder *notify.Recorder[Event]
	coord    *central.Coordinator

	closeOnce sync.Once
}

// NewCentral creates a central. The adapter starts in StateUnknown; requests
// made before it settles wait for it.
func NewCentral(opts ...Option) (*Central, error) {
	o := options{platform: devicefactory.NewCentral}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = o.cfg.NewLogger()
	}

	var recorder *notify.Recorder[Event]
	if o.cfg.EventHistorySize > 0 {
		var err error
		recorder, err = notify.NewRecorder[Event](o.cfg.EventHistorySize)
		if err != nil {
			return nil, err
		}
	}

	q := dispatch.New("ble-central", o.logger)
	platform, err := o.platform(q, o.cfg.PeripheralCacheSize, o.logger)
	if err != nil {
		q.Close()
		return nil, err
	}

	hub := notify.NewHub[Event](recorder, o.logger)
	c := &Central{
		cfg:      o.cfg,
		logger:   o.logger,
		queue:    q,
		platform: platform,
		events:   hub,
		recorder: recorder,
		coord:    central.NewCoordinator(platform, q, hub, o.cfg.CentralOptions(), o.logger),
	}
	o.logger.WithFields(logrus.Fields{
		"request_timeout": o.cfg.RequestTimeout,
		"connect_timeout": o.cfg.ConnectTimeout,
	}).Debug("BLE central created")
	return c, nil
}

// State returns the last adapter state seen by the request engine.
func (c *Central) State() ManagerState {
	return c.coord.State()
}

// WhenReady calls cb once the adapter left its transient states:
// with nil when powered on, otherwise with the matching unavailability error.
func (c *Central) WhenReady(cb func(error)) {
	c.coord.WhenReady(cb)
}

// Scan starts a scan session, superseding the active one. A zero timeout scans until
// StopScan. Invalid service UUIDs end the session right away with ErrInvalidUUID.
func (c *Central) Scan(services []UUIDLike, timeout time.Duration, cb func(ScanEvent)) {
	uuids, err := canonicalUUIDs(services)
	if err != nil {
		stop := func() { cb(ScanEvent{Kind: ScanStopped, Err: err}) }
		if !c.queue.Async(stop) {
			stop()
		}
		return
	}
	c.coord.Scan(uuids, timeout, func(e central.ScanEvent) {
		cb(c.scanEvent(e))
	})
}

// StopScan ends the active scan session, if any.
func (c *Central) StopScan() {
	c.coord.StopScan()
}

// IsScanning reports whether a scan session is active.
func (c *Central) IsScanning() bool {
	return c.coord.IsScanning()
}

// Peripheral returns the handle of a peripheral seen before.
func (c *Central) Peripheral(identifier string) (*Peripheral, bool) {
	p, ok := c.coord.Peripheral(identifier)
	if !ok {
		return nil, false
	}
	return c.wrap(p), true
}

// Peripherals returns every known valid handle.
func (c *Central) Peripherals() []*Peripheral {
	return c.wrapAll(c.coord.Peripherals())
}

// RetrievePeripherals returns handles for identifiers the platform can resolve,
// without scanning. Identifiers it cannot resolve are skipped.
func (c *Central) RetrievePeripherals(identifiers ...string) []*Peripheral {
	return c.wrapAll(c.coord.Retrieve(identifiers...))
}

// Subscribe registers fn for every published event until cancel is called.
// fn runs on the dispatch goroutine.
func (c *Central) Subscribe(fn func(Event)) (cancel func()) {
	return c.events.Subscribe(fn)
}

// Events returns a buffered channel of events. When the reader falls behind the
// oldest buffered events are dropped. The channel closes on cancel or Close.
func (c *Central) Events() (events <-chan Event, cancel func()) {
	rc, cancel := c.events.Channel(c.cfg.EventBufferSize)
	return rc.C(), cancel
}

// RecentEvents returns and forgets the recorded event history, oldest first.
func (c *Central) RecentEvents() []Event {
	if c.recorder == nil {
		return nil
	}
	return c.recorder.Drain()
}

// Close stops the scan and releases the platform and the dispatch queue.
// Requests still pending fail with ErrClosed, as does every request issued afterwards.
func (c *Central) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.coord.Close()
		if closer, ok := c.platform.(io.Closer); ok {
			err = closer.Close()
		}
		c.events.Close()
		c.queue.Close()
		c.logger.Debug("BLE central closed")
	})
	return err
}

func (c *Central) wrap(p *central.Peripheral) *Peripheral {
	if p == nil {
		return nil
	}
	return &Peripheral{p: p, c: c}
}

func (c *Central) wrapAll(ps []*central.Peripheral) []*Peripheral {
	out := make([]*Peripheral, 0, len(ps))
	for _, p := range ps {
		out = append(out, c.wrap(p))
	}
	return out
}
