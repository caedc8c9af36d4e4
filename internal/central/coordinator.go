package central

import (
	"time"

	list "github.com/bahlo/generic-list-go"
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/notify"
	"github.com/srg/blecb/internal/weakref"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// linkRequest is a coalesced connect or disconnect request.
// Every caller asking while it is in flight gets appended to callbacks.
type linkRequest struct {
	peripheral *Peripheral
	callbacks  []func(error)
	timer      *time.Timer
	ref        *weakref.Ref[linkRequest]
}

func (r *linkRequest) fulfil(err error) {
	if r.ref != nil {
		r.ref.Release()
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	fanOut(errorCalls(r.callbacks, err))
}

func errorCalls(cbs []func(error), err error) []func() {
	calls := make([]func(), 0, len(cbs))
	for _, cb := range cbs {
		calls = append(calls, func() { cb(err) })
	}
	return calls
}

// Coordinator owns the platform central manager: adapter readiness, scanning,
// connection lifecycle and the registry of peripheral handles.
//
// Exported methods may be called from any goroutine; they hop onto the
// dispatch queue. Callbacks run on the dispatch queue and must not block.
type Coordinator struct {
	central device.Central
	q       *dispatch.Queue
	opts    Options
	logger  *logrus.Logger
	events  *notify.Hub[Event]

	registry *hashmap.Map[string, *Peripheral]

	// queue-confined state
	waiters      *list.List[func(error)]
	connects     *orderedmap.OrderedMap[string, *linkRequest]
	disconnects  *orderedmap.OrderedMap[string, *linkRequest]
	scan         *scanSession
	wasPoweredOn bool
	closed       bool
}

// NewCoordinator installs itself as the delegate of c. c must deliver its delegate
// calls on q. events receives the externally visible events; it may be shared.
func NewCoordinator(c device.Central, q *dispatch.Queue, events *notify.Hub[Event], opts Options, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	if events == nil {
		events = notify.NewHub[Event](nil, logger)
	}
	base := DefaultOptions()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = base.RequestTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = base.ConnectTimeout
	}

	coord := &Coordinator{
		central:     c,
		q:           q,
		opts:        opts,
		logger:      logger,
		events:      events,
		registry:    hashmap.New[string, *Peripheral](),
		waiters:     list.New[func(error)](),
		connects:    orderedmap.New[string, *linkRequest](),
		disconnects: orderedmap.New[string, *linkRequest](),
	}
	q.Sync(func() {
		coord.wasPoweredOn = c.State() == device.StatePoweredOn
		c.SetDelegate(coord)
	})
	return coord
}

// Events returns the hub external events are published on.
func (c *Coordinator) Events() *notify.Hub[Event] {
	return c.events
}

// Queue returns the dispatch queue the coordinator runs on.
func (c *Coordinator) Queue() *dispatch.Queue {
	return c.q
}

// Options returns the effective options.
func (c *Coordinator) Options() Options {
	return c.opts
}

// State returns the platform adapter state.
func (c *Coordinator) State() device.ManagerState {
	var s device.ManagerState
	c.q.Sync(func() { s = c.central.State() })
	return s
}

// WhenReady calls fn once the adapter has a stable state: nil when powered on,
// the matching unavailability error otherwise. After Close fn gets ErrClosed.
func (c *Coordinator) WhenReady(fn func(error)) {
	if !c.q.Async(func() { c.whenReady(fn) }) {
		fn(device.ErrClosed)
	}
}

// Peripheral returns the handle for a known identifier.
func (c *Coordinator) Peripheral(identifier string) (*Peripheral, bool) {
	return c.registry.Get(identifier)
}

// Peripherals returns every valid handle.
func (c *Coordinator) Peripherals() []*Peripheral {
	out := make([]*Peripheral, 0, c.registry.Len())
	c.registry.Range(func(_ string, p *Peripheral) bool {
		out = append(out, p)
		return true
	})
	return out
}

// Retrieve resolves identifiers through the platform and returns their handles.
// Identifiers the platform cannot resolve are skipped.
func (c *Coordinator) Retrieve(identifiers ...string) []*Peripheral {
	var out []*Peripheral
	c.q.Sync(func() {
		for _, dp := range c.central.RetrievePeripherals(identifiers) {
			out = append(out, c.peripheralFor(dp))
		}
	})
	return out
}

func (c *Coordinator) whenReady(fn func(error)) {
	if c.closed {
		fn(device.ErrClosed)
		return
	}
	state := c.central.State()
	if state.IsTransient() {
		c.waiters.PushBack(fn)
		c.logger.WithFields(logrus.Fields{
			"state":   state,
			"waiters": c.waiters.Len(),
		}).Debug("Adapter not ready, parking request")
		return
	}
	fn(device.UnavailableError(state))
}

// peripheralFor returns the valid handle for dp, creating it on first sight.
func (c *Coordinator) peripheralFor(dp device.Peripheral) *Peripheral {
	id := dp.Identifier()
	if p, ok := c.registry.Get(id); ok && p.IsValid() {
		return p
	}
	p := newPeripheral(c, dp)
	c.registry.Set(id, p)
	c.logger.WithFields(logrus.Fields{
		"peripheral": id,
		"name":       dp.Name(),
	}).Debug("Registered peripheral")
	return p
}

func (c *Coordinator) isConnected(id string) bool {
	for _, lp := range c.central.RetrievePeripherals([]string{id}) {
		if lp.Identifier() == id && lp.State() == device.PeripheralConnected {
			return true
		}
	}
	return false
}

func (c *Coordinator) isDisconnected(id string) bool {
	live := c.central.RetrievePeripherals([]string{id})
	if len(live) == 0 {
		return true
	}
	for _, lp := range live {
		if lp.Identifier() != id {
			continue
		}
		switch lp.State() {
		case device.PeripheralDisconnected, device.PeripheralDisconnecting:
			return true
		}
	}
	return false
}

func (c *Coordinator) connect(p *Peripheral, timeout time.Duration, cb func(error)) {
	c.whenReady(func(err error) {
		if err != nil {
			cb(err)
			return
		}
		if !p.IsValid() {
			cb(device.ErrInvalidPeripheral)
			return
		}

		id := p.Identifier()
		if c.isConnected(id) {
			cb(nil)
			return
		}
		if req, ok := c.connects.Get(id); ok {
			req.callbacks = append(req.callbacks, cb)
			c.logger.WithFields(logrus.Fields{
				"peripheral": id,
				"callbacks":  len(req.callbacks),
			}).Debug("Joined in-flight connect")
			return
		}

		req := &linkRequest{peripheral: p, callbacks: []func(error){cb}}
		c.connects.Set(id, req)
		c.logger.WithFields(logrus.Fields{
			"peripheral": id,
			"timeout":    timeout,
		}).Info("Connecting to peripheral...")
		c.central.Connect(p.platform)

		ref := weakref.Make(req)
		req.ref = ref
		req.timer = c.q.After(timeout, func() {
			c.expireLink(c.connects, id, ref, OpConnect)
		})
	})
}

func (c *Coordinator) disconnect(p *Peripheral, timeout time.Duration, cb func(error)) {
	c.whenReady(func(err error) {
		if err != nil {
			cb(err)
			return
		}

		id := p.Identifier()
		if c.isDisconnected(id) {
			cb(nil)
			return
		}
		if req, ok := c.disconnects.Get(id); ok {
			req.callbacks = append(req.callbacks, cb)
			return
		}

		req := &linkRequest{peripheral: p, callbacks: []func(error){cb}}
		c.disconnects.Set(id, req)
		c.logger.WithField("peripheral", id).Info("Disconnecting from peripheral...")
		c.central.CancelConnect(p.platform)

		ref := weakref.Make(req)
		req.ref = ref
		req.timer = c.q.After(timeout, func() {
			c.expireLink(c.disconnects, id, ref, OpDisconnect)
		})
	})
}

func (c *Coordinator) expireLink(table *orderedmap.OrderedMap[string, *linkRequest], id string, ref *weakref.Ref[linkRequest], op string) {
	req := ref.Value()
	if req == nil {
		return
	}
	if cur, ok := table.Get(id); !ok || cur != req {
		return
	}
	table.Delete(id)

	c.logger.WithFields(logrus.Fields{
		"peripheral": id,
		"operation":  op,
	}).Warn("Request timed out")

	if op == OpConnect {
		c.central.CancelConnect(req.peripheral.platform)
	}
	req.fulfil(&device.TimeoutError{Operation: op})
}

// invalidate drops every handle after the adapter left poweredOn.
func (c *Coordinator) invalidate(state device.ManagerState) {
	var handles []*Peripheral
	c.registry.Range(func(_ string, p *Peripheral) bool {
		handles = append(handles, p)
		return true
	})
	for _, p := range handles {
		c.registry.Del(p.Identifier())
	}

	linkErr := device.UnavailableError(state)
	if linkErr == nil {
		linkErr = device.ErrInvalidPeripheral
	}
	pending := append(takeLinks(c.connects), takeLinks(c.disconnects)...)

	c.logger.WithFields(logrus.Fields{
		"state":       state,
		"peripherals": len(handles),
		"links":       len(pending),
	}).Warn("Adapter left poweredOn, invalidating peripherals")

	calls := make([]func(), 0, len(pending)+len(handles))
	for _, r := range pending {
		calls = append(calls, func() { r.fulfil(linkErr) })
	}
	for _, p := range handles {
		calls = append(calls, p.invalidate)
	}
	fanOut(calls)
}

// takeLinks empties table and returns its requests, oldest first.
func takeLinks(table *orderedmap.OrderedMap[string, *linkRequest]) []*linkRequest {
	var reqs []*linkRequest
	for pair := table.Oldest(); pair != nil; pair = pair.Next() {
		reqs = append(reqs, pair.Value)
	}
	for _, r := range reqs {
		table.Delete(r.peripheral.Identifier())
	}
	return reqs
}

// Close stops the active scan and fails everything still pending with ErrClosed:
// queued and in-flight requests, connects, disconnects and requests waiting for
// the adapter. Later requests fail with ErrClosed as well. The queue and the
// platform are owned by the caller.
func (c *Coordinator) Close() {
	c.q.Sync(func() {
		if c.closed {
			return
		}
		c.closed = true
		c.stopScan(nil)

		links := append(takeLinks(c.connects), takeLinks(c.disconnects)...)
		waiters := c.waiters
		c.waiters = list.New[func(error)]()
		var handles []*Peripheral
		c.registry.Range(func(_ string, p *Peripheral) bool {
			handles = append(handles, p)
			return true
		})

		c.logger.WithFields(logrus.Fields{
			"links":       len(links),
			"waiters":     waiters.Len(),
			"peripherals": len(handles),
		}).Debug("Closing coordinator")

		var calls []func()
		for _, r := range links {
			calls = append(calls, func() { r.fulfil(device.ErrClosed) })
		}
		for e := waiters.Front(); e != nil; e = e.Next() {
			fn := e.Value
			calls = append(calls, func() { fn(device.ErrClosed) })
		}
		for _, p := range handles {
			calls = append(calls, func() { p.failPending(device.ErrClosed) })
		}
		fanOut(calls)
	})
}

// CentralDelegate

func (c *Coordinator) DidUpdateState(central device.Central) {
	state := central.State()
	c.logger.WithField("state", state).Info("Adapter state changed")
	c.events.Publish(StateChanged{State: state})

	if state != device.StatePoweredOn {
		if c.scan != nil {
			c.stopScan(&device.ScanTerminatedError{State: state})
		}
		if c.wasPoweredOn {
			c.wasPoweredOn = false
			c.invalidate(state)
		}
	} else {
		c.wasPoweredOn = true
	}

	if state.IsTransient() {
		return
	}

	waiters := c.waiters
	c.waiters = list.New[func(error)]()
	var calls []func()
	err := device.UnavailableError(state)
	for e := waiters.Front(); e != nil; e = e.Next() {
		fn := e.Value
		calls = append(calls, func() { fn(err) })
	}
	fanOut(calls)
}

func (c *Coordinator) WillRestoreState(_ device.Central, peripherals []device.Peripheral) {
	handles := make([]*Peripheral, 0, len(peripherals))
	for _, dp := range peripherals {
		handles = append(handles, c.peripheralFor(dp))
	}
	c.logger.WithField("peripherals", len(handles)).Info("Restoring peripherals")
	c.events.Publish(WillRestoreState{Peripherals: handles})
}

func (c *Coordinator) DidDiscoverPeripheral(_ device.Central, dp device.Peripheral, adv device.Advertisement, rssi int) {
	s := c.scan
	if s == nil {
		c.logger.WithField("peripheral", dp.Identifier()).Debug("Discovery outside of a scan session, ignoring")
		return
	}
	p := c.peripheralFor(dp)
	s.record(p)
	s.callback(ScanEvent{
		Kind:          ScanResult,
		Peripheral:    p,
		Advertisement: adv,
		RSSI:          rssi,
	})
}

func (c *Coordinator) DidConnectPeripheral(_ device.Central, dp device.Peripheral) {
	id := dp.Identifier()
	req, ok := c.connects.Get(id)
	if !ok {
		c.logger.WithField("peripheral", id).Debug("Connected without a pending request")
		return
	}
	c.connects.Delete(id)
	c.logger.WithField("peripheral", id).Info("Peripheral connected")
	req.fulfil(nil)
}

func (c *Coordinator) DidFailToConnectPeripheral(_ device.Central, dp device.Peripheral, err error) {
	id := dp.Identifier()
	req, ok := c.connects.Get(id)
	if !ok {
		return
	}
	c.connects.Delete(id)

	if err == nil {
		err = device.ErrConnectUnknownReason
	} else {
		err = &device.PlatformError{Operation: OpConnect, Err: err}
	}
	c.logger.WithFields(logrus.Fields{
		"peripheral": id,
		"error":      err,
	}).Warn("Peripheral failed to connect")
	req.fulfil(err)
}

func (c *Coordinator) DidDisconnectPeripheral(_ device.Central, dp device.Peripheral, err error) {
	id := dp.Identifier()
	if err != nil {
		err = &device.PlatformError{Operation: OpDisconnect, Err: err}
	}

	p, _ := c.registry.Get(id)
	c.logger.WithFields(logrus.Fields{
		"peripheral": id,
		"error":      err,
	}).Info("Peripheral disconnected")
	c.events.Publish(PeripheralDisconnected{Peripheral: p, Err: err})

	req, ok := c.disconnects.Get(id)
	if !ok {
		return
	}
	c.disconnects.Delete(id)
	req.fulfil(err)
}
