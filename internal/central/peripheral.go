package central

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
)

// Peripheral is the handle callers use to talk to one device. It sequences
// every GATT request against the platform peripheral: one request in flight
// per key, the rest waiting in FIFO order.
//
// Read, write and notify requests first make sure the device is connected and
// the target service and characteristic are discovered, reusing what was
// discovered before. Exported methods may be called from any goroutine;
// callbacks run on the dispatch queue.
type Peripheral struct {
	coord    *Coordinator
	platform device.Peripheral
	q        *dispatch.Queue
	logger   *logrus.Entry
	valid    atomic.Bool

	rssi            *family[single, int]
	services        *family[single, []device.Service]
	included        *family[device.Path, []device.Service]
	characteristics *family[single, []device.Characteristic]
	descriptors     *family[device.Path, []device.Descriptor]
	reads           *family[device.Path, []byte]
	writes          *family[device.Path, struct{}]
	notifies        *family[device.Path, bool]
	descriptorReads *family[device.Path, []byte]
	descriptorWrite *family[device.Path, struct{}]
}

func newPeripheral(c *Coordinator, dp device.Peripheral) *Peripheral {
	logger := c.logger.WithField("peripheral", dp.Identifier())
	p := &Peripheral{
		coord:    c,
		platform: dp,
		q:        c.q,
		logger:   logger,

		rssi:            newFamily[single, int](OpReadRSSI, c.q, logger),
		services:        newFamily[single, []device.Service](OpDiscoverServices, c.q, logger),
		included:        newFamily[device.Path, []device.Service](OpDiscoverIncludedServices, c.q, logger),
		characteristics: newFamily[single, []device.Characteristic](OpDiscoverCharacteristics, c.q, logger),
		descriptors:     newFamily[device.Path, []device.Descriptor](OpDiscoverDescriptors, c.q, logger),
		reads:           newFamily[device.Path, []byte](OpReadCharacteristic, c.q, logger),
		writes:          newFamily[device.Path, struct{}](OpWriteCharacteristic, c.q, logger),
		notifies:        newFamily[device.Path, bool](OpUpdateNotificationState, c.q, logger),
		descriptorReads: newFamily[device.Path, []byte](OpReadDescriptor, c.q, logger),
		descriptorWrite: newFamily[device.Path, struct{}](OpWriteDescriptor, c.q, logger),
	}
	p.valid.Store(true)
	dp.SetDelegate(p)
	return p
}

// Identifier returns the platform identity of the device.
func (p *Peripheral) Identifier() string {
	return p.platform.Identifier()
}

// Name returns the current device name, possibly empty.
func (p *Peripheral) Name() string {
	return p.platform.Name()
}

// State returns the live connection state.
func (p *Peripheral) State() device.PeripheralState {
	return p.platform.State()
}

// Services returns the services discovered so far.
func (p *Peripheral) Services() []device.Service {
	return p.platform.Services()
}

// IsValid reports whether the handle is still usable. Handles become invalid
// when the adapter leaves poweredOn and stay so until the device is rediscovered.
func (p *Peripheral) IsValid() bool {
	return p.valid.Load()
}

// Platform returns the underlying platform handle.
func (p *Peripheral) Platform() device.Peripheral {
	return p.platform
}

// invalidate marks the handle stale and fails everything it still has queued.
func (p *Peripheral) invalidate() {
	if !p.valid.CompareAndSwap(true, false) {
		return
	}
	failed := p.failPending(device.ErrInvalidPeripheral)
	p.logger.WithField("failed_requests", failed).Debug("Peripheral invalidated")
}

// failPending fails every queued and in-flight request with err.
func (p *Peripheral) failPending(err error) int {
	var failed int
	fanOut([]func(){
		func() { failed += p.rssi.failAll(err) },
		func() { failed += p.services.failAll(err) },
		func() { failed += p.included.failAll(err) },
		func() { failed += p.characteristics.failAll(err) },
		func() { failed += p.descriptors.failAll(err) },
		func() { failed += p.reads.failAll(err) },
		func() { failed += p.writes.failAll(err) },
		func() { failed += p.notifies.failAll(err) },
		func() { failed += p.descriptorReads.failAll(err) },
		func() { failed += p.descriptorWrite.failAll(err) },
	})
	return failed
}

// enqueue adds r to f unless the handle went stale or the coordinator closed
// while its dependencies ran.
func enqueue[K comparable, T any](p *Peripheral, f *family[K, T], key K, r *request[T]) {
	var zero T
	switch {
	case p.coord.closed:
		r.callback(zero, device.ErrClosed)
	case !p.IsValid():
		r.callback(zero, device.ErrInvalidPeripheral)
	default:
		f.enqueue(key, r)
	}
}

// submit runs fn on the dispatch queue, or calls fail with ErrClosed on the
// calling goroutine once the queue is closed.
func (p *Peripheral) submit(fn func(), fail func(error)) {
	if !p.q.Async(fn) {
		fail(device.ErrClosed)
	}
}

// Connect connects the device. Concurrent connects share one platform attempt.
func (p *Peripheral) Connect(cb func(error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	p.submit(func() { p.connect(o, cb) }, cb)
}

// Disconnect disconnects the device. Concurrent disconnects share one platform attempt.
func (p *Peripheral) Disconnect(cb func(error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	p.submit(func() {
		if !p.IsValid() {
			cb(device.ErrInvalidPeripheral)
			return
		}
		p.coord.disconnect(p, o.connectTimeout(p.coord.opts), cb)
	}, cb)
}

// ReadRSSI reads the signal strength, connecting first if needed.
func (p *Peripheral) ReadRSSI(cb func(int, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	p.submit(func() { p.readRSSI(o, cb) }, func(err error) { cb(0, err) })
}

// DiscoverServices discovers the given services, or all services when uuids is empty.
// Services discovered earlier are returned without a platform round trip.
func (p *Peripheral) DiscoverServices(uuids []string, cb func([]device.Service, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	uuids = device.NormalizeUUIDs(uuids)
	p.submit(func() { p.discoverServices(uuids, o, cb) }, func(err error) { cb(nil, err) })
}

// DiscoverIncludedServices discovers services included by serviceUUID.
func (p *Peripheral) DiscoverIncludedServices(uuids []string, serviceUUID string, cb func([]device.Service, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	uuids = device.NormalizeUUIDs(uuids)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	p.submit(func() { p.discoverIncludedServices(uuids, serviceUUID, o, cb) }, func(err error) { cb(nil, err) })
}

// DiscoverCharacteristics discovers characteristics of serviceUUID, or all of them when uuids is empty.
func (p *Peripheral) DiscoverCharacteristics(uuids []string, serviceUUID string, cb func([]device.Characteristic, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	uuids = device.NormalizeUUIDs(uuids)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	p.submit(func() { p.discoverCharacteristics(uuids, serviceUUID, o, cb) }, func(err error) { cb(nil, err) })
}

// DiscoverDescriptors discovers the descriptors of a characteristic. Always hits the platform.
func (p *Peripheral) DiscoverDescriptors(serviceUUID, characteristicUUID string, cb func([]device.Descriptor, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	characteristicUUID = device.NormalizeUUID(characteristicUUID)
	p.submit(func() { p.discoverDescriptors(serviceUUID, characteristicUUID, o, cb) }, func(err error) { cb(nil, err) })
}

// ReadValue reads a characteristic value.
func (p *Peripheral) ReadValue(serviceUUID, characteristicUUID string, cb func([]byte, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	characteristicUUID = device.NormalizeUUID(characteristicUUID)
	p.submit(func() { p.readValue(serviceUUID, characteristicUUID, o, cb) }, func(err error) { cb(nil, err) })
}

// WriteValue writes a characteristic value. Without response the callback fires
// as soon as the write was handed to the platform.
func (p *Peripheral) WriteValue(serviceUUID, characteristicUUID string, data []byte, withResponse bool, cb func(error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	characteristicUUID = device.NormalizeUUID(characteristicUUID)
	data = append([]byte(nil), data...)
	p.submit(func() { p.writeValue(serviceUUID, characteristicUUID, data, withResponse, o, cb) }, cb)
}

// SetNotifyValue enables or disables notifications and reports the resulting state.
// Values pushed while enabled are published as CharacteristicValueChanged events.
func (p *Peripheral) SetNotifyValue(enabled bool, serviceUUID, characteristicUUID string, cb func(bool, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	serviceUUID = device.NormalizeUUID(serviceUUID)
	characteristicUUID = device.NormalizeUUID(characteristicUUID)
	p.submit(func() { p.setNotifyValue(enabled, serviceUUID, characteristicUUID, o, cb) }, func(err error) { cb(false, err) })
}

// ReadDescriptorValue reads a descriptor value as bytes.
func (p *Peripheral) ReadDescriptorValue(serviceUUID, characteristicUUID, descriptorUUID string, cb func([]byte, error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	path := device.NewPath(serviceUUID, characteristicUUID, descriptorUUID)
	p.submit(func() { p.readDescriptorValue(path, o, cb) }, func(err error) { cb(nil, err) })
}

// WriteDescriptorValue writes a descriptor value.
func (p *Peripheral) WriteDescriptorValue(serviceUUID, characteristicUUID, descriptorUUID string, data []byte, cb func(error), opts ...CallOption) {
	o := resolveCallOptions(opts)
	path := device.NewPath(serviceUUID, characteristicUUID, descriptorUUID)
	data = append([]byte(nil), data...)
	p.submit(func() { p.writeDescriptorValue(path, data, o, cb) }, cb)
}
