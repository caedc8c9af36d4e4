package ble

import (
	"github.com/srg/blecb/internal/central"
)

// ScanEventKind distinguishes scan callback invocations.
type ScanEventKind = central.ScanEventKind

const (
	ScanStarted = central.ScanStarted
	ScanResult  = central.ScanResult
	ScanStopped = central.ScanStopped
)

// ScanEvent is delivered to a scan callback: Started first, then any number of
// Result, then exactly one Stopped.
type ScanEvent struct {
	Kind ScanEventKind

	// Result only
	Peripheral    *Peripheral
	Advertisement Advertisement
	RSSI          int

	// Stopped only
	Peripherals []*Peripheral
	Err         error
}

func (c *Central) scanEvent(e central.ScanEvent) ScanEvent {
	out := ScanEvent{
		Kind:          e.Kind,
		Advertisement: e.Advertisement,
		RSSI:          e.RSSI,
		Err:           e.Err,
	}
	if e.Peripheral != nil {
		out.Peripheral = c.wrap(e.Peripheral)
	}
	if e.Kind == ScanStopped {
		out.Peripherals = c.wrapAll(e.Peripherals)
	}
	return out
}

// Peripheral is a handle to one remote device. Two handles for the same device
// share the request queues and the attribute cache; compare them by Identifier.
type Peripheral struct {
	p *central.Peripheral
	c *Central
}

func (p *Peripheral) Identifier() string     { return p.p.Identifier() }
func (p *Peripheral) Name() string           { return p.p.Name() }
func (p *Peripheral) State() PeripheralState { return p.p.State() }
func (p *Peripheral) Services() []Service    { return p.p.Services() }

// IsValid reports false once the adapter left poweredOn after the handle was created.
func (p *Peripheral) IsValid() bool { return p.p.IsValid() }

// fail runs fn on the dispatch goroutine, where every other answer is delivered,
// or right away once the central is closed.
func (p *Peripheral) fail(fn func()) {
	if !p.c.queue.Async(fn) {
		fn()
	}
}

func (p *Peripheral) Connect(cb func(error), opts ...CallOption) {
	p.p.Connect(cb, opts...)
}

func (p *Peripheral) Disconnect(cb func(error), opts ...CallOption) {
	p.p.Disconnect(cb, opts...)
}

func (p *Peripheral) ReadRSSI(cb func(int, error), opts ...CallOption) {
	p.p.ReadRSSI(cb, opts...)
}

// DiscoverServices discovers the given services, or all of them when uuids is nil.
// Already cached services answer without a platform round-trip.
func (p *Peripheral) DiscoverServices(uuids []UUIDLike, cb func([]Service, error), opts ...CallOption) {
	keys, err := canonicalUUIDs(uuids)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.DiscoverServices(keys, cb, opts...)
}

func (p *Peripheral) DiscoverIncludedServices(uuids []UUIDLike, service UUIDLike, cb func([]Service, error), opts ...CallOption) {
	keys, err := canonicalUUIDs(uuids)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	svc, err := CanonicalUUID(service)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.DiscoverIncludedServices(keys, svc, cb, opts...)
}

func (p *Peripheral) DiscoverCharacteristics(uuids []UUIDLike, service UUIDLike, cb func([]Characteristic, error), opts ...CallOption) {
	keys, err := canonicalUUIDs(uuids)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	svc, err := CanonicalUUID(service)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.DiscoverCharacteristics(keys, svc, cb, opts...)
}

// DiscoverDescriptors always asks the platform.
func (p *Peripheral) DiscoverDescriptors(service, characteristic UUIDLike, cb func([]Descriptor, error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.DiscoverDescriptors(svc, chr, cb, opts...)
}

func (p *Peripheral) ReadValue(service, characteristic UUIDLike, cb func([]byte, error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.ReadValue(svc, chr, cb, opts...)
}

// WriteValue writes data. Without response the callback fires as soon as the
// write was handed to the platform.
func (p *Peripheral) WriteValue(service, characteristic UUIDLike, data []byte, withResponse bool, cb func(error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(err) })
		return
	}
	p.p.WriteValue(svc, chr, data, withResponse, cb, opts...)
}

// SetNotifyValue enables or disables notifications. Values arrive as
// CharacteristicValueChanged events.
func (p *Peripheral) SetNotifyValue(enabled bool, service, characteristic UUIDLike, cb func(bool, error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(false, err) })
		return
	}
	p.p.SetNotifyValue(enabled, svc, chr, cb, opts...)
}

func (p *Peripheral) ReadDescriptorValue(service, characteristic, descriptor UUIDLike, cb func([]byte, error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	dsc, err := CanonicalUUID(descriptor)
	if err != nil {
		p.fail(func() { cb(nil, err) })
		return
	}
	p.p.ReadDescriptorValue(svc, chr, dsc, cb, opts...)
}

func (p *Peripheral) WriteDescriptorValue(service, characteristic, descriptor UUIDLike, data []byte, cb func(error), opts ...CallOption) {
	svc, chr, err := canonicalPair(service, characteristic)
	if err != nil {
		p.fail(func() { cb(err) })
		return
	}
	dsc, err := CanonicalUUID(descriptor)
	if err != nil {
		p.fail(func() { cb(err) })
		return
	}
	p.p.WriteDescriptorValue(svc, chr, dsc, data, cb, opts...)
}

func canonicalPair(service, characteristic UUIDLike) (string, string, error) {
	svc, err := CanonicalUUID(service)
	if err != nil {
		return "", "", err
	}
	chr, err := CanonicalUUID(characteristic)
	if err != nil {
		return "", "", err
	}
	return svc, chr, nil
}
