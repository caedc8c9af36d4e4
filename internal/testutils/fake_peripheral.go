package testutils

import (
	"sync"

	"github.com/srg/blecb/internal/device"
)

// FakePeripheral is an in-memory device.Peripheral backed by a static GATT profile.
// Discovery directives reveal parts of the profile; Services and the children of
// each attribute only return what has been discovered, like a real platform.
type FakePeripheral struct {
	id      string
	central *FakeCentral

	mu        sync.Mutex
	name      string
	state     device.PeripheralState
	rssi      int
	profile   []*fakeService
	services  []device.Service
	delegate  device.PeripheralDelegate
	behaviors map[string]Behavior
}

// On configures how the peripheral answers the named directive (see the Call* constants).
func (p *FakePeripheral) On(call string, b Behavior) *FakePeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.behaviors[call] = b
	return p
}

func (p *FakePeripheral) behavior(call string) Behavior {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.behaviors[call]
}

func (p *FakePeripheral) setState(s device.PeripheralState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// forget drops everything discovered, as platforms do on disconnection.
func (p *FakePeripheral) forget() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = nil
	for _, s := range p.profile {
		s.discoveredChars = nil
		s.discoveredIncluded = nil
		for _, c := range s.chars {
			c.notifying = false
			c.discoveredDescs = nil
		}
	}
}

func (p *FakePeripheral) record(call Call) {
	call.Peripheral = p.id
	p.central.record(call)
}

func (p *FakePeripheral) post(fn func(d device.PeripheralDelegate)) {
	p.central.q.Async(func() {
		p.mu.Lock()
		d := p.delegate
		p.mu.Unlock()
		if d != nil {
			fn(d)
		}
	})
}

// Emit posts an arbitrary delegate callback on the dispatch queue.
func (p *FakePeripheral) Emit(fn func(d device.PeripheralDelegate, self device.Peripheral)) {
	p.post(func(d device.PeripheralDelegate) { fn(d, p) })
}

// Characteristic returns a characteristic from the full profile, discovered or not.
func (p *FakePeripheral) Characteristic(serviceUUID, characteristicUUID string) device.Characteristic {
	if c := p.lookupCharacteristic(serviceUUID, characteristicUUID); c != nil {
		return c
	}
	return nil
}

// Descriptor returns a descriptor from the full profile, discovered or not.
func (p *FakePeripheral) Descriptor(serviceUUID, characteristicUUID, descriptorUUID string) device.Descriptor {
	c := p.lookupCharacteristic(serviceUUID, characteristicUUID)
	if c == nil {
		return nil
	}
	for _, d := range c.descs {
		if d.uuid == device.NormalizeUUID(descriptorUUID) {
			return d
		}
	}
	return nil
}

func (p *FakePeripheral) lookupService(serviceUUID string) *fakeService {
	for _, s := range p.profile {
		if s.uuid == device.NormalizeUUID(serviceUUID) {
			return s
		}
	}
	return nil
}

func (p *FakePeripheral) lookupCharacteristic(serviceUUID, characteristicUUID string) *fakeCharacteristic {
	s := p.lookupService(serviceUUID)
	if s == nil {
		return nil
	}
	for _, c := range s.chars {
		if c.uuid == device.NormalizeUUID(characteristicUUID) {
			return c
		}
	}
	return nil
}

// SetDescriptorValue replaces a descriptor value with an arbitrary decoded value.
func (p *FakePeripheral) SetDescriptorValue(serviceUUID, characteristicUUID, descriptorUUID string, value any) {
	d, ok := p.Descriptor(serviceUUID, characteristicUUID, descriptorUUID).(*fakeDescriptor)
	if !ok {
		panic("FakePeripheral.SetDescriptorValue: unknown descriptor " + descriptorUUID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	d.value = value
}

// Notify pushes a value for the characteristic, as a notification would.
func (p *FakePeripheral) Notify(serviceUUID, characteristicUUID string, value []byte) {
	c := p.lookupCharacteristic(serviceUUID, characteristicUUID)
	if c == nil {
		panic("FakePeripheral.Notify: unknown characteristic " + serviceUUID + "/" + characteristicUUID)
	}
	p.mu.Lock()
	c.value = append([]byte(nil), value...)
	p.mu.Unlock()
	p.post(func(d device.PeripheralDelegate) { d.DidUpdateValueForCharacteristic(p, c, nil) })
}

// SetName renames the peripheral and posts DidUpdateName.
func (p *FakePeripheral) SetName(name string) {
	p.mu.Lock()
	p.name = name
	p.mu.Unlock()
	p.post(func(d device.PeripheralDelegate) { d.DidUpdateName(p) })
}

// ModifyServices forgets the given discovered services and posts DidModifyServices.
func (p *FakePeripheral) ModifyServices(serviceUUIDs ...string) {
	p.mu.Lock()
	var invalidated []device.Service
	kept := p.services[:0]
	for _, s := range p.services {
		if containsUUID(serviceUUIDs, s.UUID()) {
			invalidated = append(invalidated, s)
			continue
		}
		kept = append(kept, s)
	}
	p.services = kept
	p.mu.Unlock()
	p.post(func(d device.PeripheralDelegate) { d.DidModifyServices(p, invalidated) })
}

// Delegate returns the installed delegate.
func (p *FakePeripheral) Delegate() device.PeripheralDelegate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.delegate
}

func containsUUID(uuids []string, uuid string) bool {
	n := device.NormalizeUUID(uuid)
	for _, u := range uuids {
		if device.NormalizeUUID(u) == n {
			return true
		}
	}
	return false
}

// reveal appends the entries of all matching uuids (all of them when uuids is empty)
// that are not yet in discovered.
func reveal[A device.Attribute](all []A, discovered []A, uuids []string) []A {
	for _, a := range all {
		if len(uuids) > 0 && !containsUUID(uuids, a.UUID()) {
			continue
		}
		known := false
		for _, d := range discovered {
			if d.UUID() == a.UUID() {
				known = true
				break
			}
		}
		if !known {
			discovered = append(discovered, a)
		}
	}
	return discovered
}

// device.Peripheral

func (p *FakePeripheral) Identifier() string {
	return p.id
}

func (p *FakePeripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *FakePeripheral) State() device.PeripheralState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *FakePeripheral) Services() []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]device.Service(nil), p.services...)
}

func (p *FakePeripheral) SetDelegate(d device.PeripheralDelegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

func (p *FakePeripheral) ReadRSSI() {
	p.record(Call{Name: CallReadRSSI})
	b := p.behavior(CallReadRSSI)
	if b.Silent {
		return
	}
	p.mu.Lock()
	rssi := p.rssi
	p.mu.Unlock()
	p.post(func(d device.PeripheralDelegate) { d.DidReadRSSI(p, rssi, b.Err) })
}

func (p *FakePeripheral) DiscoverServices(serviceUUIDs []string) {
	p.record(Call{Name: CallDiscoverServices, UUIDs: serviceUUIDs})
	b := p.behavior(CallDiscoverServices)
	if b.Silent {
		return
	}
	if b.Err == nil {
		p.mu.Lock()
		all := make([]device.Service, len(p.profile))
		for i, s := range p.profile {
			all[i] = s
		}
		p.services = reveal(all, p.services, serviceUUIDs)
		p.mu.Unlock()
	}
	p.post(func(d device.PeripheralDelegate) { d.DidDiscoverServices(p, b.Err) })
}

func (p *FakePeripheral) DiscoverIncludedServices(serviceUUIDs []string, svc device.Service) {
	s := svc.(*fakeService)
	p.record(Call{Name: CallDiscoverIncludedServices, UUIDs: append([]string{s.uuid}, serviceUUIDs...)})
	b := p.behavior(CallDiscoverIncludedServices)
	if b.Silent {
		return
	}
	if b.Err == nil {
		p.mu.Lock()
		all := make([]device.Service, len(s.included))
		for i, inc := range s.included {
			all[i] = inc
		}
		s.discoveredIncluded = reveal(all, s.discoveredIncluded, serviceUUIDs)
		p.mu.Unlock()
	}
	p.post(func(d device.PeripheralDelegate) { d.DidDiscoverIncludedServices(p, s, b.Err) })
}

func (p *FakePeripheral) DiscoverCharacteristics(characteristicUUIDs []string, svc device.Service) {
	s := svc.(*fakeService)
	p.record(Call{Name: CallDiscoverCharacteristics, UUIDs: append([]string{s.uuid}, characteristicUUIDs...)})
	b := p.behavior(CallDiscoverCharacteristics)
	if b.Silent {
		return
	}
	if b.Err == nil {
		p.mu.Lock()
		all := make([]device.Characteristic, len(s.chars))
		for i, c := range s.chars {
			all[i] = c
		}
		s.discoveredChars = reveal(all, s.discoveredChars, characteristicUUIDs)
		p.mu.Unlock()
	}
	p.post(func(d device.PeripheralDelegate) { d.DidDiscoverCharacteristics(p, s, b.Err) })
}

func (p *FakePeripheral) DiscoverDescriptors(chr device.Characteristic) {
	c := chr.(*fakeCharacteristic)
	p.record(Call{Name: CallDiscoverDescriptors, UUIDs: device.CharacteristicPath(c).UUIDs()})
	b := p.behavior(CallDiscoverDescriptors)
	if b.Silent {
		return
	}
	if b.Err == nil {
		p.mu.Lock()
		all := make([]device.Descriptor, len(c.descs))
		for i, d := range c.descs {
			all[i] = d
		}
		c.discoveredDescs = reveal(all, c.discoveredDescs, nil)
		p.mu.Unlock()
	}
	p.post(func(d device.PeripheralDelegate) { d.DidDiscoverDescriptors(p, c, b.Err) })
}

func (p *FakePeripheral) ReadCharacteristic(chr device.Characteristic) {
	c := chr.(*fakeCharacteristic)
	p.record(Call{Name: CallReadCharacteristic, UUIDs: device.CharacteristicPath(c).UUIDs()})
	b := p.behavior(CallReadCharacteristic)
	if b.Silent {
		return
	}
	p.post(func(d device.PeripheralDelegate) { d.DidUpdateValueForCharacteristic(p, c, b.Err) })
}

func (p *FakePeripheral) ReadDescriptor(dsc device.Descriptor) {
	fd := dsc.(*fakeDescriptor)
	p.record(Call{Name: CallReadDescriptor, UUIDs: device.DescriptorPath(fd).UUIDs()})
	b := p.behavior(CallReadDescriptor)
	if b.Silent {
		return
	}
	p.post(func(d device.PeripheralDelegate) { d.DidUpdateValueForDescriptor(p, fd, b.Err) })
}

func (p *FakePeripheral) WriteCharacteristic(data []byte, chr device.Characteristic, withResponse bool) {
	c := chr.(*fakeCharacteristic)
	p.record(Call{Name: CallWriteCharacteristic, UUIDs: device.CharacteristicPath(c).UUIDs(), Data: append([]byte(nil), data...), Flag: withResponse})
	b := p.behavior(CallWriteCharacteristic)
	if b.Err == nil {
		p.mu.Lock()
		c.value = append([]byte(nil), data...)
		p.mu.Unlock()
	}
	if b.Silent || !withResponse {
		return
	}
	p.post(func(d device.PeripheralDelegate) { d.DidWriteValueForCharacteristic(p, c, b.Err) })
}

func (p *FakePeripheral) WriteDescriptor(data []byte, dsc device.Descriptor) {
	fd := dsc.(*fakeDescriptor)
	p.record(Call{Name: CallWriteDescriptor, UUIDs: device.DescriptorPath(fd).UUIDs(), Data: append([]byte(nil), data...)})
	b := p.behavior(CallWriteDescriptor)
	if b.Err == nil {
		p.mu.Lock()
		fd.value = append([]byte(nil), data...)
		p.mu.Unlock()
	}
	if b.Silent {
		return
	}
	p.post(func(d device.PeripheralDelegate) { d.DidWriteValueForDescriptor(p, fd, b.Err) })
}

func (p *FakePeripheral) SetNotify(enabled bool, chr device.Characteristic) {
	c := chr.(*fakeCharacteristic)
	p.record(Call{Name: CallSetNotify, UUIDs: device.CharacteristicPath(c).UUIDs(), Flag: enabled})
	b := p.behavior(CallSetNotify)
	if b.Silent {
		return
	}
	if b.Err == nil {
		p.mu.Lock()
		c.notifying = enabled
		p.mu.Unlock()
	}
	p.post(func(d device.PeripheralDelegate) { d.DidUpdateNotificationState(p, c, b.Err) })
}

// GATT tree

type fakeService struct {
	p                  *FakePeripheral
	uuid               string
	primary            bool
	chars              []*fakeCharacteristic
	included           []*fakeService
	discoveredChars    []device.Characteristic
	discoveredIncluded []device.Service
}

func (s *fakeService) UUID() string                       { return s.uuid }
func (s *fakeService) Peripheral() device.Peripheral      { return s.p }
func (s *fakeService) IsPrimary() bool                    { return s.primary }
func (s *fakeService) Characteristics() []device.Characteristic {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return append([]device.Characteristic(nil), s.discoveredChars...)
}
func (s *fakeService) IncludedServices() []device.Service {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	return append([]device.Service(nil), s.discoveredIncluded...)
}

type fakeCharacteristic struct {
	svc             *fakeService
	uuid            string
	props           device.Property
	value           []byte
	notifying       bool
	descs           []*fakeDescriptor
	discoveredDescs []device.Descriptor
}

func (c *fakeCharacteristic) UUID() string               { return c.uuid }
func (c *fakeCharacteristic) Service() device.Service    { return c.svc }
func (c *fakeCharacteristic) Properties() device.Property { return c.props }
func (c *fakeCharacteristic) Value() []byte {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	return append([]byte(nil), c.value...)
}
func (c *fakeCharacteristic) IsNotifying() bool {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	return c.notifying
}
func (c *fakeCharacteristic) Descriptors() []device.Descriptor {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	return append([]device.Descriptor(nil), c.discoveredDescs...)
}

type fakeDescriptor struct {
	chr   *fakeCharacteristic
	uuid  string
	value any
}

func (d *fakeDescriptor) UUID() string                          { return d.uuid }
func (d *fakeDescriptor) Characteristic() device.Characteristic { return d.chr }
func (d *fakeDescriptor) Value() any {
	d.chr.svc.p.mu.Lock()
	defer d.chr.svc.p.mu.Unlock()
	return d.value
}
