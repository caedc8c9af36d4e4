package central

import (
	"github.com/srg/blecb/internal/device"
)

// Queue-confined request chains. Each step runs its dependency first and only
// enqueues its own request once the dependency succeeded; a failed dependency
// fails the request with the dependency's error.

// cached returns the requested attributes when every one of them was discovered
// before. An empty request always goes to the platform.
func cached[A device.Attribute](uuids []string, available []A) ([]A, bool) {
	if len(uuids) == 0 {
		return nil, false
	}
	found, missing := device.Partition(uuids, available)
	return found, len(missing) == 0
}

func (p *Peripheral) connect(o callOptions, cb func(error)) {
	if !p.IsValid() {
		cb(device.ErrInvalidPeripheral)
		return
	}
	p.coord.connect(p, o.connectTimeout(p.coord.opts), cb)
}

func (p *Peripheral) readRSSI(o callOptions, cb func(int, error)) {
	p.connect(o, func(err error) {
		if err != nil {
			cb(0, err)
			return
		}
		enqueue(p, p.rssi, single{}, &request[int]{
			timeout: o.requestTimeout(p.coord.opts),
			issue: func() (int, bool) {
				p.platform.ReadRSSI()
				return 0, false
			},
			callback: cb,
		})
	})
}

func (p *Peripheral) discoverServices(uuids []string, o callOptions, cb func([]device.Service, error)) {
	p.connect(o, func(err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.services, single{}, &request[[]device.Service]{
			timeout: o.requestTimeout(p.coord.opts),
			uuids:   uuids,
			issue: func() ([]device.Service, bool) {
				if found, ok := cached(uuids, p.platform.Services()); ok {
					return found, true
				}
				p.platform.DiscoverServices(uuids)
				return nil, false
			},
			callback: cb,
		})
	})
}

// service resolves one service through service discovery.
func (p *Peripheral) service(serviceUUID string, o callOptions, cb func(device.Service, error)) {
	p.discoverServices([]string{serviceUUID}, o, func(services []device.Service, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(services[0], nil)
	})
}

func (p *Peripheral) discoverIncludedServices(uuids []string, serviceUUID string, o callOptions, cb func([]device.Service, error)) {
	p.service(serviceUUID, o, func(svc device.Service, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.included, device.ServicePath(svc), &request[[]device.Service]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: svc,
			uuids:   uuids,
			issue: func() ([]device.Service, bool) {
				if found, ok := cached(uuids, svc.IncludedServices()); ok {
					return found, true
				}
				p.platform.DiscoverIncludedServices(uuids, svc)
				return nil, false
			},
			callback: cb,
		})
	})
}

func (p *Peripheral) discoverCharacteristics(uuids []string, serviceUUID string, o callOptions, cb func([]device.Characteristic, error)) {
	p.service(serviceUUID, o, func(svc device.Service, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.characteristics, single{}, &request[[]device.Characteristic]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: svc,
			uuids:   uuids,
			issue: func() ([]device.Characteristic, bool) {
				if found, ok := cached(uuids, svc.Characteristics()); ok {
					return found, true
				}
				p.platform.DiscoverCharacteristics(uuids, svc)
				return nil, false
			},
			callback: cb,
		})
	})
}

// characteristic resolves one characteristic through characteristic discovery.
func (p *Peripheral) characteristic(serviceUUID, characteristicUUID string, o callOptions, cb func(device.Characteristic, error)) {
	p.discoverCharacteristics([]string{characteristicUUID}, serviceUUID, o, func(chars []device.Characteristic, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(chars[0], nil)
	})
}

func (p *Peripheral) discoverDescriptors(serviceUUID, characteristicUUID string, o callOptions, cb func([]device.Descriptor, error)) {
	p.characteristic(serviceUUID, characteristicUUID, o, func(chr device.Characteristic, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.descriptors, device.CharacteristicPath(chr), &request[[]device.Descriptor]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: chr,
			issue: func() ([]device.Descriptor, bool) {
				p.platform.DiscoverDescriptors(chr)
				return nil, false
			},
			callback: cb,
		})
	})
}

// descriptor resolves one descriptor through descriptor discovery.
func (p *Peripheral) descriptor(path device.Path, o callOptions, cb func(device.Descriptor, error)) {
	uuids := path.UUIDs()
	p.discoverDescriptors(uuids[0], uuids[1], o, func(descriptors []device.Descriptor, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		found, missing := device.Partition([]string{path.Last()}, descriptors)
		if len(missing) > 0 {
			cb(nil, &device.NotFoundError{Resource: "descriptor", UUIDs: missing})
			return
		}
		cb(found[0], nil)
	})
}

func (p *Peripheral) readValue(serviceUUID, characteristicUUID string, o callOptions, cb func([]byte, error)) {
	p.characteristic(serviceUUID, characteristicUUID, o, func(chr device.Characteristic, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.reads, device.CharacteristicPath(chr), &request[[]byte]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: chr,
			issue: func() ([]byte, bool) {
				p.platform.ReadCharacteristic(chr)
				return nil, false
			},
			callback: cb,
		})
	})
}

func (p *Peripheral) writeValue(serviceUUID, characteristicUUID string, data []byte, withResponse bool, o callOptions, cb func(error)) {
	p.characteristic(serviceUUID, characteristicUUID, o, func(chr device.Characteristic, err error) {
		if err != nil {
			cb(err)
			return
		}
		enqueue(p, p.writes, device.CharacteristicPath(chr), &request[struct{}]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: chr,
			issue: func() (struct{}, bool) {
				p.platform.WriteCharacteristic(data, chr, withResponse)
				return struct{}{}, !withResponse
			},
			callback: func(_ struct{}, err error) { cb(err) },
		})
	})
}

func (p *Peripheral) setNotifyValue(enabled bool, serviceUUID, characteristicUUID string, o callOptions, cb func(bool, error)) {
	p.characteristic(serviceUUID, characteristicUUID, o, func(chr device.Characteristic, err error) {
		if err != nil {
			cb(false, err)
			return
		}
		enqueue(p, p.notifies, device.CharacteristicPath(chr), &request[bool]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: chr,
			issue: func() (bool, bool) {
				p.platform.SetNotify(enabled, chr)
				return false, false
			},
			callback: cb,
		})
	})
}

func (p *Peripheral) readDescriptorValue(path device.Path, o callOptions, cb func([]byte, error)) {
	p.descriptor(path, o, func(dsc device.Descriptor, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		enqueue(p, p.descriptorReads, device.DescriptorPath(dsc), &request[[]byte]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: dsc,
			issue: func() ([]byte, bool) {
				p.platform.ReadDescriptor(dsc)
				return nil, false
			},
			callback: cb,
		})
	})
}

func (p *Peripheral) writeDescriptorValue(path device.Path, data []byte, o callOptions, cb func(error)) {
	p.descriptor(path, o, func(dsc device.Descriptor, err error) {
		if err != nil {
			cb(err)
			return
		}
		enqueue(p, p.descriptorWrite, device.DescriptorPath(dsc), &request[struct{}]{
			timeout: o.requestTimeout(p.coord.opts),
			subject: dsc,
			issue: func() (struct{}, bool) {
				p.platform.WriteDescriptor(data, dsc)
				return struct{}{}, false
			},
			callback: func(_ struct{}, err error) { cb(err) },
		})
	})
}
