package central

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
)

// PeripheralDelegate: every callback fulfils at most the head request of the
// matching queue. Callbacks nobody waits for are logged and dropped, except
// value updates on notifying characteristics which are published as events.

func platformErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &device.PlatformError{Operation: op, Err: err}
}

func sameAttribute(a, b device.Attribute) bool {
	return a != nil && b != nil && device.NormalizeUUID(a.UUID()) == device.NormalizeUUID(b.UUID())
}

func (p *Peripheral) unexpected(event string, fields logrus.Fields) {
	p.logger.WithFields(fields).WithField("event", event).Debug("Delegate callback without a pending request, ignoring")
}

func (p *Peripheral) DidDiscoverServices(dp device.Peripheral, err error) {
	ok := p.services.completeWith(single{}, nil, func(r *request[[]device.Service]) ([]device.Service, error) {
		if err != nil {
			return nil, platformErr(OpDiscoverServices, err)
		}
		if len(r.uuids) == 0 {
			return dp.Services(), nil
		}
		found, missing := device.Partition(r.uuids, dp.Services())
		if len(missing) > 0 {
			return nil, &device.NotFoundError{Resource: "service", UUIDs: missing}
		}
		return found, nil
	})
	if !ok {
		p.unexpected("did-discover-services", nil)
	}
}

func (p *Peripheral) DidDiscoverIncludedServices(_ device.Peripheral, svc device.Service, err error) {
	ok := p.included.completeWith(device.ServicePath(svc), nil, func(r *request[[]device.Service]) ([]device.Service, error) {
		if err != nil {
			return nil, platformErr(OpDiscoverIncludedServices, err)
		}
		if len(r.uuids) == 0 {
			return svc.IncludedServices(), nil
		}
		found, missing := device.Partition(r.uuids, svc.IncludedServices())
		if len(missing) > 0 {
			return nil, &device.NotFoundError{Resource: "service", UUIDs: missing}
		}
		return found, nil
	})
	if !ok {
		p.unexpected("did-discover-included-services", logrus.Fields{"service": svc.UUID()})
	}
}

func (p *Peripheral) DidDiscoverCharacteristics(_ device.Peripheral, svc device.Service, err error) {
	match := func(r *request[[]device.Characteristic]) bool {
		return sameAttribute(r.subject, svc)
	}
	ok := p.characteristics.completeWith(single{}, match, func(r *request[[]device.Characteristic]) ([]device.Characteristic, error) {
		if err != nil {
			return nil, platformErr(OpDiscoverCharacteristics, err)
		}
		if len(r.uuids) == 0 {
			return svc.Characteristics(), nil
		}
		found, missing := device.Partition(r.uuids, svc.Characteristics())
		if len(missing) > 0 {
			return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: missing}
		}
		return found, nil
	})
	if !ok {
		p.unexpected("did-discover-characteristics", logrus.Fields{"service": svc.UUID()})
	}
}

func (p *Peripheral) DidDiscoverDescriptors(_ device.Peripheral, chr device.Characteristic, err error) {
	ok := p.descriptors.completeWith(device.CharacteristicPath(chr), nil, func(*request[[]device.Descriptor]) ([]device.Descriptor, error) {
		if err != nil {
			return nil, platformErr(OpDiscoverDescriptors, err)
		}
		return chr.Descriptors(), nil
	})
	if !ok {
		p.unexpected("did-discover-descriptors", logrus.Fields{"characteristic": chr.UUID()})
	}
}

func (p *Peripheral) DidUpdateValueForCharacteristic(_ device.Peripheral, chr device.Characteristic, err error) {
	path := device.CharacteristicPath(chr)
	var value []byte
	if err == nil {
		value = append([]byte(nil), chr.Value()...)
	}

	if p.reads.complete(path, value, platformErr(OpReadCharacteristic, err)) {
		return
	}

	if !chr.IsNotifying() {
		p.unexpected("did-update-value", logrus.Fields{"characteristic": path.String()})
		return
	}
	p.coord.events.Publish(CharacteristicValueChanged{
		Peripheral:     p,
		Characteristic: chr,
		Value:          value,
		Err:            platformErr(OpReadCharacteristic, err),
	})
}

func (p *Peripheral) DidUpdateValueForDescriptor(_ device.Peripheral, dsc device.Descriptor, err error) {
	ok := p.descriptorReads.completeWith(device.DescriptorPath(dsc), nil, func(*request[[]byte]) ([]byte, error) {
		if err != nil {
			return nil, platformErr(OpReadDescriptor, err)
		}
		return device.DescriptorBytes(dsc)
	})
	if !ok {
		p.unexpected("did-update-descriptor-value", logrus.Fields{"descriptor": dsc.UUID()})
	}
}

func (p *Peripheral) DidWriteValueForCharacteristic(_ device.Peripheral, chr device.Characteristic, err error) {
	if !p.writes.complete(device.CharacteristicPath(chr), struct{}{}, platformErr(OpWriteCharacteristic, err)) {
		p.unexpected("did-write-value", logrus.Fields{"characteristic": chr.UUID()})
	}
}

func (p *Peripheral) DidWriteValueForDescriptor(_ device.Peripheral, dsc device.Descriptor, err error) {
	if !p.descriptorWrite.complete(device.DescriptorPath(dsc), struct{}{}, platformErr(OpWriteDescriptor, err)) {
		p.unexpected("did-write-descriptor-value", logrus.Fields{"descriptor": dsc.UUID()})
	}
}

func (p *Peripheral) DidUpdateNotificationState(_ device.Peripheral, chr device.Characteristic, err error) {
	notifying := chr.IsNotifying()
	wrapped := platformErr(OpUpdateNotificationState, err)

	p.coord.events.Publish(CharacteristicNotificationStateChanged{
		Peripheral:     p,
		Characteristic: chr,
		Notifying:      notifying,
		Err:            wrapped,
	})

	var value bool
	if wrapped == nil {
		value = notifying
	}
	if !p.notifies.complete(device.CharacteristicPath(chr), value, wrapped) {
		p.unexpected("did-update-notification-state", logrus.Fields{"characteristic": chr.UUID()})
	}
}

func (p *Peripheral) DidReadRSSI(_ device.Peripheral, rssi int, err error) {
	if err != nil {
		rssi = 0
	}
	if !p.rssi.complete(single{}, rssi, platformErr(OpReadRSSI, err)) {
		p.unexpected("did-read-rssi", nil)
	}
}

func (p *Peripheral) DidUpdateName(dp device.Peripheral) {
	p.coord.events.Publish(PeripheralNameUpdated{Peripheral: p, Name: dp.Name()})
}

func (p *Peripheral) DidModifyServices(_ device.Peripheral, invalidated []device.Service) {
	p.logger.WithField("services", len(invalidated)).Info("Peripheral services invalidated")
	p.coord.events.Publish(PeripheralServicesInvalidated{Peripheral: p, Services: invalidated})
}
