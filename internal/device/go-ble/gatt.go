package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blecb/internal/device"
)

// Service wraps a discovered *ble.Service. Children appear once discovered.
type Service struct {
	p        *Peripheral
	svc      *ble.Service
	uuid     string
	chars    []*Characteristic
	included []*Service
}

func newService(p *Peripheral, svc *ble.Service) *Service {
	return &Service{p: p, svc: svc, uuid: device.NormalizeUUID(svc.UUID.String())}
}

func (s *Service) UUID() string                  { return s.uuid }
func (s *Service) Peripheral() device.Peripheral { return s.p }

// IsPrimary reports true: go-ble only discovers primary services.
func (s *Service) IsPrimary() bool { return true }

func (s *Service) Characteristics() []device.Characteristic {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	out := make([]device.Characteristic, len(s.chars))
	for i, c := range s.chars {
		out[i] = c
	}
	return out
}

func (s *Service) IncludedServices() []device.Service {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()
	out := make([]device.Service, len(s.included))
	for i, inc := range s.included {
		out[i] = inc
	}
	return out
}

// mergeCharacteristics adds newly discovered characteristics. Caller holds p.mu.
func (s *Service) mergeCharacteristics(chars []*ble.Characteristic) {
	for _, c := range chars {
		uuid := device.NormalizeUUID(c.UUID.String())
		if s.characteristic(uuid) != nil {
			continue
		}
		s.chars = append(s.chars, &Characteristic{svc: s, chr: c, uuid: uuid})
	}
}

func (s *Service) characteristic(uuid string) *Characteristic {
	for _, c := range s.chars {
		if c.uuid == uuid {
			return c
		}
	}
	return nil
}

// Characteristic wraps a discovered *ble.Characteristic and its last known value.
type Characteristic struct {
	svc       *Service
	chr       *ble.Characteristic
	uuid      string
	value     []byte
	notifying bool
	descs     []*Descriptor
}

func (c *Characteristic) UUID() string            { return c.uuid }
func (c *Characteristic) Service() device.Service { return c.svc }

func (c *Characteristic) Properties() device.Property {
	return device.Property(c.chr.Property)
}

func (c *Characteristic) Value() []byte {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	return append([]byte(nil), c.value...)
}

func (c *Characteristic) IsNotifying() bool {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	return c.notifying
}

func (c *Characteristic) Descriptors() []device.Descriptor {
	c.svc.p.mu.Lock()
	defer c.svc.p.mu.Unlock()
	out := make([]device.Descriptor, len(c.descs))
	for i, d := range c.descs {
		out[i] = d
	}
	return out
}

// indicate reports whether subscriptions must use indications.
func (c *Characteristic) indicate() bool {
	return c.chr.Property&ble.CharNotify == 0 && c.chr.Property&ble.CharIndicate != 0
}

// mergeDescriptors adds newly discovered descriptors. Caller holds p.mu.
func (c *Characteristic) mergeDescriptors(descs []*ble.Descriptor) {
	for _, d := range descs {
		uuid := device.NormalizeUUID(d.UUID.String())
		known := false
		for _, existing := range c.descs {
			if existing.uuid == uuid {
				known = true
				break
			}
		}
		if !known {
			c.descs = append(c.descs, &Descriptor{chr: c, dsc: d, uuid: uuid, value: d.Value})
		}
	}
}

// Descriptor wraps a discovered *ble.Descriptor. Value decodes well-known descriptors.
type Descriptor struct {
	chr   *Characteristic
	dsc   *ble.Descriptor
	uuid  string
	value []byte
}

func (d *Descriptor) UUID() string                          { return d.uuid }
func (d *Descriptor) Characteristic() device.Characteristic { return d.chr }

func (d *Descriptor) Value() any {
	d.chr.svc.p.mu.Lock()
	defer d.chr.svc.p.mu.Unlock()
	return device.DecodeDescriptorValue(d.uuid, d.value)
}
