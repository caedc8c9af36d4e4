package goble

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/groutine"
)

// link is one live connection. GATT calls on it run one at a time on ops.
type link struct {
	client    Client
	ops       *dispatch.Queue
	cancel    context.CancelFunc
	done      chan struct{}
	once      sync.Once
	requested atomic.Bool
}

// Peripheral implements device.Peripheral for one remote address.
type Peripheral struct {
	central *Central
	id      string
	logger  *logrus.Entry

	mu         sync.Mutex
	name       string
	state      device.PeripheralState
	delegate   device.PeripheralDelegate
	services   []*Service
	link       *link
	dialCancel context.CancelFunc
}

func newPeripheral(c *Central, id string) *Peripheral {
	return &Peripheral{
		central: c,
		id:      id,
		logger:  c.logger.WithField("address", id),
	}
}

func (p *Peripheral) setName(name string) {
	p.mu.Lock()
	changed := p.name != name
	p.name = name
	p.mu.Unlock()
	if changed {
		p.post(func(d device.PeripheralDelegate) { d.DidUpdateName(p) })
	}
}

func (p *Peripheral) post(fn func(d device.PeripheralDelegate)) {
	p.central.q.Async(func() {
		p.mu.Lock()
		d := p.delegate
		p.mu.Unlock()
		if d != nil {
			fn(d)
		}
	})
}

func (p *Peripheral) postCentral(fn func(d device.CentralDelegate)) {
	p.central.post(fn)
}

// dial connects in the background and reports DidConnect or DidFailToConnect.
func (p *Peripheral) dial(dev Device) {
	p.mu.Lock()
	if p.link != nil || p.dialCancel != nil {
		p.mu.Unlock()
		p.logger.Debug("Connect requested while connected or connecting, ignoring")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.dialCancel = cancel
	p.state = device.PeripheralConnecting
	p.mu.Unlock()

	p.logger.Info("Dialing BLE device...")
	groutine.Go(ctx, "ble-dial", func(ctx context.Context) {
		cln, err := dev.Dial(ctx, ble.NewAddr(p.id))

		p.mu.Lock()
		cancelled := ctx.Err() != nil
		p.dialCancel = nil
		if err != nil || cancelled {
			if !cancelled {
				p.state = device.PeripheralDisconnected
			}
			p.mu.Unlock()

			if cancelled {
				// hangUp already reported the disconnection
				if cln != nil {
					_ = cln.CancelConnection()
				}
				cancel()
				return
			}
			cancel()
			err = NormalizeError(err)
			p.logger.WithField("error", err).Warn("Failed to dial BLE device")
			p.postCentral(func(d device.CentralDelegate) { d.DidFailToConnectPeripheral(p.central, p, err) })
			return
		}

		l := &link{
			client: cln,
			ops:    dispatch.New("ble-ops-"+p.id, p.central.logger),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		p.link = l
		p.state = device.PeripheralConnected
		p.mu.Unlock()

		p.central.connected.Set(p.id, p)
		p.logger.Info("BLE device connected")
		p.postCentral(func(d device.CentralDelegate) { d.DidConnectPeripheral(p.central, p) })

		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-cln.Disconnected():
				p.teardown(l, ErrConnectionLost)
			case <-l.done:
			}
		})
	})
}

// hangUp cancels a pending dial or closes the live link.
func (p *Peripheral) hangUp() {
	p.mu.Lock()
	if cancel := p.dialCancel; cancel != nil {
		p.dialCancel = nil
		p.state = device.PeripheralDisconnected
		p.mu.Unlock()

		cancel()
		p.postCentral(func(d device.CentralDelegate) { d.DidDisconnectPeripheral(p.central, p, nil) })
		return
	}
	l := p.link
	if l == nil {
		p.mu.Unlock()
		return
	}
	p.state = device.PeripheralDisconnecting
	p.mu.Unlock()

	l.requested.Store(true)
	groutine.Go(context.Background(), "ble-disconnect", func(context.Context) {
		if err := l.client.CancelConnection(); err != nil {
			p.logger.WithField("error", err).Warn("CancelConnection failed")
		}
		p.teardown(l, nil)
	})
}

// teardown releases l once and reports the disconnection. Discovered
// attributes belong to the connection and are dropped with it.
func (p *Peripheral) teardown(l *link, reason error) {
	l.once.Do(func() {
		close(l.done)
		if l.requested.Load() {
			reason = nil
		}

		p.mu.Lock()
		if p.link == l {
			p.link = nil
			p.state = device.PeripheralDisconnected
			p.services = nil
		}
		p.mu.Unlock()

		l.cancel()
		p.central.connected.Del(p.id)
		p.central.seen.Add(p.id, p)

		p.logger.WithField("reason", reason).Info("BLE device disconnected")
		p.postCentral(func(d device.CentralDelegate) { d.DidDisconnectPeripheral(p.central, p, reason) })
		l.ops.Close()
	})
}

// do runs fn against the live client on the link's op queue, or calls fail
// with ErrNotConnected when there is no link.
func (p *Peripheral) do(fn func(cl Client), fail func(err error)) {
	p.mu.Lock()
	l := p.link
	p.mu.Unlock()
	if l == nil || !l.ops.Async(func() { fn(l.client) }) {
		fail(ErrNotConnected)
	}
}

// device.Peripheral

func (p *Peripheral) Identifier() string {
	return p.id
}

func (p *Peripheral) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

func (p *Peripheral) State() device.PeripheralState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peripheral) Services() []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]device.Service, len(p.services))
	for i, s := range p.services {
		out[i] = s
	}
	return out
}

func (p *Peripheral) SetDelegate(d device.PeripheralDelegate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delegate = d
}

func (p *Peripheral) ReadRSSI() {
	p.do(func(cl Client) {
		rssi := cl.ReadRSSI()
		p.post(func(d device.PeripheralDelegate) { d.DidReadRSSI(p, rssi, nil) })
	}, func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidReadRSSI(p, 0, err) })
	})
}

func (p *Peripheral) DiscoverServices(serviceUUIDs []string) {
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidDiscoverServices(p, err) })
	}
	filter, err := bleUUIDs(serviceUUIDs)
	if err != nil {
		report(err)
		return
	}
	p.do(func(cl Client) {
		svcs, err := cl.DiscoverServices(filter)
		if err == nil {
			p.mu.Lock()
			for _, s := range svcs {
				if p.service(device.NormalizeUUID(s.UUID.String())) == nil {
					p.services = append(p.services, newService(p, s))
				}
			}
			p.mu.Unlock()
		}
		report(NormalizeError(err))
	}, report)
}

// service finds a discovered service. Caller holds p.mu.
func (p *Peripheral) service(uuid string) *Service {
	for _, s := range p.services {
		if s.uuid == uuid {
			return s
		}
	}
	return nil
}

func (p *Peripheral) DiscoverIncludedServices(serviceUUIDs []string, svc device.Service) {
	s := svc.(*Service)
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidDiscoverIncludedServices(p, s, err) })
	}
	filter, err := bleUUIDs(serviceUUIDs)
	if err != nil {
		report(err)
		return
	}
	p.do(func(cl Client) {
		included, err := cl.DiscoverIncludedServices(filter, s.svc)
		if err == nil {
			p.mu.Lock()
			for _, inc := range included {
				uuid := device.NormalizeUUID(inc.UUID.String())
				known := false
				for _, existing := range s.included {
					if existing.uuid == uuid {
						known = true
						break
					}
				}
				if !known {
					s.included = append(s.included, newService(p, inc))
				}
			}
			p.mu.Unlock()
		}
		report(NormalizeError(err))
	}, report)
}

func (p *Peripheral) DiscoverCharacteristics(characteristicUUIDs []string, svc device.Service) {
	s := svc.(*Service)
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidDiscoverCharacteristics(p, s, err) })
	}
	filter, err := bleUUIDs(characteristicUUIDs)
	if err != nil {
		report(err)
		return
	}
	p.do(func(cl Client) {
		chars, err := cl.DiscoverCharacteristics(filter, s.svc)
		if err == nil {
			p.mu.Lock()
			s.mergeCharacteristics(chars)
			p.mu.Unlock()
		}
		report(NormalizeError(err))
	}, report)
}

func (p *Peripheral) DiscoverDescriptors(chr device.Characteristic) {
	c := chr.(*Characteristic)
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidDiscoverDescriptors(p, c, err) })
	}
	p.do(func(cl Client) {
		descs, err := cl.DiscoverDescriptors(nil, c.chr)
		if err == nil {
			p.mu.Lock()
			c.mergeDescriptors(descs)
			p.mu.Unlock()
		}
		report(NormalizeError(err))
	}, report)
}

// updateValue stores data as the characteristic value right before the
// delegate sees it, so every callback observes its own value.
func (p *Peripheral) updateValue(c *Characteristic, data []byte, err error) {
	p.post(func(d device.PeripheralDelegate) {
		if err == nil {
			p.mu.Lock()
			c.value = append([]byte(nil), data...)
			p.mu.Unlock()
		}
		d.DidUpdateValueForCharacteristic(p, c, err)
	})
}

func (p *Peripheral) ReadCharacteristic(chr device.Characteristic) {
	c := chr.(*Characteristic)
	p.do(func(cl Client) {
		data, err := cl.ReadCharacteristic(c.chr)
		p.updateValue(c, data, NormalizeError(err))
	}, func(err error) {
		p.updateValue(c, nil, err)
	})
}

func (p *Peripheral) WriteCharacteristic(data []byte, chr device.Characteristic, withResponse bool) {
	c := chr.(*Characteristic)
	report := func(err error) {
		if withResponse {
			p.post(func(d device.PeripheralDelegate) { d.DidWriteValueForCharacteristic(p, c, err) })
		} else if err != nil {
			p.logger.WithFields(logrus.Fields{
				"characteristic": c.uuid,
				"error":          err,
			}).Warn("Write without response failed")
		}
	}
	data = append([]byte(nil), data...)
	p.do(func(cl Client) {
		report(NormalizeError(cl.WriteCharacteristic(c.chr, data, !withResponse)))
	}, report)
}

func (p *Peripheral) SetNotify(enabled bool, chr device.Characteristic) {
	c := chr.(*Characteristic)
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) {
			if err == nil {
				p.mu.Lock()
				c.notifying = enabled
				p.mu.Unlock()
			}
			d.DidUpdateNotificationState(p, c, err)
		})
	}
	p.do(func(cl Client) {
		var err error
		if enabled {
			err = cl.Subscribe(c.chr, c.indicate(), func(data []byte) {
				p.updateValue(c, data, nil)
			})
		} else {
			err = cl.Unsubscribe(c.chr, c.indicate())
		}
		report(NormalizeError(err))
	}, report)
}

func (p *Peripheral) ReadDescriptor(dsc device.Descriptor) {
	ds := dsc.(*Descriptor)
	report := func(data []byte, err error) {
		p.post(func(d device.PeripheralDelegate) {
			if err == nil {
				p.mu.Lock()
				ds.value = data
				p.mu.Unlock()
			}
			d.DidUpdateValueForDescriptor(p, ds, err)
		})
	}
	p.do(func(cl Client) {
		data, err := cl.ReadDescriptor(ds.dsc)
		report(data, NormalizeError(err))
	}, func(err error) {
		report(nil, err)
	})
}

func (p *Peripheral) WriteDescriptor(data []byte, dsc device.Descriptor) {
	ds := dsc.(*Descriptor)
	report := func(err error) {
		p.post(func(d device.PeripheralDelegate) { d.DidWriteValueForDescriptor(p, ds, err) })
	}
	data = append([]byte(nil), data...)
	p.do(func(cl Client) {
		report(NormalizeError(cl.WriteDescriptor(ds.dsc, data)))
	}, report)
}
