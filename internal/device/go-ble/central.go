package goble

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/groutine"
)

// DefaultPeripheralCacheSize bounds how many scanned peripherals are remembered.
const DefaultPeripheralCacheSize = 256

// Central implements device.Central over a go-ble Device.
// The adapter state is unknown until Init created the device.
type Central struct {
	q      *dispatch.Queue
	logger *logrus.Logger

	mu         sync.Mutex
	dev        Device
	state      device.ManagerState
	delegate   device.CentralDelegate
	scanCancel context.CancelFunc

	// connected peripherals are never evicted; the rest live in an LRU
	connected *hashmap.Map[string, *Peripheral]
	seen      *lru.Cache[string, *Peripheral]
}

// NewCentral creates a central delivering its delegate calls on q.
// cacheSize <= 0 uses DefaultPeripheralCacheSize.
func NewCentral(q *dispatch.Queue, cacheSize int, logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if cacheSize <= 0 {
		cacheSize = DefaultPeripheralCacheSize
	}
	seen, err := lru.New[string, *Peripheral](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Central{
		q:         q,
		logger:    logger,
		state:     device.StateUnknown,
		connected: hashmap.New[string, *Peripheral](),
		seen:      seen,
	}, nil
}

// Init creates the go-ble device in the background and reports the resulting
// adapter state through DidUpdateState.
func (c *Central) Init() {
	groutine.Go(context.Background(), "ble-device-init", func(ctx context.Context) {
		dev, err := DeviceFactory()
		err = NormalizeError(err)
		state := stateFor(err)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"error": err,
				"state": state,
			}).Warn("Failed to create BLE device")
		} else {
			c.logger.Debug("BLE device ready")
		}

		c.mu.Lock()
		c.dev = dev
		c.mu.Unlock()
		c.setState(state)
	})
}

// Close stops the scan and the underlying device.
func (c *Central) Close() error {
	c.mu.Lock()
	dev := c.dev
	cancel := c.scanCancel
	c.scanCancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if dev == nil {
		return nil
	}
	return dev.Stop()
}

func (c *Central) setState(state device.ManagerState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		c.post(func(d device.CentralDelegate) { d.DidUpdateState(c) })
	}
}

func (c *Central) post(fn func(d device.CentralDelegate)) {
	c.q.Async(func() {
		c.mu.Lock()
		d := c.delegate
		c.mu.Unlock()
		if d != nil {
			fn(d)
		}
	})
}

func (c *Central) platformDevice() Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dev
}

// peripheral returns the handle for an address, creating it if unknown.
func (c *Central) peripheral(id string) *Peripheral {
	if p, ok := c.connected.Get(id); ok {
		return p
	}
	if p, ok := c.seen.Get(id); ok {
		return p
	}
	p := newPeripheral(c, id)
	c.seen.Add(id, p)
	return p
}

// device.Central

func (c *Central) State() device.ManagerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Central) SetDelegate(d device.CentralDelegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

func (c *Central) Scan(serviceUUIDs []string, allowDuplicates bool) {
	dev := c.platformDevice()
	if dev == nil {
		c.logger.Warn("Scan requested before the BLE device is ready")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.scanCancel != nil {
		c.scanCancel()
	}
	c.scanCancel = cancel
	c.mu.Unlock()

	filter := device.NormalizeUUIDs(serviceUUIDs)
	handler := func(adv ble.Advertisement) {
		if adv.Addr() == nil || !advertises(adv, filter) {
			return
		}
		p := c.peripheral(adv.Addr().String())
		if name := adv.LocalName(); name != "" {
			p.setName(name)
		}
		rssi := adv.RSSI()
		wrapped := NewBLEAdvertisement(adv)
		c.post(func(d device.CentralDelegate) { d.DidDiscoverPeripheral(c, p, wrapped, rssi) })
	}

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		err := dev.Scan(ctx, allowDuplicates, handler)
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		err = NormalizeError(err)
		c.logger.WithField("error", err).Warn("Scan failed")
		if errors.Is(err, device.ErrBluetoothOff) {
			c.setState(device.StatePoweredOff)
		}
	})
}

func (c *Central) StopScan() {
	c.mu.Lock()
	cancel := c.scanCancel
	c.scanCancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (c *Central) Connect(dp device.Peripheral) {
	p := dp.(*Peripheral)
	dev := c.platformDevice()
	if dev == nil {
		c.post(func(d device.CentralDelegate) { d.DidFailToConnectPeripheral(c, p, device.ErrBluetoothOff) })
		return
	}
	p.dial(dev)
}

func (c *Central) CancelConnect(dp device.Peripheral) {
	dp.(*Peripheral).hangUp()
}

// RetrievePeripherals returns a handle for every identifier go-ble can dial:
// a device address on Linux, a CoreBluetooth identifier on macOS. Other
// identifiers are skipped. Addresses never seen in a scan are still returned.
func (c *Central) RetrievePeripherals(identifiers []string) []device.Peripheral {
	out := make([]device.Peripheral, 0, len(identifiers))
	for _, id := range identifiers {
		if !isDialable(id) {
			c.logger.WithField("peripheral", id).Debug("Skipping identifier that is not a device address")
			continue
		}
		out = append(out, c.peripheral(id))
	}
	return out
}

func isDialable(id string) bool {
	if _, err := net.ParseMAC(id); err == nil {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}
