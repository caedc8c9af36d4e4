package testutils

import (
	"errors"
	"sync"

	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/dispatch"
)

// Directive names recorded by FakeCentral and accepted by FakePeripheral.On.
const (
	CallScan                     = "Scan"
	CallStopScan                 = "StopScan"
	CallConnect                  = "Connect"
	CallCancelConnect            = "CancelConnect"
	CallReadRSSI                 = "ReadRSSI"
	CallDiscoverServices         = "DiscoverServices"
	CallDiscoverIncludedServices = "DiscoverIncludedServices"
	CallDiscoverCharacteristics  = "DiscoverCharacteristics"
	CallDiscoverDescriptors      = "DiscoverDescriptors"
	CallReadCharacteristic       = "ReadCharacteristic"
	CallReadDescriptor           = "ReadDescriptor"
	CallWriteCharacteristic      = "WriteCharacteristic"
	CallWriteDescriptor          = "WriteDescriptor"
	CallSetNotify                = "SetNotify"
)

// ErrFakeFailure is a convenience error for Behavior.Err.
var ErrFakeFailure = errors.New("fake platform failure")

// Call is one recorded directive.
type Call struct {
	Name       string
	Peripheral string
	UUIDs      []string // requested UUIDs, or the target attribute path
	Data       []byte
	Flag       bool // allowDuplicates, withResponse or notify enabled
}

// Behavior controls how a fake peripheral answers a directive.
// The zero value answers successfully.
type Behavior struct {
	Silent bool  // record the call, never answer
	Err    error // answer with this error
}

// FakeCentral is an in-memory device.Central. Directives are recorded and, unless
// configured otherwise, answered by posting the matching delegate callback on the
// dispatch queue, the way a real delegate-based platform would.
type FakeCentral struct {
	q *dispatch.Queue

	mu          sync.Mutex
	state       device.ManagerState
	delegate    device.CentralDelegate
	peripherals []*FakePeripheral
	calls       []Call
	scanning    bool
}

// NewFakeCentral creates a fake central in the given adapter state.
func NewFakeCentral(q *dispatch.Queue, state device.ManagerState) *FakeCentral {
	return &FakeCentral{q: q, state: state}
}

// AddPeripheral makes p known to the central (retrievable and discoverable).
func (c *FakeCentral) AddPeripheral(p *FakePeripheral) *FakePeripheral {
	c.mu.Lock()
	defer c.mu.Unlock()
	p.central = c
	c.peripherals = append(c.peripherals, p)
	return p
}

func (c *FakeCentral) record(call Call) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

// Calls returns the recorded directives named name, or all of them when name is empty.
func (c *FakeCentral) Calls(name string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if name == "" || call.Name == name {
			out = append(out, call)
		}
	}
	return out
}

// CallCount returns how many times the directive was issued.
func (c *FakeCentral) CallCount(name string) int {
	return len(c.Calls(name))
}

// IsScanning reports whether the platform scan is running.
func (c *FakeCentral) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// SetState changes the adapter state and posts DidUpdateState.
func (c *FakeCentral) SetState(state device.ManagerState) {
	c.mu.Lock()
	c.state = state
	if state != device.StatePoweredOn {
		c.scanning = false
	}
	c.mu.Unlock()
	c.post(func(d device.CentralDelegate) { d.DidUpdateState(c) })
}

// Advertise posts a discovery of p, as if an advertisement was received.
func (c *FakeCentral) Advertise(p *FakePeripheral, adv device.Advertisement, rssi int) {
	c.post(func(d device.CentralDelegate) { d.DidDiscoverPeripheral(c, p, adv, rssi) })
}

// Restore posts WillRestoreState with the given peripherals.
func (c *FakeCentral) Restore(peripherals ...*FakePeripheral) {
	handles := make([]device.Peripheral, len(peripherals))
	for i, p := range peripherals {
		handles[i] = p
	}
	c.post(func(d device.CentralDelegate) { d.WillRestoreState(c, handles) })
}

// CompleteConnect answers a connect left pending by a Silent behavior:
// success when err is nil, a connection failure otherwise.
func (c *FakeCentral) CompleteConnect(p *FakePeripheral, err error) {
	if err != nil {
		p.setState(device.PeripheralDisconnected)
		c.post(func(d device.CentralDelegate) { d.DidFailToConnectPeripheral(c, p, err) })
		return
	}
	p.setState(device.PeripheralConnected)
	c.post(func(d device.CentralDelegate) { d.DidConnectPeripheral(c, p) })
}

// Drop simulates a link loss on p and posts DidDisconnectPeripheral with err.
func (c *FakeCentral) Drop(p *FakePeripheral, err error) {
	p.setState(device.PeripheralDisconnected)
	c.post(func(d device.CentralDelegate) { d.DidDisconnectPeripheral(c, p, err) })
}

func (c *FakeCentral) post(fn func(d device.CentralDelegate)) {
	c.q.Async(func() {
		c.mu.Lock()
		d := c.delegate
		c.mu.Unlock()
		if d != nil {
			fn(d)
		}
	})
}

// device.Central

func (c *FakeCentral) State() device.ManagerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *FakeCentral) SetDelegate(d device.CentralDelegate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate = d
}

func (c *FakeCentral) Scan(serviceUUIDs []string, allowDuplicates bool) {
	c.record(Call{Name: CallScan, UUIDs: serviceUUIDs, Flag: allowDuplicates})
	c.mu.Lock()
	c.scanning = true
	c.mu.Unlock()
}

func (c *FakeCentral) StopScan() {
	c.record(Call{Name: CallStopScan})
	c.mu.Lock()
	c.scanning = false
	c.mu.Unlock()
}

func (c *FakeCentral) Connect(dp device.Peripheral) {
	p := dp.(*FakePeripheral)
	c.record(Call{Name: CallConnect, Peripheral: p.id})

	b := p.behavior(CallConnect)
	if b.Silent {
		p.setState(device.PeripheralConnecting)
		return
	}
	if b.Err != nil {
		p.setState(device.PeripheralDisconnected)
		c.post(func(d device.CentralDelegate) { d.DidFailToConnectPeripheral(c, p, b.Err) })
		return
	}
	p.setState(device.PeripheralConnected)
	c.post(func(d device.CentralDelegate) { d.DidConnectPeripheral(c, p) })
}

func (c *FakeCentral) CancelConnect(dp device.Peripheral) {
	p := dp.(*FakePeripheral)
	c.record(Call{Name: CallCancelConnect, Peripheral: p.id})

	b := p.behavior(CallCancelConnect)
	if b.Silent {
		p.setState(device.PeripheralDisconnecting)
		return
	}
	if p.State() == device.PeripheralDisconnected {
		return
	}
	p.setState(device.PeripheralDisconnected)
	p.forget()
	c.post(func(d device.CentralDelegate) { d.DidDisconnectPeripheral(c, p, b.Err) })
}

func (c *FakeCentral) RetrievePeripherals(identifiers []string) []device.Peripheral {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []device.Peripheral
	for _, id := range identifiers {
		for _, p := range c.peripherals {
			if p.id == id {
				out = append(out, p)
			}
		}
	}
	return out
}
