//go:build test

package goble_test

import (
	"errors"
	"testing"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
	goble "github.com/srg/blecb/internal/device/go-ble"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/notify"
	"github.com/srg/blecb/internal/testutils"
	"github.com/srg/blecb/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const address = "AA:BB:CC:DD:EE:FF"

// CentralTestSuite drives the request engine over the go-ble platform with a mocked device.
type CentralTestSuite struct {
	testutils.MockBLEPeripheralSuite

	queue  *dispatch.Queue
	ble    *goble.Central
	hub    *notify.Hub[central.Event]
	events chan central.Event
	coord  *central.Coordinator
	p      *central.Peripheral
}

func (suite *CentralTestSuite) SetupTest() {
	suite.MockBLEPeripheralSuite.SetupTest()

	suite.queue = dispatch.New("goble-test", suite.Logger)
	suite.ble = suite.NewCentral(suite.queue)

	suite.hub = notify.NewHub[central.Event](nil, suite.Logger)
	suite.events = make(chan central.Event, 64)
	suite.hub.Subscribe(func(e central.Event) { suite.events <- e })

	suite.coord = central.NewCoordinator(suite.ble, suite.queue, suite.hub, central.Options{RequestTimeout: time.Second}, suite.Logger)
	handles := suite.coord.Retrieve(address)
	suite.Require().Len(handles, 1, "unknown address MUST still be retrievable")
	suite.p = handles[0]
}

func (suite *CentralTestSuite) TearDownTest() {
	suite.coord.Close()
	suite.hub.Close()
	suite.Require().NoError(suite.ble.Close())
	suite.queue.Close()
	suite.MockBLEPeripheralSuite.TearDownTest()
}

// nextEvent waits for the next event of type E, skipping others.
func nextEvent[E central.Event](suite *CentralTestSuite) E {
	deadline := time.After(suite.TestTimeout)
	for {
		select {
		case e := <-suite.events:
			if typed, ok := e.(E); ok {
				return typed
			}
		case <-deadline:
			var zero E
			suite.FailNow("expected event not published", "%T", zero)
			return zero
		}
	}
}

func (suite *CentralTestSuite) read(serviceUUID, characteristicUUID string) ([]byte, error) {
	type res struct {
		v   []byte
		err error
	}
	done := make(chan res, 1)
	suite.p.ReadValue(serviceUUID, characteristicUUID, func(v []byte, err error) { done <- res{v, err} })
	r := testutils.Await[res](suite.T(), done, suite.TestTimeout)
	return r.v, r.err
}

func (suite *CentralTestSuite) TestReadCharacteristic() {
	// GOAL: Verify a read dials, discovers and reads through go-ble
	//
	// TEST SCENARIO: Read battery level → Dial → DiscoverServices([180f]) → DiscoverCharacteristics → ReadCharacteristic → value 50

	value, err := suite.read("180F", "2A19")

	suite.Require().NoError(err, "read MUST succeed")
	suite.Assert().Equal([]byte{50}, value, "MUST return the characteristic value")
	suite.Assert().Equal(device.PeripheralConnected, suite.p.State(), "peripheral MUST be connected")

	suite.Mock.Device.AssertCalled(suite.T(), "Dial", mock.Anything, mock.Anything)
	suite.Mock.Client.AssertCalled(suite.T(), "ReadCharacteristic", suite.Mock.Characteristic("180F", "2A19"))

	services := suite.p.Services()
	suite.Require().Len(services, 1, "only the requested service MUST be discovered")
	suite.Assert().Equal("180f", services[0].UUID())
	suite.Assert().True(services[0].IsPrimary())

	chars := services[0].Characteristics()
	suite.Require().Len(chars, 1)
	suite.Assert().Equal(device.PropRead|device.PropNotify, chars[0].Properties(), "properties MUST map from go-ble")
	suite.Assert().Equal([]byte{50}, chars[0].Value(), "characteristic MUST keep the last value read")
}

func (suite *CentralTestSuite) TestWriteCharacteristic() {
	tests := []struct {
		name         string
		withResponse bool
	}{
		{"with response", true},
		{"without response", false},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			done := make(chan error, 1)
			suite.p.WriteValue("180F", "2A19", []byte{1, 2}, tt.withResponse, func(err error) { done <- err })
			suite.Require().NoError(testutils.Await[error](suite.T(), done, suite.TestTimeout))

			chr := suite.Mock.Characteristic("180F", "2A19")
			suite.Require().Eventually(func() bool {
				for _, call := range suite.Mock.Client.Calls {
					if call.Method == "WriteCharacteristic" && call.Arguments.Bool(2) == !tt.withResponse {
						return true
					}
				}
				return false
			}, suite.TestTimeout, 10*time.Millisecond, "write MUST reach go-ble with noRsp=%v", !tt.withResponse)
			suite.Mock.Client.AssertCalled(suite.T(), "WriteCharacteristic", chr, []byte{1, 2}, !tt.withResponse)
		})
	}
}

func (suite *CentralTestSuite) TestNotifications() {
	// GOAL: Verify go-ble notifications surface as CharacteristicValueChanged events
	//
	// TEST SCENARIO: Enable notify → Subscribe called → handler invoked with data → event carries data

	done := make(chan bool, 1)
	suite.p.SetNotifyValue(true, "180F", "2A19", func(notifying bool, err error) {
		suite.Assert().NoError(err)
		done <- notifying
	})
	suite.Require().True(testutils.Await[bool](suite.T(), done, suite.TestTimeout), "MUST report notifying")

	var handler blelib.NotificationHandler
	for _, call := range suite.Mock.Client.Calls {
		if call.Method == "Subscribe" {
			suite.Assert().False(call.Arguments.Bool(1), "notify characteristic MUST NOT use indications")
			handler = call.Arguments.Get(2).(blelib.NotificationHandler)
		}
	}
	suite.Require().NotNil(handler, "Subscribe MUST be called with a handler")

	handler([]byte{99})
	e := nextEvent[central.CharacteristicValueChanged](suite)
	suite.Assert().Equal([]byte{99}, e.Value, "event MUST carry the notified value")
	suite.Assert().Equal("2a19", e.Characteristic.UUID())

	off := make(chan bool, 1)
	suite.p.SetNotifyValue(false, "180F", "2A19", func(notifying bool, _ error) { off <- notifying })
	suite.Assert().False(testutils.Await[bool](suite.T(), off, suite.TestTimeout))
	suite.Mock.Client.AssertCalled(suite.T(), "Unsubscribe", suite.Mock.Characteristic("180F", "2A19"), false)
}

func (suite *CentralTestSuite) TestDescriptors() {
	type res struct {
		v   []byte
		err error
	}
	read := func(uuid string) res {
		done := make(chan res, 1)
		suite.p.ReadDescriptorValue("180F", "2A19", uuid, func(v []byte, err error) { done <- res{v, err} })
		return testutils.Await[res](suite.T(), done, suite.TestTimeout)
	}

	cccd := read("2902")
	suite.Require().NoError(cccd.err)
	suite.Assert().Equal([]byte{0, 0}, cccd.v)

	desc := read("2901")
	suite.Require().NoError(desc.err)
	suite.Assert().Equal([]byte("Battery"), desc.v)

	chr := suite.p.Services()[0].Characteristics()[0]
	var userDescription device.Descriptor
	for _, d := range chr.Descriptors() {
		if d.UUID() == device.DescriptorUserDescription {
			userDescription = d
		}
	}
	suite.Require().NotNil(userDescription, "user description MUST be discovered")
	suite.Assert().Equal("Battery", userDescription.Value(), "user description MUST decode to a string")
}

func (suite *CentralTestSuite) TestReadRSSI() {
	done := make(chan int, 1)
	suite.p.ReadRSSI(func(rssi int, err error) {
		suite.Assert().NoError(err)
		done <- rssi
	})
	suite.Assert().Equal(-42, testutils.Await[int](suite.T(), done, suite.TestTimeout))
}

func (suite *CentralTestSuite) TestDisconnect() {
	// GOAL: Verify a requested disconnect cancels the go-ble connection and reports no error
	//
	// TEST SCENARIO: Connect → Disconnect → CancelConnection → PeripheralDisconnected without error → services dropped

	connected := make(chan error, 1)
	suite.p.Connect(func(err error) { connected <- err })
	suite.Require().NoError(testutils.Await[error](suite.T(), connected, suite.TestTimeout))

	done := make(chan error, 1)
	suite.p.Disconnect(func(err error) { done <- err })
	suite.Require().NoError(testutils.Await[error](suite.T(), done, suite.TestTimeout), "disconnect MUST succeed")

	e := nextEvent[central.PeripheralDisconnected](suite)
	suite.Assert().NoError(e.Err, "requested disconnect MUST carry no error")
	suite.Mock.Client.AssertCalled(suite.T(), "CancelConnection")
	suite.Assert().Equal(device.PeripheralDisconnected, suite.p.State())
	suite.Assert().Empty(suite.p.Services(), "services MUST be dropped with the link")
}

func (suite *CentralTestSuite) TestLinkLoss() {
	// GOAL: Verify a dropped link is reported as ErrConnectionLost
	//
	// TEST SCENARIO: Connect → go-ble Disconnected channel closes → PeripheralDisconnected{ErrConnectionLost}

	connected := make(chan error, 1)
	suite.p.Connect(func(err error) { connected <- err })
	suite.Require().NoError(testutils.Await[error](suite.T(), connected, suite.TestTimeout))

	suite.Mock.DropLink()

	e := nextEvent[central.PeripheralDisconnected](suite)
	suite.Assert().ErrorIs(e.Err, goble.ErrConnectionLost, "link loss MUST be reported")
	suite.Assert().Equal(device.PeripheralDisconnected, suite.p.State())
}

func (suite *CentralTestSuite) TestDirectiveWithoutLink() {
	// GOAL: Verify GATT directives on an unconnected platform peripheral fail with ErrNotConnected
	//
	// TEST SCENARIO: Platform ReadRSSI without a link → DidReadRSSI(ErrNotConnected)

	dp := suite.ble.RetrievePeripherals([]string{"11:22:33:44:55:66"})[0]
	rec := &rssiRecorder{errs: make(chan error, 1)}
	dp.SetDelegate(rec)
	dp.ReadRSSI()

	suite.Assert().ErrorIs(testutils.Await[error](suite.T(), rec.errs, suite.TestTimeout), goble.ErrNotConnected)
}

func (suite *CentralTestSuite) TestRetrieveSkipsUndialableIdentifiers() {
	// GOAL: Verify only identifiers go-ble can dial yield handles
	//
	// TEST SCENARIO: Retrieve an address, a CoreBluetooth UUID and garbage → two handles, in order

	got := suite.ble.RetrievePeripherals([]string{
		"11:22:33:44:55:66",
		"not-a-device",
		"5B0C8E4A-3F1D-4F8E-9C55-0E2E7C1B9A10",
		"",
	})
	suite.Require().Len(got, 2, "undialable identifiers MUST be skipped")
	suite.Assert().Equal("11:22:33:44:55:66", got[0].Identifier())
	suite.Assert().Equal("5B0C8E4A-3F1D-4F8E-9C55-0E2E7C1B9A10", got[1].Identifier())
}

func (suite *CentralTestSuite) TestInvalidFilterUUID() {
	done := make(chan error, 1)
	suite.p.DiscoverServices([]string{"not-a-uuid"}, func(_ []device.Service, err error) { done <- err })
	suite.Assert().Error(testutils.Await[error](suite.T(), done, suite.TestTimeout), "invalid filter MUST fail")
}

func TestCentralTestSuite(t *testing.T) {
	suite.Run(t, new(CentralTestSuite))
}

// rssiRecorder only implements DidReadRSSI; other callbacks are not expected.
type rssiRecorder struct {
	device.PeripheralDelegate
	errs chan error
}

func (r *rssiRecorder) DidReadRSSI(_ device.Peripheral, _ int, err error) {
	r.errs <- err
}

// ScanTestSuite feeds mocked advertisements to the go-ble scanner.
type ScanTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (suite *ScanTestSuite) SetupTest() {
	suite.WithAdvertisements().WithAdvertisements(
		testutils.NewAdvertisementBuilder().
			WithName("Battery").WithAddress(address).WithRSSI(-40).WithServices("180F").
			Build(),
		testutils.NewAdvertisementBuilder().
			WithName("Heart").WithAddress("11:22:33:44:55:66").WithRSSI(-70).WithServices("180D").
			Build(),
	)
	suite.MockBLEPeripheralSuite.SetupTest()
}

func (suite *ScanTestSuite) scan(uuids []string) []central.ScanEvent {
	q := dispatch.New("goble-scan-test", suite.Logger)
	defer q.Close()
	c := suite.NewCentral(q)
	defer func() { suite.Require().NoError(c.Close()) }()
	coord := central.NewCoordinator(c, q, nil, central.DefaultOptions(), suite.Logger)

	events := make(chan central.ScanEvent, 16)
	coord.Scan(uuids, 100*time.Millisecond, func(e central.ScanEvent) { events <- e })

	var out []central.ScanEvent
	for {
		e := testutils.Await[central.ScanEvent](suite.T(), events, suite.TestTimeout)
		out = append(out, e)
		if e.Kind == central.ScanStopped {
			return out
		}
	}
}

func (suite *ScanTestSuite) TestScanReportsAdvertisements() {
	events := suite.scan(nil)

	suite.Require().Len(events, 4, "MUST report started, two results and stopped")
	suite.Assert().Equal(central.ScanResult, events[1].Kind)
	suite.Assert().Equal(address, events[1].Peripheral.Identifier())
	suite.Assert().Equal("Battery", events[1].Peripheral.Name(), "advertised name MUST be applied to the peripheral")
	suite.Assert().Equal(-40, events[1].RSSI)
	suite.Assert().Equal([]string{"180f"}, events[1].Advertisement.Services(), "service UUIDs MUST be normalized")
	suite.Assert().Equal("11:22:33:44:55:66", events[2].Peripheral.Identifier())
	suite.Assert().Len(events[3].Peripherals, 2)
}

func (suite *ScanTestSuite) TestScanFilter() {
	events := suite.scan([]string{"180D"})

	suite.Require().Len(events, 3, "MUST report only the matching advertisement")
	suite.Assert().Equal("11:22:33:44:55:66", events[1].Peripheral.Identifier())
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

// InitTestSuite checks the adapter state derived from device creation.
type InitTestSuite struct {
	testutils.MockBLEPeripheralSuite
}

func (suite *InitTestSuite) TestInitState() {
	tests := []struct {
		name string
		err  error
		want device.ManagerState
	}{
		{"bluetooth off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), device.StatePoweredOff},
		{"unauthorized", errors.New("operation not permitted"), device.StateUnauthorized},
		{"no adapter", errors.New("no such device"), device.StateUnsupported},
		{"unknown failure", errors.New("boom"), device.StateUnsupported},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			goble.DeviceFactory = func() (goble.Device, error) { return nil, tt.err }

			q := dispatch.New("goble-init-test", suite.Logger)
			defer q.Close()
			c, err := goble.NewCentral(q, 0, suite.Logger)
			suite.Require().NoError(err)
			suite.Assert().Equal(device.StateUnknown, c.State(), "state MUST be unknown before Init")

			c.Init()
			suite.Assert().Eventually(func() bool { return c.State() == tt.want }, suite.TestTimeout, 10*time.Millisecond,
				"state MUST become %s", tt.want)
		})
	}
}

func (suite *InitTestSuite) TestConnectFailure() {
	dev := &mocks.MockDevice{}
	dev.On("Dial", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))
	dev.On("Stop").Return(nil)
	goble.DeviceFactory = func() (goble.Device, error) { return dev, nil }

	q := dispatch.New("goble-dial-test", suite.Logger)
	defer q.Close()
	c := suite.NewCentral(q)
	coord := central.NewCoordinator(c, q, nil, central.DefaultOptions(), suite.Logger)

	done := make(chan error, 1)
	coord.Retrieve(address)[0].Connect(func(err error) { done <- err })
	err := testutils.Await[error](suite.T(), done, suite.TestTimeout)

	var platformErr *device.PlatformError
	suite.Require().ErrorAs(err, &platformErr, "dial failure MUST be a PlatformError")
	suite.Assert().Equal(central.OpConnect, platformErr.Operation)
	suite.Assert().Contains(err.Error(), "connection refused")
}

func TestInitTestSuite(t *testing.T) {
	suite.Run(t, new(InitTestSuite))
}
