//go:build test

package testutils

import (
	"sync"
	"time"

	blelib "github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
	goble "github.com/srg/blecb/internal/device/go-ble"
	"github.com/srg/blecb/internal/dispatch"
	"github.com/srg/blecb/internal/notify"
	"github.com/stretchr/testify/suite"
)

// FakeCentralSuite provides a coordinator running over an in-memory FakeCentral.
//
// Basic usage (adapter powered on, no peripherals):
//
//	type ConnectSuite struct {
//	    testutils.FakeCentralSuite
//	}
//
//	func TestConnectSuite(t *testing.T) {
//	    suite.Run(t, new(ConnectSuite))
//	}
//
//	func (s *ConnectSuite) TestConnect() {
//	    fp := s.AddPeripheral("AA:BB", testutils.CreateBatteryPeripheral())
//	    p := s.Handle(fp)
//	    ...
//	}
//
// Start in another adapter state with WithInitialState before calling SetupTest:
//
//	func (s *GateSuite) SetupTest() {
//	    s.WithInitialState(device.StateUnknown)
//	    s.FakeCentralSuite.SetupTest()
//	}
type FakeCentralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	// Configuration, read by SetupTest
	Options     central.Options
	TestTimeout time.Duration // how long Await helpers wait for a callback

	Queue       *dispatch.Queue
	Central     *FakeCentral
	Events      *notify.Hub[central.Event]
	Coordinator *central.Coordinator

	initialState *device.ManagerState

	mu       sync.Mutex
	recorded []central.Event
}

func (s *FakeCentralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	if s.TestTimeout == 0 {
		s.TestTimeout = 2 * time.Second
	}
}

// SetupTest builds a fresh queue, central and coordinator.
// The adapter starts poweredOn unless WithInitialState said otherwise.
func (s *FakeCentralSuite) SetupTest() {
	state := device.StatePoweredOn
	if s.initialState != nil {
		state = *s.initialState
	}

	s.Queue = dispatch.New("ble-test", s.Logger)
	s.Central = NewFakeCentral(s.Queue, state)
	s.Events = notify.NewHub[central.Event](nil, s.Logger)
	s.Coordinator = central.NewCoordinator(s.Central, s.Queue, s.Events, s.Options, s.Logger)

	s.mu.Lock()
	s.recorded = nil
	s.mu.Unlock()
	s.Events.Subscribe(func(e central.Event) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.recorded = append(s.recorded, e)
	})
}

func (s *FakeCentralSuite) TearDownTest() {
	s.Coordinator.Close()
	s.Events.Close()
	s.Queue.Close()

	// Configuration does not leak into the next test
	s.initialState = nil
	s.Options = central.Options{}
}

// WithInitialState sets the adapter state SetupTest starts from.
func (s *FakeCentralSuite) WithInitialState(state device.ManagerState) {
	s.initialState = &state
}

// AddPeripheral builds a fake peripheral and registers it with the central.
func (s *FakeCentralSuite) AddPeripheral(id string, b *PeripheralDeviceBuilder) *FakePeripheral {
	return s.Central.AddPeripheral(b.Build(id))
}

// Handle returns the coordinator handle of a registered fake peripheral.
func (s *FakeCentralSuite) Handle(fp *FakePeripheral) *central.Peripheral {
	handles := s.Coordinator.Retrieve(fp.Identifier())
	s.Require().Len(handles, 1, "peripheral %s MUST be retrievable", fp.Identifier())
	return handles[0]
}

// Drain waits for every callback already posted on the dispatch queue.
func (s *FakeCentralSuite) Drain() {
	Drain(s.Queue)
}

// Recorded returns the events published so far.
func (s *FakeCentralSuite) Recorded() []central.Event {
	s.Drain()
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]central.Event(nil), s.recorded...)
}

// Connect connects p and requires success.
func (s *FakeCentralSuite) Connect(p *central.Peripheral) {
	done := make(chan error, 1)
	p.Connect(func(err error) { done <- err })
	s.Require().NoError(Await[error](s.T(), done, s.TestTimeout), "connect MUST succeed")
}

// MockBLEPeripheralSuite swaps the go-ble device factory for a mock device built
// from PeripheralBuilder, for tests of the go-ble platform adapter.
//
//	func (s *GobleSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (goble.Device, error)
	TestTimeout           time.Duration

	PeripheralBuilder     *PeripheralDeviceBuilder
	AdvertisementsBuilder *AdvertisementArrayBuilder[[]blelib.Advertisement]

	// Set by SetupTest
	Mock *MockPeripheralDevice
}

func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 2 * time.Second

	s.OriginalDeviceFactory = goble.DeviceFactory
	s.T().Cleanup(func() {
		if s.OriginalDeviceFactory != nil {
			goble.DeviceFactory = s.OriginalDeviceFactory
			s.Logger.Debug("Device factory restored via t.Cleanup")
		}
	})
}

// SetupTest installs a device factory returning the configured mock device.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = CreateBatteryPeripheral()
	}
	if s.AdvertisementsBuilder != nil {
		s.PeripheralBuilder.
			WithScanAdvertisements().
			WithAdvertisements(s.AdvertisementsBuilder.Build()...).
			Build()
	}

	s.Mock = s.PeripheralBuilder.BuildDevice()
	goble.DeviceFactory = func() (goble.Device, error) {
		return s.Mock.Device, nil
	}
}

func (s *MockBLEPeripheralSuite) TearDownTest() {
	if s.OriginalDeviceFactory != nil {
		goble.DeviceFactory = s.OriginalDeviceFactory
	}
	s.PeripheralBuilder = nil
	s.AdvertisementsBuilder = nil
	s.Mock = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// WithAdvertisements returns the builder of advertisements reported by Scan.
func (s *MockBLEPeripheralSuite) WithAdvertisements() *AdvertisementArrayBuilder[[]blelib.Advertisement] {
	if s.AdvertisementsBuilder == nil {
		s.AdvertisementsBuilder = NewAdvertisementArrayBuilder[[]blelib.Advertisement]()
	}
	return s.AdvertisementsBuilder
}

// NewCentral creates an initialized go-ble central on q and waits for it to power on.
func (s *MockBLEPeripheralSuite) NewCentral(q *dispatch.Queue) *goble.Central {
	c, err := goble.NewCentral(q, 0, s.Logger)
	s.Require().NoError(err)
	c.Init()
	s.Require().Eventually(func() bool {
		return c.State() == device.StatePoweredOn
	}, s.TestTimeout, 10*time.Millisecond, "central MUST power on with a mock device")
	return c
}
