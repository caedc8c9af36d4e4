//go:build test

package central_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ScanTestSuite struct {
	CentralTestSuite
}

// scanLog records scan events of several sessions in delivery order.
type scanLog struct {
	mu      sync.Mutex
	entries []string
	events  map[string][]central.ScanEvent
	stopped chan string
}

func newScanLog() *scanLog {
	return &scanLog{events: map[string][]central.ScanEvent{}, stopped: make(chan string, 8)}
}

func (l *scanLog) session(name string) func(central.ScanEvent) {
	return func(e central.ScanEvent) {
		l.mu.Lock()
		l.entries = append(l.entries, fmt.Sprintf("%s:%s", name, e.Kind))
		l.events[name] = append(l.events[name], e)
		l.mu.Unlock()
		if e.Kind == central.ScanStopped {
			l.stopped <- name
		}
	}
}

func (l *scanLog) order() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *scanLog) of(name string) []central.ScanEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]central.ScanEvent(nil), l.events[name]...)
}

func (suite *ScanTestSuite) TestScanSession() {
	// GOAL: Verify a scan session reports started, results and stopped with the distinct peripherals
	//
	// TEST SCENARIO: Scan → two advertisements from one device, one from another → StopScan →
	// three results → stopped lists two peripherals

	other := suite.AddPeripheral("11:22:33:44:55:66", testutils.CreateBatteryPeripheral())
	log := newScanLog()

	suite.Coordinator.Scan([]string{"180F"}, 0, log.session("a"))
	suite.Drain()
	suite.Require().True(suite.Coordinator.IsScanning(), "scan MUST be active")
	suite.Require().True(suite.Central.IsScanning(), "platform scan MUST be running")

	scans := suite.Central.Calls(testutils.CallScan)
	suite.Require().Len(scans, 1)
	suite.Assert().Equal([]string{"180f"}, scans[0].UUIDs, "scan filter MUST be normalized")
	suite.Assert().False(scans[0].Flag, "duplicates MUST NOT be requested by default")

	adv := testutils.CreateMockAdvertisement("Battery", "AA:BB:CC:DD:EE:FF", -60).BuildAdvertisement()
	suite.Central.Advertise(suite.fake, adv, -60)
	suite.Central.Advertise(suite.fake, adv, -61)
	suite.Central.Advertise(other, adv, -70)
	suite.Drain()

	suite.Coordinator.StopScan()
	testutils.Await[string](suite.T(), log.stopped, suite.TestTimeout)

	events := log.of("a")
	suite.Require().Len(events, 5, "MUST report started, three results and stopped")
	suite.Assert().Equal(central.ScanStarted, events[0].Kind)
	for _, e := range events[1:4] {
		suite.Assert().Equal(central.ScanResult, e.Kind)
	}
	suite.Assert().Same(suite.p, events[1].Peripheral, "result MUST map to the registered handle")
	suite.Assert().Equal(-61, events[2].RSSI)
	suite.Assert().Equal("Battery", events[1].Advertisement.LocalName())

	stopped := events[4]
	suite.Assert().Equal(central.ScanStopped, stopped.Kind)
	suite.Assert().NoError(stopped.Err, "requested stop MUST carry no error")
	suite.Require().Len(stopped.Peripherals, 2, "stopped MUST list each peripheral once")
	suite.Assert().Equal("AA:BB:CC:DD:EE:FF", stopped.Peripherals[0].Identifier())
	suite.Assert().Equal("11:22:33:44:55:66", stopped.Peripherals[1].Identifier())

	suite.Assert().False(suite.Coordinator.IsScanning(), "scan MUST be inactive")
	suite.Assert().False(suite.Central.IsScanning(), "platform scan MUST be stopped")
}

func (suite *ScanTestSuite) TestNewScanSupersedesActive() {
	// GOAL: Verify a new scan stops the active session before starting
	//
	// TEST SCENARIO: Scan A → Scan B → A stopped before B started → only B receives later results

	log := newScanLog()
	suite.Coordinator.Scan(nil, 0, log.session("a"))
	suite.Coordinator.Scan(nil, 0, log.session("b"))
	suite.Drain()

	suite.Central.Advertise(suite.fake, nil, -50)
	suite.Drain()

	suite.Assert().Equal([]string{
		"a:started",
		"a:stopped",
		"b:started",
		"b:result",
	}, log.order(), "superseded session MUST stop before the new one starts")
	suite.Assert().NoError(log.of("a")[1].Err, "superseded session MUST stop without error")
	suite.Assert().Equal(2, suite.Central.CallCount(testutils.CallScan))
}

func (suite *ScanTestSuite) TestScanTimeout() {
	log := newScanLog()
	suite.Coordinator.Scan(nil, shortTimeout, log.session("a"))

	testutils.Await[string](suite.T(), log.stopped, suite.TestTimeout)
	events := log.of("a")
	suite.Require().Len(events, 2)
	suite.Assert().NoError(events[1].Err, "timeout stop MUST carry no error")
	suite.Assert().Equal(1, suite.Central.CallCount(testutils.CallStopScan), "timeout MUST stop the platform scan")
}

func (suite *ScanTestSuite) TestPowerOffTerminatesScan() {
	// GOAL: Verify leaving poweredOn ends the scan with ScanTerminatedError and invalidates handles
	//
	// TEST SCENARIO: Scanning → adapter powers off → stopped with ScanTerminatedError{poweredOff} → handles invalid

	log := newScanLog()
	suite.Coordinator.Scan(nil, 0, log.session("a"))
	suite.Central.Advertise(suite.fake, nil, -50)
	suite.Drain()

	suite.Central.SetState(device.StatePoweredOff)
	testutils.Await[string](suite.T(), log.stopped, suite.TestTimeout)

	events := log.of("a")
	stopped := events[len(events)-1]
	var terminated *device.ScanTerminatedError
	suite.Require().ErrorAs(stopped.Err, &terminated, "error MUST be a ScanTerminatedError")
	suite.Assert().Equal(device.StatePoweredOff, terminated.State)
	suite.Assert().ErrorIs(stopped.Err, device.ErrBluetoothOff, "error MUST unwrap to ErrBluetoothOff")
	suite.Require().Len(stopped.Peripherals, 1)
	suite.Assert().False(stopped.Peripherals[0].IsValid(), "scanned handle MUST be invalidated")
	suite.Assert().False(suite.Coordinator.IsScanning())
}

func (suite *ScanTestSuite) TestScanWhilePoweredOff() {
	suite.Central.SetState(device.StatePoweredOff)

	log := newScanLog()
	suite.Coordinator.Scan(nil, 0, log.session("a"))
	testutils.Await[string](suite.T(), log.stopped, suite.TestTimeout)

	events := log.of("a")
	suite.Require().Len(events, 1, "session that cannot start MUST only receive stopped")
	suite.Assert().ErrorIs(events[0].Err, device.ErrBluetoothOff)
	suite.Assert().Equal(0, suite.Central.CallCount(testutils.CallScan), "MUST NOT start a platform scan")
}

func (suite *ScanTestSuite) TestDiscoveryOutsideScanIgnored() {
	suite.Central.Advertise(suite.fake, nil, -50)
	suite.Drain()
	suite.Assert().False(suite.Coordinator.IsScanning())
}

func (suite *ScanTestSuite) TestCloseStopsScan() {
	log := newScanLog()
	suite.Coordinator.Scan(nil, 0, log.session("a"))
	suite.Drain()

	suite.Coordinator.Close()
	testutils.Await[string](suite.T(), log.stopped, suite.TestTimeout)
	suite.Assert().False(suite.Central.IsScanning(), "close MUST stop the platform scan")
}

func TestScanTestSuite(t *testing.T) {
	suite.Run(t, new(ScanTestSuite))
}

type DuplicateScanTestSuite struct {
	CentralTestSuite
}

func (suite *DuplicateScanTestSuite) SetupTest() {
	suite.Options = central.Options{AllowDuplicates: true}
	suite.CentralTestSuite.SetupTest()
}

func (suite *DuplicateScanTestSuite) TestAllowDuplicates() {
	suite.Coordinator.Scan(nil, 0, func(central.ScanEvent) {})
	suite.Drain()

	scans := suite.Central.Calls(testutils.CallScan)
	suite.Require().Len(scans, 1)
	suite.Assert().True(scans[0].Flag, "duplicates MUST be requested when enabled")
}

func TestDuplicateScanTestSuite(t *testing.T) {
	suite.Run(t, new(DuplicateScanTestSuite))
}
