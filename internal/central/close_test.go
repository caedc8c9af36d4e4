//go:build test

package central_test

import (
	"testing"

	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// CloseTestSuite checks that closing the coordinator answers everything still pending.
type CloseTestSuite struct {
	CentralTestSuite
}

func (suite *CloseTestSuite) TestClosePendingRequests() {
	// GOAL: Verify Close fails in-flight and queued requests and pending connects with ErrClosed
	//
	// TEST SCENARIO: Read in flight + read queued behind it on one peripheral, connect pending on
	// another → Close → all three answered once with ErrClosed

	suite.Connect(suite.p)
	suite.fake.On(testutils.CallReadCharacteristic, testutils.Behavior{Silent: true})

	inFlight := newResult[[]byte]()
	queued := newResult[[]byte]()
	suite.p.ReadValue(batteryService, batteryLevel, inFlight.set)
	suite.p.ReadValue(batteryService, batteryLevel, queued.set)
	suite.Require().Eventually(func() bool {
		return suite.Central.CallCount(testutils.CallReadCharacteristic) == 1
	}, suite.TestTimeout, shortTimeout/5, "first read MUST be issued")

	other := suite.AddPeripheral("11:22:33:44:55:66", testutils.CreateBatteryPeripheral())
	other.On(testutils.CallConnect, testutils.Behavior{Silent: true})
	connect := newResult[struct{}]()
	suite.Handle(other).Connect(connect.errOnly)
	suite.Drain()

	suite.Coordinator.Close()

	_, err := awaitResult(&suite.CentralTestSuite, inFlight)
	suite.Assert().ErrorIs(err, device.ErrClosed, "in-flight read MUST fail with ErrClosed")
	_, err = awaitResult(&suite.CentralTestSuite, queued)
	suite.Assert().ErrorIs(err, device.ErrClosed, "queued read MUST fail with ErrClosed")
	_, err = awaitResult(&suite.CentralTestSuite, connect)
	suite.Assert().ErrorIs(err, device.ErrClosed, "pending connect MUST fail with ErrClosed")

	suite.Central.CompleteConnect(other, nil)
	suite.Drain()
	suite.Assert().Equal(1, inFlight.count(), "callback MUST fire exactly once")
	suite.Assert().Equal(1, queued.count(), "callback MUST fire exactly once")
	suite.Assert().Equal(1, connect.count(), "callback MUST fire exactly once")
	suite.Assert().Equal(1, suite.Central.CallCount(testutils.CallReadCharacteristic), "queued read MUST NOT reach the platform")
}

func (suite *CloseTestSuite) TestCloseParkedWaiters() {
	// GOAL: Verify requests waiting for the adapter are answered by Close
	//
	// TEST SCENARIO: Adapter resetting → WhenReady parked → Close → ErrClosed

	suite.Central.SetState(device.StateResetting)
	suite.Drain()

	waiter := newResult[struct{}]()
	suite.Coordinator.WhenReady(waiter.errOnly)
	suite.Drain()
	suite.Require().Equal(0, waiter.count(), "waiter MUST be parked while resetting")

	suite.Coordinator.Close()
	_, err := awaitResult(&suite.CentralTestSuite, waiter)
	suite.Assert().ErrorIs(err, device.ErrClosed)
}

func (suite *CloseTestSuite) TestRequestsAfterClose() {
	// GOAL: Verify requests issued after Close are answered, before and after the queue shuts down
	//
	// TEST SCENARIO: Close → read → ErrClosed; queue closed → RSSI, scan → ErrClosed on the caller goroutine

	suite.Coordinator.Close()

	read := newResult[[]byte]()
	suite.p.ReadValue(batteryService, batteryLevel, read.set)
	_, err := awaitResult(&suite.CentralTestSuite, read)
	suite.Assert().ErrorIs(err, device.ErrClosed, "read after Close MUST fail")

	suite.Queue.Close()

	var rssiErr error
	suite.p.ReadRSSI(func(_ int, err error) { rssiErr = err })
	suite.Assert().ErrorIs(rssiErr, device.ErrClosed, "RSSI on a closed queue MUST fail synchronously")

	var stopped []central.ScanEvent
	suite.Coordinator.Scan(nil, 0, func(e central.ScanEvent) { stopped = append(stopped, e) })
	suite.Require().Len(stopped, 1, "scan on a closed queue MUST only report Stopped")
	suite.Assert().Equal(central.ScanStopped, stopped[0].Kind)
	suite.Assert().ErrorIs(stopped[0].Err, device.ErrClosed)

	suite.Assert().Empty(suite.Central.Calls(testutils.CallReadCharacteristic), "nothing MUST reach the platform after Close")
}

func (suite *CloseTestSuite) TestCloseScan() {
	// GOAL: Verify Close stops an active scan once and leaves an idle platform alone
	//
	// TEST SCENARIO: Close without a scan → no StopScan directive; second coordinator scanning → Close →
	// Stopped event and one StopScan

	suite.Coordinator.Close()
	suite.Assert().Equal(0, suite.Central.CallCount(testutils.CallStopScan), "idle Close MUST NOT stop the platform scan")

	coord := central.NewCoordinator(suite.Central, suite.Queue, suite.Events, central.Options{}, suite.Logger)
	events := make(chan central.ScanEvent, 4)
	coord.Scan(nil, 0, func(e central.ScanEvent) { events <- e })
	suite.Assert().Equal(central.ScanStarted, testutils.Await[central.ScanEvent](suite.T(), events, suite.TestTimeout).Kind)

	coord.Close()
	coord.Close()
	stopped := testutils.Await[central.ScanEvent](suite.T(), events, suite.TestTimeout)
	suite.Assert().Equal(central.ScanStopped, stopped.Kind)
	suite.Assert().NoError(stopped.Err, "Close MUST end the scan without an error")
	suite.Assert().Equal(1, suite.Central.CallCount(testutils.CallStopScan), "Close MUST stop the platform scan once")
}

func TestCloseTestSuite(t *testing.T) {
	suite.Run(t, new(CloseTestSuite))
}
