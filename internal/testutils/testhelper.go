package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/dispatch"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// NewQueue creates a dispatch queue closed when the test ends.
func (h *TestHelper) NewQueue(name string) *dispatch.Queue {
	q := dispatch.New(name, h.Logger)
	h.T.Cleanup(q.Close)
	return q
}

// Drain waits until every block already submitted to q has run.
func Drain(q *dispatch.Queue) {
	q.Sync(func() {})
}

// Await waits for one value from ch, failing the test after timeout.
func Await[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("no value received within %v", timeout)
		var zero T
		return zero
	}
}

func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockPeripheralDeviceFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// CreateBatteryPeripheral creates a profile with the Battery Service (180F) and
// its Battery Level characteristic (2A19) at 50%, plus a CCCD and a user description.
func CreateBatteryPeripheral() *PeripheralDeviceBuilder {
	return CreateMockPeripheralDeviceFromJSON(`{
		"name": "Battery",
		"rssi": -42,
		"services": [
			{
				"uuid": "180F",
				"characteristics": [
					{
						"uuid": "2A19",
						"properties": "read,notify",
						"value": [50],
						"descriptors": [
							{ "uuid": "2902", "value": [0, 0] },
							{ "uuid": "2901", "value": [66, 97, 116, 116, 101, 114, 121] }
						]
					}
				]
			}
		]
	}`)
}
