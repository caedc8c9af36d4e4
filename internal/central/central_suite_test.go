//go:build test

package central_test

import (
	"sync"
	"time"

	"github.com/srg/blecb/internal/central"
	"github.com/srg/blecb/internal/testutils"
)

const (
	batteryService = "180F"
	batteryLevel   = "2A19"
	shortTimeout   = 50 * time.Millisecond
)

// CentralTestSuite runs the coordinator over a fake central with a battery peripheral registered.
type CentralTestSuite struct {
	testutils.FakeCentralSuite

	fake *testutils.FakePeripheral
	p    *central.Peripheral
}

func (suite *CentralTestSuite) SetupTest() {
	suite.FakeCentralSuite.SetupTest()
	suite.fake = suite.AddPeripheral("AA:BB:CC:DD:EE:FF", testutils.CreateBatteryPeripheral())
	suite.p = suite.Handle(suite.fake)
}

// result collects the callbacks of one operation.
type result[T any] struct {
	mu    sync.Mutex
	calls int
	value T
	err   error
	done  chan struct{}
}

func newResult[T any]() *result[T] {
	return &result[T]{done: make(chan struct{}, 16)}
}

func (r *result[T]) set(v T, err error) {
	r.mu.Lock()
	r.calls++
	r.value = v
	r.err = err
	r.mu.Unlock()
	r.done <- struct{}{}
}

func (r *result[T]) errOnly(err error) {
	var zero T
	r.set(zero, err)
}

func (r *result[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *result[T]) get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err
}

// await waits for the callback and returns its arguments.
func (suite *CentralTestSuite) await(timeout time.Duration, done <-chan struct{}) {
	suite.T().Helper()
	testutils.Await(suite.T(), done, timeout)
}

func awaitResult[T any](suite *CentralTestSuite, r *result[T]) (T, error) {
	suite.await(suite.TestTimeout, r.done)
	return r.get()
}

// eventsOf filters recorded events by type.
func eventsOf[E central.Event](events []central.Event) []E {
	var out []E
	for _, e := range events {
		if typed, ok := e.(E); ok {
			out = append(out, typed)
		}
	}
	return out
}
