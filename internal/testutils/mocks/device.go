package mocks

import (
	"context"

	"github.com/go-ble/ble"
	goble "github.com/srg/blecb/internal/device/go-ble"
	"github.com/stretchr/testify/mock"
)

// MockDevice is a testify mock of goble.Device.
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *MockDevice) Dial(ctx context.Context, a ble.Addr) (goble.Client, error) {
	args := m.Called(ctx, a)
	if v := args.Get(0); v != nil {
		return v.(goble.Client), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

// MockClient is a testify mock of goble.Client. Discover* expectations may
// return a function of the call arguments instead of fixed values.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) Addr() ble.Addr {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(ble.Addr)
	}
	return nil
}

func (m *MockClient) DiscoverServices(filter []ble.UUID) ([]*ble.Service, error) {
	args := m.Called(filter)
	if fn, ok := args.Get(0).(func([]ble.UUID) ([]*ble.Service, error)); ok {
		return fn(filter)
	}
	if v := args.Get(0); v != nil {
		return v.([]*ble.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error) {
	args := m.Called(filter, s)
	if fn, ok := args.Get(0).(func([]ble.UUID, *ble.Service) ([]*ble.Service, error)); ok {
		return fn(filter, s)
	}
	if v := args.Get(0); v != nil {
		return v.([]*ble.Service), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error) {
	args := m.Called(filter, s)
	if fn, ok := args.Get(0).(func([]ble.UUID, *ble.Service) ([]*ble.Characteristic, error)); ok {
		return fn(filter, s)
	}
	if v := args.Get(0); v != nil {
		return v.([]*ble.Characteristic), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error) {
	args := m.Called(filter, c)
	if fn, ok := args.Get(0).(func([]ble.UUID, *ble.Characteristic) ([]*ble.Descriptor, error)); ok {
		return fn(filter, c)
	}
	if v := args.Get(0); v != nil {
		return v.([]*ble.Descriptor), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	args := m.Called(d)
	if v := args.Get(0); v != nil {
		return v.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) WriteDescriptor(d *ble.Descriptor, value []byte) error {
	return m.Called(d, value).Error(0)
}

func (m *MockClient) ReadRSSI() int {
	return m.Called().Int(0)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *MockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(<-chan struct{})
	}
	return nil
}
