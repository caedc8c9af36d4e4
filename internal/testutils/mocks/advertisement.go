package mocks

import (
	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// MockAddr is a testify mock of ble.Addr.
type MockAddr struct {
	mock.Mock
}

func (m *MockAddr) String() string {
	return m.Called().String(0)
}

// MockAdvertisement is a testify mock of ble.Advertisement.
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string {
	return m.Called().String(0)
}

func (m *MockAdvertisement) ManufacturerData() []byte {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]byte)
	}
	return nil
}

func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]ble.ServiceData)
	}
	return nil
}

func (m *MockAdvertisement) Services() []ble.UUID {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) OverflowService() []ble.UUID {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) TxPowerLevel() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Connectable() bool {
	return m.Called().Bool(0)
}

func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.([]ble.UUID)
	}
	return nil
}

func (m *MockAdvertisement) RSSI() int {
	return m.Called().Int(0)
}

func (m *MockAdvertisement) Addr() ble.Addr {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(ble.Addr)
	}
	return nil
}
