package testutils

import (
	"encoding/json"
	"fmt"
	"sync"

	blelib "github.com/go-ble/ble"
	"github.com/srg/blecb/internal/device"
	"github.com/srg/blecb/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// createMockUUID creates a ble.UUID from a string for testing
func createMockUUID(name string) blelib.UUID {
	// Parse as proper UUID - will panic if invalid, which is fine for tests
	return blelib.MustParse(name)
}

// DescriptorConfig represents a GATT descriptor configuration for mocking
type DescriptorConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
}

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID        string             `json:"uuid"`
	Properties  string             `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte             `json:"value,omitempty"`
	Descriptors []DescriptorConfig `json:"descriptors,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
	Included        []string               `json:"included,omitempty"` // UUIDs of other services in the profile
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Name     string          `json:"name,omitempty"`
	RSSI     int             `json:"rssi,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds mocked peripherals from a GATT profile: in-memory
// FakePeripherals for the request engine, or go-ble device mocks for the platform adapter.
type PeripheralDeviceBuilder struct {
	profile            DeviceProfileConfig
	scanAdvertisements []blelib.Advertisement
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			RSSI:     -50,
			Services: []ServiceConfig{},
		},
	}
}

// WithName sets the advertised device name
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithRSSI sets the value returned by RSSI reads
func (b *PeripheralDeviceBuilder) WithRSSI(rssi int) *PeripheralDeviceBuilder {
	b.profile.RSSI = rssi
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithIncludedService marks another profile service as included by the last added service
func (b *PeripheralDeviceBuilder) WithIncludedService(uuid string) *PeripheralDeviceBuilder {
	svc := b.lastService("WithIncludedService")
	svc.Included = append(svc.Included, uuid)
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	svc := b.lastService("WithCharacteristic")
	svc.Characteristics = append(svc.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// WithDescriptor adds a descriptor to the last added characteristic
func (b *PeripheralDeviceBuilder) WithDescriptor(uuid string, value []byte) *PeripheralDeviceBuilder {
	svc := b.lastService("WithDescriptor")
	if len(svc.Characteristics) == 0 {
		panic("WithDescriptor: no characteristic added yet, call WithCharacteristic first")
	}
	chr := &svc.Characteristics[len(svc.Characteristics)-1]
	chr.Descriptors = append(chr.Descriptors, DescriptorConfig{UUID: uuid, Value: value})
	return b
}

func (b *PeripheralDeviceBuilder) lastService(caller string) *ServiceConfig {
	if len(b.profile.Services) == 0 {
		panic(caller + ": no service added yet, call WithService first")
	}
	return &b.profile.Services[len(b.profile.Services)-1]
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	config := DeviceProfileConfig{RSSI: b.profile.RSSI}
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithScanAdvertisements returns an AdvertisementArrayBuilder that will return this PeripheralDeviceBuilder on Build()
func (b *PeripheralDeviceBuilder) WithScanAdvertisements() *AdvertisementArrayBuilder[*PeripheralDeviceBuilder] {
	arrayBuilder := NewAdvertisementArrayBuilder[*PeripheralDeviceBuilder]()
	arrayBuilder.parent = b
	arrayBuilder.buildFunc = func(parent *PeripheralDeviceBuilder, ads []blelib.Advertisement) *PeripheralDeviceBuilder {
		parent.scanAdvertisements = append(parent.scanAdvertisements, ads...)
		return parent
	}
	return arrayBuilder
}

// GetServices returns the configured services
func (b *PeripheralDeviceBuilder) GetServices() []ServiceConfig {
	return b.profile.Services
}

// parseCharacteristicProperties converts a property string; empty means read,write,notify.
func parseCharacteristicProperties(props string) device.Property {
	if props == "" {
		return device.PropRead | device.PropWrite | device.PropNotify
	}
	return device.ParseProperties(props)
}

// Build creates a FakePeripheral with the configured profile.
// Register it with FakeCentral.AddPeripheral before use.
func (b *PeripheralDeviceBuilder) Build(id string) *FakePeripheral {
	p := &FakePeripheral{
		id:        id,
		name:      b.profile.Name,
		rssi:      b.profile.RSSI,
		behaviors: make(map[string]Behavior),
	}

	byUUID := make(map[string]*fakeService)
	for _, svcConfig := range b.profile.Services {
		svc := &fakeService{p: p, uuid: device.NormalizeUUID(svcConfig.UUID), primary: true}
		for _, charConfig := range svcConfig.Characteristics {
			chr := &fakeCharacteristic{
				svc:   svc,
				uuid:  device.NormalizeUUID(charConfig.UUID),
				props: parseCharacteristicProperties(charConfig.Properties),
				value: append([]byte(nil), charConfig.Value...),
			}
			for _, descConfig := range charConfig.Descriptors {
				chr.descs = append(chr.descs, &fakeDescriptor{
					chr:   chr,
					uuid:  device.NormalizeUUID(descConfig.UUID),
					value: device.DecodeDescriptorValue(descConfig.UUID, descConfig.Value),
				})
			}
			svc.chars = append(svc.chars, chr)
		}
		p.profile = append(p.profile, svc)
		byUUID[svc.uuid] = svc
	}

	for i, svcConfig := range b.profile.Services {
		for _, inc := range svcConfig.Included {
			included, ok := byUUID[device.NormalizeUUID(inc)]
			if !ok {
				panic("PeripheralDeviceBuilder.Build: included service " + inc + " is not in the profile")
			}
			p.profile[i].included = append(p.profile[i].included, included)
		}
	}
	return p
}

// BuildProfile creates the go-ble GATT tree for the configured profile.
func (b *PeripheralDeviceBuilder) BuildProfile() []*blelib.Service {
	var bleServices []*blelib.Service
	for _, svcConfig := range b.profile.Services {
		bleService := &blelib.Service{UUID: createMockUUID(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			bleChar := &blelib.Characteristic{
				UUID:     createMockUUID(charConfig.UUID),
				Property: blelib.Property(parseCharacteristicProperties(charConfig.Properties)),
				Value:    charConfig.Value,
			}
			for _, descConfig := range charConfig.Descriptors {
				bleChar.Descriptors = append(bleChar.Descriptors, &blelib.Descriptor{
					UUID:  createMockUUID(descConfig.UUID),
					Value: descConfig.Value,
				})
			}
			bleService.Characteristics = append(bleService.Characteristics, bleChar)
		}
		bleServices = append(bleServices, bleService)
	}
	return bleServices
}

// MockPeripheralDevice is a go-ble device mock wired to a single client mock.
type MockPeripheralDevice struct {
	Device  *mocks.MockDevice
	Client  *mocks.MockClient
	Profile []*blelib.Service

	disconnected chan struct{}
	once         sync.Once
}

// DropLink closes the client's Disconnected channel, as a link loss would.
func (m *MockPeripheralDevice) DropLink() {
	m.once.Do(func() { close(m.disconnected) })
}

// Characteristic finds a characteristic of the go-ble profile by UUIDs.
func (m *MockPeripheralDevice) Characteristic(serviceUUID, characteristicUUID string) *blelib.Characteristic {
	for _, svc := range m.Profile {
		if device.NormalizeUUID(svc.UUID.String()) != device.NormalizeUUID(serviceUUID) {
			continue
		}
		for _, c := range svc.Characteristics {
			if device.NormalizeUUID(c.UUID.String()) == device.NormalizeUUID(characteristicUUID) {
				return c
			}
		}
	}
	return nil
}

func matchesFilter(filter []blelib.UUID, u blelib.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if device.NormalizeUUID(f.String()) == device.NormalizeUUID(u.String()) {
			return true
		}
	}
	return false
}

// BuildDevice creates go-ble mocks serving the configured profile.
// Expectations may be overridden per test through the returned mocks.
func (b *PeripheralDeviceBuilder) BuildDevice() *MockPeripheralDevice {
	m := &MockPeripheralDevice{
		Device:       &mocks.MockDevice{},
		Client:       &mocks.MockClient{},
		Profile:      b.BuildProfile(),
		disconnected: make(chan struct{}),
	}
	mockDevice, mockClient := m.Device, m.Client

	mockDevice.On("Dial", mock.Anything, mock.Anything).Return(mockClient, nil)
	mockDevice.On("Stop").Return(nil)
	mockDevice.On("Scan", mock.Anything, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		handler := args.Get(2).(blelib.AdvHandler)
		for _, adv := range b.scanAdvertisements {
			handler(adv)
		}
	}).Return(nil)

	mockClient.On("Disconnected").Return((<-chan struct{})(m.disconnected))
	mockClient.On("CancelConnection").Return(nil).Run(func(mock.Arguments) { m.DropLink() })
	mockClient.On("ReadRSSI").Return(b.profile.RSSI)

	mockClient.On("DiscoverServices", mock.Anything).Return(func(filter []blelib.UUID) ([]*blelib.Service, error) {
		var out []*blelib.Service
		for _, svc := range m.Profile {
			if matchesFilter(filter, svc.UUID) {
				out = append(out, svc)
			}
		}
		return out, nil
	})
	mockClient.On("DiscoverIncludedServices", mock.Anything, mock.Anything).Return(func([]blelib.UUID, *blelib.Service) ([]*blelib.Service, error) {
		return nil, nil
	})
	mockClient.On("DiscoverCharacteristics", mock.Anything, mock.Anything).Return(func(filter []blelib.UUID, s *blelib.Service) ([]*blelib.Characteristic, error) {
		var out []*blelib.Characteristic
		for _, c := range s.Characteristics {
			if matchesFilter(filter, c.UUID) {
				out = append(out, c)
			}
		}
		return out, nil
	})
	mockClient.On("DiscoverDescriptors", mock.Anything, mock.Anything).Return(func(_ []blelib.UUID, c *blelib.Characteristic) ([]*blelib.Descriptor, error) {
		return c.Descriptors, nil
	})

	for _, svc := range m.Profile {
		for _, char := range svc.Characteristics {
			mockClient.On("Subscribe", char, mock.Anything, mock.Anything).Return(nil)
			mockClient.On("Unsubscribe", char, mock.Anything).Return(nil)
			mockClient.On("WriteCharacteristic", char, mock.Anything, mock.Anything).Return(nil)

			if char.Property&blelib.CharRead != 0 {
				mockClient.On("ReadCharacteristic", char).Return(char.Value, nil)
			} else {
				mockClient.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic does not support read"))
			}
			for _, desc := range char.Descriptors {
				mockClient.On("ReadDescriptor", desc).Return(desc.Value, nil)
				mockClient.On("WriteDescriptor", desc, mock.Anything).Return(nil)
			}
		}
	}
	return m
}
