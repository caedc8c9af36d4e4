package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/blecb/internal/device"
	goble "github.com/srg/blecb/internal/device/go-ble"
	"github.com/srg/blecb/internal/testutils/mocks"
)

type advField uint8

const (
	advName advField = 1 << iota
	advAddress
	advRSSI
	advServices
	advManufacturerData
	advServiceData
	advTxPower
	advConnectable
)

// AdvertisementBuilder builds mocked go-ble advertisements.
// Only fields that were configured get a mock expectation, so a getter the code
// under test was not supposed to call panics.
type AdvertisementBuilder struct {
	set         advField
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	serviceData map[string][]byte
	txPower     int
	connectable bool
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{serviceData: make(map[string][]byte)}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name, b.set = name, b.set|advName
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address, b.set = addr, b.set|advAddress
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi, b.set = rssi, b.set|advRSSI
	return b
}

// WithServices sets the advertised service UUIDs, in any form ble.MustParse accepts.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services, b.set = uuids, b.set|advServices
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData, b.set = data, b.set|advManufacturerData
	return b
}

func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.serviceData[uuid] = data
	b.set |= advServiceData
	return b
}

func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower, b.set = power, b.set|advTxPower
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable, b.set = c, b.set|advConnectable
	return b
}

func (b *AdvertisementBuilder) has(f advField) bool { return b.set&f != 0 }

// Build creates a MockAdvertisement implementing ble.Advertisement.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	if b.has(advAddress) {
		addr := &mocks.MockAddr{}
		addr.On("String").Return(b.address)
		adv.On("Addr").Return(addr)
	}
	if b.has(advName) {
		adv.On("LocalName").Return(b.name)
	}
	if b.has(advRSSI) {
		adv.On("RSSI").Return(b.rssi)
	}
	if b.has(advServices) {
		uuids := make([]ble.UUID, 0, len(b.services))
		for _, s := range b.services {
			uuids = append(uuids, ble.MustParse(s))
		}
		adv.On("Services").Return(uuids)
	}
	if b.has(advManufacturerData) {
		adv.On("ManufacturerData").Return(b.manufData)
	}
	if b.has(advServiceData) {
		var sd []ble.ServiceData
		for uuid, data := range b.serviceData {
			sd = append(sd, ble.ServiceData{UUID: ble.MustParse(uuid), Data: data})
		}
		adv.On("ServiceData").Return(sd)
	}
	if b.has(advTxPower) {
		adv.On("TxPowerLevel").Return(b.txPower)
	}
	if b.has(advConnectable) {
		adv.On("Connectable").Return(b.connectable)
	}
	return adv
}

// BuildAdvertisement wraps the built mock into a device.Advertisement,
// for feeding FakeCentral.Advertise.
func (b *AdvertisementBuilder) BuildAdvertisement() device.Advertisement {
	return goble.NewBLEAdvertisement(b.Build())
}

// AdvertisementArrayBuilder collects advertisements and hands them to its parent
// builder on Build. T is []ble.Advertisement when used standalone.
//
//	ads := NewAdvertisementArrayBuilder[[]ble.Advertisement]().
//	    WithAdvertisements(
//	        NewAdvertisementBuilder().WithName("Battery").WithAddress("AA:BB:CC:DD:EE:FF").Build(),
//	    ).
//	    Build()
type AdvertisementArrayBuilder[T any] struct {
	advertisements []ble.Advertisement
	parent         T
	buildFunc      func(T, []ble.Advertisement) T
}

func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{}
}

func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...ble.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// Build returns the parent when one is attached, otherwise the advertisements themselves.
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	var result any = ab.advertisements
	return result.(T)
}
