package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blecb/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return int(a.adv.TxPowerLevel()) }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if addr := a.adv.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

func (a *BLEAdvertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	bleServiceData := a.adv.ServiceData()
	result := make([]struct {
		UUID string
		Data []byte
	}, len(bleServiceData))
	for i, sd := range bleServiceData {
		result[i].UUID = device.NormalizeUUID(sd.UUID.String())
		result[i].Data = sd.Data
	}
	return result
}

func (a *BLEAdvertisement) Services() []string {
	return uuidStrings(a.adv.Services())
}

func (a *BLEAdvertisement) OverflowService() []string {
	return uuidStrings(a.adv.OverflowService())
}

func (a *BLEAdvertisement) SolicitedService() []string {
	return uuidStrings(a.adv.SolicitedService())
}

// Unwrap returns the underlying ble.Advertisement
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}

// advertises reports whether adv lists any of the normalized service uuids.
func advertises(adv ble.Advertisement, uuids []string) bool {
	if len(uuids) == 0 {
		return true
	}
	for _, s := range adv.Services() {
		n := device.NormalizeUUID(s.String())
		for _, u := range uuids {
			if n == u {
				return true
			}
		}
	}
	return false
}

func uuidStrings(uuids []ble.UUID) []string {
	result := make([]string, len(uuids))
	for i, u := range uuids {
		result[i] = device.NormalizeUUID(u.String())
	}
	return result
}

// bleUUIDs converts normalized uuids to go-ble filters. nil means no filter.
func bleUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, u := range uuids {
		parsed, err := ble.Parse(u)
		if err != nil {
			return nil, err
		}
		out = append(out, parsed)
	}
	return out, nil
}
