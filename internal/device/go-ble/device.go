// Package goble implements the delegate-based platform contract of package device
// on top of github.com/go-ble/ble.
//
// go-ble exposes blocking calls. Every directive here runs the blocking call on a
// worker goroutine and reports the outcome by posting the matching delegate
// callback onto the dispatch queue, the way CoreBluetooth delivers its delegate
// calls on the queue the manager was created with.
package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Device is the part of ble.Device the platform uses.
type Device interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Dial(ctx context.Context, a ble.Addr) (Client, error)
	Stop() error
}

// Client is the part of ble.Client the platform uses.
type Client interface {
	Addr() ble.Addr
	DiscoverServices(filter []ble.UUID) ([]*ble.Service, error)
	DiscoverIncludedServices(filter []ble.UUID, s *ble.Service) ([]*ble.Service, error)
	DiscoverCharacteristics(filter []ble.UUID, s *ble.Service) ([]*ble.Characteristic, error)
	DiscoverDescriptors(filter []ble.UUID, c *ble.Characteristic) ([]*ble.Descriptor, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	WriteDescriptor(d *ble.Descriptor, value []byte) error
	ReadRSSI() int
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// DeviceFactory creates the go-ble device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, err
	}
	return &bleDevice{Device: dev}, nil
}

// bleDevice narrows ble.Device.Dial to return Client.
type bleDevice struct {
	ble.Device
}

func (d *bleDevice) Dial(ctx context.Context, a ble.Addr) (Client, error) {
	cln, err := d.Device.Dial(ctx, a)
	if err != nil {
		return nil, err
	}
	return cln, nil
}
