package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blecb/internal/device"
	goble "github.com/srg/blecb/internal/device/go-ble"
	"github.com/srg/blecb/internal/dispatch"
)

// CentralFactory creates the platform central delivering its delegate calls on q.
// The returned central is initializing; its state settles through DidUpdateState.
// This is a variable so that it can be overridden in tests.
var CentralFactory = func(q *dispatch.Queue, cacheSize int, logger *logrus.Logger) (device.Central, error) {
	c, err := goble.NewCentral(q, cacheSize, logger)
	if err != nil {
		return nil, err
	}
	c.Init()
	return c, nil
}

// NewCentral creates the platform central with CentralFactory.
func NewCentral(q *dispatch.Queue, cacheSize int, logger *logrus.Logger) (device.Central, error) {
	return CentralFactory(q, cacheSize, logger)
}
