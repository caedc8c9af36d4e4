package central

import (
	"time"

	"github.com/mcuadros/go-defaults"
)

// Operation names reported in TimeoutError and PlatformError.
const (
	OpConnect                  = "connect peripheral"
	OpDisconnect               = "disconnect peripheral"
	OpReadRSSI                 = "read RSSI"
	OpDiscoverServices         = "discover services"
	OpDiscoverIncludedServices = "discover included services"
	OpDiscoverCharacteristics  = "discover characteristics"
	OpDiscoverDescriptors      = "discover descriptors"
	OpReadCharacteristic       = "read characteristic"
	OpWriteCharacteristic      = "write characteristic"
	OpUpdateNotificationState  = "update notification state"
	OpReadDescriptor           = "read descriptor"
	OpWriteDescriptor          = "write descriptor"
)

// Options configures a Coordinator.
type Options struct {
	// RequestTimeout bounds every GATT request unless overridden per call.
	RequestTimeout time.Duration `default:"10s"`

	// ConnectTimeout bounds connect and disconnect requests unless overridden per call.
	ConnectTimeout time.Duration `default:"10s"`

	// AllowDuplicates asks the platform to report every advertisement, not just the first per device.
	AllowDuplicates bool `default:"false"`
}

// DefaultOptions returns Options with every field set to its default.
func DefaultOptions() Options {
	var o Options
	defaults.SetDefaults(&o)
	return o
}

// CallOption customizes a single request.
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the timeout of one request and of the dependency steps it triggers.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

func resolveCallOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o callOptions) requestTimeout(base Options) time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return base.RequestTimeout
}

func (o callOptions) connectTimeout(base Options) time.Duration {
	if o.timeout > 0 {
		return o.timeout
	}
	return base.ConnectTimeout
}
