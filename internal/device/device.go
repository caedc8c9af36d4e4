package device

// Attribute is anything in the GATT tree addressable by UUID.
// UUID returns the normalized form (see NormalizeUUID).
type Attribute interface {
	UUID() string
}

// Advertisement is a single advertising report seen during a scan.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []struct {
		UUID string
		Data []byte
	}

	Services() []string
	OverflowService() []string
	TxPowerLevel() int
	Connectable() bool
	SolicitedService() []string

	RSSI() int
	Addr() string
}

// Central is the directive side of the platform central manager.
//
// Directives never block. Results come back through the CentralDelegate
// installed with SetDelegate, always delivered on the dispatch queue the
// platform was created with.
type Central interface {
	State() ManagerState
	SetDelegate(d CentralDelegate)

	Scan(serviceUUIDs []string, allowDuplicates bool)
	StopScan()

	Connect(p Peripheral)
	CancelConnect(p Peripheral)

	// RetrievePeripherals returns the platform's live handles for the given identifiers.
	// Unknown identifiers are skipped.
	RetrievePeripherals(identifiers []string) []Peripheral
}

// CentralDelegate receives central manager events.
type CentralDelegate interface {
	DidUpdateState(c Central)
	WillRestoreState(c Central, peripherals []Peripheral)
	DidDiscoverPeripheral(c Central, p Peripheral, adv Advertisement, rssi int)
	DidConnectPeripheral(c Central, p Peripheral)
	DidFailToConnectPeripheral(c Central, p Peripheral, err error)
	DidDisconnectPeripheral(c Central, p Peripheral, err error)
}

// Peripheral is a platform device handle.
type Peripheral interface {
	Identifier() string
	Name() string
	State() PeripheralState
	Services() []Service
	SetDelegate(d PeripheralDelegate)

	ReadRSSI()
	DiscoverServices(serviceUUIDs []string)
	DiscoverIncludedServices(serviceUUIDs []string, svc Service)
	DiscoverCharacteristics(characteristicUUIDs []string, svc Service)
	DiscoverDescriptors(chr Characteristic)
	ReadCharacteristic(chr Characteristic)
	ReadDescriptor(dsc Descriptor)
	WriteCharacteristic(data []byte, chr Characteristic, withResponse bool)
	WriteDescriptor(data []byte, dsc Descriptor)
	SetNotify(enabled bool, chr Characteristic)
}

// PeripheralDelegate receives per-peripheral GATT events.
type PeripheralDelegate interface {
	DidDiscoverServices(p Peripheral, err error)
	DidDiscoverIncludedServices(p Peripheral, svc Service, err error)
	DidDiscoverCharacteristics(p Peripheral, svc Service, err error)
	DidDiscoverDescriptors(p Peripheral, chr Characteristic, err error)
	DidUpdateValueForCharacteristic(p Peripheral, chr Characteristic, err error)
	DidUpdateValueForDescriptor(p Peripheral, dsc Descriptor, err error)
	DidWriteValueForCharacteristic(p Peripheral, chr Characteristic, err error)
	DidWriteValueForDescriptor(p Peripheral, dsc Descriptor, err error)
	DidUpdateNotificationState(p Peripheral, chr Characteristic, err error)
	DidReadRSSI(p Peripheral, rssi int, err error)
	DidUpdateName(p Peripheral)
	DidModifyServices(p Peripheral, invalidated []Service)
}

// Service is a discovered GATT service.
type Service interface {
	Attribute
	Peripheral() Peripheral
	IsPrimary() bool
	Characteristics() []Characteristic
	IncludedServices() []Service
}

// Characteristic is a discovered GATT characteristic.
// Value holds the last value read or notified; last write wins.
type Characteristic interface {
	Attribute
	Service() Service
	Properties() Property
	Value() []byte
	IsNotifying() bool
	Descriptors() []Descriptor
}

// Descriptor is a discovered GATT descriptor.
// Value is either raw bytes or a typed value decoded by the platform;
// use DescriptorBytes to get the wire form.
type Descriptor interface {
	Attribute
	Characteristic() Characteristic
	Value() any
}
