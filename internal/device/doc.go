// Package device defines the delegate-style BLE central platform the request engine
// drives, together with the value types shared across layers.
//
// The platform contract mirrors a callback-based central API:
//   - Central and Peripheral expose non-blocking directives
//   - CentralDelegate and PeripheralDelegate receive their results
//   - all delegate calls are delivered on a single dispatch queue
//
// The package also provides attribute paths (Path), the discovered-attribute
// cache partition (Partition), UUID normalization and the closed error set
// reported to callers.
package device
