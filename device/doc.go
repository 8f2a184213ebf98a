// Package device implements a static-buffer USB 2.0 full-speed device stack.
//
// It is platform-agnostic and drives hardware through the [hal.Transport]
// interface defined in [github.com/ardnew/softusb/device/hal]. The transport
// never blocks: it latches bus events and raises an executor signal, and the
// device task drains them when it next runs.
//
// # Architecture
//
//   - [Config] holds the device identity, loaded from YAML at startup
//   - [Builder] writes the descriptor set into fixed buffers, once
//   - [Device] is the Default → Addressed → Configured state machine
//   - [Stack] is the executor task that moves bytes between the transport
//     and the state machine
//   - [Class] is implemented by the single class function
//     ([github.com/ardnew/softusb/device/class/cdc])
//
// # Device States
//
//	Default → Addressed → Configured
//
// A bus reset returns the device to Default from any state. SET_ADDRESS and
// GET_DESCRIPTOR are served in every state; the remaining chapter 9 requests
// stall in Default. Class requests reach the function only when Configured.
//
// # Static Storage
//
// Nothing is allocated after startup. Descriptors are serialized with
// MarshalTo into arena-reserved buffers by a bounded [DescriptorWriter];
// a descriptor that does not fit fails the build with
// [pkg.ErrDescriptorOverflow] and leaves every buffer zeroed. Control
// responses reference the descriptor buffers or the control buffer.
//
// # Example
//
//	b := device.NewBuilder(cfg, device.Buffers{...})
//	acm, _ := cdc.New(b, state, 64)
//	desc, err := b.Build()
//	if err != nil {
//	    halt(err)
//	}
//	dev := device.NewDevice(desc)
//	exec.Spawn(device.NewStack(dev, transport, exec.NewSignal()))
//
// An in-memory transport for tests and the hosted image is available in
// [github.com/ardnew/softusb/device/hal/sim].
package device
