// Package hal defines the transport interface between the USB device stack
// and the USB controller.
//
// The transport is the only part of the stack that touches the controller.
// It is event driven and never blocks: interrupts latch bus events into a
// queue and raise a [Waker], and the device task drains that queue the next
// time the executor resumes it. Control transfers are driven one packet at a
// time on EP0; data endpoint transfers are started and complete
// asynchronously.
//
// # Interface Overview
//
// The [Transport] interface covers:
//
//   - Event delivery: bus reset, SETUP, transfer completion, suspend/resume
//   - Control endpoint (EP0) data, status and stall handshakes
//   - Address assignment and endpoint configuration
//   - Data endpoint IN/OUT transfers and halt
//
// # Interrupt Context
//
// Implementations call [Waker.Raise] from interrupt context. They must not
// call back into the device stack; the stack only observes events from its
// own task.
//
// # Implementing a Transport
//
//  1. Latch reset, SETUP and completion interrupts into a fixed queue
//  2. Raise the registered waker after each latched event
//  3. Implement EP0 packet I/O against the controller's control buffers
//  4. Hand StartIn/StartOut buffers to the controller's DMA engine
//
// An in-memory transport with a scripted host is available in
// [github.com/ardnew/softusb/device/hal/sim].
package hal
