package device

import (
	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00 // Control transfer
	EndpointTypeIsochronous = 0x01 // Isochronous transfer
	EndpointTypeBulk        = 0x02 // Bulk transfer
	EndpointTypeInterrupt   = 0x03 // Interrupt transfer
)

// Endpoint directions.
const (
	EndpointDirectionOut = 0x00 // Host to device
	EndpointDirectionIn  = 0x80 // Device to host
)

// EndpointState tracks one endpoint owned by the device or a class.
//
// The busy flag enforces one transfer in flight: Begin fails with
// pkg.ErrTransferInProgress until Complete is called from the transfer
// completion event. It is only touched from the USB task, so it needs no
// lock.
type EndpointState struct {
	Address       uint8  // Endpoint address including direction
	Attributes    uint8  // Transfer type
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval (interrupt)

	busy   bool
	halted bool
}

// Number returns the endpoint number (0-15).
func (e *EndpointState) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointState) IsIn() bool {
	return e.Address&EndpointDirectionIn != 0
}

// TransferType returns the transfer type (Control, Bulk, or Interrupt).
func (e *EndpointState) TransferType() uint8 {
	return e.Attributes & 0x03
}

// Begin marks a transfer as started. Returns pkg.ErrStall if the endpoint is
// halted and pkg.ErrTransferInProgress if a transfer is already in flight.
func (e *EndpointState) Begin() error {
	if e.halted {
		return pkg.ErrStall
	}
	if e.busy {
		return pkg.ErrTransferInProgress
	}
	e.busy = true
	return nil
}

// Abort clears the busy flag after a transfer failed to start.
func (e *EndpointState) Abort() {
	e.busy = false
}

// Complete marks the in-flight transfer as finished.
func (e *EndpointState) Complete() {
	if !e.busy {
		pkg.LogWarn(pkg.ComponentEndpoint, "completion without transfer", "address", e.Address)
	}
	e.busy = false
}

// Busy reports whether a transfer is in flight.
func (e *EndpointState) Busy() bool {
	return e.busy
}

// SetHalted sets or clears the endpoint halt feature.
func (e *EndpointState) SetHalted(halted bool) {
	e.halted = halted
}

// Halted reports whether the endpoint is halted.
func (e *EndpointState) Halted() bool {
	return e.halted
}

// Reset returns the endpoint to idle and clears any halt.
func (e *EndpointState) Reset() {
	e.busy = false
	e.halted = false
}

// Config returns the transport configuration for the endpoint.
func (e *EndpointState) Config() hal.EndpointConfig {
	return hal.EndpointConfig{
		Address:       e.Address,
		Attributes:    e.Attributes,
		MaxPacketSize: e.MaxPacketSize,
		Interval:      e.Interval,
	}
}

// Descriptor returns the endpoint descriptor.
func (e *EndpointState) Descriptor() EndpointDescriptor {
	return EndpointDescriptor{
		EndpointAddress: e.Address,
		Attributes:      e.Attributes,
		MaxPacketSize:   e.MaxPacketSize,
		Interval:        e.Interval,
	}
}
