package device

import (
	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// Class is a USB class function registered with the device.
//
// Every method is called from the USB task only. HandleControl, Reset and
// Configure must not perform I/O; Start and TransferComplete may use the
// transport passed to Bind.
type Class interface {
	// WriteDescriptors appends the function's interface, class-specific and
	// endpoint descriptors, numbering interfaces from firstInterface.
	// Returns the number of interfaces written.
	WriteDescriptors(w *DescriptorWriter, firstInterface uint8) (uint8, error)

	// OwnsInterface reports whether the interface number belongs to the
	// function.
	OwnsInterface(iface uint8) bool

	// HandleControl handles a class-specific request addressed to one of the
	// function's interfaces. data holds the OUT data stage; buf is scratch
	// space for an IN response. handled is false for unrecognized requests.
	HandleControl(setup *SetupPacket, data, buf []byte) (resp Response, handled bool)

	// Endpoint returns the state of the function's endpoint at address, or
	// nil if it does not own one.
	Endpoint(address uint8) *EndpointState

	// EndpointConfigs writes the function's endpoint configurations into out
	// and returns how many were written.
	EndpointConfigs(out []hal.EndpointConfig) int

	// Bind gives the function the transport used for data transfers.
	Bind(t hal.Transport)

	// Reset restores power-on class state after a bus reset.
	Reset()

	// Configure activates or deactivates the function's endpoints.
	Configure(active bool)

	// Start arms the function's OUT endpoints after the transport has
	// configured them.
	Start() error

	// HaltChanged reports that the host set or cleared the halt feature on
	// one of the function's endpoints and the transport has applied it. A
	// function re-arms an idle OUT endpoint when its halt is cleared.
	HaltChanged(address uint8, halted bool)

	// TransferComplete reports completion of a data transfer on one of the
	// function's endpoints.
	TransferComplete(address uint8, length int, status pkg.TransferStatus)
}
