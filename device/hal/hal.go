package hal

import "github.com/ardnew/softusb/pkg"

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// EndpointConfig describes an endpoint configuration for the transport.
// This is a minimal, platform-agnostic representation used to configure
// hardware endpoints when a configuration is activated.
type EndpointConfig struct {
	Address       uint8  // Endpoint address including direction bit
	Attributes    uint8  // Transfer type and sync/usage flags
	MaxPacketSize uint16 // Maximum packet size
	Interval      uint8  // Polling interval for interrupt endpoints
}

// Number returns the endpoint number (0-15).
func (e *EndpointConfig) Number() uint8 {
	return e.Address & 0x0F
}

// IsIn returns true if this is an IN endpoint (device to host).
func (e *EndpointConfig) IsIn() bool {
	return e.Address&0x80 != 0
}

// TransferType returns the transfer type (control, bulk, interrupt, isochronous).
func (e *EndpointConfig) TransferType() uint8 {
	return e.Attributes & 0x03
}

// SetupPacket represents a USB SETUP packet as latched by the controller.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// EventType identifies a bus event latched by the controller.
type EventType uint8

// Bus events.
const (
	EventNone             EventType = iota
	EventReset                      // Bus reset; Speed is valid
	EventSetup                      // SETUP received on EP0; Setup is valid
	EventTransferComplete           // Data endpoint transfer finished; Endpoint, Length, Status are valid
	EventSuspend                    // Bus idle for 3 ms
	EventResume                     // Bus activity after suspend
)

// String returns the event name.
func (t EventType) String() string {
	switch t {
	case EventReset:
		return "reset"
	case EventSetup:
		return "setup"
	case EventTransferComplete:
		return "transfer-complete"
	case EventSuspend:
		return "suspend"
	case EventResume:
		return "resume"
	default:
		return "none"
	}
}

// Event is one bus event. Events are copied into caller storage by
// [Transport.PollEvent].
type Event struct {
	Type     EventType
	Speed    Speed
	Setup    SetupPacket
	Endpoint uint8
	Length   int
	Status   pkg.TransferStatus
}

// Waker is raised by the transport from interrupt context whenever an event
// is latched. An executor signal satisfies it.
type Waker interface {
	Raise()
}

// Transport is the peripheral-level primitive the device stack drives.
//
// It never blocks. Bus activity is latched into an event queue and announced
// through the [Waker]; the device task drains the queue with PollEvent when it
// resumes. Data endpoint transfers are started here and complete
// asynchronously with an [EventTransferComplete].
type Transport interface {
	// SetWaker registers the waker raised for every latched event.
	SetWaker(w Waker)

	// PollEvent copies the oldest pending event into out.
	// Returns false if the queue is empty.
	PollEvent(out *Event) bool

	// Control Endpoint (EP0) Operations

	// ReadEP0 copies the OUT data stage of the current SETUP into buf.
	// Returns the number of bytes copied.
	ReadEP0(buf []byte) (int, error)

	// WriteEP0 sends one IN packet of the current control transfer. An
	// empty slice sends a zero-length packet.
	WriteEP0(data []byte) error

	// AckEP0 completes the status stage of the current control transfer.
	AckEP0() error

	// StallEP0 rejects the current control transfer.
	StallEP0() error

	// SetAddress sets the device address in hardware.
	// Called after the status stage of SET_ADDRESS.
	SetAddress(address uint8) error

	// ConfigureEndpoints configures hardware endpoints for the active
	// configuration. Pass nil to unconfigure all data endpoints.
	ConfigureEndpoints(endpoints []EndpointConfig) error

	// Data Endpoint Operations

	// StartIn queues data for transmission on an IN endpoint. The transport
	// owns data until the matching EventTransferComplete.
	StartIn(address uint8, data []byte) error

	// StartOut arms an OUT endpoint to receive into buf. The transport owns
	// buf until the matching EventTransferComplete, whose Length reports how
	// many bytes arrived.
	StartOut(address uint8, buf []byte) error

	// Stall stalls the specified endpoint.
	Stall(address uint8) error

	// ClearStall clears a stall condition on the specified endpoint.
	ClearStall(address uint8) error
}
