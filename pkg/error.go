package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates the device rejected a request with a STALL handshake.
	ErrStall = errors.New("endpoint stalled")

	// ErrProtocol indicates a protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrNotConfigured indicates the device is not configured.
	ErrNotConfigured = errors.New("device not configured")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidState indicates an invalid device state for the operation.
	ErrInvalidState = errors.New("invalid device state")

	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrDescriptorTooShort indicates the descriptor data is too short.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates the descriptor type does not match expected.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")
)

// Startup errors. The image halts before the executor runs.
var (
	// ErrDoubleInit indicates a one-shot resource was initialized twice.
	ErrDoubleInit = errors.New("resource already initialized")

	// ErrDescriptorOverflow indicates descriptor content exceeds its reserved buffer.
	ErrDescriptorOverflow = errors.New("descriptor buffer overflow")

	// ErrInvalidConfig indicates the device configuration failed validation.
	ErrInvalidConfig = errors.New("invalid device configuration")
)

// Runtime errors.
var (
	// ErrTransferInProgress indicates a transfer was submitted on an endpoint
	// that has not completed its previous transfer.
	ErrTransferInProgress = errors.New("transfer in progress")

	// ErrNoResources indicates a fixed-capacity table is full.
	ErrNoResources = errors.New("no resources available")

	// ErrAlreadyRunning indicates the executor is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrTaskExited indicates a task returned; tasks must run forever.
	ErrTaskExited = errors.New("task exited")

	// ErrSignalBusy indicates a second task attempted to await a signal
	// that already has a waiter.
	ErrSignalBusy = errors.New("signal already awaited")
)

// TransferStatus represents the completion status of a USB transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess   TransferStatus = iota // Transfer completed successfully
	TransferStatusError                           // Transfer failed with error
	TransferStatusStall                           // Endpoint stalled
	TransferStatusCancelled                       // Transfer was aborted by a bus reset
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error returns the corresponding error for the transfer status.
func (s TransferStatus) Error() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusCancelled:
		return ErrInvalidState
	default:
		return ErrProtocol
	}
}
