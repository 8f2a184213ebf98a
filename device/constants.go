package device

import "fmt"

// Fixed capacities.
const (
	// MaxClassEndpoints is the maximum number of data endpoints a class may
	// activate.
	MaxClassEndpoints = 4

	// MaxAddress is the highest assignable device address.
	MaxAddress = 127

	// ConfigurationValue is the bConfigurationValue of the single configuration.
	ConfigurationValue = 1
)

// String descriptor indices.
const (
	StringIndexLangID       = 0
	StringIndexManufacturer = 1
	StringIndexProduct      = 2
	StringIndexSerialNumber = 3
)

// Device states as defined in USB 2.0 specification section 9.1. Attached,
// Powered and Suspended are not tracked: the stack starts in Default and
// suspend does not change the enumeration state.
const (
	StateDefault    State = 0 // Device has been reset, using default address
	StateAddressed  State = 1 // Device has been assigned a unique address
	StateConfigured State = 2 // Device is configured and operational
)

// State represents USB device enumeration state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateDefault:
		return "Default"
	case StateAddressed:
		return "Addressed"
	case StateConfigured:
		return "Configured"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
