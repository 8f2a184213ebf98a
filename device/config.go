package device

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"

	"github.com/ardnew/softusb/pkg"
)

// Config holds the device identity and power settings. It is loaded and
// validated once at startup and read-only afterwards.
type Config struct {
	VendorID       uint16 `yaml:"vendor_id"`
	ProductID      uint16 `yaml:"product_id"`
	DeviceRelease  uint16 `yaml:"device_release"`
	Manufacturer   string `yaml:"manufacturer"`
	Product        string `yaml:"product"`
	SerialNumber   string `yaml:"serial_number"`
	MaxPower       uint8  `yaml:"max_power"` // 2 mA units
	MaxPacketSize0 uint8  `yaml:"max_packet_size_0"`
	SelfPowered    bool   `yaml:"self_powered"`
	RemoteWakeup   bool   `yaml:"remote_wakeup"`
	BOS            bool   `yaml:"bos"`
}

// Limits for Config fields.
const (
	MaxPowerUnits   = 250 // 500 mA
	MaxStringLength = (MaxStringDescriptorSize - 2) / 2
)

var validMaxPacketSize0 = []uint8{8, 16, 32, 64}

// DefaultConfig returns the configuration of the serial example device.
func DefaultConfig() Config {
	return Config{
		VendorID:       0xc0de,
		ProductID:      0xcafe,
		DeviceRelease:  0x0100,
		Manufacturer:   "Embassy",
		Product:        "USB-serial example",
		SerialNumber:   "12345678",
		MaxPower:       100,
		MaxPacketSize0: 64,
	}
}

// LoadConfig decodes a YAML document over DefaultConfig and validates the
// result. Fields absent from the document keep their defaults; unknown
// fields are rejected.
func LoadConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", pkg.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field and reports all violations together.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if !slices.Contains(validMaxPacketSize0, c.MaxPacketSize0) {
		errs = multierror.Append(errs, fmt.Errorf("%w: max_packet_size_0 %d not one of %v",
			pkg.ErrInvalidConfig, c.MaxPacketSize0, validMaxPacketSize0))
	}
	if c.MaxPower > MaxPowerUnits {
		errs = multierror.Append(errs, fmt.Errorf("%w: max_power %d exceeds %d",
			pkg.ErrInvalidConfig, c.MaxPower, MaxPowerUnits))
	}
	for _, f := range []struct {
		name, value string
	}{
		{"manufacturer", c.Manufacturer},
		{"product", c.Product},
		{"serial_number", c.SerialNumber},
	} {
		if !utf8.ValidString(f.value) {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s is not valid UTF-8", pkg.ErrInvalidConfig, f.name))
			continue
		}
		if n := (StringDescriptorLen(f.value) - 2) / 2; n > MaxStringLength {
			errs = multierror.Append(errs, fmt.Errorf("%w: %s has %d UTF-16 units, limit %d",
				pkg.ErrInvalidConfig, f.name, n, MaxStringLength))
		}
	}

	return errs.ErrorOrNil()
}

// Attributes returns bmAttributes for the configuration descriptor.
func (c *Config) Attributes() uint8 {
	attr := uint8(ConfigAttrBusPowered)
	if c.SelfPowered {
		attr |= ConfigAttrSelfPowered
	}
	if c.RemoteWakeup {
		attr |= ConfigAttrRemoteWakeup
	}
	return attr
}

// StringAt returns the configured string for a string descriptor index.
func (c *Config) StringAt(index uint8) (string, bool) {
	switch index {
	case StringIndexManufacturer:
		return c.Manufacturer, c.Manufacturer != ""
	case StringIndexProduct:
		return c.Product, c.Product != ""
	case StringIndexSerialNumber:
		return c.SerialNumber, c.SerialNumber != ""
	default:
		return "", false
	}
}
