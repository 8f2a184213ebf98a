package sim

import (
	"errors"
	"unicode/utf16"

	"golang.org/x/exp/slices"

	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// Enumeration errors.
var (
	ErrEnumerationFailed = errors.New("enumeration failed")
	ErrNoResponse        = errors.New("device did not complete control transfer")
)

// Standard request fields used by the host driver.
const (
	reqDirIn          = 0x80
	reqGetDescriptor  = 0x06
	reqSetAddress     = 0x05
	reqSetConfig      = 0x09
	descDevice        = 0x01
	descConfiguration = 0x02
	descString        = 0x03
	descBOS           = 0x0F
	langIDUSEnglish   = 0x0409
	deviceDescSize    = 18
	configHeaderSize  = 9
	bosHeaderSize     = 5
)

// maxPumps bounds how many times the host lets the device run while waiting
// for a single control transfer.
const maxPumps = 64

// Host drives control transfers against a [Bus] the way a host controller
// would during enumeration.
//
// pump lets the device side make progress: in tests it polls the executor
// once; in a hosted image where the executor runs on its own goroutine it
// waits for the bus to report completion.
type Host struct {
	bus  *Bus
	pump func() error
}

// Enumeration is what the host learned about the device.
type Enumeration struct {
	Address        uint8
	MaxPacketSize0 uint8
	VendorID       uint16
	ProductID      uint16
	DeviceClass    uint8
	USBVersion     uint16
	Device         []byte
	Configuration  []byte
	BOS            []byte
	Manufacturer   string
	Product        string
	SerialNumber   string
}

// NewHost creates a host driver for bus.
func NewHost(bus *Bus, pump func() error) *Host {
	return &Host{bus: bus, pump: pump}
}

// Control performs one control transfer. out is the OUT data stage; IN data
// is copied into in. Returns pkg.ErrStall if the device stalled.
func (h *Host) Control(setup hal.SetupPacket, out, in []byte) (int, error) {
	if err := h.bus.Setup(setup, out); err != nil {
		return 0, err
	}
	for i := 0; ; i++ {
		status, data := h.bus.ControlResult()
		switch status {
		case ControlAcked:
			return copy(in, data), nil
		case ControlStalled:
			return 0, pkg.ErrStall
		}
		if i == maxPumps {
			return 0, ErrNoResponse
		}
		if err := h.pump(); err != nil {
			return 0, err
		}
	}
}

// GetDescriptor reads a descriptor into buf.
func (h *Host) GetDescriptor(typ, index uint8, langID uint16, buf []byte) (int, error) {
	setup := hal.SetupPacket{
		RequestType: reqDirIn,
		Request:     reqGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Index:       langID,
		Length:      uint16(len(buf)),
	}
	return h.Control(setup, nil, buf)
}

// SetAddress assigns the device address.
func (h *Host) SetAddress(address uint8) error {
	_, err := h.Control(hal.SetupPacket{Request: reqSetAddress, Value: uint16(address)}, nil, nil)
	return err
}

// SetConfiguration selects a configuration; zero deconfigures.
func (h *Host) SetConfiguration(value uint8) error {
	_, err := h.Control(hal.SetupPacket{Request: reqSetConfig, Value: uint16(value)}, nil, nil)
	return err
}

// Enumerate resets the bus and walks the device through address assignment,
// descriptor retrieval and configuration 1.
func (h *Host) Enumerate(address uint8) (*Enumeration, error) {
	pkg.LogDebug(pkg.ComponentHAL, "starting enumeration", "address", address)

	// The reset is latched ahead of the first SETUP, so the device sees it
	// before any request.
	h.bus.Reset()

	var buf [MaxControlData]byte
	e := &Enumeration{Address: address}

	// Read the first 8 bytes to learn bMaxPacketSize0.
	n, err := h.GetDescriptor(descDevice, 0, 0, buf[:8])
	if err != nil {
		return nil, err
	}
	if n < 8 {
		return nil, ErrEnumerationFailed
	}
	e.MaxPacketSize0 = buf[7]

	if err := h.SetAddress(address); err != nil {
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentHAL, "assigned address", "address", address)

	n, err = h.GetDescriptor(descDevice, 0, 0, buf[:deviceDescSize])
	if err != nil {
		return nil, err
	}
	if n < deviceDescSize {
		return nil, ErrEnumerationFailed
	}
	e.Device = slices.Clone(buf[:n])
	e.USBVersion = le16(e.Device[2:])
	e.DeviceClass = e.Device[4]
	e.VendorID = le16(e.Device[8:])
	e.ProductID = le16(e.Device[10:])

	// Configuration header first, then the whole tree.
	n, err = h.GetDescriptor(descConfiguration, 0, 0, buf[:configHeaderSize])
	if err != nil {
		return nil, err
	}
	if n < configHeaderSize {
		return nil, ErrEnumerationFailed
	}
	total := int(le16(buf[2:]))
	if total > len(buf) {
		total = len(buf)
	}
	n, err = h.GetDescriptor(descConfiguration, 0, 0, buf[:total])
	if err != nil {
		return nil, err
	}
	e.Configuration = slices.Clone(buf[:n])

	if e.USBVersion >= 0x0201 {
		if n, err = h.GetDescriptor(descBOS, 0, 0, buf[:bosHeaderSize]); err == nil && n == bosHeaderSize {
			total = int(le16(buf[2:]))
			if n, err = h.GetDescriptor(descBOS, 0, 0, buf[:total]); err == nil {
				e.BOS = slices.Clone(buf[:n])
			}
		}
	}

	if err := h.readStrings(e, buf[:]); err != nil {
		// Non-fatal, continue without strings
		pkg.LogDebug(pkg.ComponentHAL, "string descriptor read failed", "error", err)
	}

	if err := h.SetConfiguration(1); err != nil {
		return nil, err
	}

	pkg.LogInfo(pkg.ComponentHAL, "device enumerated",
		"vendorID", e.VendorID,
		"productID", e.ProductID,
		"product", e.Product)
	return e, nil
}

func (h *Host) readStrings(e *Enumeration, buf []byte) error {
	n, err := h.GetDescriptor(descString, 0, 0, buf)
	if err != nil {
		return err
	}
	if n < 4 || le16(buf[2:]) != langIDUSEnglish {
		return ErrEnumerationFailed
	}

	read := func(index uint8) (string, error) {
		if index == 0 {
			return "", nil
		}
		n, err := h.GetDescriptor(descString, index, langIDUSEnglish, buf)
		if err != nil {
			return "", err
		}
		return DecodeString(buf[:n]), nil
	}

	if e.Manufacturer, err = read(e.Device[14]); err != nil {
		return err
	}
	if e.Product, err = read(e.Device[15]); err != nil {
		return err
	}
	e.SerialNumber, err = read(e.Device[16])
	return err
}

// DecodeString decodes a string descriptor's UTF-16LE payload.
func DecodeString(desc []byte) string {
	if len(desc) < 2 {
		return ""
	}
	length := int(desc[0])
	if length > len(desc) {
		length = len(desc)
	}
	units := make([]uint16, 0, (length-2)/2)
	for i := 2; i+1 < length; i += 2 {
		units = append(units, le16(desc[i:]))
	}
	return string(utf16.Decode(units))
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
