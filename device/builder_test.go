package device

import (
	"errors"
	"testing"

	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// Vendor requests understood by fakeClass.
const (
	fakeRequestEcho  = 0x01
	fakeRequestStore = 0x02
)

// fakeClass is a one-interface function with a single bulk IN endpoint.
type fakeClass struct {
	ep      EndpointState
	padding int // extra bytes appended to the configuration

	active    bool
	resets    int
	starts    int
	stored    []byte
	completed []uint8
	t         hal.Transport
}

func newFakeClass() *fakeClass {
	return &fakeClass{
		ep: EndpointState{Address: 0x81, Attributes: EndpointTypeBulk, MaxPacketSize: 64},
	}
}

func (c *fakeClass) WriteDescriptors(w *DescriptorWriter, first uint8) (uint8, error) {
	if err := w.Write(&InterfaceDescriptor{
		InterfaceNumber: first,
		NumEndpoints:    1,
		InterfaceClass:  ClassVendor,
	}); err != nil {
		return 0, err
	}
	ep := c.ep.Descriptor()
	if err := w.Write(&ep); err != nil {
		return 0, err
	}
	if c.padding > 0 {
		if _, err := w.Reserve(c.padding); err != nil {
			return 0, err
		}
	}
	return 1, nil
}

func (c *fakeClass) OwnsInterface(iface uint8) bool { return iface == 0 }

func (c *fakeClass) HandleControl(setup *SetupPacket, data, buf []byte) (Response, bool) {
	switch setup.Request {
	case fakeRequestEcho:
		n := copy(buf, "ok")
		return DataResponse(buf[:n], setup.Length), true
	case fakeRequestStore:
		c.stored = append(c.stored[:0], data...)
		return Accept(), true
	default:
		return Stall(), false
	}
}

func (c *fakeClass) Endpoint(addr uint8) *EndpointState {
	if addr == c.ep.Address {
		return &c.ep
	}
	return nil
}

func (c *fakeClass) EndpointConfigs(out []hal.EndpointConfig) int {
	out[0] = c.ep.Config()
	return 1
}

func (c *fakeClass) Bind(t hal.Transport) { c.t = t }

func (c *fakeClass) Reset() {
	c.resets++
	c.active = false
	c.ep.Reset()
}

func (c *fakeClass) Configure(active bool) {
	c.active = active
	c.ep.Reset()
}

func (c *fakeClass) Start() error {
	c.starts++
	return nil
}

func (c *fakeClass) HaltChanged(uint8, bool) {}

func (c *fakeClass) TransferComplete(addr uint8, _ int, _ pkg.TransferStatus) {
	c.completed = append(c.completed, addr)
}

func testBuffers() Buffers {
	return Buffers{
		Device:        make([]byte, DeviceDescriptorSize),
		Configuration: make([]byte, 256),
		BOS:           make([]byte, 256),
		Control:       make([]byte, 64),
	}
}

func buildDescriptors(t *testing.T, cfg Config, c Class) *Descriptors {
	t.Helper()
	b := NewBuilder(cfg, testBuffers())
	if err := b.AddClass(c); err != nil {
		t.Fatalf("AddClass() error = %v", err)
	}
	desc, err := b.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return desc
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func TestDescriptorWriter(t *testing.T) {
	buf := make([]byte, 16)
	w := NewDescriptorWriter(buf)

	if _, err := w.Reserve(9); err != nil {
		t.Fatalf("Reserve(9) error = %v", err)
	}
	if err := w.Write(&EndpointDescriptor{EndpointAddress: 0x81}); err != nil {
		t.Fatalf("Write(endpoint) error = %v", err)
	}
	if w.Len() != 16 {
		t.Errorf("Len() = %d, want 16", w.Len())
	}
	if err := w.Write(&EndpointDescriptor{}); !errors.Is(err, pkg.ErrDescriptorOverflow) {
		t.Errorf("Write() past end error = %v, want %v", err, pkg.ErrDescriptorOverflow)
	}
	if w.Len() != 16 {
		t.Errorf("Len() after failed write = %d, want 16", w.Len())
	}

	w.Rollback()
	if w.Len() != 0 || !allZero(buf) {
		t.Errorf("Rollback() left Len() = %d, zeroed = %v", w.Len(), allZero(buf))
	}
}

func TestBuilderBuild(t *testing.T) {
	cfg := DefaultConfig()
	desc := buildDescriptors(t, cfg, newFakeClass())

	var dev DeviceDescriptor
	if err := ParseDeviceDescriptor(desc.Device(), &dev); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	want := DeviceDescriptor{
		USBVersion:        USBVersion20,
		DeviceClass:       ClassCDC,
		MaxPacketSize0:    64,
		VendorID:          0xC0DE,
		ProductID:         0xCAFE,
		DeviceVersion:     0x0100,
		ManufacturerIndex: StringIndexManufacturer,
		ProductIndex:      StringIndexProduct,
		SerialNumberIndex: StringIndexSerialNumber,
		NumConfigurations: 1,
	}
	if dev != want {
		t.Errorf("device descriptor = %+v, want %+v", dev, want)
	}

	var config ConfigurationDescriptor
	if err := ParseConfigurationDescriptor(desc.Configuration(), &config); err != nil {
		t.Fatalf("ParseConfigurationDescriptor() error = %v", err)
	}
	wantLen := ConfigurationDescriptorSize + InterfaceDescriptorSize + EndpointDescriptorSize
	if int(config.TotalLength) != wantLen || len(desc.Configuration()) != wantLen {
		t.Errorf("wTotalLength = %d, len = %d, want %d", config.TotalLength, len(desc.Configuration()), wantLen)
	}
	if config.NumInterfaces != 1 || desc.NumInterfaces() != 1 {
		t.Errorf("bNumInterfaces = %d, want 1", config.NumInterfaces)
	}
	if config.ConfigurationValue != ConfigurationValue {
		t.Errorf("bConfigurationValue = %d, want %d", config.ConfigurationValue, ConfigurationValue)
	}
	if config.Attributes != ConfigAttrBusPowered || config.MaxPower != 100 {
		t.Errorf("bmAttributes, bMaxPower = 0x%02X, %d, want 0x80, 100", config.Attributes, config.MaxPower)
	}
	if desc.BOS() != nil {
		t.Errorf("BOS() = % X, want nil", desc.BOS())
	}
}

func TestBuilderBOS(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BOS = true
	desc := buildDescriptors(t, cfg, newFakeClass())

	var dev DeviceDescriptor
	if err := ParseDeviceDescriptor(desc.Device(), &dev); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if dev.USBVersion != USBVersion21 {
		t.Errorf("bcdUSB = 0x%04X, want 0x%04X", dev.USBVersion, USBVersion21)
	}
	bos := desc.BOS()
	if len(bos) != BOSDescriptorSize+USB20ExtensionDescriptorSize {
		t.Fatalf("len(BOS()) = %d, want %d", len(bos), BOSDescriptorSize+USB20ExtensionDescriptorSize)
	}
	if bos[1] != DescriptorTypeBOS || bos[2] != 12 || bos[4] != 1 {
		t.Errorf("BOS header = % X", bos[:BOSDescriptorSize])
	}
	if bos[6] != DescriptorTypeDeviceCapability || bos[7] != CapabilityUSB20Extension {
		t.Errorf("capability = % X", bos[BOSDescriptorSize:])
	}
}

func TestBuilderEmptyStrings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Manufacturer = ""
	cfg.SerialNumber = ""
	desc := buildDescriptors(t, cfg, newFakeClass())

	d := desc.Device()
	if d[14] != 0 || d[15] != StringIndexProduct || d[16] != 0 {
		t.Errorf("string indices = %d %d %d, want 0 %d 0", d[14], d[15], d[16], StringIndexProduct)
	}

	var buf [64]byte
	if got := desc.String(StringIndexManufacturer, buf[:]); got != nil {
		t.Errorf("String(manufacturer) = % X, want nil", got)
	}
	if got := desc.String(StringIndexLangID, buf[:]); len(got) != 4 {
		t.Errorf("String(0) = % X, want 4 bytes", got)
	}
}

func TestBuilderOverflow(t *testing.T) {
	base := ConfigurationDescriptorSize + InterfaceDescriptorSize + EndpointDescriptorSize

	tests := []struct {
		name    string
		total   int
		wantErr error
	}{
		{"fits exactly", 256, nil},
		{"one byte over", 257, pkg.ErrDescriptorOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClass()
			c.padding = tt.total - base

			bufs := testBuffers()
			b := NewBuilder(DefaultConfig(), bufs)
			if err := b.AddClass(c); err != nil {
				t.Fatalf("AddClass() error = %v", err)
			}
			desc, err := b.Build()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil {
				if len(desc.Configuration()) != tt.total {
					t.Errorf("len(Configuration()) = %d, want %d", len(desc.Configuration()), tt.total)
				}
				return
			}
			if desc != nil {
				t.Error("Build() returned descriptors on overflow")
			}
			if !allZero(bufs.Configuration) || !allZero(bufs.Device) || !allZero(bufs.BOS) {
				t.Error("buffers not zeroed after overflow")
			}
		})
	}
}

func TestBuilderStringOverflow(t *testing.T) {
	bufs := testBuffers()
	bufs.Control = make([]byte, 16)

	b := NewBuilder(DefaultConfig(), bufs)
	if err := b.AddClass(newFakeClass()); err != nil {
		t.Fatalf("AddClass() error = %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, pkg.ErrDescriptorOverflow) {
		t.Errorf("Build() error = %v, want %v", err, pkg.ErrDescriptorOverflow)
	}
	if !allZero(bufs.Device) {
		t.Error("device descriptor not zeroed")
	}
}

func TestBuilderMisuse(t *testing.T) {
	t.Run("build twice", func(t *testing.T) {
		b := NewBuilder(DefaultConfig(), testBuffers())
		if err := b.AddClass(newFakeClass()); err != nil {
			t.Fatalf("AddClass() error = %v", err)
		}
		if _, err := b.Build(); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		if _, err := b.Build(); !errors.Is(err, pkg.ErrDoubleInit) {
			t.Errorf("second Build() error = %v, want %v", err, pkg.ErrDoubleInit)
		}
		if err := b.AddClass(newFakeClass()); !errors.Is(err, pkg.ErrDoubleInit) {
			t.Errorf("AddClass() after Build error = %v, want %v", err, pkg.ErrDoubleInit)
		}
	})

	t.Run("second class", func(t *testing.T) {
		b := NewBuilder(DefaultConfig(), testBuffers())
		if err := b.AddClass(newFakeClass()); err != nil {
			t.Fatalf("AddClass() error = %v", err)
		}
		if err := b.AddClass(newFakeClass()); !errors.Is(err, pkg.ErrNotSupported) {
			t.Errorf("second AddClass() error = %v, want %v", err, pkg.ErrNotSupported)
		}
	})

	t.Run("no class", func(t *testing.T) {
		b := NewBuilder(DefaultConfig(), testBuffers())
		if _, err := b.Build(); !errors.Is(err, pkg.ErrInvalidConfig) {
			t.Errorf("Build() error = %v, want %v", err, pkg.ErrInvalidConfig)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxPacketSize0 = 12
		b := NewBuilder(cfg, testBuffers())
		if err := b.AddClass(newFakeClass()); err != nil {
			t.Fatalf("AddClass() error = %v", err)
		}
		if _, err := b.Build(); !errors.Is(err, pkg.ErrInvalidConfig) {
			t.Errorf("Build() error = %v, want %v", err, pkg.ErrInvalidConfig)
		}
	})
}
