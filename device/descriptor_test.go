package device

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/ardnew/softusb/pkg"
)

func TestDeviceDescriptor_MarshalTo(t *testing.T) {
	desc := &DeviceDescriptor{
		USBVersion:        USBVersion20,
		DeviceClass:       ClassCDC,
		MaxPacketSize0:    64,
		VendorID:          0xC0DE,
		ProductID:         0xCAFE,
		DeviceVersion:     0x0100,
		ManufacturerIndex: 1,
		ProductIndex:      2,
		SerialNumberIndex: 3,
		NumConfigurations: 1,
	}

	want := []byte{
		0x12, 0x01, 0x00, 0x02, 0x02, 0x00, 0x00, 0x40,
		0xDE, 0xC0, 0xFE, 0xCA, 0x00, 0x01, 0x01, 0x02,
		0x03, 0x01,
	}

	var buf [DeviceDescriptorSize]byte
	if n := desc.MarshalTo(buf[:]); n != DeviceDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, DeviceDescriptorSize)
	}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}
	if n := desc.MarshalTo(buf[:DeviceDescriptorSize-1]); n != 0 {
		t.Errorf("MarshalTo(short) = %d, want 0", n)
	}

	var parsed DeviceDescriptor
	if err := ParseDeviceDescriptor(buf[:], &parsed); err != nil {
		t.Fatalf("ParseDeviceDescriptor() error = %v", err)
	}
	if parsed != *desc {
		t.Errorf("ParseDeviceDescriptor() = %+v, want %+v", parsed, *desc)
	}
}

func TestParseDescriptorErrors(t *testing.T) {
	wrongType := make([]byte, DeviceDescriptorSize)
	wrongType[1] = DescriptorTypeConfiguration

	tests := []struct {
		name  string
		parse func() error
		want  error
	}{
		{"device too short", func() error {
			var d DeviceDescriptor
			return ParseDeviceDescriptor(make([]byte, 10), &d)
		}, pkg.ErrDescriptorTooShort},
		{"device wrong type", func() error {
			var d DeviceDescriptor
			return ParseDeviceDescriptor(wrongType, &d)
		}, pkg.ErrDescriptorTypeMismatch},
		{"configuration too short", func() error {
			var d ConfigurationDescriptor
			return ParseConfigurationDescriptor(make([]byte, 4), &d)
		}, pkg.ErrDescriptorTooShort},
		{"endpoint wrong type", func() error {
			var d EndpointDescriptor
			return ParseEndpointDescriptor(make([]byte, EndpointDescriptorSize), &d)
		}, pkg.ErrDescriptorTypeMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.parse(); !errors.Is(err, tt.want) {
				t.Errorf("parse error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestConfigurationDescriptor_RoundTrip(t *testing.T) {
	original := &ConfigurationDescriptor{
		TotalLength:        67,
		NumInterfaces:      2,
		ConfigurationValue: 1,
		Attributes:         ConfigAttrBusPowered | ConfigAttrRemoteWakeup,
		MaxPower:           100,
	}

	var buf [ConfigurationDescriptorSize]byte
	if n := original.MarshalTo(buf[:]); n != ConfigurationDescriptorSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, ConfigurationDescriptorSize)
	}
	if buf[2] != 67 || buf[3] != 0 {
		t.Errorf("wTotalLength bytes = % X, want 43 00", buf[2:4])
	}

	var parsed ConfigurationDescriptor
	if err := ParseConfigurationDescriptor(buf[:], &parsed); err != nil {
		t.Fatalf("ParseConfigurationDescriptor() error = %v", err)
	}
	if parsed != *original {
		t.Errorf("ParseConfigurationDescriptor() = %+v, want %+v", parsed, *original)
	}
}

func TestInterfaceDescriptor_RoundTrip(t *testing.T) {
	original := &InterfaceDescriptor{
		InterfaceNumber:   1,
		NumEndpoints:      2,
		InterfaceClass:    ClassCDCData,
		InterfaceSubClass: 0,
		InterfaceProtocol: 0,
	}

	var buf [InterfaceDescriptorSize]byte
	original.MarshalTo(buf[:])

	var parsed InterfaceDescriptor
	if err := ParseInterfaceDescriptor(buf[:], &parsed); err != nil {
		t.Fatalf("ParseInterfaceDescriptor() error = %v", err)
	}
	if parsed != *original {
		t.Errorf("ParseInterfaceDescriptor() = %+v, want %+v", parsed, *original)
	}
}

func TestEndpointDescriptor_MarshalTo(t *testing.T) {
	desc := &EndpointDescriptor{
		EndpointAddress: 0x81,
		Attributes:      EndpointTypeInterrupt,
		MaxPacketSize:   8,
		Interval:        255,
	}

	want := []byte{0x07, 0x05, 0x81, 0x03, 0x08, 0x00, 0xFF}
	var buf [EndpointDescriptorSize]byte
	desc.MarshalTo(buf[:])
	if !bytes.Equal(buf[:], want) {
		t.Errorf("MarshalTo() = % X, want % X", buf[:], want)
	}
}

func TestBOSDescriptor_MarshalTo(t *testing.T) {
	var buf [BOSDescriptorSize + USB20ExtensionDescriptorSize]byte
	bos := BOSDescriptor{TotalLength: uint16(len(buf)), NumDeviceCaps: 1}
	ext := USB20ExtensionDescriptor{Attributes: USB20ExtLPM}

	n := bos.MarshalTo(buf[:])
	n += ext.MarshalTo(buf[n:])

	want := []byte{
		0x05, 0x0F, 0x0C, 0x00, 0x01,
		0x07, 0x10, 0x02, 0x02, 0x00, 0x00, 0x00,
	}
	if n != len(want) {
		t.Fatalf("length = %d, want %d", n, len(want))
	}
	if !bytes.Equal(buf[:], want) {
		t.Errorf("BOS = % X, want % X", buf[:], want)
	}
}

func TestStringDescriptorTo(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 2},
		{"A", 4},
		{"Embassy", 16},
		{"日本語", 8},
		{"\U0001F600", 6}, // surrogate pair
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := StringDescriptorLen(tt.input); got != tt.want {
				t.Errorf("StringDescriptorLen() = %d, want %d", got, tt.want)
			}
			var buf [MaxStringDescriptorSize]byte
			n := StringDescriptorTo(buf[:], tt.input)
			if n != tt.want {
				t.Fatalf("StringDescriptorTo() = %d, want %d", n, tt.want)
			}
			if buf[0] != uint8(tt.want) {
				t.Errorf("bLength = %d, want %d", buf[0], tt.want)
			}
			if buf[1] != DescriptorTypeString {
				t.Errorf("bDescriptorType = 0x%02X, want 0x%02X", buf[1], DescriptorTypeString)
			}
		})
	}
}

func TestStringDescriptorTo_SurrogatePair(t *testing.T) {
	var buf [8]byte
	n := StringDescriptorTo(buf[:], "\U0001F600")
	want := []byte{0x06, 0x03, 0x3D, 0xD8, 0x00, 0xDE}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("StringDescriptorTo() = % X, want % X", buf[:n], want)
	}
}

func TestStringDescriptorTo_Bounds(t *testing.T) {
	var buf [512]byte

	longest := strings.Repeat("A", (MaxStringDescriptorSize-2)/2)
	if n := StringDescriptorTo(buf[:], longest); n != MaxStringDescriptorSize {
		t.Errorf("StringDescriptorTo(%d chars) = %d, want %d", len(longest), n, MaxStringDescriptorSize)
	}
	if n := StringDescriptorTo(buf[:], longest+"A"); n != 0 {
		t.Errorf("StringDescriptorTo(too long) = %d, want 0", n)
	}
	if n := StringDescriptorTo(buf[:5], "AB"); n != 0 {
		t.Errorf("StringDescriptorTo(small buffer) = %d, want 0", n)
	}
}

func TestLanguageDescriptorTo(t *testing.T) {
	var buf [4]byte
	n := LanguageDescriptorTo(buf[:], LangIDUSEnglish)
	want := []byte{0x04, 0x03, 0x09, 0x04}
	if !bytes.Equal(buf[:n], want) {
		t.Errorf("LanguageDescriptorTo() = % X, want % X", buf[:n], want)
	}
	if n := LanguageDescriptorTo(buf[:3], LangIDUSEnglish); n != 0 {
		t.Errorf("LanguageDescriptorTo(short) = %d, want 0", n)
	}
}
