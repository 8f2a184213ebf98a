package static

import (
	"errors"
	"testing"

	"github.com/ardnew/softusb/pkg"
)

func TestCell_Init(t *testing.T) {
	var c Cell[int]

	if c.Taken() {
		t.Fatal("Taken() = true before Init")
	}

	p, err := c.Init(42)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if *p != 42 {
		t.Errorf("*Init() = %d, want 42", *p)
	}
	if !c.Taken() {
		t.Error("Taken() = false after Init")
	}

	_, err = c.Init(7)
	if !errors.Is(err, pkg.ErrDoubleInit) {
		t.Errorf("second Init() error = %v, want %v", err, pkg.ErrDoubleInit)
	}
	if *p != 42 {
		t.Errorf("value after failed Init = %d, want 42", *p)
	}
}

func TestCell_Take(t *testing.T) {
	var c Cell[[4]byte]

	p, err := c.Take()
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	p[0] = 0xAA

	if _, err := c.Take(); !errors.Is(err, pkg.ErrDoubleInit) {
		t.Errorf("second Take() error = %v, want %v", err, pkg.ErrDoubleInit)
	}
	if _, err := c.Init([4]byte{}); !errors.Is(err, pkg.ErrDoubleInit) {
		t.Errorf("Init() after Take() error = %v, want %v", err, pkg.ErrDoubleInit)
	}
}

func TestCell_MustInit(t *testing.T) {
	var c Cell[string]
	c.MustInit("once")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("MustInit() did not panic on second call")
		}
		if err, ok := r.(error); !ok || !errors.Is(err, pkg.ErrDoubleInit) {
			t.Errorf("panic value = %v, want %v", r, pkg.ErrDoubleInit)
		}
	}()
	c.MustInit("twice")
}

func TestArena(t *testing.T) {
	var a Arena

	tests := []struct {
		name    string
		reserve func() ([]byte, error)
		size    int
	}{
		{"device", a.ReserveDeviceDescriptor, DeviceDescriptorSize},
		{"config", a.ReserveConfigDescriptor, ConfigDescriptorSize},
		{"bos", a.ReserveBOSDescriptor, BOSDescriptorSize},
		{"control", a.ReserveControlBuffer, ControlBufferSize},
		{"receive", a.ReserveReceiveBuffer, ReceiveBufferSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := tt.reserve()
			if err != nil {
				t.Fatalf("reserve() error = %v", err)
			}
			if len(buf) != tt.size {
				t.Errorf("len(reserve()) = %d, want %d", len(buf), tt.size)
			}
			if _, err := tt.reserve(); !errors.Is(err, pkg.ErrDoubleInit) {
				t.Errorf("second reserve() error = %v, want %v", err, pkg.ErrDoubleInit)
			}
		})
	}
}
