package device

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softusb/pkg"
)

// DescriptorWriter appends descriptors into a fixed buffer. Every write
// checks capacity first; nothing is written past the end.
type DescriptorWriter struct {
	buf []byte
	n   int
}

// NewDescriptorWriter returns a writer over buf.
func NewDescriptorWriter(buf []byte) *DescriptorWriter {
	return &DescriptorWriter{buf: buf}
}

// Reserve claims the next n bytes. Returns pkg.ErrDescriptorOverflow if
// they do not fit.
func (w *DescriptorWriter) Reserve(n int) ([]byte, error) {
	if n < 0 || w.n+n > len(w.buf) {
		return nil, fmt.Errorf("%w: need %d bytes, capacity %d", pkg.ErrDescriptorOverflow, w.n+n, len(w.buf))
	}
	s := w.buf[w.n : w.n+n]
	w.n += n
	return s, nil
}

// Write appends one descriptor.
func (w *DescriptorWriter) Write(d Descriptor) error {
	s, err := w.Reserve(d.Size())
	if err != nil {
		return err
	}
	d.MarshalTo(s)
	return nil
}

// Len returns the number of bytes written.
func (w *DescriptorWriter) Len() int {
	return w.n
}

// Bytes returns the written portion of the buffer.
func (w *DescriptorWriter) Bytes() []byte {
	return w.buf[:w.n]
}

// Rollback zeroes the whole buffer and rewinds the writer.
func (w *DescriptorWriter) Rollback() {
	clear(w.buf)
	w.n = 0
}

// Buffers are the fixed regions the builder writes into. Configuration and
// BOS are owned by the builder; Control is handed on to the device for
// control transfer data and string descriptor responses.
type Buffers struct {
	Device        []byte
	Configuration []byte
	BOS           []byte
	Control       []byte
}

// Builder assembles the descriptor set once at startup.
type Builder struct {
	cfg   Config
	bufs  Buffers
	class Class
	built bool
}

// NewBuilder creates a builder for cfg writing into bufs.
func NewBuilder(cfg Config, bufs Buffers) *Builder {
	return &Builder{cfg: cfg, bufs: bufs}
}

// Config returns the device configuration.
func (b *Builder) Config() Config {
	return b.cfg
}

// AddClass registers the device's class function. Only one function is
// supported.
func (b *Builder) AddClass(c Class) error {
	if b.built {
		return pkg.ErrDoubleInit
	}
	if b.class != nil {
		return fmt.Errorf("%w: multiple class functions", pkg.ErrNotSupported)
	}
	b.class = c
	return nil
}

// Build writes the device, configuration and optional BOS descriptors. It
// may be called once; a second call returns pkg.ErrDoubleInit. If any
// descriptor does not fit its buffer, every buffer is zeroed and the error
// wraps pkg.ErrDescriptorOverflow.
func (b *Builder) Build() (*Descriptors, error) {
	if b.built {
		return nil, pkg.ErrDoubleInit
	}
	b.built = true

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	if b.class == nil {
		return nil, fmt.Errorf("%w: no class function registered", pkg.ErrInvalidConfig)
	}

	d := &Descriptors{
		config:  b.cfg,
		class:   b.class,
		control: b.bufs.Control,
	}

	var errs *multierror.Error
	if err := b.writeDevice(d); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("device descriptor: %w", err))
	}
	if err := b.writeConfiguration(d); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("configuration descriptor: %w", err))
	}
	if b.cfg.BOS {
		if err := b.writeBOS(d); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("BOS descriptor: %w", err))
		}
	}
	errs = b.checkStrings(errs)

	if err := errs.ErrorOrNil(); err != nil {
		b.rollback()
		pkg.LogError(pkg.ComponentDevice, "descriptor build failed", "error", err)
		return nil, err
	}

	pkg.LogDebug(pkg.ComponentDevice, "descriptors built",
		"configLength", len(d.configuration),
		"bosLength", len(d.bos),
		"interfaces", d.numInterfaces)
	return d, nil
}

func (b *Builder) writeDevice(d *Descriptors) error {
	desc := DeviceDescriptor{
		USBVersion:        USBVersion20,
		DeviceClass:       ClassCDC,
		MaxPacketSize0:    b.cfg.MaxPacketSize0,
		VendorID:          b.cfg.VendorID,
		ProductID:         b.cfg.ProductID,
		DeviceVersion:     b.cfg.DeviceRelease,
		NumConfigurations: 1,
	}
	if b.cfg.BOS {
		desc.USBVersion = USBVersion21
	}
	if _, ok := b.cfg.StringAt(StringIndexManufacturer); ok {
		desc.ManufacturerIndex = StringIndexManufacturer
	}
	if _, ok := b.cfg.StringAt(StringIndexProduct); ok {
		desc.ProductIndex = StringIndexProduct
	}
	if _, ok := b.cfg.StringAt(StringIndexSerialNumber); ok {
		desc.SerialNumberIndex = StringIndexSerialNumber
	}

	w := NewDescriptorWriter(b.bufs.Device)
	if err := w.Write(&desc); err != nil {
		return err
	}
	d.device = w.Bytes()
	return nil
}

func (b *Builder) writeConfiguration(d *Descriptors) error {
	w := NewDescriptorWriter(b.bufs.Configuration)

	// The header is patched once the function's length is known.
	header, err := w.Reserve(ConfigurationDescriptorSize)
	if err != nil {
		return err
	}
	numInterfaces, err := b.class.WriteDescriptors(w, 0)
	if err != nil {
		return err
	}

	desc := ConfigurationDescriptor{
		TotalLength:        uint16(w.Len()),
		NumInterfaces:      numInterfaces,
		ConfigurationValue: ConfigurationValue,
		Attributes:         b.cfg.Attributes(),
		MaxPower:           b.cfg.MaxPower,
	}
	desc.MarshalTo(header)

	d.configuration = w.Bytes()
	d.numInterfaces = numInterfaces
	return nil
}

func (b *Builder) writeBOS(d *Descriptors) error {
	w := NewDescriptorWriter(b.bufs.BOS)
	header, err := w.Reserve(BOSDescriptorSize)
	if err != nil {
		return err
	}
	if err := w.Write(&USB20ExtensionDescriptor{Attributes: USB20ExtLPM}); err != nil {
		return err
	}

	desc := BOSDescriptor{TotalLength: uint16(w.Len()), NumDeviceCaps: 1}
	desc.MarshalTo(header)

	d.bos = w.Bytes()
	return nil
}

// checkStrings verifies that every string descriptor can be served from the
// control buffer.
func (b *Builder) checkStrings(errs *multierror.Error) *multierror.Error {
	capacity := len(b.bufs.Control)
	if need := 4; need > capacity {
		errs = multierror.Append(errs, fmt.Errorf("string 0: %w: need %d bytes, capacity %d",
			pkg.ErrDescriptorOverflow, need, capacity))
	}
	for index := uint8(StringIndexManufacturer); index <= StringIndexSerialNumber; index++ {
		s, ok := b.cfg.StringAt(index)
		if !ok {
			continue
		}
		if need := StringDescriptorLen(s); need > capacity {
			errs = multierror.Append(errs, fmt.Errorf("string %d: %w: need %d bytes, capacity %d",
				index, pkg.ErrDescriptorOverflow, need, capacity))
		}
	}
	return errs
}

func (b *Builder) rollback() {
	clear(b.bufs.Device)
	clear(b.bufs.Configuration)
	clear(b.bufs.BOS)
}

// Descriptors is the built, read-only descriptor set.
type Descriptors struct {
	config        Config
	class         Class
	device        []byte
	configuration []byte
	bos           []byte
	control       []byte
	numInterfaces uint8
}

// Config returns the device configuration.
func (d *Descriptors) Config() *Config { return &d.config }

// Class returns the registered class function.
func (d *Descriptors) Class() Class { return d.class }

// Device returns the device descriptor bytes.
func (d *Descriptors) Device() []byte { return d.device }

// Configuration returns the full configuration descriptor bytes.
func (d *Descriptors) Configuration() []byte { return d.configuration }

// BOS returns the BOS descriptor bytes, or nil if BOS is disabled.
func (d *Descriptors) BOS() []byte { return d.bos }

// NumInterfaces returns bNumInterfaces of the configuration.
func (d *Descriptors) NumInterfaces() uint8 { return d.numInterfaces }

// ControlBuffer returns the control transfer buffer.
func (d *Descriptors) ControlBuffer() []byte { return d.control }

// String writes string descriptor index into buf and returns the written
// slice, or nil if the device has no such string.
func (d *Descriptors) String(index uint8, buf []byte) []byte {
	if index == StringIndexLangID {
		return buf[:LanguageDescriptorTo(buf, LangIDUSEnglish)]
	}
	s, ok := d.config.StringAt(index)
	if !ok {
		return nil
	}
	n := StringDescriptorTo(buf, s)
	if n == 0 {
		return nil
	}
	return buf[:n]
}
