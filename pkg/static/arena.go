package static

// Buffer sizes reserved for the USB device stack.
const (
	DeviceDescriptorSize = 18
	ConfigDescriptorSize = 256
	BOSDescriptorSize    = 256
	ControlBufferSize    = 64
	ReceiveBufferSize    = 64
)

// Arena groups the fixed-capacity regions the device stack is built from.
// Each region can be reserved exactly once.
type Arena struct {
	device  Cell[[DeviceDescriptorSize]byte]
	config  Cell[[ConfigDescriptorSize]byte]
	bos     Cell[[BOSDescriptorSize]byte]
	control Cell[[ControlBufferSize]byte]
	receive Cell[[ReceiveBufferSize]byte]
}

// ReserveDeviceDescriptor reserves the device descriptor region.
func (a *Arena) ReserveDeviceDescriptor() ([]byte, error) {
	p, err := a.device.Take()
	if err != nil {
		return nil, err
	}
	return p[:], nil
}

// ReserveConfigDescriptor reserves the configuration descriptor region.
func (a *Arena) ReserveConfigDescriptor() ([]byte, error) {
	p, err := a.config.Take()
	if err != nil {
		return nil, err
	}
	return p[:], nil
}

// ReserveBOSDescriptor reserves the BOS descriptor region.
func (a *Arena) ReserveBOSDescriptor() ([]byte, error) {
	p, err := a.bos.Take()
	if err != nil {
		return nil, err
	}
	return p[:], nil
}

// ReserveControlBuffer reserves the control transfer data-stage buffer.
func (a *Arena) ReserveControlBuffer() ([]byte, error) {
	p, err := a.control.Take()
	if err != nil {
		return nil, err
	}
	return p[:], nil
}

// ReserveReceiveBuffer reserves the bulk OUT receive buffer.
func (a *Arena) ReserveReceiveBuffer() ([]byte, error) {
	p, err := a.receive.Take()
	if err != nil {
		return nil, err
	}
	return p[:], nil
}
