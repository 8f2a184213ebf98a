package device

import (
	"github.com/ardnew/softusb/pkg"
)

// Device is the USB device state machine.
//
// It owns the enumeration state and answers control requests from the built
// descriptor set. It performs no I/O: the [Stack] task reads the transport,
// calls HandleSetup and carries out the returned [Response]. All methods are
// called from the USB task only.
type Device struct {
	desc  *Descriptors
	class Class
	ctrl  []byte

	state         State
	address       uint8
	configuration uint8
	remoteWakeup  bool

	onStateChange func(old, new State)
}

// NewDevice creates a device in the Default state serving desc.
func NewDevice(desc *Descriptors) *Device {
	return &Device{
		desc:  desc,
		class: desc.Class(),
		ctrl:  desc.ControlBuffer(),
	}
}

// Descriptors returns the descriptor set the device serves.
func (d *Device) Descriptors() *Descriptors {
	return d.desc
}

// Class returns the device's class function.
func (d *Device) Class() Class {
	return d.class
}

// ControlBuffer returns the buffer used for control data stages.
func (d *Device) ControlBuffer() []byte {
	return d.ctrl
}

// MaxPacketSize0 returns the control endpoint packet size.
func (d *Device) MaxPacketSize0() int {
	return int(d.desc.Config().MaxPacketSize0)
}

// State returns the current device state.
func (d *Device) State() State {
	return d.state
}

// Address returns the assigned device address, or 0 in Default.
func (d *Device) Address() uint8 {
	return d.address
}

// Configuration returns the active configuration value, or 0.
func (d *Device) Configuration() uint8 {
	return d.configuration
}

// IsConfigured returns true if the device is configured.
func (d *Device) IsConfigured() bool {
	return d.state == StateConfigured
}

// RemoteWakeup reports whether the host enabled remote wakeup.
func (d *Device) RemoteWakeup() bool {
	return d.remoteWakeup
}

// SetOnStateChange sets the state change callback.
func (d *Device) SetOnStateChange(cb func(old, new State)) {
	d.onStateChange = cb
}

// Reset handles a bus reset. The device returns to Default with address 0
// and no configuration, and the class drops back to its power-on state.
// Calling Reset repeatedly has the same effect as calling it once.
func (d *Device) Reset() {
	d.address = 0
	d.configuration = 0
	d.remoteWakeup = false
	d.setState(StateDefault)
	d.class.Reset()

	pkg.LogDebug(pkg.ComponentDevice, "device reset")
}

// HandleSetup decides the response to one SETUP packet. data holds the OUT
// data stage, if any. Any state change the request causes is applied before
// HandleSetup returns; the hardware address and endpoint configuration are
// left to the caller.
func (d *Device) HandleSetup(setup *SetupPacket, data []byte) Response {
	var resp Response
	switch setup.Type() {
	case RequestTypeStandard:
		resp = d.handleStandard(setup)
	case RequestTypeClass:
		resp = d.handleClass(setup, data)
	default:
		resp = Stall()
	}

	if resp.Kind == ResponseStall {
		pkg.LogDebug(pkg.ComponentDevice, "request stalled",
			"state", d.state.String(),
			"request", setup.String())
	}
	return resp
}

// handleClass forwards a class request to the function owning the interface.
func (d *Device) handleClass(setup *SetupPacket, data []byte) Response {
	if d.state != StateConfigured || setup.Recipient() != RequestRecipientInterface {
		return Stall()
	}
	if !d.class.OwnsInterface(setup.InterfaceNumber()) {
		return Stall()
	}
	resp, handled := d.class.HandleControl(setup, data, d.ctrl)
	if !handled {
		return Stall()
	}
	return resp
}

func (d *Device) setState(s State) {
	old := d.state
	if old == s {
		return
	}
	d.state = s

	switch {
	case s == StateConfigured:
		d.class.Configure(true)
	case old == StateConfigured:
		d.class.Configure(false)
	}

	pkg.LogInfo(pkg.ComponentDevice, "device state changed",
		"from", old.String(),
		"to", s.String())
	if d.onStateChange != nil {
		d.onStateChange(old, s)
	}
}
