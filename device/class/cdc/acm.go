package cdc

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/softusb/device"
	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// ACM implements a CDC-ACM (Abstract Control Model) class function.
// It provides USB serial port functionality over one communications
// interface with an interrupt notification endpoint and one data interface
// with a bulk IN/OUT pair.
//
// Every method runs in the USB task or in a task on the same executor; the
// function holds no lock.
type ACM struct {
	state     *State
	t         hal.Transport
	maxPacket uint16

	commIface uint8
	dataIface uint8

	notify device.EndpointState
	in     device.EndpointState
	out    device.EndpointState

	active bool
	waker  hal.Waker

	onLineCoding   func(LineCoding)
	onControlLines func(dtr, rts bool)
	onBreak        func(millis uint16)
}

// New creates the ACM function with bulk endpoints of maxPacketSize bytes
// and registers it with b. state must outlive the device.
func New(b *device.Builder, state *State, maxPacketSize uint16) (*ACM, error) {
	if maxPacketSize == 0 || maxPacketSize > MaxPacketSize {
		return nil, fmt.Errorf("%w: bulk max packet size %d", pkg.ErrInvalidConfig, maxPacketSize)
	}
	if len(state.rx) < int(maxPacketSize) {
		return nil, fmt.Errorf("%w: receive buffer %d bytes, need %d",
			pkg.ErrBufferTooSmall, len(state.rx), maxPacketSize)
	}

	a := &ACM{
		state:     state,
		maxPacket: maxPacketSize,
		notify: device.EndpointState{
			Address:       NotifyEndpoint,
			Attributes:    device.EndpointTypeInterrupt,
			MaxPacketSize: NotifyPacketSize,
			Interval:      NotifyInterval,
		},
		in: device.EndpointState{
			Address:       DataInEndpoint,
			Attributes:    device.EndpointTypeBulk,
			MaxPacketSize: maxPacketSize,
		},
		out: device.EndpointState{
			Address:       DataOutEndpoint,
			Attributes:    device.EndpointTypeBulk,
			MaxPacketSize: maxPacketSize,
		},
	}
	if err := b.AddClass(a); err != nil {
		return nil, err
	}
	return a, nil
}

// SetWaker registers a waker raised when OUT data arrives or an IN transfer
// completes. An application task awaits it before calling Read or Submit.
func (a *ACM) SetWaker(w hal.Waker) {
	a.waker = w
}

// SetOnLineCodingChange sets the callback for line coding changes.
func (a *ACM) SetOnLineCodingChange(cb func(LineCoding)) {
	a.onLineCoding = cb
}

// SetOnControlLineChange sets the callback for control line state changes.
func (a *ACM) SetOnControlLineChange(cb func(dtr, rts bool)) {
	a.onControlLines = cb
}

// SetOnBreak sets the callback for break signaling.
func (a *ACM) SetOnBreak(cb func(millis uint16)) {
	a.onBreak = cb
}

// LineCoding returns the current line coding configuration.
func (a *ACM) LineCoding() LineCoding {
	return a.state.lineCoding
}

// DTR returns the current DTR (Data Terminal Ready) state.
func (a *ACM) DTR() bool {
	return a.state.controlLines&ControlLineDTR != 0
}

// RTS returns the current RTS (Request To Send) state.
func (a *ACM) RTS() bool {
	return a.state.controlLines&ControlLineRTS != 0
}

// BreakDuration returns the duration of the last SEND_BREAK in milliseconds.
// 0xFFFF means the break is held until the next SEND_BREAK.
func (a *ACM) BreakDuration() uint16 {
	return a.state.breakMillis
}

// SerialState returns the last UART state sent to the host.
func (a *ACM) SerialState() uint16 {
	return a.state.serialState
}

// Configured reports whether the function's endpoints are active.
func (a *ACM) Configured() bool {
	return a.active
}

// Interfaces returns the communications and data interface numbers.
func (a *ACM) Interfaces() (comm, data uint8) {
	return a.commIface, a.dataIface
}

// Available returns the number of received bytes not yet read.
func (a *ACM) Available() int {
	return a.state.rxLen - a.state.rxOff
}

// Read copies received bytes into buf. The OUT endpoint is re-armed once
// every received byte has been read. Returns 0 if nothing is available.
func (a *ACM) Read(buf []byte) (int, error) {
	if !a.active {
		return 0, pkg.ErrNotConfigured
	}
	s := a.state
	if s.rxLen == 0 {
		return 0, nil
	}
	n := copy(buf, s.rx[s.rxOff:s.rxLen])
	s.rxOff += n
	if s.rxOff == s.rxLen {
		s.rxLen, s.rxOff = 0, 0
		// A halted endpoint is re-armed when the host clears the halt.
		if err := a.armOut(); err != nil && !errors.Is(err, pkg.ErrStall) {
			return n, err
		}
	}
	return n, nil
}

// Submit starts one bulk IN transfer of at most the endpoint's max packet
// size and returns how many bytes of data it carries. A second Submit
// before the first completes returns pkg.ErrTransferInProgress.
func (a *ACM) Submit(data []byte) (int, error) {
	if !a.active {
		return 0, pkg.ErrNotConfigured
	}
	if err := a.in.Begin(); err != nil {
		return 0, err
	}
	n := copy(a.state.tx[:a.maxPacket], data)
	if err := a.t.StartIn(DataInEndpoint, a.state.tx[:n]); err != nil {
		a.in.Abort()
		return 0, err
	}
	return n, nil
}

// Writable reports whether Submit would start a transfer.
func (a *ACM) Writable() bool {
	return a.active && !a.in.Busy() && !a.in.Halted()
}

// SendSerialState sends a SERIAL_STATE notification carrying the UART
// state bitmap. The same busy rule as Submit applies.
func (a *ACM) SendSerialState(bits uint16) error {
	if !a.active {
		return pkg.ErrNotConfigured
	}
	if err := a.notify.Begin(); err != nil {
		return err
	}

	s := a.state
	n := s.notify[:]
	n[0] = device.RequestDirectionDeviceToHost | device.RequestTypeClass | device.RequestRecipientInterface
	n[1] = NotificationSerialState
	binary.LittleEndian.PutUint16(n[2:4], 0)
	binary.LittleEndian.PutUint16(n[4:6], uint16(a.commIface))
	binary.LittleEndian.PutUint16(n[6:8], 2)
	binary.LittleEndian.PutUint16(n[8:10], bits)
	s.notifyLen, s.notifyOff = len(n), 0
	s.serialState = bits

	if err := a.sendNotifyChunk(); err != nil {
		a.notify.Abort()
		return err
	}
	return nil
}

func (a *ACM) sendNotifyChunk() error {
	s := a.state
	end := min(s.notifyOff+NotifyPacketSize, s.notifyLen)
	chunk := s.notify[s.notifyOff:end]
	s.notifyOff = end
	return a.t.StartIn(NotifyEndpoint, chunk)
}

func (a *ACM) armOut() error {
	if err := a.out.Begin(); err != nil {
		return err
	}
	if err := a.t.StartOut(DataOutEndpoint, a.state.rx[:a.maxPacket]); err != nil {
		a.out.Abort()
		return err
	}
	return nil
}

func (a *ACM) wake() {
	if a.waker != nil {
		a.waker.Raise()
	}
}

// device.Class

// WriteDescriptors writes the communications interface with its functional
// descriptors and notification endpoint, then the data interface.
func (a *ACM) WriteDescriptors(w *device.DescriptorWriter, firstInterface uint8) (uint8, error) {
	a.commIface = firstInterface
	a.dataIface = firstInterface + 1

	notify := a.notify.Descriptor()
	in := a.in.Descriptor()
	out := a.out.Descriptor()
	descs := [...]device.Descriptor{
		&device.InterfaceDescriptor{
			InterfaceNumber:   a.commIface,
			NumEndpoints:      1,
			InterfaceClass:    ClassCDC,
			InterfaceSubClass: SubclassACM,
			InterfaceProtocol: ProtocolNone,
		},
		&HeaderDescriptor{CDCVersion: CDCVersion110},
		&CallManagementDescriptor{DataInterface: a.dataIface},
		&ACMDescriptor{Capabilities: ACMCapLineCoding | ACMCapSendBreak},
		&UnionDescriptor{ControlInterface: a.commIface, SubordinateInterface: a.dataIface},
		&notify,
		&device.InterfaceDescriptor{
			InterfaceNumber: a.dataIface,
			NumEndpoints:    2,
			InterfaceClass:  ClassCDCData,
		},
		&in,
		&out,
	}
	for _, d := range descs {
		if err := w.Write(d); err != nil {
			return 0, err
		}
	}
	return 2, nil
}

// OwnsInterface implements device.Class.
func (a *ACM) OwnsInterface(iface uint8) bool {
	return iface == a.commIface || iface == a.dataIface
}

// HandleControl handles the ACM requests addressed to the communications
// interface.
func (a *ACM) HandleControl(setup *device.SetupPacket, data, buf []byte) (device.Response, bool) {
	if setup.InterfaceNumber() != a.commIface {
		return device.Stall(), false
	}

	s := a.state
	switch setup.Request {
	case RequestSetLineCoding:
		var lc LineCoding
		if setup.IsDeviceToHost() || !ParseLineCoding(data, &lc) {
			pkg.LogWarn(pkg.ComponentClass, "short line coding", "length", len(data))
			return device.Stall(), true
		}
		s.lineCoding = lc
		pkg.LogInfo(pkg.ComponentClass, "line coding set",
			"baud", lc.DTERate,
			"dataBits", lc.DataBits,
			"parity", lc.ParityType,
			"stopBits", lc.CharFormat)
		if a.onLineCoding != nil {
			a.onLineCoding(lc)
		}
		return device.Accept(), true

	case RequestGetLineCoding:
		n := s.lineCoding.MarshalTo(buf)
		if n == 0 || !setup.IsDeviceToHost() {
			return device.Stall(), true
		}
		return device.DataResponse(buf[:n], setup.Length), true

	case RequestSetControlLineState:
		s.controlLines = setup.Value & (ControlLineDTR | ControlLineRTS)
		dtr, rts := a.DTR(), a.RTS()
		pkg.LogInfo(pkg.ComponentClass, "control line state set", "dtr", dtr, "rts", rts)
		if a.onControlLines != nil {
			a.onControlLines(dtr, rts)
		}
		return device.Accept(), true

	case RequestSendBreak:
		s.breakMillis = setup.Value
		pkg.LogDebug(pkg.ComponentClass, "break signaled", "duration_ms", setup.Value)
		if a.onBreak != nil {
			a.onBreak(setup.Value)
		}
		return device.Accept(), true

	default:
		return device.Stall(), false
	}
}

// Endpoint implements device.Class.
func (a *ACM) Endpoint(address uint8) *device.EndpointState {
	switch address {
	case NotifyEndpoint:
		return &a.notify
	case DataInEndpoint:
		return &a.in
	case DataOutEndpoint:
		return &a.out
	default:
		return nil
	}
}

// EndpointConfigs implements device.Class.
func (a *ACM) EndpointConfigs(out []hal.EndpointConfig) int {
	eps := [...]*device.EndpointState{&a.notify, &a.in, &a.out}
	n := 0
	for _, ep := range eps {
		if n == len(out) {
			break
		}
		out[n] = ep.Config()
		n++
	}
	return n
}

// Bind implements device.Class.
func (a *ACM) Bind(t hal.Transport) {
	a.t = t
}

// Reset restores the default line coding, clears the control lines and
// idles every endpoint.
func (a *ACM) Reset() {
	a.state.reset()
	a.resetEndpoints()
	a.active = false
}

// Configure implements device.Class. Transfers in flight are dropped: the
// transport aborts them when it reconfigures its endpoints.
func (a *ACM) Configure(active bool) {
	a.active = active
	a.resetEndpoints()
	a.state.rxLen, a.state.rxOff = 0, 0
	a.state.notifyLen, a.state.notifyOff = 0, 0
	pkg.LogDebug(pkg.ComponentClass, "CDC-ACM configured", "active", active)
}

// Start arms the bulk OUT endpoint.
func (a *ACM) Start() error {
	if !a.active {
		return pkg.ErrNotConfigured
	}
	return a.armOut()
}

// HaltChanged implements device.Class. Clearing the OUT halt re-arms the
// endpoint once every received byte has been read; clearing the IN halt
// wakes the application so it can submit again.
func (a *ACM) HaltChanged(address uint8, halted bool) {
	if halted || !a.active {
		return
	}
	switch address {
	case DataOutEndpoint:
		if a.out.Busy() || a.Available() > 0 {
			return
		}
		if err := a.armOut(); err != nil {
			pkg.LogError(pkg.ComponentClass, "re-arm OUT after halt", "error", err)
		}
	case DataInEndpoint:
		a.wake()
	}
}

// TransferComplete implements device.Class.
func (a *ACM) TransferComplete(address uint8, length int, status pkg.TransferStatus) {
	s := a.state
	switch address {
	case DataOutEndpoint:
		a.out.Complete()
		if status != pkg.TransferStatusSuccess {
			pkg.LogWarn(pkg.ComponentClass, "receive failed", "status", status.String())
			return
		}
		if length == 0 {
			if err := a.armOut(); err != nil && !errors.Is(err, pkg.ErrStall) {
				pkg.LogError(pkg.ComponentClass, "re-arm OUT", "error", err)
			}
			return
		}
		s.rxLen, s.rxOff = min(length, len(s.rx)), 0
		a.wake()

	case DataInEndpoint:
		a.in.Complete()
		if status != pkg.TransferStatusSuccess {
			pkg.LogWarn(pkg.ComponentClass, "transmit failed", "status", status.String())
		}
		a.wake()

	case NotifyEndpoint:
		if status == pkg.TransferStatusSuccess && s.notifyOff < s.notifyLen {
			err := a.sendNotifyChunk()
			if err == nil {
				return
			}
			pkg.LogError(pkg.ComponentClass, "notification", "error", err)
		}
		a.notify.Complete()
		s.notifyLen, s.notifyOff = 0, 0

	default:
		pkg.LogWarn(pkg.ComponentClass, "completion on foreign endpoint", "endpoint", address)
	}
}

func (a *ACM) resetEndpoints() {
	a.notify.Reset()
	a.in.Reset()
	a.out.Reset()
}

var _ device.Class = (*ACM)(nil)
