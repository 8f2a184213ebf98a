package sim

import (
	"context"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/pkg"
)

// Bus capacities.
const (
	MaxEvents      = 32  // Latched events awaiting the device task
	MaxControlData = 256 // Largest control data stage in either direction
	MaxPacketSize  = 64  // Largest data endpoint packet
	maxControlPkts = MaxControlData/8 + 1
	maxEndpoints   = 32 // 0x00-0x0F OUT, 0x80-0x8F IN
)

// ControlStatus is the host-visible outcome of a control transfer.
type ControlStatus uint8

// Control transfer outcomes.
const (
	ControlPending ControlStatus = iota
	ControlAcked
	ControlStalled
)

func epIndex(addr uint8) int {
	if addr&0x80 != 0 {
		return int(addr&0x0F) + 16
	}
	return int(addr & 0x0F)
}

type inSlot struct {
	data    [MaxPacketSize]byte
	n       int
	pending bool
}

type outSlot struct {
	buf   []byte
	armed bool
}

// Bus is an in-memory USB bus implementing [hal.Transport].
//
// The device side is the Transport interface. The host side (Reset, Setup,
// Deliver, Collect, Suspend, Resume) may be called from any goroutine and
// plays the role of the controller's interrupt handler: it latches an event
// and raises the registered waker.
type Bus struct {
	mu    sync.Mutex
	waker hal.Waker

	events    [MaxEvents]hal.Event
	setupData [MaxEvents][MaxControlData]byte
	setupLen  [MaxEvents]int
	head      int
	count     int

	// Current control transfer as seen by the device.
	ctrlOut    [MaxControlData]byte
	ctrlOutLen int
	ctrlIn     [MaxControlData]byte
	ctrlInLen  int
	packets    [maxControlPkts]int
	numPackets int
	status     ControlStatus
	ctrlDone   chan struct{}

	address   uint8
	endpoints [maxEndpoints]hal.EndpointConfig
	numEPs    int
	in        [maxEndpoints]inSlot
	out       [maxEndpoints]outSlot
	halted    [maxEndpoints]bool
}

// NewBus creates an idle bus.
func NewBus() *Bus {
	return &Bus{ctrlDone: make(chan struct{}, 1)}
}

// Device side (hal.Transport)

// SetWaker registers the waker raised for every latched event.
func (b *Bus) SetWaker(w hal.Waker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waker = w
}

// PollEvent copies the oldest pending event into out.
func (b *Bus) PollEvent(out *hal.Event) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return false
	}
	i := b.head
	*out = b.events[i]
	if out.Type == hal.EventSetup {
		b.ctrlOutLen = copy(b.ctrlOut[:], b.setupData[i][:b.setupLen[i]])
		b.ctrlInLen = 0
		b.numPackets = 0
	}
	b.head = (b.head + 1) % MaxEvents
	b.count--
	return true
}

// ReadEP0 copies the OUT data stage of the current SETUP into buf.
func (b *Bus) ReadEP0(buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(buf) < b.ctrlOutLen {
		return 0, pkg.ErrBufferTooSmall
	}
	return copy(buf, b.ctrlOut[:b.ctrlOutLen]), nil
}

// WriteEP0 sends one IN packet of the current control transfer.
func (b *Bus) WriteEP0(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctrlInLen+len(data) > len(b.ctrlIn) || b.numPackets == len(b.packets) {
		return pkg.ErrBufferTooSmall
	}
	b.ctrlInLen += copy(b.ctrlIn[b.ctrlInLen:], data)
	b.packets[b.numPackets] = len(data)
	b.numPackets++
	return nil
}

// AckEP0 completes the status stage of the current control transfer.
func (b *Bus) AckEP0() error {
	b.finishControl(ControlAcked)
	return nil
}

// StallEP0 rejects the current control transfer.
func (b *Bus) StallEP0() error {
	b.finishControl(ControlStalled)
	return nil
}

func (b *Bus) finishControl(s ControlStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()

	select {
	case b.ctrlDone <- struct{}{}:
	default:
	}
}

// SetAddress records the device address.
func (b *Bus) SetAddress(address uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.address = address
	return nil
}

// ConfigureEndpoints replaces the active endpoint set and aborts every data
// transfer.
func (b *Bus) ConfigureEndpoints(endpoints []hal.EndpointConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(endpoints) > len(b.endpoints) {
		return pkg.ErrNoResources
	}
	b.numEPs = copy(b.endpoints[:], endpoints)
	b.in = [maxEndpoints]inSlot{}
	b.out = [maxEndpoints]outSlot{}
	b.halted = [maxEndpoints]bool{}
	return nil
}

// StartIn queues one packet for the host to collect.
func (b *Bus) StartIn(address uint8, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.configured(address) || address&0x80 == 0 {
		return pkg.ErrInvalidEndpoint
	}
	slot := &b.in[epIndex(address)]
	if slot.pending {
		return pkg.ErrTransferInProgress
	}
	if len(data) > len(slot.data) {
		return pkg.ErrBufferTooSmall
	}
	slot.n = copy(slot.data[:], data)
	slot.pending = true
	return nil
}

// StartOut arms an OUT endpoint to receive into buf.
func (b *Bus) StartOut(address uint8, buf []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.configured(address) || address&0x80 != 0 {
		return pkg.ErrInvalidEndpoint
	}
	slot := &b.out[epIndex(address)]
	if slot.armed {
		return pkg.ErrTransferInProgress
	}
	slot.buf = buf
	slot.armed = true
	return nil
}

// Stall halts a data endpoint.
func (b *Bus) Stall(address uint8) error {
	return b.setHalt(address, true)
}

// ClearStall clears a data endpoint halt.
func (b *Bus) ClearStall(address uint8) error {
	return b.setHalt(address, false)
}

func (b *Bus) setHalt(address uint8, halt bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.configured(address) {
		return pkg.ErrInvalidEndpoint
	}
	b.halted[epIndex(address)] = halt
	return nil
}

func (b *Bus) configured(address uint8) bool {
	return slices.ContainsFunc(b.endpoints[:b.numEPs], func(ep hal.EndpointConfig) bool {
		return ep.Address == address
	})
}

// Host side

// Reset drives a bus reset. Latched events, the current control transfer
// and every data transfer are discarded, as the controller does on reset.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.head, b.count = 0, 0
	b.status = ControlPending
	b.ctrlInLen, b.numPackets = 0, 0
	b.address = 0
	b.numEPs = 0
	b.in = [maxEndpoints]inSlot{}
	b.out = [maxEndpoints]outSlot{}
	b.halted = [maxEndpoints]bool{}
	b.push(hal.Event{Type: hal.EventReset, Speed: hal.SpeedFull})
	w := b.waker
	b.mu.Unlock()

	raise(w)
}

// Setup starts a control transfer. data is the OUT data stage, if any.
func (b *Bus) Setup(setup hal.SetupPacket, data []byte) error {
	if len(data) > MaxControlData {
		return pkg.ErrBufferTooSmall
	}

	// Drop a completion left over from an earlier transfer.
	select {
	case <-b.ctrlDone:
	default:
	}

	b.mu.Lock()
	if b.count == MaxEvents {
		b.mu.Unlock()
		return pkg.ErrNoResources
	}
	i := (b.head + b.count) % MaxEvents
	b.setupLen[i] = copy(b.setupData[i][:], data)
	b.status = ControlPending
	b.ctrlInLen = 0
	b.numPackets = 0
	b.push(hal.Event{Type: hal.EventSetup, Setup: setup})
	w := b.waker
	b.mu.Unlock()

	raise(w)
	return nil
}

// ControlResult returns the status of the current control transfer and the
// IN data the device has sent so far.
func (b *Bus) ControlResult() (ControlStatus, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, slices.Clone(b.ctrlIn[:b.ctrlInLen])
}

// Packets returns the sizes of the IN packets sent in the current control
// transfer.
func (b *Bus) Packets() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.packets[:b.numPackets])
}

// WaitControl blocks until the device completes or stalls the current
// control transfer.
func (b *Bus) WaitControl(ctx context.Context) error {
	select {
	case <-b.ctrlDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver sends data to an OUT endpoint. Returns pkg.ErrInvalidState if the
// endpoint is not armed (the host would see NAK) and pkg.ErrStall if it is
// halted.
func (b *Bus) Deliver(address uint8, data []byte) (int, error) {
	b.mu.Lock()
	if !b.configured(address) || address&0x80 != 0 {
		b.mu.Unlock()
		return 0, pkg.ErrInvalidEndpoint
	}
	i := epIndex(address)
	if b.halted[i] {
		b.mu.Unlock()
		return 0, pkg.ErrStall
	}
	slot := &b.out[i]
	if !slot.armed {
		b.mu.Unlock()
		return 0, pkg.ErrInvalidState
	}
	if b.count == MaxEvents {
		b.mu.Unlock()
		return 0, pkg.ErrNoResources
	}
	n := copy(slot.buf, data)
	slot.armed = false
	slot.buf = nil
	b.push(hal.Event{Type: hal.EventTransferComplete, Endpoint: address, Length: n})
	w := b.waker
	b.mu.Unlock()

	raise(w)
	return n, nil
}

// Collect takes the packet pending on an IN endpoint. Returns false if the
// device has not queued one.
func (b *Bus) Collect(address uint8) ([]byte, bool) {
	b.mu.Lock()
	i := epIndex(address)
	slot := &b.in[i]
	if address&0x80 == 0 || !slot.pending || b.halted[i] || b.count == MaxEvents {
		b.mu.Unlock()
		return nil, false
	}
	data := slices.Clone(slot.data[:slot.n])
	slot.pending = false
	b.push(hal.Event{Type: hal.EventTransferComplete, Endpoint: address, Length: len(data)})
	w := b.waker
	b.mu.Unlock()

	raise(w)
	return data, true
}

// Suspend signals bus idle.
func (b *Bus) Suspend() error {
	return b.signal(hal.EventSuspend)
}

// Resume signals bus activity after suspend.
func (b *Bus) Resume() error {
	return b.signal(hal.EventResume)
}

func (b *Bus) signal(t hal.EventType) error {
	b.mu.Lock()
	if b.count == MaxEvents {
		b.mu.Unlock()
		return pkg.ErrNoResources
	}
	b.push(hal.Event{Type: t})
	w := b.waker
	b.mu.Unlock()

	raise(w)
	return nil
}

// Address returns the address the device applied.
func (b *Bus) Address() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.address
}

// Endpoints returns the active endpoint configuration.
func (b *Bus) Endpoints() []hal.EndpointConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.endpoints[:b.numEPs])
}

// Halted reports whether a data endpoint is halted.
func (b *Bus) Halted(address uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted[epIndex(address)]
}

// Armed reports whether an OUT endpoint is ready to receive.
func (b *Bus) Armed(address uint8) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out[epIndex(address)].armed
}

// Pending returns the number of latched events.
func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// push appends an event. Must be called with b.mu held and room in the queue.
func (b *Bus) push(ev hal.Event) {
	b.events[(b.head+b.count)%MaxEvents] = ev
	b.count++
}

func raise(w hal.Waker) {
	if w != nil {
		w.Raise()
	}
}
