package device

import (
	"errors"
	"fmt"

	"github.com/ardnew/softusb/device/hal"
	"github.com/ardnew/softusb/executor"
	"github.com/ardnew/softusb/pkg"
)

// Stack is the USB device task. It waits on the transport's event signal
// and, each time it resumes, drains every latched event: bus resets, SETUP
// packets, data transfer completions, suspend and resume.
type Stack struct {
	dev *Device
	t   hal.Transport
	sig *executor.Signal

	// Scratch reused across events.
	ev    hal.Event
	setup SetupPacket
	eps   [MaxClassEndpoints]hal.EndpointConfig
}

// NewStack creates the device task for dev on transport t. sig is
// registered as the transport's waker and is the only signal the task
// awaits.
func NewStack(dev *Device, t hal.Transport, sig *executor.Signal) *Stack {
	t.SetWaker(sig)
	dev.Class().Bind(t)
	return &Stack{dev: dev, t: t, sig: sig}
}

// Device returns the device state machine.
func (s *Stack) Device() *Device {
	return s.dev
}

// Name implements executor.Task.
func (s *Stack) Name() string {
	return "usb"
}

// Poll implements executor.Task.
func (s *Stack) Poll(*executor.Context) *executor.Signal {
	for s.t.PollEvent(&s.ev) {
		s.handleEvent(&s.ev)
	}
	return s.sig
}

func (s *Stack) handleEvent(ev *hal.Event) {
	switch ev.Type {
	case hal.EventReset:
		s.dev.Reset()
		if err := s.t.ConfigureEndpoints(nil); err != nil {
			pkg.LogError(pkg.ComponentStack, "unconfigure endpoints", "error", err)
		}
		pkg.LogInfo(pkg.ComponentStack, "bus reset", "speed", ev.Speed.String())

	case hal.EventSetup:
		s.setup.FromHAL(&ev.Setup)
		s.handleSetup(&s.setup)

	case hal.EventTransferComplete:
		if !s.dev.IsConfigured() {
			pkg.LogDebug(pkg.ComponentStack, "completion while unconfigured",
				"endpoint", ev.Endpoint)
			return
		}
		s.dev.Class().TransferComplete(ev.Endpoint, ev.Length, ev.Status)

	case hal.EventSuspend, hal.EventResume:
		pkg.LogInfo(pkg.ComponentStack, "bus "+ev.Type.String(), "state", s.dev.State().String())

	default:
		pkg.LogWarn(pkg.ComponentStack, "unknown event", "type", uint8(ev.Type))
	}
}

// handleSetup runs one control transfer to completion.
func (s *Stack) handleSetup(setup *SetupPacket) {
	pkg.LogDebug(pkg.ComponentStack, "setup received", "request", setup.String())

	ctrl := s.dev.ControlBuffer()
	var data []byte
	if !setup.IsDeviceToHost() && setup.Length > 0 {
		if int(setup.Length) > len(ctrl) {
			s.stall(setup, fmt.Errorf("%w: wLength %d exceeds control buffer of %d bytes",
				pkg.ErrInvalidRequest, setup.Length, len(ctrl)))
			return
		}
		n, err := s.t.ReadEP0(ctrl[:setup.Length])
		if err != nil {
			s.stall(setup, err)
			return
		}
		data = ctrl[:n]
	}

	prev := s.dev.State()
	resp := s.dev.HandleSetup(setup, data)

	switch resp.Kind {
	case ResponseStall:
		s.stall(setup, pkg.ErrInvalidRequest)
		return
	case ResponseData:
		if !setup.IsDeviceToHost() {
			s.stall(setup, pkg.ErrProtocol)
			return
		}
		// wLength 0 means there is no data stage.
		if setup.Length > 0 {
			if _, err := ControlIn(resp.Data, s.dev.MaxPacketSize0(), setup.Length, s.t.WriteEP0); err != nil {
				s.stall(setup, err)
				return
			}
		}
	}
	if err := s.t.AckEP0(); err != nil {
		// The request is already committed to the device state. Bring the
		// hardware along so the two agree when the host retries.
		pkg.LogError(pkg.ComponentStack, "status stage failed",
			"request", setup.String(),
			"state", s.dev.State().String(),
			"error", err)
	}

	s.apply(setup, prev)
}

// apply carries out the hardware side of an accepted request.
func (s *Stack) apply(setup *SetupPacket, prev State) {
	if setup.Type() == RequestTypeStandard {
		switch setup.Request {
		case RequestSetAddress:
			if err := s.t.SetAddress(s.dev.Address()); err != nil {
				pkg.LogError(pkg.ComponentStack, "set address", "error", err)
			}
		case RequestSetFeature, RequestClearFeature:
			if setup.Recipient() == RequestRecipientEndpoint && setup.Value == FeatureEndpointHalt {
				s.applyHalt(setup.EndpointAddress(), setup.Request == RequestSetFeature)
			}
		}
	}

	reselected := setup.Type() == RequestTypeStandard && setup.Request == RequestSetConfiguration

	switch state := s.dev.State(); {
	case state == StateConfigured && (prev != StateConfigured || reselected):
		s.configure()
	case state == prev:
	case prev == StateConfigured:
		if err := s.t.ConfigureEndpoints(nil); err != nil {
			pkg.LogError(pkg.ComponentStack, "unconfigure endpoints", "error", err)
		}
	}
}

func (s *Stack) applyHalt(addr uint8, halt bool) {
	if addr&0x0F == 0 {
		return
	}
	var err error
	if halt {
		err = s.t.Stall(addr)
	} else {
		err = s.t.ClearStall(addr)
	}
	if err != nil {
		pkg.LogError(pkg.ComponentStack, "endpoint halt", "endpoint", addr, "halt", halt, "error", err)
		return
	}
	s.dev.Class().HaltChanged(addr, halt)
}

// configure activates the class endpoints in the transport and lets the
// class arm its OUT endpoints.
func (s *Stack) configure() {
	class := s.dev.Class()
	n := class.EndpointConfigs(s.eps[:])
	if err := s.t.ConfigureEndpoints(s.eps[:n]); err != nil {
		pkg.LogError(pkg.ComponentStack, "configure endpoints", "error", err)
		return
	}
	if err := class.Start(); err != nil {
		pkg.LogError(pkg.ComponentStack, "start class", "error", err)
	}
}

// stall ends a control transfer with a STALL handshake. A request the
// device rejects is routine and logged at debug level; any other cause is a
// failure on the device side.
func (s *Stack) stall(setup *SetupPacket, cause error) {
	if errors.Is(cause, pkg.ErrInvalidRequest) {
		pkg.LogDebug(pkg.ComponentStack, "request rejected",
			"request", setup.String(),
			"error", cause)
	} else {
		pkg.LogWarn(pkg.ComponentStack, "control transfer failed",
			"request", setup.String(),
			"error", cause)
	}
	if err := s.t.StallEP0(); err != nil {
		pkg.LogError(pkg.ComponentStack, "stall EP0", "error", err)
	}
}
