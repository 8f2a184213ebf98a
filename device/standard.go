package device

import (
	"encoding/binary"

	"github.com/ardnew/softusb/pkg"
)

// Status bits returned by GET_STATUS.
const (
	StatusSelfPowered  = 1 << 0 // Device: self-powered
	StatusRemoteWakeup = 1 << 1 // Device: remote wakeup enabled
	StatusHalt         = 1 << 0 // Endpoint: halted
)

// handleStandard dispatches a chapter 9 request by recipient. Only
// SET_ADDRESS and GET_DESCRIPTOR are accepted in the Default state.
func (d *Device) handleStandard(setup *SetupPacket) Response {
	switch setup.Request {
	case RequestSetAddress:
		if setup.Recipient() != RequestRecipientDevice {
			return Stall()
		}
		return d.setAddress(setup)
	case RequestGetDescriptor:
		if setup.Recipient() != RequestRecipientDevice {
			return Stall()
		}
		return d.getDescriptor(setup)
	}

	if d.state == StateDefault {
		return Stall()
	}

	switch setup.Recipient() {
	case RequestRecipientDevice:
		return d.handleDeviceRequest(setup)
	case RequestRecipientInterface:
		return d.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return d.handleEndpointRequest(setup)
	default:
		return Stall()
	}
}

func (d *Device) handleDeviceRequest(setup *SetupPacket) Response {
	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if d.desc.Config().SelfPowered {
			status |= StatusSelfPowered
		}
		if d.remoteWakeup {
			status |= StatusRemoteWakeup
		}
		return d.status(status, setup.Length)

	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureDeviceRemoteWakeup || !d.desc.Config().RemoteWakeup {
			return Stall()
		}
		d.remoteWakeup = setup.Request == RequestSetFeature
		return Accept()

	case RequestGetConfiguration:
		d.ctrl[0] = d.configuration
		return DataResponse(d.ctrl[:1], setup.Length)

	case RequestSetConfiguration:
		return d.setConfiguration(setup)

	default:
		return Stall()
	}
}

func (d *Device) handleInterfaceRequest(setup *SetupPacket) Response {
	if d.state != StateConfigured || !d.class.OwnsInterface(setup.InterfaceNumber()) {
		return Stall()
	}

	switch setup.Request {
	case RequestGetStatus:
		return d.status(0, setup.Length)
	case RequestGetInterface:
		d.ctrl[0] = 0
		return DataResponse(d.ctrl[:1], setup.Length)
	case RequestSetInterface:
		if setup.Value != 0 {
			return Stall()
		}
		return Accept()
	default:
		return Stall()
	}
}

func (d *Device) handleEndpointRequest(setup *SetupPacket) Response {
	addr := setup.EndpointAddress()

	// EP0 is always addressable and never halts.
	var ep *EndpointState
	if addr&0x0F != 0 {
		if d.state != StateConfigured {
			return Stall()
		}
		if ep = d.class.Endpoint(addr); ep == nil {
			return Stall()
		}
	}

	switch setup.Request {
	case RequestGetStatus:
		var status uint16
		if ep != nil && ep.Halted() {
			status = StatusHalt
		}
		return d.status(status, setup.Length)

	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return Stall()
		}
		if ep != nil {
			ep.SetHalted(setup.Request == RequestSetFeature)
		}
		return Accept()

	default:
		return Stall()
	}
}

func (d *Device) setAddress(setup *SetupPacket) Response {
	addr := setup.Value
	if addr == 0 || addr > MaxAddress {
		return Stall()
	}
	switch d.state {
	case StateDefault:
		d.address = uint8(addr)
		d.setState(StateAddressed)
	case StateAddressed:
		d.address = uint8(addr)
	default:
		return Stall()
	}
	return Accept()
}

func (d *Device) setConfiguration(setup *SetupPacket) Response {
	switch setup.Value {
	case 0:
		d.configuration = 0
		d.setState(StateAddressed)
	case ConfigurationValue:
		d.configuration = ConfigurationValue
		if d.state == StateConfigured {
			// Selecting the active configuration again returns its
			// endpoints to their defaults.
			d.class.Configure(true)
			pkg.LogDebug(pkg.ComponentDevice, "configuration reselected")
			break
		}
		d.setState(StateConfigured)
	default:
		return Stall()
	}
	return Accept()
}

func (d *Device) getDescriptor(setup *SetupPacket) Response {
	var data []byte
	switch setup.DescriptorType() {
	case DescriptorTypeDevice:
		data = d.desc.Device()
	case DescriptorTypeConfiguration:
		if setup.DescriptorIndex() == 0 {
			data = d.desc.Configuration()
		}
	case DescriptorTypeString:
		data = d.desc.String(setup.DescriptorIndex(), d.ctrl)
	case DescriptorTypeBOS:
		data = d.desc.BOS()
	}
	if len(data) == 0 {
		return Stall()
	}
	return DataResponse(data, setup.Length)
}

func (d *Device) status(status, wLength uint16) Response {
	binary.LittleEndian.PutUint16(d.ctrl[:2], status)
	return DataResponse(d.ctrl[:2], wLength)
}
