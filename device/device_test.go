package device

import (
	"testing"
)

func newTestDevice(t *testing.T, cfg Config) (*Device, *fakeClass) {
	t.Helper()
	c := newFakeClass()
	d := NewDevice(buildDescriptors(t, cfg, c))
	d.Reset()
	return d, c
}

func setupPacket(requestType, request uint8, value, index, length uint16) *SetupPacket {
	return &SetupPacket{
		RequestType: requestType,
		Request:     request,
		Value:       value,
		Index:       index,
		Length:      length,
	}
}

func setAddress(addr uint16) *SetupPacket {
	return setupPacket(0x00, RequestSetAddress, addr, 0, 0)
}

func setConfiguration(value uint16) *SetupPacket {
	return setupPacket(0x00, RequestSetConfiguration, value, 0, 0)
}

// enterState drives a freshly reset device into s.
func enterState(t *testing.T, d *Device, s State) {
	t.Helper()
	if s >= StateAddressed {
		if resp := d.HandleSetup(setAddress(5), nil); resp.Kind != ResponseAccept {
			t.Fatalf("SET_ADDRESS(5) = %v, want accept", resp.Kind)
		}
	}
	if s >= StateConfigured {
		if resp := d.HandleSetup(setConfiguration(1), nil); resp.Kind != ResponseAccept {
			t.Fatalf("SET_CONFIGURATION(1) = %v, want accept", resp.Kind)
		}
	}
}

func TestDeviceTransitions(t *testing.T) {
	tests := []struct {
		name        string
		from        State
		setup       *SetupPacket
		wantKind    ResponseKind
		wantState   State
		wantAddress uint8
	}{
		{"default set address", StateDefault, setAddress(7), ResponseAccept, StateAddressed, 7},
		{"default set address zero", StateDefault, setAddress(0), ResponseStall, StateDefault, 0},
		{"default set address out of range", StateDefault, setAddress(128), ResponseStall, StateDefault, 0},
		{"default set configuration", StateDefault, setConfiguration(1), ResponseStall, StateDefault, 0},
		{"addressed readdress", StateAddressed, setAddress(9), ResponseAccept, StateAddressed, 9},
		{"addressed configure", StateAddressed, setConfiguration(1), ResponseAccept, StateConfigured, 5},
		{"addressed configure zero", StateAddressed, setConfiguration(0), ResponseAccept, StateAddressed, 5},
		{"addressed bad configuration", StateAddressed, setConfiguration(2), ResponseStall, StateAddressed, 5},
		{"configured deconfigure", StateConfigured, setConfiguration(0), ResponseAccept, StateAddressed, 5},
		{"configured reconfigure", StateConfigured, setConfiguration(1), ResponseAccept, StateConfigured, 5},
		{"configured set address", StateConfigured, setAddress(9), ResponseStall, StateConfigured, 5},
		{"configured bad configuration", StateConfigured, setConfiguration(3), ResponseStall, StateConfigured, 5},
		{"vendor request", StateConfigured, setupPacket(0x40, 0x01, 0, 0, 0), ResponseStall, StateConfigured, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newTestDevice(t, DefaultConfig())
			enterState(t, d, tt.from)

			resp := d.HandleSetup(tt.setup, nil)
			if resp.Kind != tt.wantKind {
				t.Errorf("HandleSetup() = %v, want %v", resp.Kind, tt.wantKind)
			}
			if d.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", d.State(), tt.wantState)
			}
			if d.Address() != tt.wantAddress {
				t.Errorf("Address() = %d, want %d", d.Address(), tt.wantAddress)
			}
		})
	}
}

func TestDeviceConfigureNotifiesClass(t *testing.T) {
	d, c := newTestDevice(t, DefaultConfig())
	enterState(t, d, StateConfigured)

	if !c.active {
		t.Fatal("class inactive after SET_CONFIGURATION(1)")
	}
	if d.Configuration() != ConfigurationValue || !d.IsConfigured() {
		t.Errorf("Configuration() = %d, IsConfigured() = %v", d.Configuration(), d.IsConfigured())
	}

	d.HandleSetup(setConfiguration(0), nil)
	if c.active {
		t.Error("class active after SET_CONFIGURATION(0)")
	}
	if d.Configuration() != 0 {
		t.Errorf("Configuration() = %d, want 0", d.Configuration())
	}
}

func TestDeviceReselectConfiguration(t *testing.T) {
	d, c := newTestDevice(t, DefaultConfig())
	enterState(t, d, StateConfigured)
	c.ep.SetHalted(true)

	if resp := d.HandleSetup(setConfiguration(ConfigurationValue), nil); resp.Kind != ResponseAccept {
		t.Fatalf("SET_CONFIGURATION(1) = %v, want %v", resp.Kind, ResponseAccept)
	}
	if d.State() != StateConfigured || !c.active {
		t.Errorf("State() = %v, active = %v, want %v, true", d.State(), c.active, StateConfigured)
	}
	if c.ep.Halted() {
		t.Error("endpoint still halted after reselecting the configuration")
	}
}

func TestDeviceReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemoteWakeup = true
	d, c := newTestDevice(t, cfg)
	enterState(t, d, StateConfigured)
	d.HandleSetup(setupPacket(0x00, RequestSetFeature, FeatureDeviceRemoteWakeup, 0, 0), nil)
	c.ep.SetHalted(true)

	type snapshot struct {
		state         State
		address       uint8
		configuration uint8
		wakeup        bool
		active        bool
		halted        bool
	}
	snap := func() snapshot {
		return snapshot{d.State(), d.Address(), d.Configuration(), d.RemoteWakeup(), c.active, c.ep.Halted()}
	}

	d.Reset()
	once := snap()
	d.Reset()
	twice := snap()

	if once != twice {
		t.Errorf("second Reset() changed state: %+v, want %+v", twice, once)
	}
	if once.state != StateDefault || once.address != 0 || once.configuration != 0 {
		t.Errorf("after Reset: state %v address %d configuration %d", once.state, once.address, once.configuration)
	}
	if once.wakeup || once.active || once.halted {
		t.Errorf("after Reset: wakeup %v active %v halted %v, want all false", once.wakeup, once.active, once.halted)
	}
}

func TestDeviceStateCallback(t *testing.T) {
	d, _ := newTestDevice(t, DefaultConfig())

	type change struct{ from, to State }
	var got []change
	d.SetOnStateChange(func(old, new State) {
		got = append(got, change{old, new})
	})

	enterState(t, d, StateConfigured)
	d.HandleSetup(setConfiguration(1), nil)
	d.Reset()
	d.Reset()

	want := []change{
		{StateDefault, StateAddressed},
		{StateAddressed, StateConfigured},
		{StateConfigured, StateDefault},
	}
	if len(got) != len(want) {
		t.Fatalf("callback fired %d times, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDeviceClassRequests(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		setup    *SetupPacket
		data     []byte
		wantKind ResponseKind
		wantData string
	}{
		{"echo", StateConfigured, setupPacket(0xA1, fakeRequestEcho, 0, 0, 8), nil, ResponseData, "ok"},
		{"echo truncated", StateConfigured, setupPacket(0xA1, fakeRequestEcho, 0, 0, 1), nil, ResponseData, "o"},
		{"store", StateConfigured, setupPacket(0x21, fakeRequestStore, 0, 0, 3), []byte("abc"), ResponseAccept, ""},
		{"unknown request", StateConfigured, setupPacket(0xA1, 0x7F, 0, 0, 8), nil, ResponseStall, ""},
		{"foreign interface", StateConfigured, setupPacket(0xA1, fakeRequestEcho, 0, 1, 8), nil, ResponseStall, ""},
		{"device recipient", StateConfigured, setupPacket(0xA0, fakeRequestEcho, 0, 0, 8), nil, ResponseStall, ""},
		{"addressed", StateAddressed, setupPacket(0xA1, fakeRequestEcho, 0, 0, 8), nil, ResponseStall, ""},
		{"default", StateDefault, setupPacket(0xA1, fakeRequestEcho, 0, 0, 8), nil, ResponseStall, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, c := newTestDevice(t, DefaultConfig())
			enterState(t, d, tt.from)

			resp := d.HandleSetup(tt.setup, tt.data)
			if resp.Kind != tt.wantKind {
				t.Fatalf("HandleSetup() = %v, want %v", resp.Kind, tt.wantKind)
			}
			if string(resp.Data) != tt.wantData {
				t.Errorf("Data = %q, want %q", resp.Data, tt.wantData)
			}
			if tt.data != nil && string(c.stored) != string(tt.data) {
				t.Errorf("class stored %q, want %q", c.stored, tt.data)
			}
		})
	}
}
