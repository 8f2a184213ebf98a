package cdc

// State is the mutable class state. The image places it in static storage
// and hands it to [New]; the ACM function is its only user afterwards.
type State struct {
	lineCoding   LineCoding
	controlLines uint16
	breakMillis  uint16
	serialState  uint16

	// Bytes received on the bulk OUT endpoint. rx[rxOff:rxLen] is unread.
	rx    []byte
	rxLen int
	rxOff int

	tx [MaxPacketSize]byte

	// Notification in flight; sent in NotifyPacketSize chunks.
	notify    [SerialStateNotificationSize]byte
	notifyLen int
	notifyOff int
}

// NewState returns power-on class state receiving into rx.
func NewState(rx []byte) State {
	s := State{rx: rx}
	s.reset()
	return s
}

// reset restores the power-on line coding and clears the control lines and
// any buffered data.
func (s *State) reset() {
	s.lineCoding = DefaultLineCoding
	s.controlLines = 0
	s.breakMillis = 0
	s.serialState = 0
	s.rxLen, s.rxOff = 0, 0
	s.notifyLen, s.notifyOff = 0, 0
}
