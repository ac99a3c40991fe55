package startup

import (
	"time"

	"github.com/jezek/xgb/xproto"
)

// State is the protocol state of a startup sequence.
type State int

const (
	// StateIdle sequences were registered from a window's _NET_STARTUP_ID
	// before any message about them arrived.
	StateIdle State = iota
	StateNew
	StateChanged
	StateComplete
)

var stateNames = []string{"idle", "new", "changed", "complete"}

func (s State) String() string {
	return stateNames[s]
}

// Sequence tracks a single application launch.
type Sequence struct {
	Fields Fields
	State  State

	// The window the sequence has been matched to. The tracker does not own
	// the window.
	window   xproto.Window
	attached bool

	// Whether the sequence is still in the tracker's live collection.
	live bool

	created time.Time
	updated time.Time
}

// ID returns the startup ID of the sequence.
func (s *Sequence) ID() string {
	return s.Fields.Value(FieldID)
}

// Window returns the window the sequence is matched to, if any.
func (s *Sequence) Window() (xproto.Window, bool) {
	return s.window, s.attached
}

// Live returns whether the sequence is still in the live collection. A
// completed sequence stays reachable from its window until the window is
// unmanaged.
func (s *Sequence) Live() bool {
	return s.live
}

// shouldAutoRemove reports whether a matched sequence should be completed
// straight away. An unset SILENT counts as not silent.
func (s *Sequence) shouldAutoRemove() bool {
	class, ok := s.Fields.Get(FieldWmclass)
	if !ok || class == "" {
		return false
	}
	return !s.Fields.Has(FieldSilent) || s.Fields.Silent != 0
}

// SequenceInfo is a point-in-time copy of a sequence for display.
type SequenceInfo struct {
	ID       string
	State    State
	Window   xproto.Window
	Attached bool
	Live     bool
	Fields   map[string]string
	Age      time.Duration
}
