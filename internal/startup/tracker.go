// Package startup implements tracking of freedesktop.org startup
// notification sequences: reassembly of the segmented client messages they
// are carried in, the new/change/remove state machine, and matching of
// sequences to newly managed windows.
package startup

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/etwm/sntrack/internal/log"
	"github.com/jezek/xgb/xproto"
	"golang.org/x/exp/slices"
)

// Transport sends startup notification messages and reports the destruction
// of source windows.
type Transport interface {
	// SendChunk broadcasts a single client message payload.
	SendChunk(kind ChunkKind, data [ChunkSize]byte) error

	// WatchDestroy asks to be told when the given window is destroyed.
	WatchDestroy(win xproto.Window) error
}

// Hooks is notified about the association between sequences and windows.
type Hooks interface {
	// SequenceApplied is called whenever a sequence is matched to a window
	// or updated while matched, so that hints such as DESKTOP can be
	// applied to it.
	SequenceApplied(win xproto.Window, f *Fields)

	// SequenceRemoved is called when a window loses its sequence.
	SequenceRemoved(win xproto.Window)
}

// Options contains the tunables of a Tracker.
type Options struct {
	Screen int

	// Unmatched sequences which have not been updated for this long are
	// removed by Sweep. Zero disables the timeout.
	Timeout time.Duration

	// Whether Sweep should remove unmatched sequences whose PID no longer
	// exists on this host.
	CheckPid bool

	// The local hostname, used to decide whether a sequence's PID can be
	// checked.
	Hostname string

	Logger *log.Logger
	Now    func() time.Time
}

// association links a managed window to its sequence.
type association struct {
	info WindowInfo
	seq  *Sequence
}

// broadcast modes for applyWindow
const (
	sendNever = iota
	sendIfChanged
	sendAlways
)

// Tracker holds the startup sequences and reassembly channels of a single
// screen. It is not safe for concurrent use; all methods are expected to be
// called from the event loop.
type Tracker struct {
	transport Transport
	hooks     Hooks
	log       *log.Logger
	now       func() time.Time

	screen   int
	timeout  time.Duration
	checkPid bool
	hostname string

	order     []string
	sequences map[string]*Sequence
	windows   map[xproto.Window]*association
	channels  map[xproto.Window]*channel
}

// NewTracker creates a Tracker which sends messages over the given transport.
// hooks may be nil.
func NewTracker(transport Transport, hooks Hooks, opts Options) *Tracker {
	if hooks == nil {
		hooks = nopHooks{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		transport: transport,
		hooks:     hooks,
		log:       opts.Logger,
		now:       opts.Now,
		screen:    opts.Screen,
		timeout:   opts.Timeout,
		checkPid:  opts.CheckPid,
		hostname:  opts.Hostname,
		sequences: make(map[string]*Sequence),
		windows:   make(map[xproto.Window]*association),
		channels:  make(map[xproto.Window]*channel),
	}
}

// SetTimeout updates the sweep settings.
func (t *Tracker) SetTimeout(timeout time.Duration, checkPid bool) {
	t.timeout = timeout
	t.checkPid = checkPid
}

// Process handles a complete startup notification message. Malformed
// messages and messages about unknown sequences are dropped.
func (t *Tracker) Process(msg string) {
	cmd, err := ParseCommand(msg)
	if err != nil {
		t.log.Debug("Dropping startup message %q: %s", msg, err)
		return
	}
	t.handle(&cmd)
}

func (t *Tracker) handle(cmd *Command) {
	id := cmd.Fields.Value(FieldID)
	seq := t.sequences[id]
	if seq == nil {
		if cmd.Verb != VerbNew {
			t.log.Verbose("Dropping %s for unknown sequence %q", cmd.Verb, id)
			return
		}
		t.insert(cmd.Fields, StateNew)
		t.log.Info("New startup sequence %q", id)
		return
	}

	if cmd.Verb == VerbRemove {
		t.log.Info("Startup sequence %q removed", id)
		t.complete(seq)
		return
	}

	switch {
	case seq.State == StateIdle && cmd.Verb == VerbNew:
		seq.Fields = cmd.Fields
		seq.State = StateNew
	case seq.State == StateIdle:
		seq.Fields = cmd.Fields
		seq.State = StateChanged
	default:
		if cmd.derivedTimestamp && seq.Fields.Has(FieldTimestamp) {
			cmd.Fields.Delete(FieldTimestamp)
		}
		seq.Fields.Merge(&cmd.Fields)
		seq.State = StateChanged
	}
	seq.updated = t.now()
	t.log.Debug("Startup sequence %q is now %s", id, seq.State)
	if seq.attached {
		t.applyWindow(seq, sendAlways)
	}
}

// Announce registers a sequence started by this process and broadcasts a new
// message for it.
func (t *Tracker) Announce(f *Fields) error {
	id, ok := f.Get(FieldID)
	if !ok {
		return ErrMissingID
	}
	if _, ok := t.sequences[id]; ok {
		return fmt.Errorf("sequence %q already exists", id)
	}
	seq := t.insert(*f, StateNew)
	return t.send(VerbNew, seq)
}

// Amend merges fields into a live sequence and broadcasts a change message
// carrying its full field set.
func (t *Tracker) Amend(f *Fields) error {
	id, ok := f.Get(FieldID)
	if !ok {
		return ErrMissingID
	}
	seq, ok := t.sequences[id]
	if !ok {
		return fmt.Errorf("no sequence %q", id)
	}
	seq.Fields.Merge(f)
	seq.State = StateChanged
	seq.updated = t.now()
	return t.send(VerbChange, seq)
}

// Cancel completes a live sequence and broadcasts a remove message for it.
func (t *Tracker) Cancel(id string) error {
	seq, ok := t.sequences[id]
	if !ok {
		return fmt.Errorf("no sequence %q", id)
	}
	err := t.send(VerbRemove, seq)
	t.complete(seq)
	return err
}

// Manage looks for a sequence matching a newly managed window and associates
// it with the window. A sequence named by the window's startup ID is taken
// from any window that already holds it. A window that names a startup ID the
// tracker has not seen yet gets an idle sequence so later messages can still
// reach it.
func (t *Tracker) Manage(info WindowInfo) (*Sequence, bool) {
	return t.manage(info, true)
}

// Refresh updates the known attributes of a managed window. If the window
// already has a sequence, the sequence is completed from the new attributes
// without broadcasting anything. Otherwise matching is attempted again, but
// a sequence held by another window is left where it is.
func (t *Tracker) Refresh(info WindowInfo) {
	a, ok := t.windows[info.Window]
	if !ok {
		t.manage(info, false)
		return
	}
	a.info = info
	t.applyWindow(a.seq, sendNever)
}

func (t *Tracker) manage(info WindowInfo, steal bool) (*Sequence, bool) {
	if a, ok := t.windows[info.Window]; ok {
		a.info = info
		return a.seq, true
	}

	seq := t.match(&info)
	if seq == nil {
		if info.StartupID == "" {
			return nil, false
		}
		f := Fields{}
		f.Set(FieldID, info.StartupID)
		if ts := timestampFromID(info.StartupID); ts != "" {
			f.Set(FieldTimestamp, ts)
		}
		seq = t.insert(f, StateIdle)
		t.log.Debug("Registered idle sequence %q for 0x%x", info.StartupID, info.Window)
	}

	if seq.attached {
		if !steal {
			return nil, false
		}
		old := seq.window
		t.log.Debug("Moving sequence %q from 0x%x to 0x%x", seq.ID(), old, info.Window)
		delete(t.windows, old)
		t.hooks.SequenceRemoved(old)
	}
	seq.window = info.Window
	seq.attached = true
	t.windows[info.Window] = &association{info, seq}
	t.log.Info("Matched startup sequence %q to 0x%x", seq.ID(), info.Window)
	t.applyWindow(seq, sendIfChanged)
	return seq, true
}

// Unmanage releases the sequence associated with a window. The sequence
// returns to being unmatched unless it has already completed, in which case
// it is dropped.
func (t *Tracker) Unmanage(win xproto.Window) {
	a, ok := t.windows[win]
	if !ok {
		return
	}
	delete(t.windows, win)
	a.seq.attached = false
	a.seq.window = 0
	t.hooks.SequenceRemoved(win)
	if !a.seq.live {
		t.log.Debug("Released completed sequence %q", a.seq.ID())
	}
}

// Lookup returns the live sequence with the given ID.
func (t *Tracker) Lookup(id string) (*Sequence, bool) {
	seq, ok := t.sequences[id]
	return seq, ok
}

// SequenceFor returns the sequence associated with a window.
func (t *Tracker) SequenceFor(win xproto.Window) (*Sequence, bool) {
	a, ok := t.windows[win]
	if !ok {
		return nil, false
	}
	return a.seq, true
}

// Len returns the number of live sequences.
func (t *Tracker) Len() int {
	return len(t.order)
}

// Snapshot returns the live sequences in creation order, followed by any
// completed sequences still held by a window.
func (t *Tracker) Snapshot() []SequenceInfo {
	now := t.now()
	infos := make([]SequenceInfo, 0, len(t.order))
	for _, id := range t.order {
		infos = append(infos, t.info(t.sequences[id], now))
	}
	var held []SequenceInfo
	for _, a := range t.windows {
		if !a.seq.live {
			held = append(held, t.info(a.seq, now))
		}
	}
	sort.Slice(held, func(i, j int) bool {
		return held[i].Window < held[j].Window
	})
	return append(infos, held...)
}

func (t *Tracker) info(seq *Sequence, now time.Time) SequenceInfo {
	return SequenceInfo{
		ID:       seq.ID(),
		State:    seq.State,
		Window:   seq.window,
		Attached: seq.attached,
		Live:     seq.live,
		Fields:   seq.Fields.Map(),
		Age:      now.Sub(seq.created),
	}
}

// applyWindow runs the window side of an update to a matched sequence:
// completion of missing fields from the window, the apply hook, the
// auto-removal policy and, depending on mode, a change broadcast.
func (t *Tracker) applyWindow(seq *Sequence, mode int) {
	a := t.windows[seq.window]
	changed := t.completeFields(seq, &a.info)
	t.hooks.SequenceApplied(seq.window, &seq.Fields)
	if seq.State == StateComplete || seq.State == StateIdle {
		return
	}
	if seq.shouldAutoRemove() {
		t.log.Info("Startup sequence %q finished on 0x%x", seq.ID(), seq.window)
		if err := t.send(VerbRemove, seq); err != nil {
			t.log.Warn("Failed to send remove for %q: %s", seq.ID(), err)
		}
		t.complete(seq)
		return
	}
	if mode == sendAlways || (mode == sendIfChanged && changed) {
		if err := t.send(VerbChange, seq); err != nil {
			t.log.Warn("Failed to send change for %q: %s", seq.ID(), err)
		}
	}
}

// completeFields fills fields the sequence is missing from what is known
// about its window. It returns whether anything was added.
func (t *Tracker) completeFields(seq *Sequence, info *WindowInfo) bool {
	f := &seq.Fields
	changed := false
	if !f.Has(FieldPid) && info.Pid > 0 {
		f.Set(FieldPid, strconv.Itoa(info.Pid))
		changed = true
	}
	if !f.Has(FieldHostname) && info.Hostname != "" {
		f.Set(FieldHostname, info.Hostname)
		changed = true
	}
	if !f.Has(FieldCommand) && len(info.Command) > 0 {
		f.Set(FieldCommand, JoinCommand(info.Command))
		changed = true
	}
	if !f.Has(FieldScreen) {
		f.Set(FieldScreen, strconv.Itoa(t.screen))
		changed = true
	}
	return changed
}

// insert adds a new sequence to the live collection.
func (t *Tracker) insert(f Fields, state State) *Sequence {
	now := t.now()
	seq := &Sequence{
		Fields:  f,
		State:   state,
		live:    true,
		created: now,
		updated: now,
	}
	id := seq.ID()
	t.sequences[id] = seq
	t.order = append(t.order, id)
	return seq
}

// complete moves a sequence to its terminal state and detaches it from the
// live collection. A matched sequence stays with its window.
func (t *Tracker) complete(seq *Sequence) {
	seq.State = StateComplete
	seq.updated = t.now()
	if !seq.live {
		return
	}
	seq.live = false
	id := seq.ID()
	delete(t.sequences, id)
	if idx := slices.Index(t.order, id); idx >= 0 {
		t.order = slices.Delete(t.order, idx, idx+1)
	}
}

// send encodes and transmits a message about the given sequence.
func (t *Tracker) send(verb Verb, seq *Sequence) error {
	msg := EncodeCommand(verb, &seq.Fields)
	t.log.Verbose("Sending startup message %q", msg)
	for i, chunk := range Chunks(msg) {
		kind := ChunkContinue
		if i == 0 {
			kind = ChunkBegin
		}
		if err := t.transport.SendChunk(kind, chunk); err != nil {
			return err
		}
	}
	return nil
}

type nopHooks struct{}

func (nopHooks) SequenceApplied(xproto.Window, *Fields) {}
func (nopHooks) SequenceRemoved(xproto.Window)          {}
