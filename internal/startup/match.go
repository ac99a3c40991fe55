package startup

import (
	"strings"

	"github.com/jezek/xgb/xproto"
)

// WindowInfo contains the identity attributes of a managed window that are
// used to match it against startup sequences.
type WindowInfo struct {
	Window xproto.Window

	// The _NET_STARTUP_ID of the window or its group leader.
	StartupID string

	// The two halves of WM_CLASS.
	ResName  string
	ResClass string

	Pid      int
	Hostname string
	Command  []string

	UserTime    uint32
	HasUserTime bool
}

// match finds the sequence for a window. The heuristics are tried in a fixed
// order and the first hit wins.
func (t *Tracker) match(info *WindowInfo) *Sequence {
	if info.StartupID != "" {
		if seq, ok := t.sequences[info.StartupID]; ok {
			return seq
		}
	}

	if seq := t.find(func(s *Sequence) bool {
		class, ok := s.Fields.Get(FieldWmclass)
		return ok && class != "" && (class == info.ResName || class == info.ResClass)
	}); seq != nil {
		return seq
	}

	if info.Pid > 0 && info.Hostname != "" {
		if seq := t.find(func(s *Sequence) bool {
			return s.Fields.Has(FieldPid) &&
				s.Fields.Has(FieldHostname) &&
				s.Fields.Pid == info.Pid &&
				s.Fields.Value(FieldHostname) == info.Hostname
		}); seq != nil {
			return seq
		}
	}

	if cmd := JoinCommand(info.Command); cmd != "" {
		if seq := t.find(func(s *Sequence) bool {
			c, ok := s.Fields.Get(FieldCommand)
			return ok && c == cmd
		}); seq != nil {
			return seq
		}
	}

	if info.HasUserTime {
		return t.find(func(s *Sequence) bool {
			return s.Fields.Has(FieldTimestamp) && s.Fields.Timestamp == info.UserTime
		})
	}
	return nil
}

// find returns the oldest unmatched, incomplete sequence satisfying pred.
func (t *Tracker) find(pred func(*Sequence) bool) *Sequence {
	for _, id := range t.order {
		seq := t.sequences[id]
		if seq.attached || seq.State == StateComplete {
			continue
		}
		if pred(seq) {
			return seq
		}
	}
	return nil
}

// JoinCommand builds the normalized command line used for matching against
// the COMMAND field. Arguments containing spaces or quotes are quoted, with
// embedded quotes escaped.
func JoinCommand(argv []string) string {
	var b strings.Builder
	for i, arg := range argv {
		if i > 0 {
			b.WriteByte(' ')
		}
		if !strings.ContainsAny(arg, " \"") {
			b.WriteString(arg)
			continue
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(arg, `"`, `\"`))
		b.WriteByte('"')
	}
	return b.String()
}
