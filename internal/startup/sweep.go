package startup

import (
	"time"

	"golang.org/x/sys/unix"
)

// processAlive reports whether a process with the given PID exists.
var processAlive = func(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

// Sweep removes unmatched sequences which have timed out or whose launchee
// has exited, broadcasting a remove message for each, and discards partial
// messages that have been in flight for longer than the timeout. It returns
// the number of sequences removed.
func (t *Tracker) Sweep(now time.Time) int {
	var stale []*Sequence
	for _, id := range t.order {
		seq := t.sequences[id]
		if seq.attached {
			continue
		}
		if t.timeout > 0 && now.Sub(seq.updated) >= t.timeout {
			t.log.Info("Startup sequence %q timed out", id)
			stale = append(stale, seq)
		} else if t.checkPid && t.isLocal(seq) && !processAlive(seq.Fields.Pid) {
			t.log.Info("Launchee of startup sequence %q (pid %d) exited", id, seq.Fields.Pid)
			stale = append(stale, seq)
		}
	}
	for _, seq := range stale {
		if err := t.send(VerbRemove, seq); err != nil {
			t.log.Warn("Failed to send remove for %q: %s", seq.ID(), err)
		}
		t.complete(seq)
	}

	if t.timeout > 0 {
		for win, ch := range t.channels {
			if ch.inFlight && now.Sub(ch.started) >= t.timeout {
				t.log.Debug("Discarding stale partial message from 0x%x", win)
				ch.buf = ch.buf[:0]
				ch.inFlight = false
			}
		}
	}
	return len(stale)
}

// isLocal reports whether the sequence names a process on this host.
func (t *Tracker) isLocal(seq *Sequence) bool {
	if !seq.Fields.Has(FieldPid) || seq.Fields.Pid <= 0 {
		return false
	}
	host, ok := seq.Fields.Get(FieldHostname)
	return ok && t.hostname != "" && host == t.hostname
}

// Hostname returns the node name of this machine, as used in the HOSTNAME
// field and WM_CLIENT_MACHINE.
func Hostname() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(uts.Nodename[:]), nil
}
