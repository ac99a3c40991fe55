package startup

import (
	"bytes"
	"time"

	"github.com/jezek/xgb/xproto"
)

// ChunkKind distinguishes the first client message of a startup notification
// from its continuations.
type ChunkKind int

const (
	ChunkBegin ChunkKind = iota
	ChunkContinue
)

// channel reassembles the segmented message being sent by a single source
// window.
type channel struct {
	window   xproto.Window
	buf      []byte
	inFlight bool
	started  time.Time
}

// append adds a payload chunk to the buffer. It returns the complete message
// once a chunk shorter than ChunkSize (or containing a NUL) arrives.
func (c *channel) append(data []byte) (string, bool) {
	if idx := bytes.IndexByte(data, 0); idx >= 0 {
		c.buf = append(c.buf, data[:idx]...)
		return c.finish(), true
	}
	c.buf = append(c.buf, data...)
	if len(data) < ChunkSize {
		return c.finish(), true
	}
	return "", false
}

func (c *channel) finish() string {
	msg := string(c.buf)
	c.buf = c.buf[:0]
	c.inFlight = false
	return msg
}

// Begin starts a new message from the given source window, discarding any
// partial message the window had in flight. The first time a window is seen
// the transport is asked to report its destruction.
func (t *Tracker) Begin(win xproto.Window, data []byte) {
	ch, ok := t.channels[win]
	if !ok {
		ch = &channel{window: win}
		if err := t.transport.WatchDestroy(win); err != nil {
			t.log.Warn("Failed to watch startup source 0x%x: %s", win, err)
		}
		t.channels[win] = ch
	} else if ch.inFlight {
		t.log.Debug("Discarding partial startup message from 0x%x", win)
	}
	ch.buf = ch.buf[:0]
	ch.inFlight = true
	ch.started = t.now()
	t.feed(ch, data)
}

// Continue appends to the message in flight from the given source window.
// Continuations without a preceding Begin are dropped.
func (t *Tracker) Continue(win xproto.Window, data []byte) {
	ch, ok := t.channels[win]
	if !ok || !ch.inFlight {
		t.log.Verbose("Dropping out of sequence startup chunk from 0x%x", win)
		return
	}
	t.feed(ch, data)
}

// DestroyChannel tears down the channel for a destroyed source window, along
// with any partial message it held.
func (t *Tracker) DestroyChannel(win xproto.Window) {
	ch, ok := t.channels[win]
	if !ok {
		return
	}
	if ch.inFlight {
		t.log.Debug("Startup source 0x%x destroyed mid-message", win)
	}
	ch.buf = nil
	delete(t.channels, win)
}

func (t *Tracker) feed(ch *channel, data []byte) {
	if msg, done := ch.append(data); done {
		t.Process(msg)
	}
}
