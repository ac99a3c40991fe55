package ctl

import (
	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/startup"
	"github.com/jezek/xgb/xproto"
)

// hooks applies the hints carried by startup sequences to their windows.
type hooks struct {
	c *Controller

	// The desktop last requested for each window, so that repeated updates
	// of a sequence do not keep moving the window.
	desktops map[xproto.Window]int
}

func (h *hooks) SequenceApplied(win xproto.Window, f *startup.Fields) {
	log.Debug("Sequence %q applied to 0x%x", f.Value(startup.FieldID), win)
	if !h.c.conf.Tracker.ApplyDesktop || !f.Has(startup.FieldDesktop) {
		return
	}
	if last, ok := h.desktops[win]; ok && last == f.Desktop {
		return
	}
	h.desktops[win] = f.Desktop
	if err := h.c.x.SetWindowDesktop(win, uint32(f.Desktop)); err != nil {
		log.Error("Failed to move 0x%x to desktop %d: %s", win, f.Desktop, err)
		return
	}
	log.Info("Moved 0x%x to desktop %d", win, f.Desktop)
}

func (h *hooks) SequenceRemoved(win xproto.Window) {
	log.Debug("Sequence released from 0x%x", win)
	delete(h.desktops, win)
}
