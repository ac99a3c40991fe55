// Package ctl implements the controller which connects the X server to the
// startup sequence tracker.
package ctl

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/etwm/sntrack/internal/cfg"
	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/startup"
	"github.com/etwm/sntrack/internal/x11"
	"github.com/jezek/xgb/xproto"
)

// display is the part of the X client used by the controller.
type display interface {
	startup.Transport

	WatchWindow(win xproto.Window) error
	Forget(win xproto.Window)
	ClientList() ([]xproto.Window, error)
	WindowInfo(win xproto.Window) (startup.WindowInfo, error)
	SetWindowDesktop(win xproto.Window, desktop uint32) error
}

// Options contains optional settings for Run.
type Options struct {
	// If set, a snapshot of the tracked sequences is sent after each change.
	// Sends never block; snapshots are dropped if the receiver is behind.
	Updates chan<- []startup.SequenceInfo
}

// Controller owns the tracker and feeds it events from the X server. All of
// its state is only touched from the goroutine running its main loop.
type Controller struct {
	conf    *cfg.Profile
	x       display
	tracker *startup.Tracker
	hooks   *hooks
	updates chan<- []startup.SequenceInfo

	// Managed windows, sorted.
	clients []xproto.Window
}

// newController creates a controller using the given display.
func newController(conf *cfg.Profile, x display, screen int, hostname string, opts Options) *Controller {
	c := &Controller{
		conf:    conf,
		x:       x,
		updates: opts.Updates,
	}
	c.hooks = &hooks{c, make(map[xproto.Window]int)}
	c.tracker = startup.NewTracker(x, c.hooks, startup.Options{
		Screen:   screen,
		Timeout:  conf.Timeout(),
		CheckPid: conf.Tracker.CheckPid,
		Hostname: hostname,
	})
	return c
}

// Run creates a new controller with the given configuration profile and runs
// it until ctx is cancelled, a termination signal arrives or the connection
// to the X server is lost.
func Run(ctx context.Context, conf *cfg.Profile, opts Options) error {
	defer log.Info("Done")
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	x, err := x11.NewClient()
	if err != nil {
		return fmt.Errorf("(init) create X client: %w", err)
	}
	defer x.Close()
	hostname, err := startup.Hostname()
	if err != nil {
		log.Warn("Could not determine hostname: %s", err)
	}

	c := newController(conf, x, x.ScreenNumber(), hostname, opts)
	c.syncClients()

	events, x11Errors, err := x.Poll(ctx)
	if err != nil {
		return fmt.Errorf("(init) X poll: %w", err)
	}

	var reloads <-chan cfg.Profile
	var reloadErrors <-chan error
	if conf.Path() != "" {
		reloads, reloadErrors, err = cfg.Watch(ctx, conf.Path())
		if err != nil {
			log.Warn("Not watching profile for changes: %s", err)
		}
	}

	signals := make(chan os.Signal, 8)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(signals)

	sweep := time.NewTicker(conf.SweepInterval())
	defer sweep.Stop()

	log.Info("Ready.")
	c.publish()
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-signals:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("Shutting down.")
				return nil
			case syscall.SIGUSR1:
				c.printAll()
			}
		case err, ok := <-x11Errors:
			if !ok {
				return fmt.Errorf("fatal X error: %w", x11.ErrConnectionDied)
			}
			if err == x11.ErrConnectionDied {
				return fmt.Errorf("fatal X error: %w", err)
			}
			// Most errors are BadWindow for windows which vanished
			// between an event and our request about them.
			log.Debug("X error: %s", err)
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			c.handleEvent(evt)
			c.publish()
		case now := <-sweep.C:
			if c.tracker.Sweep(now) > 0 {
				c.publish()
			}
		case profile, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			c.reload(&profile)
			sweep.Reset(profile.SweepInterval())
		case err, ok := <-reloadErrors:
			if !ok {
				reloadErrors = nil
				continue
			}
			log.Error("Failed to reload profile: %s", err)
		}
	}
}

// handleEvent dispatches a single X event.
func (c *Controller) handleEvent(evt x11.Event) {
	switch evt := evt.(type) {
	case x11.StartupEvent:
		if evt.Kind == startup.ChunkBegin {
			c.tracker.Begin(evt.Window, evt.Data[:])
		} else {
			c.tracker.Continue(evt.Window, evt.Data[:])
		}
	case x11.DestroyEvent:
		c.tracker.DestroyChannel(evt.Window)
		c.removeClient(evt.Window)
		c.x.Forget(evt.Window)
	case x11.ClientListEvent:
		c.syncClients()
	case x11.PropertyEvent:
		if !c.isClient(evt.Window) {
			return
		}
		info, err := c.x.WindowInfo(evt.Window)
		if err != nil {
			log.Debug("Failed to refresh 0x%x after %s change: %s", evt.Window, evt.Name, err)
			return
		}
		c.tracker.Refresh(info)
	}
}

// reload applies a changed configuration profile.
func (c *Controller) reload(profile *cfg.Profile) {
	log.Info("Reloaded profile.")
	c.conf = profile
	c.tracker.SetTimeout(profile.Timeout(), profile.Tracker.CheckPid)
	log.Default().SetLevel(profile.LogLevel())
}

// publish sends a snapshot of the tracker to the monitor, if any.
func (c *Controller) publish() {
	if c.updates == nil {
		return
	}
	select {
	case c.updates <- c.tracker.Snapshot():
	default:
	}
}
