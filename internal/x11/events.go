package x11

import (
	"context"

	"github.com/etwm/sntrack/internal/startup"
	"github.com/jezek/xgb/xproto"
)

// Event is an X event relevant to startup tracking.
type Event interface {
	isEvent()
}

// StartupEvent carries one chunk of a startup notification message.
type StartupEvent struct {
	Kind   startup.ChunkKind
	Window xproto.Window
	Data   [startup.ChunkSize]byte
}

// DestroyEvent reports the destruction of a window.
type DestroyEvent struct {
	Window xproto.Window
}

// ClientListEvent reports a change of the root window's _NET_CLIENT_LIST.
type ClientListEvent struct{}

// PropertyEvent reports a change to one of the matching properties of a
// watched window.
type PropertyEvent struct {
	Window xproto.Window
	Name   string
}

func (StartupEvent) isEvent()    {}
func (DestroyEvent) isEvent()    {}
func (ClientListEvent) isEvent() {}
func (PropertyEvent) isEvent()   {}

// Properties whose changes are reported as PropertyEvents.
var watchedProperties = []string{
	netStartupID,
	netWmPid,
	netWmUserTime,
	wmClass,
	wmClientMachine,
	wmCommand,
}

// Poll starts listening for events in the background.
func (c *Client) Poll(ctx context.Context) (<-chan Event, <-chan error, error) {
	begin, err := c.atoms.Get(netStartupInfoBegin)
	if err != nil {
		return nil, nil, err
	}
	info, err := c.atoms.Get(netStartupInfo)
	if err != nil {
		return nil, nil, err
	}
	clientList, err := c.atoms.Get(netClientList)
	if err != nil {
		return nil, nil, err
	}
	props := make(map[xproto.Atom]string, len(watchedProperties))
	for _, name := range watchedProperties {
		atom, err := c.atoms.Get(name)
		if err != nil {
			return nil, nil, err
		}
		props[atom] = name
	}

	ch := make(chan Event, 256)
	errch := make(chan error, 8)
	p := poller{c, begin, info, clientList, props}
	go p.run(ctx, ch, errch)
	return ch, errch, nil
}

type poller struct {
	c          *Client
	begin      xproto.Atom
	info       xproto.Atom
	clientList xproto.Atom
	props      map[xproto.Atom]string
}

func (p *poller) run(ctx context.Context, ch chan<- Event, errch chan<- error) {
	defer close(ch)
	defer close(errch)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		evt, err := p.c.conn.WaitForEvent()
		if evt == nil && err == nil {
			errch <- ErrConnectionDied
			return
		}
		if err != nil {
			errch <- err
			continue
		}
		if out := p.translate(evt); out != nil {
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translate converts an X event to an Event, or returns nil if the event is
// not interesting.
func (p *poller) translate(evt interface{}) Event {
	switch evt := evt.(type) {
	case xproto.ClientMessageEvent:
		// Our own broadcasts come back to us through the root window.
		if evt.Format != 8 || evt.Window == p.c.launcher {
			return nil
		}
		out := StartupEvent{Window: evt.Window}
		switch evt.Type {
		case p.begin:
			out.Kind = startup.ChunkBegin
		case p.info:
			out.Kind = startup.ChunkContinue
		default:
			return nil
		}
		copy(out.Data[:], evt.Data.Data8)
		return out
	case xproto.DestroyNotifyEvent:
		return DestroyEvent{evt.Window}
	case xproto.PropertyNotifyEvent:
		if evt.Window == p.c.root {
			if evt.Atom == p.clientList {
				return ClientListEvent{}
			}
			return nil
		}
		if name, ok := p.props[evt.Atom]; ok {
			return PropertyEvent{evt.Window, name}
		}
	}
	return nil
}
