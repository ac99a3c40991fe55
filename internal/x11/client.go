// Package x11 provides a client for the X server which carries startup
// notification messages and reads the window properties used to match them.
package x11

import (
	"encoding/binary"
	"strings"
	"sync"

	"github.com/etwm/sntrack/internal/startup"
	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// Atom names
const (
	netClientList         = "_NET_CLIENT_LIST"
	netStartupID          = "_NET_STARTUP_ID"
	netStartupInfo        = "_NET_STARTUP_INFO"
	netStartupInfoBegin   = "_NET_STARTUP_INFO_BEGIN"
	netWmDesktop          = "_NET_WM_DESKTOP"
	netWmPid              = "_NET_WM_PID"
	netWmUserTime         = "_NET_WM_USER_TIME"
	netWmUserTimeWindow   = "_NET_WM_USER_TIME_WINDOW"
	utf8String            = "UTF8_STRING"
	wmClass               = "WM_CLASS"
	wmClientLeader        = "WM_CLIENT_LEADER"
	wmClientMachine       = "WM_CLIENT_MACHINE"
	wmCommand             = "WM_COMMAND"
	wmHints               = "WM_HINTS"
	wmName                = "WM_NAME"
	windowGroupHint       = 1 << 6
	windowGroupHintOffset = 8
)

// Event masks
const (
	maskRoot uint32 = xproto.EventMaskPropertyChange |
		xproto.EventMaskSubstructureNotify

	maskDestroy uint32 = xproto.EventMaskStructureNotify

	maskManaged uint32 = xproto.EventMaskStructureNotify |
		xproto.EventMaskPropertyChange

	maskSubstructure uint32 = xproto.EventMaskSubstructureNotify |
		xproto.EventMaskSubstructureRedirect
)

// Error types
var (
	ErrConnectionDied = errors.New("connection with X server closed")
	errInvalidLength  = errors.New("invalid response length")
)

// Client maintains a connection with the X server.
type Client struct {
	atoms    *atomTable
	conn     *xgb.Conn     // The X server connection
	root     xproto.Window // Root window
	screen   int           // Default screen number
	launcher xproto.Window // Source window for outbound messages

	// Event masks selected on foreign windows, so that watching a window for
	// one purpose does not clear what was selected for another.
	masks map[xproto.Window]uint32
	mu    sync.Mutex
}

// rawEvent represents an event which is to be sent to another window.
type rawEvent interface {
	Bytes() []byte
}

// NewClient attempts to create a new Client.
func NewClient() (*Client, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	root := xproto.Setup(conn).DefaultScreen(conn).Root
	err = xproto.ChangeWindowAttributesChecked(
		conn,
		root,
		xproto.CwEventMask,
		[]uint32{maskRoot},
	).Check()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "select root events")
	}
	launcher, err := createLauncher(conn, root)
	if err != nil {
		conn.Close()
		return nil, err
	}
	atoms, err := newAtomTable(conn,
		netClientList,
		netStartupID,
		netStartupInfo,
		netStartupInfoBegin,
		netWmDesktop,
		netWmPid,
		netWmUserTime,
		netWmUserTimeWindow,
		utf8String,
		wmClientLeader,
		wmClientMachine,
		wmCommand,
	)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Client{
		atoms:    atoms,
		conn:     conn,
		root:     root,
		screen:   conn.DefaultScreen,
		launcher: launcher,
		masks:    make(map[xproto.Window]uint32),
	}, nil
}

// createLauncher creates the unmapped window outbound messages are sent from.
func createLauncher(conn *xgb.Conn, root xproto.Window) (xproto.Window, error) {
	win, err := xproto.NewWindowId(conn)
	if err != nil {
		return 0, errors.Wrap(err, "allocate launcher window")
	}
	err = xproto.CreateWindowChecked(
		conn,
		0,
		win,
		root,
		-100, -100, 1, 1, 0,
		xproto.WindowClassInputOnly,
		0,
		xproto.CwOverrideRedirect|xproto.CwEventMask,
		[]uint32{1, xproto.EventMaskPropertyChange},
	).Check()
	if err != nil {
		return 0, errors.Wrap(err, "create launcher window")
	}
	return win, nil
}

// Close closes the connection to the X server.
func (c *Client) Close() {
	c.conn.Close()
}

// Launcher returns the window outbound startup messages are sent from.
func (c *Client) Launcher() xproto.Window {
	return c.launcher
}

// RootWindow returns the ID of the root window.
func (c *Client) RootWindow() xproto.Window {
	return c.root
}

// ScreenNumber returns the number of the default screen.
func (c *Client) ScreenNumber() int {
	return c.screen
}

// SendChunk broadcasts a single startup notification client message on the
// root window.
func (c *Client) SendChunk(kind startup.ChunkKind, data [startup.ChunkSize]byte) error {
	name := netStartupInfo
	if kind == startup.ChunkBegin {
		name = netStartupInfoBegin
	}
	atom, err := c.atoms.Get(name)
	if err != nil {
		return err
	}
	evt := xproto.ClientMessageEvent{
		Format: 8,
		Window: c.launcher,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData8New(data[:]),
	}
	return errors.Wrap(
		c.sendEvent(evt, xproto.EventMaskPropertyChange, c.root),
		"send startup message",
	)
}

// WatchDestroy requests DestroyNotify events for the given window.
func (c *Client) WatchDestroy(win xproto.Window) error {
	return c.selectInput(win, maskDestroy)
}

// WatchWindow requests DestroyNotify and PropertyNotify events for the given
// window.
func (c *Client) WatchWindow(win xproto.Window) error {
	return c.selectInput(win, maskManaged)
}

// Forget drops the event mask bookkeeping for a destroyed window.
func (c *Client) Forget(win xproto.Window) {
	c.mu.Lock()
	delete(c.masks, win)
	c.mu.Unlock()
}

func (c *Client) selectInput(win xproto.Window, mask uint32) error {
	c.mu.Lock()
	old := c.masks[win]
	mask |= old
	if mask == old {
		c.mu.Unlock()
		return nil
	}
	c.masks[win] = mask
	c.mu.Unlock()
	err := xproto.ChangeWindowAttributesChecked(
		c.conn,
		win,
		xproto.CwEventMask,
		[]uint32{mask},
	).Check()
	return errors.Wrapf(err, "select events on 0x%x", win)
}

// ClientList returns the windows managed by the window manager.
func (c *Client) ClientList() ([]xproto.Window, error) {
	raw, err := c.getProperty(c.root, netClientList, xproto.AtomWindow)
	if err != nil {
		return nil, err
	}
	wins := make([]xproto.Window, 0, len(raw)/4)
	for i := 0; i+4 <= len(raw); i += 4 {
		wins = append(wins, xproto.Window(binary.LittleEndian.Uint32(raw[i:])))
	}
	return wins, nil
}

// WindowInfo collects the attributes used to match a window to a startup
// sequence. Missing properties are left empty.
func (c *Client) WindowInfo(win xproto.Window) (startup.WindowInfo, error) {
	info := startup.WindowInfo{Window: win}

	class, err := c.getPropertyString(win, wmClass, xproto.AtomString)
	if err != nil {
		return info, err
	}
	parts := strings.Split(class, "\x00")
	info.ResName = parts[0]
	if len(parts) > 1 {
		info.ResClass = parts[1]
	}

	info.StartupID, err = c.startupID(win)
	if err != nil {
		return info, err
	}

	if pid, ok, err := c.getOptionalInt(win, netWmPid); err != nil {
		return info, err
	} else if ok {
		info.Pid = int(pid)
	}

	machine, err := c.getPropertyString(win, wmClientMachine, xproto.GetPropertyTypeAny)
	if err != nil {
		return info, err
	}
	info.Hostname = strings.TrimRight(machine, "\x00")

	command, err := c.getPropertyString(win, wmCommand, xproto.AtomString)
	if err != nil {
		return info, err
	}
	if command = strings.TrimSuffix(command, "\x00"); command != "" {
		info.Command = strings.Split(command, "\x00")
	}

	timeWin := win
	if tw, ok, err := c.getOptionalWindow(win, netWmUserTimeWindow); err != nil {
		return info, err
	} else if ok && tw != 0 {
		timeWin = tw
	}
	if ts, ok, err := c.getOptionalInt(timeWin, netWmUserTime); err == nil && ok {
		info.UserTime = ts
		info.HasUserTime = true
	}
	return info, nil
}

// startupID returns the _NET_STARTUP_ID of a window, falling back to its
// group leader and then its client leader.
func (c *Client) startupID(win xproto.Window) (string, error) {
	id, err := c.getUTF8(win, netStartupID)
	if err != nil || id != "" {
		return id, err
	}
	leaders := make([]xproto.Window, 0, 2)
	hints, err := c.getProperty(win, wmHints, xproto.AtomWmHints)
	if err != nil {
		return "", err
	}
	if len(hints) >= (windowGroupHintOffset+1)*4 {
		flags := binary.LittleEndian.Uint32(hints)
		group := xproto.Window(binary.LittleEndian.Uint32(hints[windowGroupHintOffset*4:]))
		if flags&windowGroupHint != 0 && group != 0 && group != win {
			leaders = append(leaders, group)
		}
	}
	if leader, ok, err := c.getOptionalWindow(win, wmClientLeader); err != nil {
		return "", err
	} else if ok && leader != 0 && leader != win {
		leaders = append(leaders, leader)
	}
	for _, leader := range leaders {
		// The leader may already be gone; that is not an error for the
		// window itself.
		if id, err := c.getUTF8(leader, netStartupID); err == nil && id != "" {
			return id, nil
		}
	}
	return "", nil
}

// SetWindowDesktop asks the window manager to move a window to the given
// desktop.
// See: https://specifications.freedesktop.org/wm-spec/1.3/ar01s05.html
func (c *Client) SetWindowDesktop(win xproto.Window, desktop uint32) error {
	atom, err := c.atoms.Get(netWmDesktop)
	if err != nil {
		return err
	}
	data := make([]uint32, 5)
	data[0] = desktop
	data[1] = 2 // Source indicator (2 = pager)
	evt := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}
	return errors.Wrap(c.sendEvent(evt, maskSubstructure, c.root), "send desktop request")
}

// ServerTime returns the current X server time. It waits for an event on the
// connection, so it must not be called once Poll has started.
func (c *Client) ServerTime() (uint32, error) {
	// Make a no-op property change and take the timestamp of the resulting
	// PropertyNotify, as recommended by the ICCCM:
	// https://x.org/releases/X11R7.6/doc/xorg-docs/specs/ICCCM/icccm.html#acquiring_selection_ownership
	atom, err := c.atoms.Get(wmName)
	if err != nil {
		return 0, err
	}
	err = xproto.ChangePropertyChecked(
		c.conn,
		xproto.PropModeAppend,
		c.launcher,
		atom,
		xproto.AtomString,
		8,
		0,
		[]byte{},
	).Check()
	if err != nil {
		return 0, errors.Wrap(err, "touch launcher property")
	}
	for {
		rawEvt, err := c.conn.WaitForEvent()
		if rawEvt == nil && err == nil {
			return 0, ErrConnectionDied
		} else if err != nil {
			return 0, errors.Wrap(err, "receive response")
		}
		evt, ok := rawEvt.(xproto.PropertyNotifyEvent)
		if ok && evt.Window == c.launcher && evt.Atom == atom {
			return uint32(evt.Time), nil
		}
	}
}

// getProperty retrieves a raw window property.
func (c *Client) getProperty(win xproto.Window, name string, typ xproto.Atom) ([]byte, error) {
	atom, err := c.atoms.Get(name)
	if err != nil {
		return nil, err
	}
	reply, err := xproto.GetProperty(
		c.conn,
		false,
		win,
		atom,
		typ,
		0,
		1024,
	).Reply()
	if err != nil {
		return nil, errors.Wrapf(err, "get %s of 0x%x", name, win)
	}
	return reply.Value, nil
}

// getPropertyInt retrieves a 32-bit window property.
func (c *Client) getPropertyInt(win xproto.Window, name string, typ xproto.Atom) (uint32, error) {
	reply, err := c.getProperty(win, name, typ)
	if err != nil {
		return 0, err
	}
	if len(reply) != 4 {
		return 0, errInvalidLength
	}
	return binary.LittleEndian.Uint32(reply), nil
}

// getOptionalInt retrieves a CARDINAL property which may be absent.
func (c *Client) getOptionalInt(win xproto.Window, name string) (uint32, bool, error) {
	val, err := c.getPropertyInt(win, name, xproto.AtomCardinal)
	switch err {
	case nil:
		return val, true, nil
	case errInvalidLength:
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// getOptionalWindow retrieves a WINDOW property which may be absent.
func (c *Client) getOptionalWindow(win xproto.Window, name string) (xproto.Window, bool, error) {
	val, err := c.getPropertyInt(win, name, xproto.AtomWindow)
	switch err {
	case nil:
		return xproto.Window(val), true, nil
	case errInvalidLength:
		return 0, false, nil
	default:
		return 0, false, err
	}
}

// getPropertyString retrieves a string window property. The returned string
// may contain null bytes.
func (c *Client) getPropertyString(win xproto.Window, name string, typ xproto.Atom) (string, error) {
	reply, err := c.getProperty(win, name, typ)
	if err != nil {
		return "", err
	}
	return string(reply), nil
}

// getUTF8 retrieves a UTF8_STRING window property.
func (c *Client) getUTF8(win xproto.Window, name string) (string, error) {
	typ, err := c.atoms.Get(utf8String)
	if err != nil {
		return "", err
	}
	return c.getPropertyString(win, name, typ)
}

// sendEvent sends an event to another window.
func (c *Client) sendEvent(evt rawEvent, mask uint32, win xproto.Window) error {
	return xproto.SendEventChecked(
		c.conn,
		false,
		win,
		mask,
		string(evt.Bytes()),
	).Check()
}
