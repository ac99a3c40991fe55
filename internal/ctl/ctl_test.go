package ctl

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/etwm/sntrack/internal/cfg"
	"github.com/etwm/sntrack/internal/startup"
	"github.com/etwm/sntrack/internal/x11"
	"github.com/jezek/xgb/xproto"
)

type fakeDisplay struct {
	clients  []xproto.Window
	infos    map[xproto.Window]startup.WindowInfo
	watched  map[xproto.Window]bool
	desktops map[xproto.Window][]uint32
	messages []string
	buf      []byte
	time     uint32
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		infos:    make(map[xproto.Window]startup.WindowInfo),
		watched:  make(map[xproto.Window]bool),
		desktops: make(map[xproto.Window][]uint32),
	}
}

func (d *fakeDisplay) SendChunk(kind startup.ChunkKind, data [startup.ChunkSize]byte) error {
	if kind == startup.ChunkBegin {
		d.buf = d.buf[:0]
	}
	if idx := bytes.IndexByte(data[:], 0); idx >= 0 {
		d.buf = append(d.buf, data[:idx]...)
		d.messages = append(d.messages, string(d.buf))
		return nil
	}
	d.buf = append(d.buf, data[:]...)
	return nil
}

func (d *fakeDisplay) WatchDestroy(win xproto.Window) error {
	d.watched[win] = true
	return nil
}

func (d *fakeDisplay) WatchWindow(win xproto.Window) error {
	d.watched[win] = true
	return nil
}

func (d *fakeDisplay) Forget(win xproto.Window) {
	delete(d.watched, win)
}

func (d *fakeDisplay) ClientList() ([]xproto.Window, error) {
	list := make([]xproto.Window, len(d.clients))
	copy(list, d.clients)
	return list, nil
}

func (d *fakeDisplay) WindowInfo(win xproto.Window) (startup.WindowInfo, error) {
	info, ok := d.infos[win]
	if !ok {
		return startup.WindowInfo{}, errors.New("BadWindow")
	}
	return info, nil
}

func (d *fakeDisplay) SetWindowDesktop(win xproto.Window, desktop uint32) error {
	d.desktops[win] = append(d.desktops[win], desktop)
	return nil
}

func (d *fakeDisplay) ServerTime() (uint32, error) {
	return d.time, nil
}

// sendMessage feeds a startup message to the controller as the X server
// would deliver it.
func sendMessage(c *Controller, win xproto.Window, msg string) {
	for i, chunk := range startup.Chunks(msg) {
		kind := startup.ChunkContinue
		if i == 0 {
			kind = startup.ChunkBegin
		}
		c.handleEvent(x11.StartupEvent{Kind: kind, Window: win, Data: chunk})
	}
}

func testProfile() *cfg.Profile {
	return &cfg.Profile{
		Tracker: cfg.Tracker{ApplyDesktop: true},
	}
}

func TestDiffSortedWindows(t *testing.T) {
	added, removed := diffSortedWindows(
		[]xproto.Window{1, 3, 5, 7},
		[]xproto.Window{2, 3, 7, 8, 9},
	)
	wantAdded := []xproto.Window{2, 8, 9}
	wantRemoved := []xproto.Window{1, 5}
	if len(added) != len(wantAdded) || len(removed) != len(wantRemoved) {
		t.Fatalf("got %v/%v, want %v/%v", added, removed, wantAdded, wantRemoved)
	}
	for i := range wantAdded {
		if added[i] != wantAdded[i] {
			t.Fatalf("got added %v, want %v", added, wantAdded)
		}
	}
	for i := range wantRemoved {
		if removed[i] != wantRemoved[i] {
			t.Fatalf("got removed %v, want %v", removed, wantRemoved)
		}
	}

	added, removed = diffSortedWindows(nil, nil)
	if len(added) != 0 || len(removed) != 0 {
		t.Fatal("diff of empty lists not empty")
	}
}

func TestControllerFlow(t *testing.T) {
	d := newFakeDisplay()
	c := newController(testProfile(), d, 0, "host", Options{})

	sendMessage(c, 0x500, "new: ID=app_TIME10 NAME=App DESKTOP=3")
	if _, ok := c.tracker.Lookup("app_TIME10"); !ok {
		t.Fatal("sequence not created")
	}
	if !d.watched[0x500] {
		t.Fatal("source window not watched")
	}

	d.clients = []xproto.Window{9, 4}
	d.infos[4] = startup.WindowInfo{Window: 4, StartupID: "app_TIME10", Pid: 12, Hostname: "host"}
	d.infos[9] = startup.WindowInfo{Window: 9}
	c.handleEvent(x11.ClientListEvent{})
	if len(c.clients) != 2 || c.clients[0] != 4 || c.clients[1] != 9 {
		t.Fatalf("got clients %v, want [4 9]", c.clients)
	}
	if _, ok := c.tracker.SequenceFor(4); !ok {
		t.Fatal("window not matched")
	}
	if got := d.desktops[4]; len(got) != 1 || got[0] != 3 {
		t.Fatalf("got desktops %v, want [3]", got)
	}

	// Property changes refresh the window without moving it again.
	c.handleEvent(x11.PropertyEvent{Window: 4, Name: "_NET_WM_PID"})
	if got := d.desktops[4]; len(got) != 1 {
		t.Fatalf("got desktops %v, want one move", got)
	}
	// Events about unmanaged windows are ignored.
	c.handleEvent(x11.PropertyEvent{Window: 77, Name: "WM_CLASS"})

	sendMessage(c, 0x500, "change: ID=app_TIME10 DESKTOP=1")
	if got := d.desktops[4]; len(got) != 2 || got[1] != 1 {
		t.Fatalf("got desktops %v, want [3 1]", got)
	}

	c.handleEvent(x11.DestroyEvent{Window: 4})
	if len(c.clients) != 1 || c.clients[0] != 9 {
		t.Fatalf("got clients %v, want [9]", c.clients)
	}
	if _, ok := c.tracker.SequenceFor(4); ok {
		t.Fatal("destroyed window still has a sequence")
	}
	if d.watched[4] {
		t.Fatal("destroyed window still watched")
	}
	if _, ok := c.hooks.desktops[4]; ok {
		t.Fatal("desktop record not cleared")
	}
}

func TestSharedStartupIDMovesOnce(t *testing.T) {
	d := newFakeDisplay()
	c := newController(testProfile(), d, 0, "host", Options{})
	d.clients = []xproto.Window{1, 2}
	d.infos[1] = startup.WindowInfo{Window: 1, StartupID: "app"}
	d.infos[2] = startup.WindowInfo{Window: 2, StartupID: "app"}
	sendMessage(c, 0x500, "new: ID=app DESKTOP=2")
	c.handleEvent(x11.ClientListEvent{})

	// User interaction updates _NET_WM_USER_TIME on both windows.
	for i := 0; i < 3; i++ {
		for _, win := range []xproto.Window{1, 2} {
			info := d.infos[win]
			info.HasUserTime = true
			info.UserTime++
			d.infos[win] = info
			c.handleEvent(x11.PropertyEvent{Window: win, Name: "_NET_WM_USER_TIME"})
		}
	}
	for _, win := range []xproto.Window{1, 2} {
		if got := d.desktops[win]; len(got) > 1 {
			t.Fatalf("window %d: got desktop requests %v, want at most one", win, got)
		}
	}
	if _, ok := c.tracker.SequenceFor(2); !ok {
		t.Fatal("sequence left the window that took it")
	}
}

func TestApplyDesktopDisabled(t *testing.T) {
	d := newFakeDisplay()
	c := newController(&cfg.Profile{}, d, 0, "host", Options{})
	sendMessage(c, 0x500, "new: ID=a DESKTOP=2")
	d.clients = []xproto.Window{1}
	d.infos[1] = startup.WindowInfo{Window: 1, StartupID: "a"}
	c.syncClients()
	if len(d.desktops) != 0 {
		t.Fatalf("got desktops %v, want none", d.desktops)
	}
}

func TestClientListRemoval(t *testing.T) {
	d := newFakeDisplay()
	c := newController(testProfile(), d, 0, "host", Options{})
	sendMessage(c, 0x500, "new: ID=a COMMAND=x")
	d.clients = []xproto.Window{1}
	d.infos[1] = startup.WindowInfo{Window: 1, Command: []string{"x"}}
	c.syncClients()
	d.clients = nil
	c.syncClients()
	seq, ok := c.tracker.Lookup("a")
	if !ok {
		t.Fatal("sequence dropped")
	}
	if _, attached := seq.Window(); attached {
		t.Fatal("sequence still attached to unlisted window")
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	updates := make(chan []startup.SequenceInfo, 1)
	c := newController(testProfile(), newFakeDisplay(), 0, "host", Options{Updates: updates})
	sendMessage(c, 0x500, "new: ID=a")
	c.publish()
	c.publish()
	infos := <-updates
	if len(infos) != 1 || infos[0].ID != "a" {
		t.Fatalf("got %+v", infos)
	}
}

func TestFormatSequence(t *testing.T) {
	got := formatSequence(startup.SequenceInfo{
		ID:       "a",
		State:    startup.StateChanged,
		Window:   0x10,
		Attached: true,
		Live:     true,
		Fields:   map[string]string{"ID": "a", "PID": "3", "NAME": "n"},
	})
	want := `"a" [changed] window=0x10 NAME="n" PID="3"`
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestLaunch(t *testing.T) {
	d := newFakeDisplay()
	d.time = 99
	desktop := 2
	conf := &cfg.Profile{Launch: cfg.Launch{Desktop: &desktop}}
	var started *exec.Cmd
	id, err := launch(conf, d, 0, []string{"/bin/app", "--flag"}, func(cmd *exec.Cmd) error {
		started = cmd
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(id, "_TIME99") {
		t.Fatalf("got id %q", id)
	}
	env := started.Env[len(started.Env)-1]
	if env != "DESKTOP_STARTUP_ID="+id {
		t.Fatalf("got env %q", env)
	}
	if len(d.messages) != 1 {
		t.Fatalf("got %q, want one message", d.messages)
	}
	cmd, err := startup.ParseCommand(d.messages[0])
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Verb != startup.VerbNew || cmd.Fields.Desktop != 2 || cmd.Fields.Timestamp != 99 {
		t.Fatalf("got %q", d.messages[0])
	}
}

func TestLaunchFailure(t *testing.T) {
	d := newFakeDisplay()
	_, err := launch(&cfg.Profile{}, d, 0, []string{"app"}, func(*exec.Cmd) error {
		return errors.New("no such file")
	})
	if err == nil {
		t.Fatal("launch failure not reported")
	}
	if len(d.messages) != 2 || !strings.HasPrefix(d.messages[1], "remove: ID=app-") {
		t.Fatalf("got %q, want new then remove", d.messages)
	}
}
