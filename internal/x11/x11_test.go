package x11

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/etwm/sntrack/internal/startup"
	"github.com/jezek/xgb/xproto"
)

const (
	testRoot     xproto.Window = 1
	testLauncher xproto.Window = 2
	atomBegin    xproto.Atom   = 100
	atomInfo     xproto.Atom   = 101
	atomList     xproto.Atom   = 102
	atomPid      xproto.Atom   = 103
)

func testPoller() *poller {
	return &poller{
		c:          &Client{root: testRoot, launcher: testLauncher},
		begin:      atomBegin,
		info:       atomInfo,
		clientList: atomList,
		props:      map[xproto.Atom]string{atomPid: netWmPid},
	}
}

func clientMessage(win xproto.Window, typ xproto.Atom, payload string) xproto.ClientMessageEvent {
	data := make([]byte, startup.ChunkSize)
	copy(data, payload)
	return xproto.ClientMessageEvent{
		Format: 8,
		Window: win,
		Type:   typ,
		Data:   xproto.ClientMessageDataUnionData8New(data),
	}
}

func TestTranslateStartupMessages(t *testing.T) {
	p := testPoller()
	evt := p.translate(clientMessage(7, atomBegin, "new: ID=a"))
	msg, ok := evt.(StartupEvent)
	if !ok {
		t.Fatalf("got %T, want StartupEvent", evt)
	}
	if msg.Kind != startup.ChunkBegin || msg.Window != 7 {
		t.Fatalf("got %+v", msg)
	}
	if string(msg.Data[:9]) != "new: ID=a" || msg.Data[9] != 0 {
		t.Fatalf("got data %q", msg.Data)
	}

	evt = p.translate(clientMessage(7, atomInfo, "more"))
	if msg, ok := evt.(StartupEvent); !ok || msg.Kind != startup.ChunkContinue {
		t.Fatalf("got %+v, want continuation", evt)
	}
}

func TestTranslateFiltersOwnMessages(t *testing.T) {
	p := testPoller()
	if evt := p.translate(clientMessage(testLauncher, atomBegin, "new: ID=a")); evt != nil {
		t.Fatalf("got %+v, want own message dropped", evt)
	}
	if evt := p.translate(clientMessage(7, 999, "x")); evt != nil {
		t.Fatalf("got %+v, want unrelated message dropped", evt)
	}
}

func TestTranslateProperties(t *testing.T) {
	p := testPoller()
	if _, ok := p.translate(xproto.PropertyNotifyEvent{Window: testRoot, Atom: atomList}).(ClientListEvent); !ok {
		t.Fatal("client list change not reported")
	}
	if evt := p.translate(xproto.PropertyNotifyEvent{Window: testRoot, Atom: atomPid}); evt != nil {
		t.Fatalf("got %+v for root property", evt)
	}
	evt := p.translate(xproto.PropertyNotifyEvent{Window: 9, Atom: atomPid})
	if prop, ok := evt.(PropertyEvent); !ok || prop.Window != 9 || prop.Name != netWmPid {
		t.Fatalf("got %+v", evt)
	}
	if evt := p.translate(xproto.PropertyNotifyEvent{Window: 9, Atom: 999}); evt != nil {
		t.Fatalf("got %+v for unwatched property", evt)
	}
	if d, ok := p.translate(xproto.DestroyNotifyEvent{Window: 9}).(DestroyEvent); !ok || d.Window != 9 {
		t.Fatal("destroy not reported")
	}
}

// TestLoopback sends a message through a live X server and checks that a
// second client receives it intact. It requires SNTRACK_TEST_X11 and a
// reachable $DISPLAY.
func TestLoopback(t *testing.T) {
	if _, set := os.LookupEnv("SNTRACK_TEST_X11"); !set {
		t.Skip()
	}
	sender, err := NewClient()
	if err != nil {
		t.Skip(err)
	}
	defer sender.Close()
	receiver, err := NewClient()
	if err != nil {
		t.Fatal(err)
	}
	defer receiver.Close()
	if sender.RootWindow() != receiver.RootWindow() {
		t.Fatal("clients on different roots")
	}
	if _, err := sender.ServerTime(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events, errs, err := receiver.Poll(ctx)
	if err != nil {
		t.Fatal(err)
	}

	tracker := startup.NewTracker(sender, nil, startup.Options{})
	f := startup.Fields{}
	f.Set(startup.FieldID, "loopback-test_TIME1")
	f.Set(startup.FieldTimestamp, "1")
	f.Set(startup.FieldName, "a name long enough to need several chunks")
	if err := tracker.Announce(&f); err != nil {
		t.Fatal(err)
	}

	sink := startup.NewTracker(receiver, nil, startup.Options{})
	for {
		select {
		case evt := <-events:
			msg, ok := evt.(StartupEvent)
			if !ok || msg.Window != sender.Launcher() {
				continue
			}
			if msg.Kind == startup.ChunkBegin {
				sink.Begin(msg.Window, msg.Data[:])
			} else {
				sink.Continue(msg.Window, msg.Data[:])
			}
			if seq, ok := sink.Lookup("loopback-test_TIME1"); ok {
				if !seq.Fields.Equal(&f) {
					t.Fatalf("got %v, want %v", seq.Fields.Map(), f.Map())
				}
				return
			}
		case err := <-errs:
			t.Fatal(err)
		case <-ctx.Done():
			t.Fatal("message not received")
		}
	}
}

func TestAtomTableUsesInternedAtoms(t *testing.T) {
	atoms := &atomTable{atoms: map[string]xproto.Atom{netWmPid: atomPid}}
	atom, err := atoms.Get(netWmPid)
	if err != nil {
		t.Fatal(err)
	}
	if atom != atomPid {
		t.Fatalf("got atom %d, want %d", atom, atomPid)
	}
}
