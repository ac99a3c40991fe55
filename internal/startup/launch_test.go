package startup_test

import (
	"strings"
	"testing"

	"github.com/etwm/sntrack/internal/startup"
)

func TestNewLaunchSequence(t *testing.T) {
	f := startup.NewLaunchSequence(startup.LaunchFields{
		Argv:      []string{"/usr/bin/xterm", "-e", "top -d 1"},
		Hostname:  "host",
		Screen:    1,
		Desktop:   -1,
		Timestamp: 4242,
	})
	id := f.Value(startup.FieldID)
	if !strings.HasPrefix(id, "xterm-") || !strings.HasSuffix(id, "_TIME4242") {
		t.Fatalf("got id %q", id)
	}
	want := map[startup.Field]string{
		startup.FieldName:      "xterm",
		startup.FieldBin:       "xterm",
		startup.FieldScreen:    "1",
		startup.FieldTimestamp: "4242",
		startup.FieldHostname:  "host",
		startup.FieldCommand:   `/usr/bin/xterm -e "top -d 1"`,
		startup.FieldLauncher:  "sntrack",
	}
	for k, v := range want {
		if got := f.Value(k); got != v {
			t.Fatalf("%s: got %q, want %q", k, got, v)
		}
	}
	if f.Has(startup.FieldDesktop) {
		t.Fatal("negative desktop was set")
	}

	// The announcement must survive the wire.
	cmd, err := startup.ParseCommand(startup.EncodeCommand(startup.VerbNew, &f))
	if err != nil {
		t.Fatal(err)
	}
	if !cmd.Fields.Equal(&f) {
		t.Fatalf("got %v, want %v", cmd.Fields.Map(), f.Map())
	}
}

func TestLaunchIDsUnique(t *testing.T) {
	a := startup.NewLaunchID("app", "host", 1)
	b := startup.NewLaunchID("app", "host", 1)
	if a == b {
		t.Fatalf("got duplicate id %q", a)
	}
}

func TestLaunchDesktop(t *testing.T) {
	f := startup.NewLaunchSequence(startup.LaunchFields{
		Argv:    []string{"app"},
		Desktop: 0,
	})
	if !f.Has(startup.FieldDesktop) || f.Desktop != 0 {
		t.Fatal("desktop 0 not set")
	}
	if f.Has(startup.FieldHostname) {
		t.Fatal("empty hostname was set")
	}
}
