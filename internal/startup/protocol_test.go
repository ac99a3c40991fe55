package startup_test

import (
	"strings"
	"testing"

	"github.com/etwm/sntrack/internal/startup"
)

func TestParseCommand(t *testing.T) {
	cmd, err := startup.ParseCommand(`new: ID=foo_TIME123 NAME="Foo Bar" SCREEN=0 WMCLASS=foo`)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Verb != startup.VerbNew {
		t.Fatalf("got verb %s, want new", cmd.Verb)
	}
	want := map[string]string{
		"ID":        "foo_TIME123",
		"NAME":      "Foo Bar",
		"SCREEN":    "0",
		"WMCLASS":   "foo",
		"TIMESTAMP": "123",
	}
	got := cmd.Fields.Map()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: got %q, want %q", k, got[k], v)
		}
	}
	if cmd.Fields.Timestamp != 123 {
		t.Fatalf("got timestamp %d, want 123", cmd.Fields.Timestamp)
	}
}

func TestParseEscapes(t *testing.T) {
	cmd, err := startup.ParseCommand(`change: ID=a NAME="say \"hi\"" BIN=a\ b DESCRIPTION=x\\y`)
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		field startup.Field
		want  string
	}{
		{startup.FieldName, `say "hi"`},
		{startup.FieldBin, "a b"},
		{startup.FieldDescription, `x\y`},
	}
	for _, c := range cases {
		if got := cmd.Fields.Value(c.field); got != c.want {
			t.Fatalf("%s: got %q, want %q", c.field, got, c.want)
		}
	}
}

func TestParseNumericShadows(t *testing.T) {
	cmd, err := startup.ParseCommand("new: ID=x DESKTOP=3abc SILENT=junk PID=-4 SCREEN=1")
	if err != nil {
		t.Fatal(err)
	}
	f := &cmd.Fields
	if f.Desktop != 3 || f.Silent != 0 || f.Pid != -4 || f.Screen != 1 {
		t.Fatalf("got desktop=%d silent=%d pid=%d screen=%d, want 3 0 -4 1",
			f.Desktop, f.Silent, f.Pid, f.Screen)
	}
	if v := f.Value(startup.FieldDesktop); v != "3abc" {
		t.Fatalf("got %q, want raw value kept", v)
	}
}

func TestParseDuplicateAndUnknownKeys(t *testing.T) {
	cmd, err := startup.ParseCommand("new: ID=x NAME=first FROB=1 NAME=second bare")
	if err != nil {
		t.Fatal(err)
	}
	if got := cmd.Fields.Value(startup.FieldName); got != "second" {
		t.Fatalf("got %q, want second", got)
	}
	if n := cmd.Fields.Len(); n != 2 {
		t.Fatalf("got %d fields, want 2", n)
	}
}

func TestParseExplicitTimestamp(t *testing.T) {
	cmd, err := startup.ParseCommand("new: ID=x_TIME5 TIMESTAMP=9")
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Fields.Timestamp != 9 {
		t.Fatalf("got %d, want 9", cmd.Fields.Timestamp)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		msg string
		err error
	}{
		{"launch: ID=x", startup.ErrUnknownVerb},
		{"ID=x", startup.ErrUnknownVerb},
		{`new: ID="x`, startup.ErrUnterminatedQuote},
		{`new: ID=x NAME=y\`, startup.ErrUnterminatedQuote},
		{"new: NAME=y", startup.ErrMissingID},
		{"remove:", startup.ErrMissingID},
	}
	for _, c := range cases {
		if _, err := startup.ParseCommand(c.msg); err != c.err {
			t.Fatalf("%q: got %v, want %v", c.msg, err, c.err)
		}
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	f := startup.Fields{}
	f.Set(startup.FieldID, "id-1")
	f.Set(startup.FieldName, `a "quoted" name`)
	f.Set(startup.FieldCommand, `x\y z`)
	f.Set(startup.FieldDesktop, "2")

	msg := startup.EncodeCommand(startup.VerbChange, &f)
	if !strings.HasPrefix(msg, "change: ID=id-1 ") {
		t.Fatalf("got %q, want change prefix with ID first", msg)
	}
	cmd, err := startup.ParseCommand(msg)
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Verb != startup.VerbChange {
		t.Fatalf("got %s, want change", cmd.Verb)
	}
	if !cmd.Fields.Equal(&f) {
		t.Fatalf("got %v, want %v", cmd.Fields.Map(), f.Map())
	}
}

func TestEncodeRemove(t *testing.T) {
	f := startup.Fields{}
	f.Set(startup.FieldID, "my id")
	f.Set(startup.FieldName, "n")
	msg := startup.EncodeCommand(startup.VerbRemove, &f)
	if want := `remove: ID="my id"`; msg != want {
		t.Fatalf("got %q, want %q", msg, want)
	}
}

func TestChunks(t *testing.T) {
	cases := []struct {
		len    int
		chunks int
	}{
		{0, 1},
		{5, 1},
		{19, 1},
		{20, 2},
		{21, 2},
		{40, 3},
	}
	for _, c := range cases {
		msg := strings.Repeat("a", c.len)
		chunks := startup.Chunks(msg)
		if len(chunks) != c.chunks {
			t.Fatalf("len %d: got %d chunks, want %d", c.len, len(chunks), c.chunks)
		}
		var joined []byte
		for _, chunk := range chunks {
			joined = append(joined, chunk[:]...)
		}
		if string(joined[:c.len]) != msg {
			t.Fatalf("len %d: message not preserved", c.len)
		}
		for _, b := range joined[c.len:] {
			if b != 0 {
				t.Fatalf("len %d: got nonzero padding", c.len)
			}
		}
	}
}

func TestJoinCommand(t *testing.T) {
	got := startup.JoinCommand([]string{"foo", "a b", `say "x"`})
	want := `foo "a b" "say \"x\""`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := startup.JoinCommand(nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestLookupField(t *testing.T) {
	f, ok := startup.LookupField("APPLICATION_ID")
	if !ok || f != startup.FieldApplicationID {
		t.Fatalf("got %v %v, want APPLICATION_ID", f, ok)
	}
	if _, ok := startup.LookupField("name"); ok {
		t.Fatal("keys are case sensitive")
	}
}
