package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
)

// NewLaunchID generates a startup ID for a program about to be launched. The
// launch timestamp is embedded after a _TIME marker so that receivers can
// recover it without a TIMESTAMP field.
func NewLaunchID(bin, hostname string, timestamp uint32) string {
	return fmt.Sprintf(
		"%s-%d-%s-%s%s%d",
		filepath.Base(bin),
		os.Getpid(),
		hostname,
		uuid.New().String(),
		timeMarker,
		timestamp,
	)
}

// LaunchFields describes a program about to be launched.
type LaunchFields struct {
	Argv      []string
	Hostname  string
	Screen    int
	Desktop   int // negative for none
	Timestamp uint32
}

// NewLaunchSequence builds the fields of a new message announcing a launch.
func NewLaunchSequence(l LaunchFields) Fields {
	f := Fields{}
	bin := filepath.Base(l.Argv[0])
	f.Set(FieldID, NewLaunchID(bin, l.Hostname, l.Timestamp))
	f.Set(FieldName, bin)
	f.Set(FieldBin, bin)
	f.Set(FieldScreen, strconv.Itoa(l.Screen))
	if l.Desktop >= 0 {
		f.Set(FieldDesktop, strconv.Itoa(l.Desktop))
	}
	f.Set(FieldTimestamp, strconv.FormatUint(uint64(l.Timestamp), 10))
	if l.Hostname != "" {
		f.Set(FieldHostname, l.Hostname)
	}
	f.Set(FieldCommand, JoinCommand(l.Argv))
	f.Set(FieldLauncher, "sntrack")
	return f
}
