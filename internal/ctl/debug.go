package ctl

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/etwm/sntrack/internal/log"
	"github.com/etwm/sntrack/internal/startup"
)

// printAll logs the state of every tracked sequence along with some runtime
// statistics.
func (c *Controller) printAll() {
	infos := c.tracker.Snapshot()
	log.Info("%d sequences, %d clients", len(infos), len(c.clients))
	for _, info := range infos {
		log.Info("%s", formatSequence(info))
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.Info(
		"Goroutines: %d, heap: %d KiB, GC cycles: %d",
		runtime.NumGoroutine(),
		mem.HeapAlloc/1024,
		mem.NumGC,
	)
}

// formatSequence renders a sequence as a single log line.
func formatSequence(info startup.SequenceInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q [%s]", info.ID, info.State)
	if info.Attached {
		fmt.Fprintf(&b, " window=0x%x", info.Window)
	}
	if !info.Live {
		b.WriteString(" (held)")
	}
	keys := make([]string, 0, len(info.Fields))
	for k := range info.Fields {
		if k != "ID" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, info.Fields[k])
	}
	return b.String()
}
