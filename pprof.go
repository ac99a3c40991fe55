//go:build pprof

package main

import (
	"net/http"
	_ "net/http/pprof"

	"github.com/etwm/sntrack/internal/log"
)

func init() {
	go func() {
		log.Info("Started pprof server.")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			log.Error("pprof server: %s", err)
		}
	}()
}
