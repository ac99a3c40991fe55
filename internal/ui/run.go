package ui

import (
	"context"
	"errors"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/etwm/sntrack/internal/startup"
	"golang.org/x/term"
)

// ErrNotTerminal is returned by Run when stdout is not a terminal.
var ErrNotTerminal = errors.New("monitor requires a terminal")

// Run displays the monitor until the user quits or ctx is cancelled.
// Snapshots received on updates are shown as they arrive, and errors sent on
// status mark the monitor as failed.
func Run(ctx context.Context, updates <-chan []startup.SequenceInfo, status <-chan error) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotTerminal
	}
	p := tea.NewProgram(NewModel(), tea.WithAltScreen())
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				p.Quit()
				return
			case infos := <-updates:
				p.Send(infos)
			case err, ok := <-status:
				if !ok {
					status = nil
					continue
				}
				if err != nil {
					p.Send(MsgStatus{StatusFail, err.Error()})
				} else {
					p.Send(MsgStatus{StatusOk, "stopped"})
				}
			}
		}
	}()
	return p.Start()
}
