// Package ui implements the terminal monitor of tracked startup sequences.
package ui

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	gloss "github.com/charmbracelet/lipgloss"
	"github.com/etwm/sntrack/internal/startup"
)

// Status describes the state of the controller feeding the monitor.
type Status int

const (
	StatusUnknown Status = iota
	StatusOk
	StatusFail
)

// MsgStatus updates the status line.
type MsgStatus struct {
	Status Status
	Text   string
}

// msgTick forces a redraw so that sequence ages keep moving.
type msgTick time.Time

// Model is the bubbletea model of the monitor.
type Model struct {
	sequences  []startup.SequenceInfo
	status     Status
	statusText string
	expanded   bool
	width      int
	started    time.Time
	now        time.Time
}

func NewModel() Model {
	now := time.Now()
	return Model{
		status:  StatusUnknown,
		started: now,
		now:     now,
	}
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return msgTick(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "f", "tab":
			m.expanded = !m.expanded
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case []startup.SequenceInfo:
		m.sequences = msg
		if m.status == StatusUnknown {
			m.status = StatusOk
		}
	case MsgStatus:
		m.status = msg.Status
		m.statusText = msg.Text
	case msgTick:
		m.now = time.Time(msg)
		return m, tick()
	}
	return m, nil
}

func (m Model) View() string {
	style := statusStyles[m.status]
	out := style.style.Render("\n  STATUS: " + style.title)
	if m.statusText != "" {
		out += style.style.Render(" | " + m.statusText)
	}
	out += grayStyle.Render("    up " + prettifyTime(m.now.Sub(m.started)))
	out += "\n\n"

	out += cyanStyle.Render("  State     Window      Age     ID  ")
	out += grayStyle.Render(fmt.Sprintf("%d sequences\n", len(m.sequences)))
	for _, seq := range m.sequences {
		out += m.renderSequence(seq)
		if m.expanded {
			for _, line := range fieldLines(seq) {
				out += grayStyle.Render(m.clip(line))
			}
		}
	}
	out += grayStyle.Render("\n  q: quit    f: toggle fields\n\n")
	return out
}

func (m Model) renderSequence(seq startup.SequenceInfo) string {
	window := "-"
	if seq.Attached {
		window = fmt.Sprintf("0x%x", seq.Window)
	}
	str := "  " + pad(seq.State.String(), 10)
	str += pad(window, 12)
	str += pad(prettifyTime(seq.Age), 8)
	str += seq.ID + "\n"
	return stateStyles[seq.State].Render(m.clip(str))
}

// clip truncates an unstyled line to the terminal width.
func (m Model) clip(line string) string {
	runes := []rune(strings.TrimSuffix(line, "\n"))
	if m.width <= 0 || len(runes) <= m.width {
		return line
	}
	return string(runes[:m.width]) + "\n"
}

// fieldLines lists the fields of a sequence, one per line, sorted by key.
func fieldLines(seq startup.SequenceInfo) []string {
	keys := make([]string, 0, len(seq.Fields))
	for k := range seq.Fields {
		if k != "ID" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("      %s=%s\n", pad(k, 12), seq.Fields[k]))
	}
	return lines
}

func pad(str string, length int) string {
	if len(str) >= length {
		return str
	}
	return str + strings.Repeat(" ", length-len(str))
}

func prettifyTime(t time.Duration) string {
	if math.Floor(t.Hours()) > 0 {
		return fmt.Sprintf(
			"%02d:%02d:%02d",
			int(math.Floor(t.Hours())),
			int(math.Floor(t.Minutes()))%60,
			int(math.Floor(t.Seconds()))%60,
		)
	} else if math.Floor(t.Minutes()) > 0 {
		return fmt.Sprintf(
			"%02d:%02d",
			int(math.Floor(t.Minutes()))%60,
			int(math.Floor(t.Seconds()))%60,
		)
	}
	return fmt.Sprintf("%.0fs", math.Floor(t.Seconds()))
}

type statusStyle struct {
	title string
	style gloss.Style
}

var statusStyles = map[Status]statusStyle{
	StatusUnknown: {
		title: "???",
		style: gloss.NewStyle().Foreground(gloss.Color("15")),
	},
	StatusOk: {
		title: "ok",
		style: gloss.NewStyle().Foreground(gloss.Color("10")),
	},
	StatusFail: {
		title: "fail",
		style: gloss.NewStyle().Foreground(gloss.Color("9")),
	},
}

var stateStyles = map[startup.State]gloss.Style{
	startup.StateIdle:     gloss.NewStyle().Foreground(gloss.Color("#aaaaaa")),
	startup.StateNew:      gloss.NewStyle().Foreground(gloss.Color("11")),
	startup.StateChanged:  gloss.NewStyle().Foreground(gloss.Color("14")),
	startup.StateComplete: gloss.NewStyle().Foreground(gloss.Color("10")),
}

var cyanStyle = gloss.NewStyle().Bold(true).Foreground(gloss.Color("14"))
var grayStyle = gloss.NewStyle().Foreground(gloss.Color("#aaaaaa"))
