// Package tui is the interactive session monitor: live counters, a chart
// of events persisted per refresh and a key to stop tracing.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/fdbtracer/internal/supervisor"
)

const (
	// DefaultRefresh is the monitor refresh period.
	DefaultRefresh = 500 * time.Millisecond

	// historySize is the number of refresh periods kept for the chart.
	historySize = 120
)

// StatusSource is the narrow supervisor contract the monitor reads from.
type StatusSource interface {
	Status() supervisor.Status
}

// Config holds monitor parameters.
type Config struct {
	Refresh time.Duration
	Title   string
}

// TickMsg triggers a status refresh.
type TickMsg time.Time

// Model is the bubbletea model of the monitor.
type Model struct {
	src     StatusSource
	stop    func()
	keys    KeyMap
	refresh time.Duration
	title   string

	width  int
	height int

	status        supervisor.Status
	lastPersisted uint64
	history       []uint64 // events persisted per refresh, oldest first
	stopping      bool
}

// New creates a monitor. stop is called once when the operator quits.
func New(src StatusSource, stop func(), conf ...Config) Model {
	m := Model{
		src:     src,
		stop:    stop,
		keys:    DefaultKeyMap(),
		refresh: DefaultRefresh,
		title:   "fdbtracer",
		width:   80,
		height:  24,
	}
	if len(conf) > 0 {
		if conf[0].Refresh > 0 {
			m.refresh = conf[0].Refresh
		}
		if conf[0].Title != "" {
			m.title = conf[0].Title
		}
	}
	return m
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit, m.keys.ForceQuit) {
			if !m.stopping && m.stop != nil {
				m.stop()
			}
			m.stopping = true
			return m, tea.Quit
		}
		return m, nil

	case TickMsg:
		m = m.refreshStatus()
		if m.status.Stopped {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) refreshStatus() Model {
	m.status = m.src.Status()
	persisted := m.status.Stats.EventsPersisted
	delta := uint64(0)
	if persisted > m.lastPersisted {
		delta = persisted - m.lastPersisted
	}
	m.lastPersisted = persisted

	history := append(append([]uint64(nil), m.history...), delta)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	m.history = history
	return m
}

// Run starts the monitor on the alternate screen and blocks until it quits.
// Keys are read from the terminal so that stdin stays free for trace input.
func Run(m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithInputTTY()).Run()
	return err
}
