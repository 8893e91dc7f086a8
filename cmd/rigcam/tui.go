package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/scheduler"
)

// controller is the part of the acquisition manager the monitor drives.
type controller interface {
	Status() acquisition.Status
	SwitchMode(acquisition.Mode) error
	Reload() error
	Subscribe() (string, <-chan acquisition.Event)
	Unsubscribe(id string)
}

type renderStats interface {
	Stats() scheduler.Stats
}

type skeletonReloader interface {
	ReloadSkeleton() error
}

type playback interface {
	Pause()
	Resume()
	Paused() bool
	Ended() bool
}

const (
	refreshInterval = 250 * time.Millisecond
	historyLen      = 8
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(12)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)

	stateStyles = map[acquisition.State]lipgloss.Style{
		acquisition.Ready:        lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		acquisition.Initializing: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		acquisition.Retrying:     lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		acquisition.Error:        lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

type eventMsg acquisition.Event

type eventsClosedMsg struct{}

type refreshMsg time.Time

type monitor struct {
	ctrl     controller
	stats    renderStats
	playback func() playback
	skel     skeletonReloader
	events   <-chan acquisition.Event

	status  acquisition.Status
	render  scheduler.Stats
	history []string
	err     string
}

func newMonitor(ctrl controller, stats renderStats, pb func() playback, events <-chan acquisition.Event) monitor {
	if pb == nil {
		pb = func() playback { return nil }
	}
	return monitor{
		ctrl:     ctrl,
		stats:    stats,
		playback: pb,
		events:   events,
		status:   ctrl.Status(),
		render:   stats.Stats(),
	}
}

func waitForEvent(ch <-chan acquisition.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg(ev)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m monitor) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), refresh())
}

func (m monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case eventMsg:
		if msg.Kind == acquisition.KindTransition {
			m.history = append(m.history, formatTransition(acquisition.Event(msg)))
			if len(m.history) > historyLen {
				m.history = m.history[len(m.history)-historyLen:]
			}
		}
		m.status = m.ctrl.Status()
		return m, waitForEvent(m.events)
	case eventsClosedMsg:
		return m, tea.Quit
	case refreshMsg:
		m.status = m.ctrl.Status()
		m.render = m.stats.Stats()
		return m, refresh()
	}
	return m, nil
}

func (m monitor) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = ""
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "m":
		next := acquisition.ModeVideo
		if m.status.Mode == acquisition.ModeVideo {
			next = acquisition.ModeCamera
		}
		if err := m.ctrl.SwitchMode(next); err != nil {
			m.err = err.Error()
		}
	case "r":
		if err := m.ctrl.Reload(); err != nil {
			m.err = err.Error()
		}
	case "k":
		if m.skel == nil {
			m.err = "no skeleton to reload"
			break
		}
		if err := m.skel.ReloadSkeleton(); err != nil {
			m.err = err.Error()
		}
	case "p":
		pb := m.playback()
		if m.status.Mode != acquisition.ModeVideo || pb == nil {
			m.err = "nothing is playing"
			break
		}
		if pb.Paused() {
			pb.Resume()
		} else {
			pb.Pause()
		}
	}
	m.status = m.ctrl.Status()
	return m, nil
}

func formatTransition(ev acquisition.Event) string {
	line := fmt.Sprintf("%s %-12s", ev.Time.Format("15:04:05"), ev.State)
	if ev.Message != "" {
		line += " " + ev.Message
	}
	return line
}

func dot(on bool) string {
	if on {
		return "●"
	}
	return "○"
}

func row(label, value string) string {
	return labelStyle.Render(label) + value + "\n"
}

func (m monitor) View() string {
	var b strings.Builder
	st := m.status

	b.WriteString(titleStyle.Render("rigcam") + "\n\n")

	state := st.State.String()
	if style, ok := stateStyles[st.State]; ok {
		state = style.Render(state)
	}
	if st.Terminal {
		state += errStyle.Render(" (gave up)")
	}
	mode := st.Mode.String()
	if pb := m.playback(); st.Mode == acquisition.ModeVideo && pb != nil {
		switch {
		case pb.Ended():
			mode += " (ended)"
		case pb.Paused():
			mode += " (paused)"
		}
	}

	var status strings.Builder
	status.WriteString(row("mode", mode))
	status.WriteString(row("state", state))
	if st.Attempt > 0 {
		status.WriteString(row("attempt", fmt.Sprintf("%d/%d", st.Attempt, st.MaxRetries)))
	}
	if st.Message != "" {
		status.WriteString(row("message", st.Message))
	}
	status.WriteString(row("tracking", fmt.Sprintf("face %s  pose %s  hands %s",
		dot(st.Tracking.Face), dot(st.Tracking.Pose), dot(st.Tracking.Hands))))
	c := st.Counters
	status.WriteString(row("results", fmt.Sprintf("%d (%d poses, %d dropped, %d skipped, %d errors)",
		c.Results, c.Poses, c.Dropped, c.Skipped, c.EstimateErrors)))
	r := m.render
	skel := r.Skeleton
	if skel == "" {
		skel = "none"
	}
	status.WriteString(row("render", fmt.Sprintf("%d ticks, %d writes, %d lost", r.Ticks, r.Writes, r.LostTicks)))
	status.WriteString(row("skeleton", fmt.Sprintf("%s (%d names, %d unresolved)", skel, r.Joints, r.Unresolved)))
	b.WriteString(boxStyle.Render(strings.TrimRight(status.String(), "\n")) + "\n")

	if len(m.history) > 0 {
		b.WriteString("\n" + strings.Join(m.history, "\n") + "\n")
	}
	if m.err != "" {
		b.WriteString("\n" + errStyle.Render(m.err) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("m switch mode • r reload • k reload skeleton • p pause/resume • q quit"))
	return b.String()
}

// runMonitor blocks until the user quits or ctx is cancelled.
func runMonitor(ctx context.Context, ctrl controller, stats renderStats, pb func() playback, skel skeletonReloader) error {
	id, events := ctrl.Subscribe()
	defer ctrl.Unsubscribe(id)

	m := newMonitor(ctrl, stats, pb, events)
	m.skel = skel
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
