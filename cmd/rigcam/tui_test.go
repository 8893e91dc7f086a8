package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/scheduler"
)

type fakeController struct {
	status    acquisition.Status
	switched  []acquisition.Mode
	reloads   int
	reloadErr error
}

func (f *fakeController) Status() acquisition.Status { return f.status }

func (f *fakeController) SwitchMode(mode acquisition.Mode) error {
	f.switched = append(f.switched, mode)
	f.status.Mode = mode
	f.status.State = acquisition.Initializing
	return nil
}

func (f *fakeController) Reload() error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeController) Subscribe() (string, <-chan acquisition.Event) {
	return "x", make(chan acquisition.Event)
}

func (f *fakeController) Unsubscribe(string) {}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) ReloadSkeleton() error {
	f.calls++
	return f.err
}

type fakeStats struct{ st scheduler.Stats }

func (f fakeStats) Stats() scheduler.Stats { return f.st }

type fakePlayback struct{ paused, ended bool }

func (f *fakePlayback) Pause()       { f.paused = true }
func (f *fakePlayback) Resume()      { f.paused = false }
func (f *fakePlayback) Paused() bool { return f.paused }
func (f *fakePlayback) Ended() bool  { return f.ended }

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m monitor, msg tea.Msg) (monitor, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	mm, ok := next.(monitor)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return mm, cmd
}

func TestMonitor_SwitchModeToggles(t *testing.T) {
	ctrl := &fakeController{status: acquisition.Status{Mode: acquisition.ModeCamera, State: acquisition.Ready}}
	m := newMonitor(ctrl, fakeStats{}, nil, nil)

	m, _ = update(t, m, key("m"))
	m, _ = update(t, m, key("m"))

	if len(ctrl.switched) != 2 || ctrl.switched[0] != acquisition.ModeVideo || ctrl.switched[1] != acquisition.ModeCamera {
		t.Errorf("switched = %v, want [video camera]", ctrl.switched)
	}
	if m.status.State != acquisition.Initializing {
		t.Errorf("status not refreshed after switch: %v", m.status.State)
	}
}

func TestMonitor_ReloadErrorShown(t *testing.T) {
	ctrl := &fakeController{reloadErr: errors.New("acquisition: manager closed")}
	m := newMonitor(ctrl, fakeStats{}, nil, nil)

	m, _ = update(t, m, key("r"))
	if ctrl.reloads != 1 {
		t.Errorf("reloads = %d, want 1", ctrl.reloads)
	}
	if !strings.Contains(m.View(), "manager closed") {
		t.Error("reload error not rendered")
	}

	// any later key clears it
	m, _ = update(t, m, key("x"))
	if strings.Contains(m.View(), "manager closed") {
		t.Error("stale error still rendered")
	}
}

func TestMonitor_ReloadSkeleton(t *testing.T) {
	m := newMonitor(&fakeController{}, fakeStats{}, nil, nil)
	m, _ = update(t, m, key("k"))
	if m.err != "no skeleton to reload" {
		t.Errorf("err = %q", m.err)
	}

	rl := &fakeReloader{err: errors.New("cannot load skeleton descriptor")}
	m.skel = rl
	m, _ = update(t, m, key("k"))
	if rl.calls != 1 {
		t.Errorf("reloads = %d, want 1", rl.calls)
	}
	if !strings.Contains(m.View(), "cannot load skeleton descriptor") {
		t.Error("skeleton reload error not rendered")
	}
}

func TestMonitor_PauseToggle(t *testing.T) {
	ctrl := &fakeController{status: acquisition.Status{Mode: acquisition.ModeVideo, State: acquisition.Ready}}
	pb := &fakePlayback{}
	m := newMonitor(ctrl, fakeStats{}, func() playback { return pb }, nil)

	m, _ = update(t, m, key("p"))
	if !pb.paused {
		t.Fatal("expected playback paused")
	}
	if !strings.Contains(m.View(), "video (paused)") {
		t.Errorf("view does not show pause:\n%s", m.View())
	}
	m, _ = update(t, m, key("p"))
	if pb.paused {
		t.Error("expected playback resumed")
	}
}

func TestMonitor_PauseWithoutPlayback(t *testing.T) {
	ctrl := &fakeController{status: acquisition.Status{Mode: acquisition.ModeCamera}}
	m := newMonitor(ctrl, fakeStats{}, nil, nil)
	m, _ = update(t, m, key("p"))
	if m.err != "nothing is playing" {
		t.Errorf("err = %q", m.err)
	}
}

func TestMonitor_QuitKeys(t *testing.T) {
	for _, k := range []tea.KeyMsg{key("q"), {Type: tea.KeyCtrlC}} {
		m := newMonitor(&fakeController{}, fakeStats{}, nil, nil)
		_, cmd := update(t, m, k)
		if cmd == nil {
			t.Fatalf("%s: no command", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%s: expected quit", k)
		}
	}
}

func TestMonitor_EventsAndHistory(t *testing.T) {
	ctrl := &fakeController{status: acquisition.Status{
		Mode:     acquisition.ModeCamera,
		State:    acquisition.Retrying,
		Attempt:  1,
		Message:  "retrying 1/3 in 2s",
		Tracking: rig.TrackingStatus{Face: true},
	}}
	events := make(chan acquisition.Event, historyLen+4)
	m := newMonitor(ctrl, fakeStats{st: scheduler.Stats{Ticks: 42, Skeleton: "abc"}}, nil, events)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < historyLen+2; i++ {
		var cmd tea.Cmd
		m, cmd = update(t, m, eventMsg{Kind: acquisition.KindTransition, Time: at, State: acquisition.Retrying, Message: "retrying"})
		if cmd == nil {
			t.Fatal("event handling must keep waiting for events")
		}
	}
	m, _ = update(t, m, eventMsg{Kind: acquisition.KindResult, Time: at})
	if len(m.history) != historyLen {
		t.Errorf("history len = %d, want %d", len(m.history), historyLen)
	}

	m, _ = update(t, m, refreshMsg(at))
	view := m.View()
	for _, want := range []string{"retrying", "1/3", "face ●  pose ○  hands ○", "42 ticks", "abc", "12:00:00"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestMonitor_QuitsWhenEventsClose(t *testing.T) {
	events := make(chan acquisition.Event)
	close(events)
	msg := waitForEvent(events)()
	if _, ok := msg.(eventsClosedMsg); !ok {
		t.Fatalf("msg = %T", msg)
	}
	m := newMonitor(&fakeController{}, fakeStats{}, nil, events)
	_, cmd := update(t, m, msg)
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit when the manager closes")
	}
}
