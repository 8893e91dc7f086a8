package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rigcam/internal/landmarks"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/rigsolve"
	"github.com/banshee-data/rigcam/internal/testutil"
	"github.com/banshee-data/rigcam/internal/timeutil"
)

var (
	withPose = json.RawMessage(`{"poseLandmarks":[{"x":0.5,"y":0.5,"z":0}],"faceLandmarks":[{"x":0.5,"y":0.5,"z":0}]}`)
	faceOnly = json.RawMessage(`{"faceLandmarks":[{"x":0.5,"y":0.5,"z":0}]}`)
)

type stubSolver struct{}

func (stubSolver) SolvePose(pose2D, pose3D landmarks.List) (rig.Joints, error) {
	return rig.Joints{rig.Spine: {X: 0.1}}, nil
}

func (stubSolver) SolveFace(face landmarks.List) (*rigsolve.Face, error) {
	return &rigsolve.Face{Head: rig.Rotation{X: 0.2}}, nil
}

func (stubSolver) SolveHand(hand landmarks.List, side rig.Side) (rig.Joints, error) {
	return rig.Joints{}, nil
}

type fakeSource struct {
	ready    atomic.Bool
	startErr error
	frames   chan Frame
	stopped  atomic.Bool
}

func (s *fakeSource) Start(ctx context.Context) error { return s.startErr }
func (s *fakeSource) Ready() bool                     { return s.ready.Load() }
func (s *fakeSource) Frames() <-chan Frame            { return s.frames }
func (s *fakeSource) Stop() error                     { s.stopped.Store(true); return nil }

type fakePlayback struct {
	*fakeSource
	paused, ended atomic.Bool
}

func (p *fakePlayback) Paused() bool { return p.paused.Load() }
func (p *fakePlayback) Ended() bool  { return p.ended.Load() }

type fakeEstimator struct {
	gate     chan struct{}
	calls    atomic.Int32
	returned atomic.Int32
	closed   atomic.Bool
	onClose  func()
}

func (e *fakeEstimator) Estimate(ctx context.Context, f Frame) (json.RawMessage, error) {
	e.calls.Add(1)
	defer e.returned.Add(1)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if string(f.Payload) == `"fail"` {
		return nil, errors.New("model failed")
	}
	return f.Payload, nil
}

func (e *fakeEstimator) Close() error {
	e.closed.Store(true)
	if e.onClose != nil {
		e.onClose()
	}
	return nil
}

type sink struct {
	mu     sync.Mutex
	frames []*rig.Frame
}

func (s *sink) Publish(f *rig.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *sink) all() []*rig.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*rig.Frame(nil), s.frames...)
}

func (s *sink) len() int { return len(s.all()) }

type fakeRecorder struct {
	mu      sync.Mutex
	started []SessionInfo
	events  []Event
	ended   map[string]Counters
}

func (r *fakeRecorder) StartSession(ctx context.Context, s SessionInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, s)
	return nil
}

func (r *fakeRecorder) RecordEvent(ctx context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *fakeRecorder) EndSession(ctx context.Context, id string, endedAt time.Time, c Counters) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended == nil {
		r.ended = make(map[string]Counters)
	}
	r.ended[id] = c
	return nil
}

type harness struct {
	clock  *timeutil.MockClock
	m      *Manager
	sink   *sink
	rec    *fakeRecorder
	events <-chan Event

	mu           sync.Mutex
	sources      []*fakeSource
	playbacks    []*fakePlayback
	estimators   []*fakeEstimator
	sourceErrs   []error // consumed by successive source constructions
	estimatorErr error
	notReady     bool
	playback     bool
	gate         chan struct{}
	live         int
	maxLive      int
}

func newHarness(t *testing.T, cfg Config, setup func(h *harness)) *harness {
	t.Helper()
	h := &harness{
		clock: timeutil.NewMockClock(time.Unix(1700000000, 0)),
		sink:  &sink{},
		rec:   &fakeRecorder{},
	}
	if setup != nil {
		setup(h)
	}
	cfg.Clock = h.clock
	m, err := NewManager(cfg, Deps{
		Sources:    h.newSource,
		Estimators: h.newEstimator,
		Solver:     stubSolver{},
		Sink:       h.sink,
		Recorder:   h.rec,
	})
	require.NoError(t, err)
	h.m = m
	_, h.events = m.Subscribe()
	t.Cleanup(func() { m.Close() })
	return h
}

func (h *harness) newSource(mode Mode) (Source, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sourceErrs) > 0 {
		err := h.sourceErrs[0]
		h.sourceErrs = h.sourceErrs[1:]
		return nil, err
	}
	s := &fakeSource{frames: make(chan Frame, 16)}
	s.ready.Store(!h.notReady)
	h.sources = append(h.sources, s)
	if h.playback {
		p := &fakePlayback{fakeSource: s}
		h.playbacks = append(h.playbacks, p)
		return p, nil
	}
	return s, nil
}

func (h *harness) newEstimator(mode Mode) (Estimator, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.estimatorErr != nil {
		return nil, h.estimatorErr
	}
	e := &fakeEstimator{gate: h.gate}
	e.onClose = func() {
		h.mu.Lock()
		h.live--
		h.mu.Unlock()
	}
	h.live++
	if h.live > h.maxLive {
		h.maxLive = h.live
	}
	h.estimators = append(h.estimators, e)
	return e, nil
}

func (h *harness) source(i int) *fakeSource {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sources[i]
}

func (h *harness) estimator(i int) *fakeEstimator {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.estimators[i]
}

// expect reads events, skipping results, until the next transition, and
// fails unless it is in state.
func (h *harness) expect(t *testing.T, state State) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-h.events:
			if !ok {
				t.Fatalf("event stream closed waiting for %s", state)
			}
			if ev.Kind != KindTransition {
				continue
			}
			if ev.State != state {
				t.Fatalf("got %s (%q), want %s", ev.State, ev.Message, state)
			}
			return ev
		case <-timeout:
			t.Fatalf("timed out waiting for %s", state)
		}
	}
}

func (h *harness) expectResult(t *testing.T) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if ev.Kind == KindResult {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for a result")
		}
	}
}

// waitIdle waits until the current session has no estimate in flight.
func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	testutil.Eventually(t, time.Second, func() bool {
		h.m.mu.Lock()
		s := h.m.session
		h.m.mu.Unlock()
		return s != nil && !s.inflight.Load()
	}, "estimate still in flight")
}

func TestManager_PublishesFramesAndNoPose(t *testing.T) {
	h := newHarness(t, Config{Holistic: true, MaxRetries: 3}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	ev := h.expect(t, Ready)
	assert.Equal(t, 0, ev.Attempt)

	src := h.source(0)
	src.frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 1 }, "pose not published")
	h.waitIdle(t)
	src.frames <- Frame{Seq: 2, Payload: faceOnly}
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 2 }, "no-pose not published")
	h.waitIdle(t)

	frames := h.sink.all()
	require.NotNil(t, frames[0])
	assert.Equal(t, rig.Joints{rig.Spine: {X: 0.1}}, frames[0].Body)
	assert.Nil(t, frames[1], "no body is published as an explicit nil")

	first, second := h.expectResult(t), h.expectResult(t)
	assert.True(t, first.Pose)
	assert.Equal(t, rig.TrackingStatus{Face: true, Pose: true}, first.Tracking)
	assert.False(t, second.Pose)
	assert.Equal(t, rig.TrackingStatus{Face: true}, second.Tracking)

	st := h.m.Status()
	assert.Equal(t, Ready, st.State)
	assert.Equal(t, rig.TrackingStatus{Face: true}, st.Tracking)
	assert.Equal(t, Counters{Results: 2, Poses: 1}, st.Counters)
}

func TestManager_EstimateFailureIsLocal(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	src := h.source(0)
	src.frames <- Frame{Seq: 1, Payload: json.RawMessage(`"fail"`)}
	testutil.Eventually(t, time.Second, func() bool { return h.m.Status().Counters.EstimateErrors == 1 }, "estimate error not counted")
	h.waitIdle(t)
	src.frames <- Frame{Seq: 2, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 1 }, "pose not published")

	assert.Equal(t, Ready, h.m.Status().State)
}

func TestManager_DropsFramesWhileEstimating(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, Config{Holistic: true}, func(h *harness) { h.gate = gate })
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	src, est := h.source(0), h.estimator(0)
	src.frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return est.calls.Load() == 1 }, "first frame not submitted")
	src.frames <- Frame{Seq: 2, Payload: withPose}
	src.frames <- Frame{Seq: 3, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return h.m.Status().Counters.Dropped == 2 }, "frames not dropped")

	close(gate)
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 1 }, "result not published")
	h.waitIdle(t)
	assert.Equal(t, int32(1), est.calls.Load(), "dropped frames are never queued")
	assert.Equal(t, uint64(1), h.m.Status().Counters.Results)
}

func TestManager_ReadyTimeoutRetriesThenTerminal(t *testing.T) {
	h := newHarness(t, Config{MaxRetries: 3}, func(h *harness) { h.notReady = true })
	require.NoError(t, h.m.Start(ModeCamera))

	for attempt := 0; ; attempt++ {
		ev := h.expect(t, Initializing)
		assert.Equal(t, attempt, ev.Attempt)
		require.True(t, h.clock.AwaitWaiters(2, time.Second), "ready poll not armed")
		h.clock.Advance(15 * time.Second)

		ev = h.expect(t, Error)
		assert.Contains(t, ev.Message, ErrReadyTimeout.Error())
		if attempt == 3 {
			assert.True(t, ev.Terminal)
			assert.Contains(t, ev.Message, "reload")
			break
		}
		assert.False(t, ev.Terminal)

		ev = h.expect(t, Retrying)
		assert.Equal(t, attempt+1, ev.Attempt)
		require.True(t, h.clock.AwaitWaiters(1, time.Second), "backoff not armed")
		h.clock.Advance(2 * time.Second)
	}

	st := h.m.Status()
	assert.Equal(t, Error, st.State)
	assert.True(t, st.Terminal)
	assert.Equal(t, 3, st.Attempt)

	h.mu.Lock()
	require.Len(t, h.sources, 4, "initial attempt plus three retries")
	for i, s := range h.sources {
		assert.True(t, s.stopped.Load(), "source %d not stopped", i)
		assert.True(t, h.estimators[i].closed.Load(), "estimator %d not closed", i)
	}
	assert.Equal(t, 1, h.maxLive)
	h.mu.Unlock()

	require.NoError(t, h.m.Reload())
	h.expect(t, Teardown)
	ev := h.expect(t, Initializing)
	assert.Equal(t, 0, ev.Attempt)
	assert.False(t, h.m.Status().Terminal)
}

func TestManager_HolisticUsesLongerReadyTimeout(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, func(h *harness) { h.notReady = true })
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	require.True(t, h.clock.AwaitWaiters(2, time.Second))

	h.clock.Advance(15 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, Initializing, h.m.Status().State, "face-only timeout must not apply")

	h.source(0).ready.Store(true)
	h.clock.Advance(100 * time.Millisecond)
	h.expect(t, Ready)
}

func TestManager_RecoversAfterSourceFailure(t *testing.T) {
	h := newHarness(t, Config{Holistic: true, MaxRetries: 3}, func(h *harness) {
		h.sourceErrs = []error{errors.New("camera busy")}
	})
	require.NoError(t, h.m.Start(ModeCamera))

	h.expect(t, Initializing)
	ev := h.expect(t, Error)
	assert.Equal(t, "frame source unavailable: camera busy", ev.Message)
	assert.False(t, ev.Terminal)
	h.expect(t, Retrying)
	require.True(t, h.clock.AwaitWaiters(1, time.Second))
	h.clock.Advance(2 * time.Second)

	ev = h.expect(t, Initializing)
	assert.Equal(t, 1, ev.Attempt)
	ev = h.expect(t, Ready)
	assert.Equal(t, 0, ev.Attempt, "attempt counter resets once ready")
	assert.True(t, h.estimator(0).closed.Load(), "estimator of the failed cycle released")
}

func TestManager_SourceLostAfterReadyRetries(t *testing.T) {
	h := newHarness(t, Config{Holistic: true, MaxRetries: 1}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	close(h.source(0).frames)
	ev := h.expect(t, Error)
	assert.Equal(t, ErrSourceClosed.Error(), ev.Message)
	ev = h.expect(t, Retrying)
	assert.Equal(t, 1, ev.Attempt)
}

func TestManager_EstimatorInitFailureWithoutRetries(t *testing.T) {
	h := newHarness(t, Config{}, func(h *harness) { h.estimatorErr = errors.New("no model") })
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	ev := h.expect(t, Error)
	assert.True(t, ev.Terminal)
	assert.True(t, strings.HasPrefix(ev.Message, ErrEstimatorInit.Error()))

	h.mu.Lock()
	assert.Empty(t, h.sources, "no source opened without an estimator")
	h.mu.Unlock()
}

func TestManager_SwitchModeTearsDownFirst(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	h := newHarness(t, Config{Holistic: true}, func(h *harness) { h.gate = gate })
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)
	first := h.m.Status().Session

	src, est := h.source(0), h.estimator(0)
	src.frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return est.calls.Load() == 1 }, "frame not submitted")

	require.NoError(t, h.m.SwitchMode(ModeVideo))
	assert.True(t, src.stopped.Load())
	assert.True(t, est.closed.Load())
	assert.Equal(t, int32(1), est.returned.Load(), "in-flight estimate cancelled")
	assert.Zero(t, h.sink.len(), "cancelled estimate is not published")

	ev := h.expect(t, Teardown)
	assert.Equal(t, first, ev.Session)
	h.expect(t, Initializing)
	ev = h.expect(t, Ready)
	assert.NotEqual(t, first, ev.Session)

	st := h.m.Status()
	assert.Equal(t, ModeVideo, st.Mode)
	h.mu.Lock()
	assert.Equal(t, 1, h.maxLive, "estimators never overlap")
	h.mu.Unlock()
}

func TestManager_SwitchSkeletonTearsDownFirst(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	h := newHarness(t, Config{Holistic: true}, func(h *harness) { h.gate = gate })
	require.NoError(t, h.m.Start(ModeVideo))
	h.expect(t, Initializing)
	h.expect(t, Ready)
	first := h.m.Status().Session

	src, est := h.source(0), h.estimator(0)
	src.frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return est.calls.Load() == 1 }, "frame not submitted")

	var bound bool
	err := h.m.SwitchSkeleton(func() error {
		bound = true
		assert.True(t, src.stopped.Load(), "source stopped before bind")
		assert.True(t, est.closed.Load(), "estimator closed before bind")
		assert.Equal(t, int32(1), est.returned.Load(), "in-flight estimate finished before bind")
		h.mu.Lock()
		defer h.mu.Unlock()
		assert.Len(t, h.estimators, 1, "no new estimator before bind")
		assert.Zero(t, h.live)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, bound)

	ev := h.expect(t, Teardown)
	assert.Equal(t, first, ev.Session)
	assert.Equal(t, "switching skeleton", ev.Message)
	h.expect(t, Initializing)
	ev = h.expect(t, Ready)
	assert.NotEqual(t, first, ev.Session)
	assert.Equal(t, ModeVideo, h.m.Status().Mode, "mode is kept")
	h.mu.Lock()
	assert.Equal(t, 1, h.maxLive, "estimators never overlap")
	h.mu.Unlock()
}

func TestManager_SwitchSkeletonBindError(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	bindErr := errors.New("bad descriptor")
	assert.ErrorIs(t, h.m.SwitchSkeleton(func() error { return bindErr }), bindErr)
	h.expect(t, Teardown)
	h.expect(t, Initializing)
	h.expect(t, Ready)
}

func TestManager_SwitchSkeletonIdle(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	calls := 0
	require.NoError(t, h.m.SwitchSkeleton(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, Uninitialized, h.m.Status().State)
	h.mu.Lock()
	assert.Empty(t, h.sources, "idle manager does not start")
	h.mu.Unlock()

	require.NoError(t, h.m.Close())
	assert.ErrorIs(t, h.m.SwitchSkeleton(func() error { return nil }), ErrClosed)
}

func TestManager_VideoPlayback(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, func(h *harness) { h.playback = true })
	require.NoError(t, h.m.Start(ModeVideo))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	h.mu.Lock()
	pb := h.playbacks[0]
	h.mu.Unlock()

	pb.paused.Store(true)
	pb.frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return h.m.Status().Counters.Skipped == 1 }, "paused frame not skipped")
	assert.Zero(t, h.estimator(0).calls.Load())

	pb.paused.Store(false)
	for seq := uint64(2); seq <= 4; seq++ {
		pb.frames <- Frame{Seq: seq, Payload: withPose}
	}
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 3 }, "decoded frames not all estimated")
	assert.Zero(t, h.m.Status().Counters.Dropped, "recordings submit every decoded frame")

	pb.ended.Store(true)
	close(pb.frames)
	ev := h.expect(t, Ready)
	assert.Equal(t, "playback ended", ev.Message)
	assert.Equal(t, Ready, h.m.Status().State)
	testutil.Eventually(t, time.Second, func() bool { return pb.stopped.Load() && h.estimator(0).closed.Load() }, "ended recording not released")
	assert.Equal(t, int32(3), h.estimator(0).calls.Load())

	require.NoError(t, h.m.Close())
	h.mu.Lock()
	assert.Len(t, h.sources, 1, "an ended recording is not restarted")
	h.mu.Unlock()
}

func TestManager_Lifecycle(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	assert.ErrorIs(t, h.m.Start(ModeCamera), ErrRunning)
	h.expect(t, Initializing)
	h.expect(t, Ready)

	require.NoError(t, h.m.Close())
	require.NoError(t, h.m.Close(), "close is idempotent")
	assert.ErrorIs(t, h.m.Start(ModeCamera), ErrClosed)
	assert.ErrorIs(t, h.m.SwitchMode(ModeVideo), ErrClosed)
	assert.ErrorIs(t, h.m.Reload(), ErrClosed)
	assert.Equal(t, Teardown, h.m.Status().State)

	h.expect(t, Teardown)
	_, ok := <-h.events
	assert.False(t, ok, "subscribers closed")

	_, ch := h.m.Subscribe()
	_, ok = <-ch
	assert.False(t, ok, "subscribing after close yields a closed channel")
}

func TestManager_Unsubscribe(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	id, ch := h.m.Subscribe()
	h.m.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	h.m.Unsubscribe(id)
}

func TestManager_RecordsSessions(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)
	h.source(0).frames <- Frame{Seq: 1, Payload: withPose}
	testutil.Eventually(t, time.Second, func() bool { return h.sink.len() == 1 }, "pose not published")
	h.waitIdle(t)
	require.NoError(t, h.m.Close())

	h.rec.mu.Lock()
	defer h.rec.mu.Unlock()
	require.Len(t, h.rec.started, 1)
	info := h.rec.started[0]
	assert.Equal(t, ModeCamera, info.Mode)
	assert.True(t, info.Holistic)

	var states []State
	for _, ev := range h.rec.events {
		assert.Equal(t, info.ID, ev.Session)
		states = append(states, ev.State)
	}
	assert.Equal(t, []State{Initializing, Ready, Teardown}, states)
	assert.Equal(t, Counters{Results: 1, Poses: 1}, h.rec.ended[info.ID])
}

func TestNewManager_RequiresDeps(t *testing.T) {
	_, err := NewManager(Config{}, Deps{})
	assert.Error(t, err)
	_, err = NewManager(Config{}, Deps{
		Sources:    func(Mode) (Source, error) { return nil, nil },
		Estimators: func(Mode) (Estimator, error) { return nil, nil },
	})
	assert.Error(t, err, "sink is required")
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeCamera, ModeVideo} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("webcam")
	assert.Error(t, err)
}

func TestAdminRoutes(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	mux := http.NewServeMux()
	h.m.AttachAdminRoutes(mux)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	w := testutil.Serve(mux, http.MethodGet, "/debug/acquisition")
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var st map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, "ready", st["state"])
	assert.Equal(t, "camera", st["mode"])

	w = testutil.Serve(mux, http.MethodPost, "/debug/acquisition-tail")
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestAdminRoutes_Tail(t *testing.T) {
	h := newHarness(t, Config{Holistic: true}, nil)
	mux := http.NewServeMux()
	h.m.AttachAdminRoutes(mux)
	require.NoError(t, h.m.Start(ModeCamera))
	h.expect(t, Initializing)
	h.expect(t, Ready)

	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		defer close(done)
		mux.ServeHTTP(w, testutil.LoopbackRequest(http.MethodGet, "/debug/acquisition-tail", nil))
	}()
	testutil.Eventually(t, time.Second, func() bool {
		h.m.subMu.Lock()
		defer h.m.subMu.Unlock()
		return len(h.m.subs) == 2
	}, "tail did not subscribe")

	// Close emits a teardown event and then ends the stream.
	require.NoError(t, h.m.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tail did not return after close")
	}
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, ": ping\n\n"))
	assert.Contains(t, body, `"state":"teardown"`)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
}
