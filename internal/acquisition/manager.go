// Package acquisition owns the frame source and the pose estimator, feeds
// frames to the estimator at its own pace, and publishes extracted rig
// frames to a sink.
//
// A Manager runs at most one session at a time. A session moves through
//
//	Uninitialized → Initializing → Ready → (Error → Retrying → Initializing | Ready) → Teardown
//
// and is torn down completely before the next one starts.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/rigcam/internal/extract"
	"github.com/banshee-data/rigcam/internal/monitoring"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/rigsolve"
	"github.com/banshee-data/rigcam/internal/timeutil"
)

var logs = monitoring.NewStreams("[acquisition] ")

// recorderTimeout bounds each Recorder call.
const recorderTimeout = 5 * time.Second

// Config holds the lifecycle timings. Zero durations select the defaults
// below; MaxRetries is taken as is, so zero disables automatic retries.
type Config struct {
	// Holistic requires face, body and hands. When false only the face
	// drives the frame and the shorter ready timeout applies.
	Holistic             bool
	PollInterval         time.Duration // 100ms
	ReadyTimeoutFace     time.Duration // 15s
	ReadyTimeoutHolistic time.Duration // 20s
	RetryBackoff         time.Duration // 2s
	MaxRetries           int
	Clock                timeutil.Clock
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.ReadyTimeoutFace <= 0 {
		c.ReadyTimeoutFace = 15 * time.Second
	}
	if c.ReadyTimeoutHolistic <= 0 {
		c.ReadyTimeoutHolistic = 20 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Clock == nil {
		c.Clock = timeutil.RealClock{}
	}
	return c
}

func (c Config) readyTimeout() time.Duration {
	if c.Holistic {
		return c.ReadyTimeoutHolistic
	}
	return c.ReadyTimeoutFace
}

// Deps are the collaborators a Manager drives.
type Deps struct {
	Sources    SourceFactory
	Estimators EstimatorFactory
	// Solver turns landmarks into rotations. Nil selects rigsolve.Geometric.
	Solver   rigsolve.Solver
	Sink     Sink
	Recorder Recorder // optional
}

// Status is a point-in-time view of the manager.
type Status struct {
	Mode       Mode               `json:"mode"`
	Holistic   bool               `json:"holistic"`
	Session    string             `json:"session,omitempty"`
	State      State              `json:"state"`
	Attempt    int                `json:"attempt"`
	MaxRetries int                `json:"max_retries"`
	Message    string             `json:"message,omitempty"`
	Terminal   bool               `json:"terminal"`
	Tracking   rig.TrackingStatus `json:"tracking"`
	LastResult time.Time          `json:"last_result"`
	Counters   Counters           `json:"counters"`
}

// Manager owns a single frame source and estimator pair at a time.
type Manager struct {
	cfg       Config
	deps      Deps
	clock     timeutil.Clock
	extractor *extract.Extractor

	lifecycle sync.Mutex // serializes Start, SwitchMode, SwitchSkeleton, Reload and Close

	mu      sync.Mutex
	mode    Mode
	session *session
	status  Status
	closed  bool

	subMu sync.Mutex
	subs  map[string]chan Event
}

type session struct {
	info   SessionInfo
	cancel context.CancelFunc
	done   chan struct{}

	inflight atomic.Bool
	wg       sync.WaitGroup // asynchronous estimates

	results, poses, dropped, skipped, estimateErrs, regionFails atomic.Uint64
}

func (s *session) counters() Counters {
	return Counters{
		Results:        s.results.Load(),
		Poses:          s.poses.Load(),
		Dropped:        s.dropped.Load(),
		Skipped:        s.skipped.Load(),
		EstimateErrors: s.estimateErrs.Load(),
		RegionFailures: s.regionFails.Load(),
	}
}

// NewManager returns an idle manager. Call Start to begin acquisition.
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	if deps.Sources == nil || deps.Estimators == nil {
		return nil, errors.New("acquisition: source and estimator factories are required")
	}
	if deps.Sink == nil {
		return nil, errors.New("acquisition: sink is required")
	}
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:       cfg,
		deps:      deps,
		clock:     cfg.Clock,
		extractor: extract.New(deps.Solver, extract.Options{FaceOnly: !cfg.Holistic}),
		status:    Status{Holistic: cfg.Holistic, MaxRetries: cfg.MaxRetries},
		subs:      make(map[string]chan Event),
	}, nil
}

// Start begins a session in the given mode. It returns immediately; progress
// is reported through events and Status.
func (m *Manager) Start(mode Mode) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.mu.Lock()
	closed, running := m.closed, m.session != nil
	m.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if running {
		return ErrRunning
	}
	m.start(mode)
	return nil
}

// SwitchMode tears the current session down and starts a new one in mode.
func (m *Manager) SwitchMode(mode Mode) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.isClosed() {
		return ErrClosed
	}
	m.stop(fmt.Sprintf("switching to %s", mode))
	m.start(mode)
	return nil
}

// SwitchSkeleton tears the current session down, calls bind while no source
// or estimator is alive, and then starts a new session in the same mode. The
// new session starts even when bind fails; bind's error is returned. With no
// session running, bind is called and nothing is started.
func (m *Manager) SwitchSkeleton(bind func() error) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	mode, running := m.mode, m.session != nil
	m.mu.Unlock()
	if !running {
		return bind()
	}
	m.stop("switching skeleton")
	err := bind()
	m.start(mode)
	return err
}

// Reload restarts acquisition in the current mode with a fresh attempt
// counter. It is the only way out of a terminal error.
func (m *Manager) Reload() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.isClosed() {
		return ErrClosed
	}
	m.mu.Lock()
	mode := m.mode
	m.mu.Unlock()
	m.stop("reload")
	m.start(mode)
	return nil
}

// Close tears down the current session and closes every subscriber. The
// source is stopped and the estimator closed before Close returns.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.isClosed() {
		return nil
	}
	m.stop("closed")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.closeSubscribers()
	return nil
}

// Status returns the current state and the current session's counters.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st, sess := m.status, m.session
	m.mu.Unlock()
	if sess != nil {
		st.Counters = sess.counters()
	}
	return st
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) start(mode Mode) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		info: SessionInfo{
			ID:        uuid.NewString(),
			Mode:      mode,
			Holistic:  m.cfg.Holistic,
			StartedAt: m.clock.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}

	m.mu.Lock()
	m.mode = mode
	m.session = sess
	m.status = Status{
		Mode:       mode,
		Holistic:   m.cfg.Holistic,
		Session:    sess.info.ID,
		State:      Uninitialized,
		MaxRetries: m.cfg.MaxRetries,
	}
	m.mu.Unlock()

	logs.Opsf("session %s: starting %s acquisition", sess.info.ID, mode)
	m.persist(func(ctx context.Context, r Recorder) error { return r.StartSession(ctx, sess.info) })
	go m.run(ctx, sess)
}

// stop cancels the current session and waits until its source is stopped,
// its estimator closed and every goroutine it started has returned.
func (m *Manager) stop(reason string) {
	m.mu.Lock()
	sess := m.session
	m.mu.Unlock()
	if sess == nil {
		return
	}

	sess.cancel()
	<-sess.done

	c := sess.counters()
	m.transition(sess, Teardown, 0, reason, false)
	m.mu.Lock()
	m.session = nil
	m.status.Counters = c
	m.mu.Unlock()

	logs.Opsf("session %s: stopped (%s): %d results, %d with pose, %d dropped", sess.info.ID, reason, c.Results, c.Poses, c.Dropped)
	m.persist(func(ctx context.Context, r Recorder) error {
		return r.EndSession(ctx, sess.info.ID, m.clock.Now(), c)
	})
}

// run drives one session until it is cancelled. Each pass through the loop
// is one initialization cycle.
func (m *Manager) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	attempt := 0
	for {
		m.transition(sess, Initializing, attempt, m.initMessage(sess, attempt), false)
		ready, err := m.cycle(ctx, sess)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// recording finished; keep the session until torn down
			<-ctx.Done()
			return
		}
		if ready {
			attempt = 0
		}

		terminal := attempt >= m.cfg.MaxRetries
		msg := err.Error()
		if terminal {
			msg = fmt.Sprintf("%v; giving up after %d retries, reload to try again", err, attempt)
		}
		m.transition(sess, Error, attempt, msg, terminal)
		if terminal {
			<-ctx.Done()
			return
		}

		m.transition(sess, Retrying, attempt+1,
			fmt.Sprintf("retrying %d/%d in %v", attempt+1, m.cfg.MaxRetries, m.cfg.RetryBackoff), false)
		backoff := m.clock.NewTimer(m.cfg.RetryBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return
		case <-backoff.C():
		}
		attempt++
	}
}

func (m *Manager) initMessage(sess *session, attempt int) string {
	if attempt == 0 {
		return fmt.Sprintf("initializing %s", sess.info.Mode)
	}
	return fmt.Sprintf("initializing %s (retry %d/%d)", sess.info.Mode, attempt, m.cfg.MaxRetries)
}

// cycle constructs an estimator and source, waits for the source to become
// ready and then pumps frames until the source fails or ctx is done. Both
// are released before cycle returns. ready reports whether the source ever
// became ready.
func (m *Manager) cycle(ctx context.Context, sess *session) (ready bool, err error) {
	cctx, cancel := context.WithCancel(ctx)
	var (
		src Source
		est Estimator
	)
	defer func() {
		cancel()
		sess.wg.Wait()
		m.release(sess, src, est)
	}()

	est, err = m.deps.Estimators(sess.info.Mode)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEstimatorInit, err)
	}
	src, err = m.deps.Sources(sess.info.Mode)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := src.Start(cctx); err != nil {
		return false, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if err := m.awaitReady(cctx, src); err != nil {
		return false, err
	}

	m.transition(sess, Ready, 0, fmt.Sprintf("tracking from %s", sess.info.Mode), false)
	return true, m.pump(cctx, sess, src, est)
}

func (m *Manager) release(sess *session, src Source, est Estimator) {
	if src != nil {
		if err := src.Stop(); err != nil {
			logs.Diagf("session %s: stop source: %v", sess.info.ID, err)
		}
	}
	if est != nil {
		if err := est.Close(); err != nil {
			logs.Diagf("session %s: close estimator: %v", sess.info.ID, err)
		}
	}
}

// awaitReady polls src until it reports ready or the ready timeout passes.
func (m *Manager) awaitReady(ctx context.Context, src Source) error {
	if src.Ready() {
		return nil
	}
	timeout := m.cfg.readyTimeout()
	deadline := m.clock.NewTimer(timeout)
	defer deadline.Stop()
	poll := m.clock.NewTicker(m.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C():
			return fmt.Errorf("%w after %v", ErrReadyTimeout, timeout)
		case <-poll.C():
			if src.Ready() {
				return nil
			}
		}
	}
}

// pump submits frames to the estimator. A frame that arrives while an
// estimate is in flight is dropped. Recordings are estimated inline, one
// submission per decoded frame, so playback waits for the estimator.
func (m *Manager) pump(ctx context.Context, sess *session, src Source, est Estimator) error {
	frames := src.Frames()
	playback, _ := src.(Playback)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if playback != nil && playback.Ended() {
					m.transition(sess, Ready, 0, "playback ended", false)
					return nil
				}
				return ErrSourceClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if playback != nil && (playback.Paused() || playback.Ended()) {
				sess.skipped.Add(1)
				continue
			}
			if !sess.inflight.CompareAndSwap(false, true) {
				sess.dropped.Add(1)
				logs.Tracef("frame %d dropped: estimate in flight", f.Seq)
				continue
			}
			if sess.info.Mode == ModeVideo {
				m.submit(ctx, sess, est, f)
				continue
			}
			sess.wg.Add(1)
			go func() {
				defer sess.wg.Done()
				m.submit(ctx, sess, est, f)
			}()
		}
	}
}

// submit runs one estimate and publishes its result. Results that complete
// after ctx is done are discarded.
func (m *Manager) submit(ctx context.Context, sess *session, est Estimator, f Frame) {
	defer sess.inflight.Store(false)

	raw, err := est.Estimate(ctx, f)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		sess.estimateErrs.Add(1)
		logs.Diagf("frame %d: estimate: %v", f.Seq, err)
		return
	}
	res, err := m.extractor.Extract(raw)
	if err != nil {
		sess.estimateErrs.Add(1)
		logs.Diagf("frame %d: %v", f.Seq, err)
		return
	}

	sess.results.Add(1)
	if res.Frame != nil {
		sess.poses.Add(1)
	}
	sess.regionFails.Add(uint64(len(res.Failed)))
	m.deps.Sink.Publish(res.Frame)

	now := m.clock.Now()
	m.mu.Lock()
	m.status.Tracking = res.Status
	m.status.LastResult = now
	m.mu.Unlock()
	m.broadcast(Event{
		Kind:     KindResult,
		Time:     now,
		Session:  sess.info.ID,
		State:    Ready,
		Tracking: res.Status,
		Pose:     res.Frame != nil,
	})
}

func (m *Manager) transition(sess *session, state State, attempt int, msg string, terminal bool) {
	ev := Event{
		Kind:     KindTransition,
		Time:     m.clock.Now(),
		Session:  sess.info.ID,
		State:    state,
		Attempt:  attempt,
		Message:  msg,
		Terminal: terminal,
	}

	m.mu.Lock()
	m.status.State = state
	m.status.Attempt = attempt
	m.status.Message = msg
	m.status.Terminal = terminal
	m.mu.Unlock()

	if state == Error {
		logs.Opsf("session %s: %s", sess.info.ID, msg)
	} else {
		logs.Diagf("session %s: %s (attempt %d): %s", sess.info.ID, state, attempt, msg)
	}
	m.persist(func(ctx context.Context, r Recorder) error { return r.RecordEvent(ctx, ev) })
	m.broadcast(ev)
}

func (m *Manager) persist(fn func(context.Context, Recorder) error) {
	if m.deps.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), recorderTimeout)
	defer cancel()
	if err := fn(ctx, m.deps.Recorder); err != nil {
		logs.Diagf("recorder: %v", err)
	}
}
