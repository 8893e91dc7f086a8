package acquisition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/rigcam/internal/rig"
)

// Errors that drive the retry machine. They are user visible through event
// messages.
var (
	ErrSourceUnavailable = errors.New("frame source unavailable")
	ErrEstimatorInit     = errors.New("estimator initialization failed")
	ErrReadyTimeout      = errors.New("frame source not ready before timeout")
	ErrSourceClosed      = errors.New("frame source stopped delivering frames")
)

// Lifecycle errors returned to callers.
var (
	ErrClosed  = errors.New("acquisition: manager closed")
	ErrRunning = errors.New("acquisition: already running")
)

// Mode selects the kind of frame source.
type Mode int

const (
	ModeCamera Mode = iota
	ModeVideo
)

func (m Mode) String() string {
	switch m {
	case ModeCamera:
		return "camera"
	case ModeVideo:
		return "video"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses "camera" or "video".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "camera":
		return ModeCamera, nil
	case "video":
		return ModeVideo, nil
	}
	return 0, fmt.Errorf("unknown acquisition mode %q", s)
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// State is the manager lifecycle state.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Error
	Retrying
	Teardown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Error:
		return "error"
	case Retrying:
		return "retrying"
	case Teardown:
		return "teardown"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Frame is one captured frame. Payload is opaque to the manager and is
// handed to the estimator as is.
type Frame struct {
	Seq uint64
	// PTS is the presentation time within a recording; zero for live sources.
	PTS     time.Duration
	Payload json.RawMessage
}

// Source delivers frames. Start must not block waiting for the device;
// readiness is polled through Ready.
type Source interface {
	Start(ctx context.Context) error
	Ready() bool
	Frames() <-chan Frame
	Stop() error
}

// Playback is implemented by sources that play a recording.
type Playback interface {
	Paused() bool
	Ended() bool
}

// Estimator turns a frame into a landmark result document.
type Estimator interface {
	Estimate(ctx context.Context, f Frame) (json.RawMessage, error)
	Close() error
}

// Sink receives every extracted frame, or nil when no body was detected.
type Sink interface {
	Publish(f *rig.Frame)
}

// SourceFactory constructs a new, unstarted source for mode.
type SourceFactory func(mode Mode) (Source, error)

// EstimatorFactory constructs a new estimator for mode.
type EstimatorFactory func(mode Mode) (Estimator, error)

// Recorder persists session history. Errors are logged and never affect
// acquisition.
type Recorder interface {
	StartSession(ctx context.Context, s SessionInfo) error
	RecordEvent(ctx context.Context, ev Event) error
	EndSession(ctx context.Context, id string, endedAt time.Time, c Counters) error
}

// SessionInfo describes one session, from start to teardown.
type SessionInfo struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	Holistic  bool      `json:"holistic"`
	StartedAt time.Time `json:"started_at"`
}

// Counters are per-session result counters.
type Counters struct {
	Results        uint64 `json:"results"`
	Poses          uint64 `json:"poses"`
	Dropped        uint64 `json:"dropped"`
	Skipped        uint64 `json:"skipped"`
	EstimateErrors uint64 `json:"estimate_errors"`
	RegionFailures uint64 `json:"region_failures"`
}

// EventKind distinguishes lifecycle transitions from estimator results.
type EventKind int

const (
	KindTransition EventKind = iota
	KindResult
)

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	if k == KindResult {
		return []byte("result"), nil
	}
	return []byte("transition"), nil
}

// Event is emitted on every state transition and every estimator result.
type Event struct {
	Kind    EventKind `json:"kind"`
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`

	// Transition fields.
	State    State  `json:"state"`
	Attempt  int    `json:"attempt"`
	Message  string `json:"message,omitempty"`
	Terminal bool   `json:"terminal,omitempty"`

	// Result fields. Pose is false when the result carried no body, which
	// is published downstream as a nil frame.
	Tracking rig.TrackingStatus `json:"tracking"`
	Pose     bool               `json:"pose"`
}
