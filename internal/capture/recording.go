package capture

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rigcam/internal/acquisition"
	"github.com/banshee-data/rigcam/internal/timeutil"
)

// maxRecordLine bounds one JSON-lines record.
const maxRecordLine = 4 * 1024 * 1024

// ErrNoRecording is returned when video mode is selected without a file.
var ErrNoRecording = errors.New("capture: no recording file configured")

// Record is one line of a recording file: the estimator result for one
// decoded frame, at T seconds from the start of the video.
type Record struct {
	T       float64         `json:"t"`
	Results json.RawMessage `json:"results"`
}

// Recording plays a JSON-lines file of estimator results, one record per
// decoded frame, paced by the record timestamps. Playback waits for each
// frame to be taken before moving on, so a slow consumer slows playback
// rather than losing frames.
type Recording struct {
	path  string
	clock timeutil.Clock

	frames chan acquisition.Frame
	resume chan struct{}

	ready, paused, ended atomic.Bool
	played, malformed    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var (
	_ acquisition.Source   = (*Recording)(nil)
	_ acquisition.Playback = (*Recording)(nil)
)

// NewRecording returns an unstarted player for path. A nil clock uses the
// real clock.
func NewRecording(path string, clock timeutil.Clock) *Recording {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Recording{
		path:   path,
		clock:  clock,
		frames: make(chan acquisition.Frame),
		resume: make(chan struct{}, 1),
	}
}

// Start opens the file and begins playback in the background.
func (r *Recording) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return errors.New("capture: recording already started")
	}
	if r.path == "" {
		return ErrNoRecording
	}
	if ext := filepath.Ext(r.path); ext != ".jsonl" && ext != ".ndjson" {
		return fmt.Errorf("recording must be a .jsonl file, got %q", r.path)
	}
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel, r.done = cancel, make(chan struct{})
	go r.play(ctx, f, r.done)
	return nil
}

func (r *Recording) play(ctx context.Context, f *os.File, done chan struct{}) {
	defer close(done)
	defer close(r.frames)
	defer f.Close()

	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 64*1024), maxRecordLine)

	var (
		seq     uint64
		first   = true
		t0      float64
		prevPTS time.Duration
	)
	for line := 1; scan.Scan(); line++ {
		raw := scan.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil || len(rec.Results) == 0 || math.IsNaN(rec.T) {
			r.malformed.Add(1)
			logs.Diagf("%s:%d: skipping malformed record", filepath.Base(r.path), line)
			continue
		}
		if first {
			t0, first = rec.T, false
			r.ready.Store(true)
		}

		pts := time.Duration((rec.T - t0) * float64(time.Second))
		if wait := pts - prevPTS; wait > 0 {
			timer := r.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C():
			}
		}
		if pts > prevPTS {
			prevPTS = pts
		}

		for r.paused.Load() {
			select {
			case <-ctx.Done():
				return
			case <-r.resume:
			}
		}

		seq++
		select {
		case r.frames <- acquisition.Frame{Seq: seq, PTS: pts, Payload: append(json.RawMessage(nil), rec.Results...)}:
			r.played.Add(1)
		case <-ctx.Done():
			return
		}
	}
	if err := scan.Err(); err != nil {
		logs.Opsf("%s: read failed after %d frames: %v", filepath.Base(r.path), seq, err)
		return
	}
	r.ended.Store(true)
	logs.Diagf("%s: playback ended after %d frames", filepath.Base(r.path), seq)
}

// Ready reports whether the first record has been decoded.
func (r *Recording) Ready() bool { return r.ready.Load() }

// Frames is closed when playback ends or stops.
func (r *Recording) Frames() <-chan acquisition.Frame { return r.frames }

// Pause holds playback before the next frame.
func (r *Recording) Pause() { r.paused.Store(true) }

// Resume continues a paused playback.
func (r *Recording) Resume() {
	if r.paused.CompareAndSwap(true, false) {
		select {
		case r.resume <- struct{}{}:
		default:
		}
	}
}

// Paused reports whether playback is paused.
func (r *Recording) Paused() bool { return r.paused.Load() }

// Ended reports whether every record has been played.
func (r *Recording) Ended() bool { return r.ended.Load() }

// Played returns how many frames have been delivered.
func (r *Recording) Played() uint64 { return r.played.Load() }

// Malformed returns how many lines were skipped.
func (r *Recording) Malformed() uint64 { return r.malformed.Load() }

// Stop ends playback and closes the file. It is safe to call more than once.
func (r *Recording) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel = nil
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
