package retarget

import (
	"math"
	"strings"
	"sync"
)

// Sample is one tick of a watched channel. Target is NaN on ticks where the
// channel received no valid target.
type Sample struct {
	Tick    uint64
	Target  float64
	Applied float64
}

// Trace keeps the most recent samples of one rotation axis, e.g. "Head.x".
// It is written by the tick goroutine and read by debug handlers. Ticks are
// numbered by the trace, so they keep increasing when a new skeleton's engine
// takes over the same trace.
type Trace struct {
	joint string
	axis  byte

	mu      sync.Mutex
	tick    uint64
	samples []Sample
	next    int
	full    bool
}

// NewTrace watches channel ("<joint>.<x|y|z>") and keeps the last capacity
// samples. An unparseable channel or a non-positive capacity returns nil,
// which records nothing.
func NewTrace(channel string, capacity int) *Trace {
	joint, axis, ok := strings.Cut(channel, ".")
	if !ok || joint == "" || len(axis) != 1 || !strings.Contains("xyz", axis) || capacity <= 0 {
		return nil
	}
	return &Trace{joint: joint, axis: axis[0], samples: make([]Sample, capacity)}
}

// Channel returns the watched channel name.
func (t *Trace) Channel() string {
	if t == nil {
		return ""
	}
	return t.joint + "." + string(t.axis)
}

func (t *Trace) record(target, applied float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tick++
	t.samples[t.next] = Sample{Tick: t.tick, Target: target, Applied: applied}
	t.next++
	if t.next == len(t.samples) {
		t.next = 0
		t.full = true
	}
}

// Samples returns the retained samples, oldest first.
func (t *Trace) Samples() []Sample {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]Sample(nil), t.samples[:t.next]...)
	}
	out := make([]Sample, 0, len(t.samples))
	out = append(out, t.samples[t.next:]...)
	return append(out, t.samples[:t.next]...)
}

// HasTarget reports whether the sample carried a target.
func (s Sample) HasTarget() bool {
	return !math.IsNaN(s.Target)
}
