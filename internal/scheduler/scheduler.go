// Package scheduler drives the retargeting engine once per render tick,
// independently of how often new detections arrive.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rigcam/internal/monitoring"
	"github.com/banshee-data/rigcam/internal/resolve"
	"github.com/banshee-data/rigcam/internal/retarget"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/skeleton"
	"github.com/banshee-data/rigcam/internal/timeutil"
)

var logs = monitoring.NewStreams("[scheduler] ")

// ErrNoSkeleton is returned by SetSkeleton for a nil skeleton.
var ErrNoSkeleton = errors.New("scheduler: nil skeleton")

// Options configures a Scheduler.
type Options struct {
	Retarget retarget.Options
	// FPS is the tick rate used by Run. Defaults to 60.
	FPS   int
	Clock timeutil.Clock
}

// Stats are cumulative tick counters.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Idle       uint64 `json:"idle"`     // ticks before any frame arrived
	LostTicks  uint64 `json:"lost"`     // ticks that saw a nil frame
	NoSkeleton uint64 `json:"no_skel"`  // ticks with no skeleton loaded
	Writes     uint64 `json:"writes"`   // channel writes
	Unresolved uint64 `json:"unres"`    // targets the skeleton lacks
	Invalid    uint64 `json:"invalid"`  // held non-finite targets
	Skeleton   string `json:"skeleton"` // load id of the current skeleton
	Joints     int    `json:"joints"`   // name variants in the joint table
}

// Scheduler owns the latest-frame slot and the engine for the current
// skeleton.
type Scheduler struct {
	slot  Slot
	opts  Options
	clock timeutil.Clock

	mu     sync.Mutex // guards engine and serializes ticks with skeleton swaps
	engine *retarget.Engine

	ticks, idle, lost, noSkel atomic.Uint64
	writes, unres, invalid    atomic.Uint64
}

// New returns a scheduler with no skeleton loaded.
func New(opts Options) *Scheduler {
	if opts.FPS <= 0 {
		opts.FPS = 60
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Scheduler{opts: opts, clock: opts.Clock}
}

// Publish hands a new frame to the next tick. It never blocks.
func (s *Scheduler) Publish(f *rig.Frame) {
	s.slot.Publish(f)
}

// Slot exposes the latest-frame slot.
func (s *Scheduler) Slot() *Slot { return &s.slot }

// SetSkeleton builds a fresh joint table and engine for sk and swaps them in
// between ticks. The previous table is discarded.
func (s *Scheduler) SetSkeleton(sk *skeleton.Skeleton) error {
	if sk == nil {
		return ErrNoSkeleton
	}
	table := resolve.Build(sk)
	engine, err := retarget.New(table, s.opts.Retarget)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.engine = engine
	s.mu.Unlock()

	face := "none"
	if m := table.FaceMesh(); m != nil {
		face = m.Name
	}
	logs.Opsf("loaded skeleton %s (%s): %d name variants, face mesh %s", sk.ID, sk.Source, table.Len(), face)
	return nil
}

// Skeleton returns the currently loaded skeleton, or nil.
func (s *Scheduler) Skeleton() *skeleton.Skeleton {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Table().Skeleton()
}

// Tick applies the latest frame once. Before the first frame arrives, or
// while no skeleton is loaded, it does nothing.
func (s *Scheduler) Tick() retarget.Stats {
	s.ticks.Add(1)

	f, ok := s.slot.Load()
	if !ok {
		s.idle.Add(1)
		return retarget.Stats{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		s.noSkel.Add(1)
		return retarget.Stats{}
	}
	if f == nil {
		s.lost.Add(1)
	}
	st := s.engine.Apply(f)
	s.writes.Add(uint64(st.Writes))
	s.unres.Add(uint64(st.Unresolved))
	s.invalid.Add(uint64(st.Invalid))
	logs.Tracef("tick seq=%d writes=%d unresolved=%d invalid=%d", s.slot.Seq(), st.Writes, st.Unresolved, st.Invalid)
	return st
}

// Run ticks at the configured rate until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := s.clock.NewTicker(time.Second / time.Duration(s.opts.FPS))
	defer ticker.Stop()
	logs.Diagf("render loop started at %d fps", s.opts.FPS)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			s.Tick()
		}
	}
}

// Snapshot copies the applied skeleton state between ticks.
func (s *Scheduler) Snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	return s.engine.Table().Skeleton().Snapshot()
}

// Stats returns the cumulative counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Ticks:      s.ticks.Load(),
		Idle:       s.idle.Load(),
		LostTicks:  s.lost.Load(),
		NoSkeleton: s.noSkel.Load(),
		Writes:     s.writes.Load(),
		Unresolved: s.unres.Load(),
		Invalid:    s.invalid.Load(),
	}
	s.mu.Lock()
	if s.engine != nil {
		st.Skeleton = s.engine.Table().Skeleton().ID
		st.Joints = s.engine.Table().Len()
	}
	s.mu.Unlock()
	return st
}
