package scheduler

import (
	"sync/atomic"

	"github.com/banshee-data/rigcam/internal/rig"
)

// Slot holds the most recent rig frame. Writers overwrite it and the tick
// reads it without blocking; intermediate frames are simply lost.
//
// A published nil frame (tracking lost) is distinct from an empty slot
// (nothing processed yet).
type Slot struct {
	latest atomic.Pointer[published]
	seq    atomic.Uint64
}

type published struct {
	frame *rig.Frame
	seq   uint64
}

// Publish replaces the slot contents. f must not be modified afterwards.
func (s *Slot) Publish(f *rig.Frame) {
	s.latest.Store(&published{frame: f, seq: s.seq.Add(1)})
}

// Load returns the latest frame. ok is false when nothing has been
// published since the slot was created or reset.
func (s *Slot) Load() (f *rig.Frame, ok bool) {
	p := s.latest.Load()
	if p == nil {
		return nil, false
	}
	return p.frame, true
}

// Seq returns the publish sequence number of the latest frame, 0 if none.
func (s *Slot) Seq() uint64 {
	if p := s.latest.Load(); p != nil {
		return p.seq
	}
	return 0
}

// Reset empties the slot.
func (s *Slot) Reset() {
	s.latest.Store(nil)
}
