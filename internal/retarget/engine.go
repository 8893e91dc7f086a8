// Package retarget applies rig frames to a resolved skeleton with
// per-channel exponential smoothing and range clamping.
//
// The engine reads and writes joint rotations and morph influences in place:
// the skeleton itself is the smoothing state. Absent fields and non-finite
// values leave the applied channel untouched, and a nil frame writes nothing
// at all.
package retarget

import (
	"math"

	"github.com/banshee-data/rigcam/internal/resolve"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/skeleton"
)

// Blend-shape channels driven from the face estimate.
const (
	MorphBlinkLeft  = "eyeBlinkLeft"
	MorphBlinkRight = "eyeBlinkRight"
	MorphMouthOpen  = "mouthOpen"
	MorphJawOpen    = "jawOpen"
	MorphMouthSmile = "mouthSmile"
)

// smileGain scales the wide-mouth component onto the smile channel.
const smileGain = 0.5

// Options configures an Engine.
type Options struct {
	Smoothing Smoothing
	// MirrorBlink drives each eyelid from the opposite eye's estimate, for a
	// camera image that is mirrored before estimation.
	MirrorBlink bool
	// Trace, when non-nil, records one sample per Apply.
	Trace *Trace
}

// Stats counts what one Apply did.
type Stats struct {
	// Writes is the number of channel axes or weights written.
	Writes int
	// Unresolved is the number of targets whose joint or morph channel the
	// skeleton lacks.
	Unresolved int
	// Invalid is the number of non-finite target values that were held.
	Invalid int
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Writes += o.Writes
	s.Unresolved += o.Unresolved
	s.Invalid += o.Invalid
}

// Engine retargets onto one skeleton. It is not safe for concurrent use; a
// single tick goroutine owns it.
type Engine struct {
	table *resolve.JointTable
	face  *skeleton.Mesh
	opts  Options

	watched *skeleton.Joint
}

// New returns an engine for the skeleton behind table.
func New(table *resolve.JointTable, opts Options) (*Engine, error) {
	if err := opts.Smoothing.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{table: table, face: table.FaceMesh(), opts: opts}
	if opts.Trace != nil {
		e.watched, _ = table.Lookup(opts.Trace.joint)
	}
	return e, nil
}

// Table returns the joint table the engine writes through.
func (e *Engine) Table() *resolve.JointTable { return e.table }

// Apply blends f into the skeleton. A nil frame is full tracking loss and
// performs no writes.
func (e *Engine) Apply(f *rig.Frame) Stats {
	var st Stats
	target := math.NaN()

	if f.HasFace() {
		if f.Head != nil {
			h := clampRotation(*f.Head)
			st.Add(e.rotate(rig.Head, h, ClassHead, &target))
			neck := h.Scale(0.5)
			neck.X = -neck.X
			st.Add(e.rotate(rig.Neck, neck, ClassNeck, &target))
		}
		if f.Eyes != nil {
			left, right := f.Eyes.L, f.Eyes.R
			if e.opts.MirrorBlink {
				left, right = right, left
			}
			st.Add(e.morph(MorphBlinkLeft, 1-left))
			st.Add(e.morph(MorphBlinkRight, 1-right))
		}
		if f.Mouth != nil {
			open := MorphMouthOpen
			if _, ok := e.morphIndex(open); !ok {
				open = MorphJawOpen
			}
			st.Add(e.morph(open, f.Mouth.A))
			st.Add(e.morph(MorphMouthSmile, f.Mouth.E*smileGain))
		}
	}
	if f != nil {
		for name, r := range f.Body {
			st.Add(e.rotate(name, r, BodyClass(name), &target))
		}
	}
	if f.HasHands() {
		for name, r := range f.RightHand {
			st.Add(e.rotate(name, r, ClassHands, &target))
		}
		for name, r := range f.LeftHand {
			st.Add(e.rotate(name, r, ClassHands, &target))
		}
	}

	if e.opts.Trace != nil && e.watched != nil {
		e.opts.Trace.record(target, *axis(&e.watched.Rotation, e.opts.Trace.axis))
	}
	return st
}

// rotate blends one joint towards r. traced receives the clamped target of
// the watched axis when this joint is the one being traced.
func (e *Engine) rotate(name string, r rig.Rotation, c Class, traced *float64) Stats {
	var st Stats
	j, ok := e.table.Lookup(name)
	if !ok {
		st.Unresolved++
		return st
	}
	alpha := e.opts.Smoothing.Alpha(c)
	for _, ax := range [...]byte{'x', 'y', 'z'} {
		v := *axis(&r, ax)
		if !rig.Finite(v) {
			st.Invalid++
			continue
		}
		v = clamp(v, -math.Pi, math.Pi)
		p := axis(&j.Rotation, ax)
		*p += alpha * (v - *p)
		st.Writes++
		if j == e.watched && e.opts.Trace != nil && ax == e.opts.Trace.axis {
			*traced = v
		}
	}
	return st
}

func (e *Engine) morphIndex(name string) (int, bool) {
	if e.face == nil {
		return 0, false
	}
	i, ok := e.face.MorphTargets[name]
	if !ok || i < 0 || i >= len(e.face.Influences) {
		return 0, false
	}
	return i, true
}

// morph blends one blend-shape weight towards v.
func (e *Engine) morph(name string, v float64) Stats {
	var st Stats
	i, ok := e.morphIndex(name)
	if !ok {
		st.Unresolved++
		return st
	}
	if !rig.Finite(v) {
		st.Invalid++
		return st
	}
	v = clamp(v, 0, 1)
	w := &e.face.Influences[i]
	*w += e.opts.Smoothing.Face * (v - *w)
	st.Writes++
	return st
}

// axis returns a pointer to one component of r. It is used both to read a
// target and to mutate a joint's applied rotation.
func axis(r *rig.Rotation, ax byte) *float64 {
	switch ax {
	case 'y':
		return &r.Y
	case 'z':
		return &r.Z
	}
	return &r.X
}

// clampRotation clamps the finite axes of r to ±π. Non-finite axes are left
// for rotate to reject.
func clampRotation(r rig.Rotation) rig.Rotation {
	for _, ax := range [...]byte{'x', 'y', 'z'} {
		if p := axis(&r, ax); rig.Finite(*p) {
			*p = clamp(*p, -math.Pi, math.Pi)
		}
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
