package retarget

import (
	"fmt"

	"github.com/banshee-data/rigcam/internal/rig"
)

// Class groups channels that share a smoothing coefficient.
type Class int

const (
	ClassHead Class = iota
	ClassNeck
	ClassSpine
	ClassArms
	ClassHands
	ClassFace
)

func (c Class) String() string {
	switch c {
	case ClassHead:
		return "head"
	case ClassNeck:
		return "neck"
	case ClassSpine:
		return "spine"
	case ClassArms:
		return "arms"
	case ClassHands:
		return "hands"
	case ClassFace:
		return "face"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// Smoothing holds the per-class exponential smoothing coefficients. Each
// tick moves the applied value by Alpha·(target − applied).
type Smoothing struct {
	Head  float64
	Neck  float64
	Spine float64
	Arms  float64
	Hands float64
	Face  float64
}

// DefaultSmoothing is the deliberate preset.
var DefaultSmoothing = Smoothing{Head: 0.12, Neck: 0.1, Spine: 0.08, Arms: 0.1, Hands: 0.2, Face: 0.4}

// ResponsiveSmoothing reacts faster at the cost of more visible jitter.
var ResponsiveSmoothing = Smoothing{Head: 0.15, Neck: 0.1, Spine: 0.1, Arms: 0.1, Hands: 0.25, Face: 0.5}

// Alpha returns the coefficient for class c.
func (s Smoothing) Alpha(c Class) float64 {
	switch c {
	case ClassHead:
		return s.Head
	case ClassNeck:
		return s.Neck
	case ClassSpine:
		return s.Spine
	case ClassArms:
		return s.Arms
	case ClassHands:
		return s.Hands
	case ClassFace:
		return s.Face
	}
	return 0
}

// Validate checks every coefficient is in (0,1] and that hands and face
// react faster than the head and torso.
func (s Smoothing) Validate() error {
	for c := ClassHead; c <= ClassFace; c++ {
		a := s.Alpha(c)
		if !rig.Finite(a) || a <= 0 || a > 1 {
			return fmt.Errorf("smoothing_%s must be in (0, 1], got %v", c, a)
		}
	}
	for _, fast := range []Class{ClassHands, ClassFace} {
		for _, slow := range []Class{ClassHead, ClassNeck, ClassSpine} {
			if s.Alpha(fast) <= s.Alpha(slow) {
				return fmt.Errorf("smoothing_%s (%v) must be greater than smoothing_%s (%v)",
					fast, s.Alpha(fast), slow, s.Alpha(slow))
			}
		}
	}
	return nil
}

// BodyClass returns the class of a canonical body joint.
func BodyClass(joint string) Class {
	switch joint {
	case rig.Hips, rig.Spine, rig.Spine1, rig.Spine2:
		return ClassSpine
	case rig.Neck:
		return ClassNeck
	case rig.Head:
		return ClassHead
	}
	return ClassArms
}
