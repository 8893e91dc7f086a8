package main

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/rigcam/internal/resolve"
	"github.com/banshee-data/rigcam/internal/retarget"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/skeleton"
)

// stepCase drives one joint of a smoothing class with a step target.
type stepCase struct {
	class retarget.Class
	joint string
	frame func(v float64) *rig.Frame
}

var handJoint = rig.FingerSegment(rig.Right, "Index", "Proximal")

var stepCases = []stepCase{
	{retarget.ClassHead, rig.Head, func(v float64) *rig.Frame {
		return &rig.Frame{Head: &rig.Rotation{X: v}}
	}},
	{retarget.ClassSpine, rig.Spine, func(v float64) *rig.Frame {
		return &rig.Frame{Body: rig.Joints{rig.Spine: {X: v}}}
	}},
	{retarget.ClassArms, rig.RightArm, func(v float64) *rig.Frame {
		return &rig.Frame{Body: rig.Joints{rig.RightArm: {X: v}}}
	}},
	{retarget.ClassHands, handJoint, func(v float64) *rig.Frame {
		return &rig.Frame{RightHand: rig.Joints{handJoint: {X: v}}}
	}},
}

// stepSkeleton carries one joint per stepCase, named the way a typical export
// names them.
func stepSkeleton() *skeleton.Skeleton {
	root := &skeleton.Joint{Name: resolve.VendorPrefix + ":Hips"}
	for _, p := range stepCases {
		name := p.joint
		if alias, ok := resolve.Aliases[name]; ok {
			name = alias
		}
		root.Children = append(root.Children, &skeleton.Joint{Name: resolve.VendorPrefix + ":" + name})
	}
	return skeleton.New(root)
}

// Curve is the applied value of one class after each tick of a step input.
type Curve struct {
	Class   retarget.Class
	Alpha   float64
	Applied []float64
}

// stepResponse runs the engine for ticks ticks against a constant target and
// returns the traced applied value per class.
func stepResponse(s retarget.Smoothing, target float64, ticks int) ([]Curve, error) {
	curves := make([]Curve, 0, len(stepCases))
	for _, p := range stepCases {
		trace := retarget.NewTrace(p.joint+".x", ticks)
		eng, err := retarget.New(resolve.Build(stepSkeleton()), retarget.Options{Smoothing: s, Trace: trace})
		if err != nil {
			return nil, err
		}
		f := p.frame(target)
		for i := 0; i < ticks; i++ {
			eng.Apply(f)
		}
		samples := trace.Samples()
		if len(samples) != ticks {
			return nil, fmt.Errorf("%s: traced %d of %d ticks", p.joint, len(samples), ticks)
		}
		c := Curve{Class: p.class, Alpha: s.Alpha(p.class), Applied: make([]float64, ticks)}
		for i, smp := range samples {
			c.Applied[i] = smp.Applied
		}
		curves = append(curves, c)
	}
	return curves, nil
}

// ticksToConverge returns the first tick (1-based) at which applied is
// within tol·|target| of target, or -1 if it never gets there.
func ticksToConverge(applied []float64, target, tol float64) int {
	residual := append([]float64(nil), applied...)
	floats.AddConst(-target, residual)
	for i, r := range residual {
		if math.Abs(r) <= tol*math.Abs(target) {
			return i + 1
		}
	}
	return -1
}

// overshoots reports whether any applied value passed the target.
func overshoots(applied []float64, target float64) bool {
	if len(applied) == 0 {
		return false
	}
	if target >= 0 {
		return floats.Max(applied) > target
	}
	return floats.Min(applied) < target
}
