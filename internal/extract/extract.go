// Package extract reduces one estimator result into a rig frame.
//
// The four region solves (pose, face, left hand, right hand) run
// independently. A solve that errors or panics yields nil for its region only;
// the others still contribute to the frame.
package extract

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/rigcam/internal/landmarks"
	"github.com/banshee-data/rigcam/internal/monitoring"
	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/rigsolve"
)

var logs = monitoring.NewStreams("[extract] ")

// Options selects which regions drive the frame.
type Options struct {
	// FaceOnly runs only the face solve and treats a missing face, rather
	// than missing body landmarks, as full tracking loss.
	FaceOnly bool
}

// Result is the extractor's output for one estimator result.
type Result struct {
	// Frame is nil when tracking was lost entirely.
	Frame  *rig.Frame
	Status rig.TrackingStatus
	// Failed lists regions whose solve failed, for diagnostics.
	Failed []string
}

// Extractor owns the solver used for every region.
type Extractor struct {
	solver rigsolve.Solver
	opts   Options
}

// New returns an extractor. A nil solver selects rigsolve.Geometric.
func New(solver rigsolve.Solver, opts Options) *Extractor {
	if solver == nil {
		solver = rigsolve.Geometric{}
	}
	return &Extractor{solver: solver, opts: opts}
}

// Extract decodes raw and solves every detected region. The only error is a
// document that cannot be decoded at all.
func (e *Extractor) Extract(raw json.RawMessage) (Result, error) {
	res, err := landmarks.Decode(raw)
	if err != nil {
		return Result{}, err
	}
	return e.FromLandmarks(res), nil
}

// FromLandmarks solves an already decoded result.
func (e *Extractor) FromLandmarks(res *landmarks.Results) Result {
	out := Result{
		Status: rig.TrackingStatus{
			Face:  res.Face != nil,
			Pose:  res.Pose != nil,
			Hands: res.LeftHand != nil || res.RightHand != nil,
		},
	}

	if e.opts.FaceOnly {
		if res.Face == nil {
			return out
		}
		f := &rig.Frame{}
		if !e.solveFace(res.Face, f) {
			out.Failed = append(out.Failed, "face")
		}
		out.Frame = f
		return out
	}

	if res.Pose == nil {
		return out
	}

	f := &rig.Frame{}
	if err := isolate("pose", func() error {
		body, err := e.solver.SolvePose(res.Pose, res.PoseWorld)
		f.Body = body
		return err
	}); err != nil {
		f.Body = nil
		out.Failed = append(out.Failed, "pose")
	}

	if res.Face != nil && !e.solveFace(res.Face, f) {
		out.Failed = append(out.Failed, "face")
	}

	hands := []struct {
		side rig.Side
		lms  landmarks.List
		dst  *rig.Joints
	}{
		{rig.Right, res.RightHand, &f.RightHand},
		{rig.Left, res.LeftHand, &f.LeftHand},
	}
	for _, h := range hands {
		if h.lms == nil {
			continue
		}
		if err := isolate(string(h.side)+" hand", func() error {
			j, err := e.solver.SolveHand(h.lms, h.side)
			*h.dst = j
			return err
		}); err != nil {
			*h.dst = nil
			out.Failed = append(out.Failed, string(h.side)+" hand")
		}
	}

	out.Frame = f
	return out
}

func (e *Extractor) solveFace(lms landmarks.List, f *rig.Frame) bool {
	var face *rigsolve.Face
	err := isolate("face", func() error {
		var err error
		face, err = e.solver.SolveFace(lms)
		return err
	})
	if err != nil || face == nil {
		return false
	}
	head, eyes, mouth := face.Head, face.Eyes, face.Mouth
	f.Head, f.Eyes, f.Mouth = &head, &eyes, &mouth
	return true
}

// isolate runs one region solve, converting a panic into an error.
func isolate(region string, solve func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s solve panicked: %v", region, r)
		}
		if err != nil {
			logs.Diagf("%s solve failed: %v", region, err)
		}
	}()
	return solve()
}
