// Package rigsolve turns landmark sets into joint rotations and facial
// coefficients.
//
// Solver is the contract the extractor depends on; the pose solve itself is
// treated as a black box. Geometric is the in-tree implementation, a direct
// vector-geometry solve with no temporal state.
package rigsolve

import (
	"errors"

	"github.com/banshee-data/rigcam/internal/landmarks"
	"github.com/banshee-data/rigcam/internal/rig"
)

var ErrInsufficientLandmarks = errors.New("rigsolve: not enough landmarks")

// Face is the result of a face solve.
type Face struct {
	Head  rig.Rotation
	Eyes  rig.EyeOpenness
	Mouth rig.MouthShape
}

// Solver converts one region's landmarks into rig values. Implementations
// may return an error or panic on malformed input; callers isolate each
// region.
type Solver interface {
	// SolvePose returns body joint rotations from the 2D set and, when
	// available, the parallel 3D world set. pose3D may be nil.
	SolvePose(pose2D, pose3D landmarks.List) (rig.Joints, error)
	SolveFace(face landmarks.List) (*Face, error)
	SolveHand(hand landmarks.List, side rig.Side) (rig.Joints, error)
}
