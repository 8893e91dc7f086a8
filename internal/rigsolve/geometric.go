package rigsolve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/rigcam/internal/landmarks"
	"github.com/banshee-data/rigcam/internal/rig"
)

// Face solve gains. Head angles come from depth differences across the face
// and are scaled into a usable range; roll is damped.
const (
	headAngleGain = 4.5
	headRollGain  = 0.4

	// Lid gap over eye width.
	eyeClosedRatio = 0.10
	eyeOpenRatio   = 0.25

	// Lip gap over face height at which the mouth reads fully open.
	mouthOpenRatio = 0.15
	// Mouth width over face width, neutral and full smile.
	mouthNeutralWidth = 0.35
	mouthWideWidth    = 0.50
)

// MinLimbVisibility is the 2D visibility below which an arm segment is left
// out of the pose solve, so a half-body view holds the arms instead of
// flailing them.
const MinLimbVisibility = 0.3

// Geometric solves rotations directly from landmark geometry.
type Geometric struct{}

var _ Solver = Geometric{}

func vec(l landmarks.Landmark) r3.Vec {
	return r3.Vec{X: l.X, Y: l.Y, Z: l.Z}
}

// SolveFace estimates head orientation, eye openness and mouth shape from a
// face mesh.
func (Geometric) SolveFace(face landmarks.List) (*Face, error) {
	if len(face) < landmarks.FaceCount {
		return nil, fmt.Errorf("%w: face has %d, need %d", ErrInsufficientLandmarks, len(face), landmarks.FaceCount)
	}

	top := vec(face[landmarks.FaceTop])
	chin := vec(face[landmarks.FaceChin])
	left := vec(face[landmarks.FaceLeftCheek])
	right := vec(face[landmarks.FaceRightCheek])
	leftEye := vec(face[landmarks.FaceLeftEyeOuter])
	rightEye := vec(face[landmarks.FaceRightEyeOuter])

	eyeLine := r3.Sub(rightEye, leftEye)
	head := rig.Rotation{
		X: -(top.Z - chin.Z) * headAngleGain,
		Y: (right.Z - left.Z) * headAngleGain,
		Z: math.Atan2(eyeLine.Y, eyeLine.X) * headRollGain,
	}

	faceHeight := r3.Norm(r3.Sub(top, chin))
	faceWidth := r3.Norm(r3.Sub(right, left))
	if faceHeight == 0 || faceWidth == 0 {
		return nil, fmt.Errorf("rigsolve: degenerate face geometry")
	}

	eyes := rig.EyeOpenness{
		L: eyeOpenness(face, landmarks.FaceLeftLidUpper, landmarks.FaceLeftLidLower, landmarks.FaceLeftEyeOuter, landmarks.FaceLeftEyeInner),
		R: eyeOpenness(face, landmarks.FaceRightLidUpper, landmarks.FaceRightLidLower, landmarks.FaceRightEyeOuter, landmarks.FaceRightEyeInner),
	}

	gap := r3.Norm(r3.Sub(vec(face[landmarks.FaceUpperLip]), vec(face[landmarks.FaceLowerLip])))
	width := r3.Norm(r3.Sub(vec(face[landmarks.FaceMouthRight]), vec(face[landmarks.FaceMouthLeft])))
	open := unit(gap / faceHeight / mouthOpenRatio)
	wide := unit((width/faceWidth - mouthNeutralWidth) / (mouthWideWidth - mouthNeutralWidth))

	mouth := rig.MouthShape{
		A: open,
		E: wide,
		I: unit(wide * (1 - open)),
		O: unit(open * (1 - wide)),
		U: unit(open * (1 - wide) * 0.5),
	}

	return &Face{Head: head, Eyes: eyes, Mouth: mouth}, nil
}

func eyeOpenness(face landmarks.List, upper, lower, outer, inner int) float64 {
	w := r3.Norm(r3.Sub(vec(face[outer]), vec(face[inner])))
	if w == 0 {
		return 1
	}
	ratio := r3.Norm(r3.Sub(vec(face[upper]), vec(face[lower]))) / w
	return unit((ratio - eyeClosedRatio) / (eyeOpenRatio - eyeClosedRatio))
}

// SolvePose estimates torso and arm rotations. The world set is preferred
// for geometry when it is complete; the 2D set always supplies visibility.
func (Geometric) SolvePose(pose2D, pose3D landmarks.List) (rig.Joints, error) {
	if len(pose2D) < landmarks.PoseCount {
		return nil, fmt.Errorf("%w: pose has %d, need %d", ErrInsufficientLandmarks, len(pose2D), landmarks.PoseCount)
	}
	geo := pose2D
	if len(pose3D) >= landmarks.PoseCount {
		geo = pose3D
	}
	at := func(i int) r3.Vec { return vec(geo[i]) }

	joints := rig.Joints{}

	// Body landmarks are named from the subject's point of view.
	shoulders := r3.Sub(at(landmarks.PoseLeftShoulder), at(landmarks.PoseRightShoulder))
	hips := r3.Sub(at(landmarks.PoseLeftHip), at(landmarks.PoseRightHip))
	joints[rig.Hips] = lineRotation(hips)
	spine := lineRotation(shoulders)
	joints[rig.Spine] = rig.Rotation{
		X: 0,
		Y: wrapAngle(spine.Y - joints[rig.Hips].Y),
		Z: wrapAngle(spine.Z - joints[rig.Hips].Z),
	}

	arms := []struct {
		side                   float64
		arm, foreArm           string
		shoulder, elbow, wrist int
	}{
		{-1, rig.RightArm, rig.RightForeArm, landmarks.PoseRightShoulder, landmarks.PoseRightElbow, landmarks.PoseRightWrist},
		{1, rig.LeftArm, rig.LeftForeArm, landmarks.PoseLeftShoulder, landmarks.PoseLeftElbow, landmarks.PoseLeftWrist},
	}
	for _, a := range arms {
		if pose2D[a.elbow].Visibility < MinLimbVisibility {
			continue
		}
		upper := aim(r3.Sub(at(a.elbow), at(a.shoulder)), a.side)
		joints[a.arm] = upper
		if pose2D[a.wrist].Visibility < MinLimbVisibility {
			continue
		}
		lower := aim(r3.Sub(at(a.wrist), at(a.elbow)), a.side)
		joints[a.foreArm] = rig.Rotation{
			X: 0,
			Y: wrapAngle(lower.Y - upper.Y),
			Z: wrapAngle(lower.Z - upper.Z),
		}
	}
	return joints, nil
}

// lineRotation gives the roll (Z) and yaw (Y) of a left-to-right body line.
func lineRotation(d r3.Vec) rig.Rotation {
	return rig.Rotation{
		Y: math.Atan2(-d.Z, math.Abs(d.X)),
		Z: math.Atan2(d.Y, d.X),
	}
}

// aim gives the frontal-plane roll and forward yaw of a limb segment. side
// is -1 for the subject's right limb, which points towards -X in the image,
// so both arms read zero roll when held out horizontally.
func aim(d r3.Vec, side float64) rig.Rotation {
	if r3.Norm(d) == 0 {
		return rig.Rotation{}
	}
	d = r3.Unit(d)
	return rig.Rotation{
		Y: math.Atan2(-d.Z, math.Hypot(d.X, d.Y)) * side,
		Z: math.Atan2(d.Y, side*d.X) * side,
	}
}

// SolveHand returns the wrist and 15 finger segment rotations for one hand.
// Segment curl is the angle between successive bones.
func (Geometric) SolveHand(hand landmarks.List, side rig.Side) (rig.Joints, error) {
	if len(hand) < landmarks.HandCount {
		return nil, fmt.Errorf("%w: hand has %d, need %d", ErrInsufficientLandmarks, len(hand), landmarks.HandCount)
	}
	if side != rig.Left && side != rig.Right {
		return nil, fmt.Errorf("rigsolve: unknown hand side %q", side)
	}
	sign := 1.0
	if side == rig.Right {
		sign = -1
	}

	wrist := vec(hand[landmarks.HandWrist])
	palm := r3.Sub(vec(hand[landmarks.HandMiddleMCP]), wrist)
	across := r3.Sub(vec(hand[landmarks.HandPinkyMCP]), vec(hand[landmarks.HandIndexMCP]))

	joints := rig.Joints{
		rig.Wrist(side): {
			X: math.Atan2(-palm.Z, math.Hypot(palm.X, palm.Y)),
			Y: math.Atan2(across.Z, math.Abs(across.X)) * sign,
			Z: math.Atan2(palm.X, -palm.Y) * sign,
		},
	}

	for fi, base := range landmarks.FingerBases {
		prev := r3.Sub(vec(hand[base]), wrist)
		for si, segment := range rig.Segments {
			next := r3.Sub(vec(hand[base+si+1]), vec(hand[base+si]))
			curl := bend(prev, next)
			var r rig.Rotation
			if rig.Fingers[fi] == "Thumb" {
				r.Y = curl * sign
			} else {
				r.Z = curl * sign
			}
			joints[rig.FingerSegment(side, rig.Fingers[fi], segment)] = r
			prev = next
		}
	}
	return joints, nil
}

// bend is the unsigned angle between two bone vectors.
func bend(a, b r3.Vec) float64 {
	if r3.Norm(a) == 0 || r3.Norm(b) == 0 {
		return 0
	}
	c := r3.Cos(a, b)
	return math.Acos(math.Max(-1, math.Min(1, c)))
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func wrapAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
