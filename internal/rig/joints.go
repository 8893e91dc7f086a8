package rig

// Canonical body joint names. These are independent of any particular
// skeleton asset's naming convention.
const (
	Hips         = "Hips"
	Spine        = "Spine"
	Spine1       = "Spine1"
	Spine2       = "Spine2"
	Neck         = "Neck"
	Head         = "Head"
	LeftArm      = "LeftArm"
	LeftForeArm  = "LeftForeArm"
	RightArm     = "RightArm"
	RightForeArm = "RightForeArm"
)

// Side identifies a hand.
type Side string

const (
	Left  Side = "Left"
	Right Side = "Right"
)

// Finger names in landmark order, thumb first.
var Fingers = []string{"Thumb", "Index", "Middle", "Ring", "Little"}

// Segment names from the palm outwards.
var Segments = []string{"Proximal", "Intermediate", "Distal"}

// Wrist returns the canonical wrist joint name for side.
func Wrist(side Side) string {
	return string(side) + "Wrist"
}

// FingerSegment returns the canonical name of one finger segment, e.g.
// FingerSegment(Left, "Index", "Distal") is "LeftIndexDistal".
func FingerSegment(side Side, finger, segment string) string {
	return string(side) + finger + segment
}

// HandSegments returns the 15 canonical finger segment names for side.
func HandSegments(side Side) []string {
	names := make([]string, 0, len(Fingers)*len(Segments))
	for _, f := range Fingers {
		for _, s := range Segments {
			names = append(names, FingerSegment(side, f, s))
		}
	}
	return names
}
