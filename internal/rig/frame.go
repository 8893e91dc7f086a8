package rig

import "math"

// Rotation is a three-axis Euler rotation in radians: X is pitch, Y is yaw,
// Z is roll.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Scale returns the rotation with every axis multiplied by f.
func (r Rotation) Scale(f float64) Rotation {
	return Rotation{X: r.X * f, Y: r.Y * f, Z: r.Z * f}
}

// Valid reports whether every axis is a finite number.
func (r Rotation) Valid() bool {
	return Finite(r.X) && Finite(r.Y) && Finite(r.Z)
}

// EyeOpenness holds per-eye openness in [0,1]; 1 is fully open.
type EyeOpenness struct {
	L float64 `json:"l"`
	R float64 `json:"r"`
}

// MouthShape holds the five viseme openness components, each in [0,1].
type MouthShape struct {
	A float64 `json:"a"`
	E float64 `json:"e"`
	I float64 `json:"i"`
	O float64 `json:"o"`
	U float64 `json:"u"`
}

// Joints maps canonical joint names to rotations. Missing entries were not
// detected.
type Joints map[string]Rotation

// Frame is one normalized pose estimate. It is immutable once published.
type Frame struct {
	Head      *Rotation    `json:"head,omitempty"`
	Eyes      *EyeOpenness `json:"eyes,omitempty"`
	Mouth     *MouthShape  `json:"mouth,omitempty"`
	Body      Joints       `json:"body,omitempty"`
	LeftHand  Joints       `json:"left_hand,omitempty"`
	RightHand Joints       `json:"right_hand,omitempty"`
}

// HasFace reports whether any facial field is present.
func (f *Frame) HasFace() bool {
	return f != nil && (f.Head != nil || f.Eyes != nil || f.Mouth != nil)
}

// HasHands reports whether either hand mapping is present.
func (f *Frame) HasHands() bool {
	return f != nil && (f.LeftHand != nil || f.RightHand != nil)
}

// TrackingStatus reports which regions were detected for one estimator
// result. It drives UI feedback only.
type TrackingStatus struct {
	Face  bool `json:"face"`
	Pose  bool `json:"pose"`
	Hands bool `json:"hands"`
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
