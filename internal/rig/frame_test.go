package rig

import (
	"math"
	"testing"
)

func TestRotation_Valid(t *testing.T) {
	tests := []struct {
		r    Rotation
		want bool
	}{
		{Rotation{X: 0.1, Y: -0.2, Z: 3}, true},
		{Rotation{X: math.NaN()}, false},
		{Rotation{Y: math.Inf(1)}, false},
		{Rotation{Z: math.Inf(-1)}, false},
	}
	for _, tt := range tests {
		if got := tt.r.Valid(); got != tt.want {
			t.Errorf("%+v.Valid() = %v, want %v", tt.r, got, tt.want)
		}
	}
}

func TestRotation_Scale(t *testing.T) {
	got := Rotation{X: 1, Y: -2, Z: 0.5}.Scale(0.5)
	if got != (Rotation{X: 0.5, Y: -1, Z: 0.25}) {
		t.Errorf("Scale = %+v", got)
	}
}

func TestFrame_Regions(t *testing.T) {
	var lost *Frame
	if lost.HasFace() || lost.HasHands() {
		t.Error("nil frame reports regions")
	}
	f := &Frame{Eyes: &EyeOpenness{L: 1, R: 1}}
	if !f.HasFace() || f.HasHands() {
		t.Errorf("eyes only: face %v hands %v", f.HasFace(), f.HasHands())
	}
	f = &Frame{LeftHand: Joints{}}
	if f.HasFace() || !f.HasHands() {
		t.Errorf("empty left hand map: face %v hands %v", f.HasFace(), f.HasHands())
	}
}

func TestHandSegments(t *testing.T) {
	names := HandSegments(Left)
	if len(names) != 15 {
		t.Fatalf("got %d segments, want 15", len(names))
	}
	if names[0] != "LeftThumbProximal" || names[14] != "LeftLittleDistal" {
		t.Errorf("order = %s .. %s", names[0], names[14])
	}
	if Wrist(Right) != "RightWrist" {
		t.Errorf("Wrist(Right) = %s", Wrist(Right))
	}
}
