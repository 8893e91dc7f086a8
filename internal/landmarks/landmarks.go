// Package landmarks decodes the estimator's per-frame result document into
// typed landmark lists.
//
// The estimator's output has no stable schema: the 3D body landmark array in
// particular has been renamed between upstream releases without notice. The
// canonical field is tried first and FindWorldLandmarks provides a
// structural fallback.
package landmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Field names of the estimator result document.
const (
	FieldPose      = "poseLandmarks"
	FieldPoseWorld = "poseWorldLandmarks"
	FieldFace      = "faceLandmarks"
	FieldLeftHand  = "leftHandLandmarks"
	FieldRightHand = "rightHandLandmarks"
)

// MinWorldLandmarks is the length an array must exceed before the fallback
// scan accepts it as the 3D body landmark set. Body models emit 33.
const MinWorldLandmarks = 30

var ErrNotObject = errors.New("landmarks: result document is not a JSON object")

// Landmark is a single detected point. X and Y are normalized image
// coordinates for 2D sets and metres for the world set.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// List is an ordered landmark set in the estimator's index convention.
type List []Landmark

// Results is one decoded estimator result. A nil list was not detected.
type Results struct {
	Pose      List
	PoseWorld List
	Face      List
	LeftHand  List
	RightHand List

	// WorldField records which document field supplied PoseWorld.
	WorldField string
}

// Decode parses a result document. Fields that are present but malformed
// are treated as undetected rather than failing the whole document.
func Decode(raw []byte) (*Results, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	r := &Results{
		Pose:      decodeList(fields[FieldPose]),
		Face:      decodeList(fields[FieldFace]),
		LeftHand:  decodeList(fields[FieldLeftHand]),
		RightHand: decodeList(fields[FieldRightHand]),
	}
	if world := decodeList(fields[FieldPoseWorld]); world != nil {
		r.PoseWorld = world
		r.WorldField = FieldPoseWorld
	} else if world, name, ok := FindWorldLandmarks(fields); ok {
		r.PoseWorld = world
		r.WorldField = name
	}
	return r, nil
}

func decodeList(raw json.RawMessage) List {
	if len(raw) == 0 {
		return nil
	}
	var l List
	if err := json.Unmarshal(raw, &l); err != nil || len(l) == 0 {
		return nil
	}
	return l
}

// knownFields are consumed by name and never considered by the fallback
// scan. The 2D pose set has the same element shape as the world set.
var knownFields = map[string]bool{
	FieldPose:      true,
	FieldPoseWorld: true,
	FieldFace:      true,
	FieldLeftHand:  true,
	FieldRightHand: true,
}

// FindWorldLandmarks scans the result fields, in key order, for an array of
// more than MinWorldLandmarks elements where every element carries numeric
// x, y, z and visibility members. It returns the first match and its field
// name.
func FindWorldLandmarks(fields map[string]json.RawMessage) (List, string, bool) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !knownFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		if l, ok := worldShaped(fields[k]); ok {
			return l, k, true
		}
	}
	return nil, "", false
}

func worldShaped(raw json.RawMessage) (List, bool) {
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}
	var elems []map[string]any
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	if len(elems) <= MinWorldLandmarks {
		return nil, false
	}

	out := make(List, len(elems))
	for i, e := range elems {
		x, okX := e["x"].(float64)
		y, okY := e["y"].(float64)
		z, okZ := e["z"].(float64)
		v, okV := e["visibility"].(float64)
		if !okX || !okY || !okZ || !okV {
			return nil, false
		}
		out[i] = Landmark{X: x, Y: y, Z: z, Visibility: v}
	}
	return out, true
}
