// Package skeleton models a loaded character asset: a tree of named joints
// whose rotations are mutated in place, plus meshes exposing named morph
// target (blend-shape) channels.
package skeleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/banshee-data/rigcam/internal/rig"
)

// ErrInvalid is wrapped by every validation failure from Decode.
var ErrInvalid = errors.New("skeleton: invalid asset")

// maxAssetSize bounds descriptor files read by Load.
const maxAssetSize = 16 * 1024 * 1024

// Joint is one bone. Rotation is the currently applied rotation and is
// owned by whoever drives the skeleton.
type Joint struct {
	Name     string
	Rotation rig.Rotation
	Children []*Joint
}

// Mesh is a surface with blend-shape channels. MorphTargets maps a channel
// name to its index in Influences.
type Mesh struct {
	Name         string
	MorphTargets map[string]int
	Influences   []float64
}

// Influence returns the current weight of a named channel.
func (m *Mesh) Influence(name string) (float64, bool) {
	i, ok := m.MorphTargets[name]
	if !ok || i < 0 || i >= len(m.Influences) {
		return 0, false
	}
	return m.Influences[i], true
}

// Skeleton is one loaded asset. ID changes on every load so holders can
// tell two loads of the same file apart.
type Skeleton struct {
	ID     string
	Source string
	Root   *Joint
	Meshes []*Mesh
}

// New wraps an in-memory joint tree and mesh set as a freshly loaded asset.
func New(root *Joint, meshes ...*Mesh) *Skeleton {
	return &Skeleton{ID: uuid.New().String(), Root: root, Meshes: meshes}
}

// Walk visits every joint once, parents before children. Returning false
// from fn stops the walk.
func (s *Skeleton) Walk(fn func(*Joint) bool) {
	if s == nil || s.Root == nil {
		return
	}
	stack := []*Joint{s.Root}
	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(j) {
			return
		}
		for i := len(j.Children) - 1; i >= 0; i-- {
			if j.Children[i] != nil {
				stack = append(stack, j.Children[i])
			}
		}
	}
}

// Joints returns every joint in walk order.
func (s *Skeleton) Joints() []*Joint {
	var out []*Joint
	s.Walk(func(j *Joint) bool {
		out = append(out, j)
		return true
	})
	return out
}

// Snapshot copies every joint rotation and mesh influence, keyed by joint
// name and "mesh/channel" respectively. Used to compare state across ticks.
func (s *Skeleton) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	s.Walk(func(j *Joint) bool {
		out[j.Name+".x"] = j.Rotation.X
		out[j.Name+".y"] = j.Rotation.Y
		out[j.Name+".z"] = j.Rotation.Z
		return true
	})
	if s == nil {
		return out
	}
	for _, m := range s.Meshes {
		for name, i := range m.MorphTargets {
			if i >= 0 && i < len(m.Influences) {
				out[m.Name+"/"+name] = m.Influences[i]
			}
		}
	}
	return out
}

// Asset descriptor, as written by the asset export step.
type jointDoc struct {
	Name     string       `json:"name"`
	Rotation rig.Rotation `json:"rotation"`
	Children []jointDoc   `json:"children,omitempty"`
}

type meshDoc struct {
	Name         string    `json:"name"`
	MorphTargets []string  `json:"morph_targets,omitempty"`
	Influences   []float64 `json:"influences,omitempty"`
}

type assetDoc struct {
	Root   *jointDoc `json:"root"`
	Meshes []meshDoc `json:"meshes,omitempty"`
}

// Load reads a JSON asset descriptor from path.
func Load(path string) (*Skeleton, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("skeleton file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat skeleton file: %w", err)
	}
	if info.Size() > maxAssetSize {
		return nil, fmt.Errorf("skeleton file too large: %d bytes (max %d)", info.Size(), maxAssetSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read skeleton file: %w", err)
	}
	sk, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	sk.Source = cleanPath
	return sk, nil
}

// Decode parses and validates a JSON asset descriptor.
func Decode(data []byte) (*Skeleton, error) {
	var doc assetDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse skeleton JSON: %w", err)
	}
	if doc.Root == nil {
		return nil, fmt.Errorf("%w: missing root joint", ErrInvalid)
	}

	root, err := buildJoint(*doc.Root, 0)
	if err != nil {
		return nil, err
	}

	meshes := make([]*Mesh, 0, len(doc.Meshes))
	for i, md := range doc.Meshes {
		m, err := buildMesh(md)
		if err != nil {
			return nil, fmt.Errorf("mesh %d: %w", i, err)
		}
		meshes = append(meshes, m)
	}
	return New(root, meshes...), nil
}

// maxDepth guards against pathological descriptors.
const maxDepth = 256

func buildJoint(d jointDoc, depth int) (*Joint, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: joint tree deeper than %d", ErrInvalid, maxDepth)
	}
	if d.Name == "" {
		return nil, fmt.Errorf("%w: joint with empty name at depth %d", ErrInvalid, depth)
	}
	if !d.Rotation.Valid() {
		return nil, fmt.Errorf("%w: joint %q has a non-finite rotation", ErrInvalid, d.Name)
	}
	r := d.Rotation
	if math.Abs(r.X) > math.Pi || math.Abs(r.Y) > math.Pi || math.Abs(r.Z) > math.Pi {
		return nil, fmt.Errorf("%w: joint %q rest rotation outside ±π", ErrInvalid, d.Name)
	}
	j := &Joint{Name: d.Name, Rotation: d.Rotation}
	for _, c := range d.Children {
		child, err := buildJoint(c, depth+1)
		if err != nil {
			return nil, err
		}
		j.Children = append(j.Children, child)
	}
	return j, nil
}

func buildMesh(d meshDoc) (*Mesh, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: mesh with empty name", ErrInvalid)
	}
	m := &Mesh{
		Name:         d.Name,
		MorphTargets: make(map[string]int, len(d.MorphTargets)),
		Influences:   make([]float64, len(d.MorphTargets)),
	}
	for i, name := range d.MorphTargets {
		if _, dup := m.MorphTargets[name]; dup {
			return nil, fmt.Errorf("%w: mesh %q repeats morph target %q", ErrInvalid, d.Name, name)
		}
		m.MorphTargets[name] = i
	}
	if len(d.Influences) > 0 {
		if len(d.Influences) != len(d.MorphTargets) {
			return nil, fmt.Errorf("%w: mesh %q has %d influences for %d morph targets",
				ErrInvalid, d.Name, len(d.Influences), len(d.MorphTargets))
		}
		for i, v := range d.Influences {
			if !rig.Finite(v) || v < 0 || v > 1 {
				return nil, fmt.Errorf("%w: mesh %q influence %d out of range", ErrInvalid, d.Name, i)
			}
		}
		copy(m.Influences, d.Influences)
	}
	return m, nil
}
