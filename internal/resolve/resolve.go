// Package resolve maps canonical joint names onto the joints of a loaded
// skeleton whose naming convention is not known in advance.
//
// Assets name the same bone differently ("Head", "mixamorigHead",
// "mixamorig:Head", "head"), and hand bones follow a different scheme
// altogether ("LeftHandIndex1" for LeftIndexProximal). A JointTable is built
// once per loaded skeleton and answers every lookup through a fixed, ordered
// chain of name variants.
package resolve

import (
	"strings"

	"github.com/banshee-data/rigcam/internal/rig"
	"github.com/banshee-data/rigcam/internal/skeleton"
)

// VendorPrefix is the bone-name prefix written by the most common
// auto-rigging export.
const VendorPrefix = "mixamorig"

// Meshes known to carry the facial blend shapes, tried before the name
// heuristic.
var knownFaceMeshes = []string{"Wolf3D_Head", "Head_2"}

var stripper = strings.NewReplacer(VendorPrefix, "", ":", "", "_", "")

// Normalize lowercases name and strips the vendor prefix and the ':' and '_'
// separators.
func Normalize(name string) string {
	return stripper.Replace(strings.ToLower(name))
}

// Aliases maps canonical names that have no counterpart in the common export
// naming to the name those exports use.
var Aliases = buildAliases()

func buildAliases() map[string]string {
	m := make(map[string]string)
	fingers := map[string]string{
		"Thumb":  "Thumb",
		"Index":  "Index",
		"Middle": "Middle",
		"Ring":   "Ring",
		"Little": "Pinky",
	}
	for _, side := range []rig.Side{rig.Left, rig.Right} {
		m[rig.Wrist(side)] = string(side) + "Hand"
		for _, f := range rig.Fingers {
			for i, seg := range rig.Segments {
				m[rig.FingerSegment(side, f, seg)] = string(side) + "Hand" + fingers[f] + string(rune('1'+i))
			}
		}
	}
	return m
}

// JointTable resolves canonical names for one skeleton. It is immutable once
// built; a new skeleton needs a new table.
type JointTable struct {
	skeleton *skeleton.Skeleton
	joints   map[string]*skeleton.Joint
	face     *skeleton.Mesh
}

// Build walks every joint of sk once and indexes it under its raw name, its
// normalized name and, when an alias targets it, the canonical name. Raw
// names always win over derived keys.
func Build(sk *skeleton.Skeleton) *JointTable {
	t := &JointTable{skeleton: sk, joints: make(map[string]*skeleton.Joint)}

	canonical := make(map[string]string, len(Aliases))
	for name, target := range Aliases {
		canonical[Normalize(target)] = name
	}

	all := sk.Joints()
	for _, j := range all {
		if _, ok := t.joints[j.Name]; !ok {
			t.joints[j.Name] = j
		}
	}
	for _, j := range all {
		norm := Normalize(j.Name)
		t.insert(norm, j)
		if name, ok := canonical[norm]; ok {
			t.insert(name, j)
		}
	}

	t.face = findFaceMesh(sk)
	return t
}

func (t *JointTable) insert(key string, j *skeleton.Joint) {
	if _, ok := t.joints[key]; !ok {
		t.joints[key] = j
	}
}

// Lookup resolves a canonical joint name. A miss is not an error; callers
// skip the joint.
func (t *JointTable) Lookup(name string) (*skeleton.Joint, bool) {
	if t == nil {
		return nil, false
	}
	alias, ok := Aliases[name]
	if !ok {
		alias = name
	}
	for _, key := range [...]string{
		name,
		alias,
		VendorPrefix + name,
		VendorPrefix + alias,
		strings.ToLower(name),
		strings.ToLower(alias),
		Normalize(name),
	} {
		if j, ok := t.joints[key]; ok {
			return j, true
		}
	}
	return nil, false
}

// FaceMesh returns the mesh carrying the facial blend shapes, or nil.
func (t *JointTable) FaceMesh() *skeleton.Mesh {
	if t == nil {
		return nil
	}
	return t.face
}

// Skeleton returns the skeleton this table was built for.
func (t *JointTable) Skeleton() *skeleton.Skeleton {
	if t == nil {
		return nil
	}
	return t.skeleton
}

// Len reports how many name variants are indexed.
func (t *JointTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.joints)
}

func findFaceMesh(sk *skeleton.Skeleton) *skeleton.Mesh {
	if sk == nil {
		return nil
	}
	for _, name := range knownFaceMeshes {
		for _, m := range sk.Meshes {
			if m.Name == name {
				return m
			}
		}
	}
	for _, m := range sk.Meshes {
		if len(m.MorphTargets) == 0 {
			continue
		}
		if strings.Contains(m.Name, "Head") || strings.Contains(m.Name, "Face") {
			return m
		}
	}
	return nil
}
