// Package rig defines the normalized per-frame pose estimate (a rig frame)
// shared between the extraction, scheduling and retargeting stages, along
// with the canonical joint vocabulary those stages agree on.
//
// A rig frame is deliberately sparse. Every field may be absent and absence
// means "hold the last applied value", never "apply zero". A nil *Frame
// means tracking was lost entirely for that detection.
package rig
