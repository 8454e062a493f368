// Package motion scores frames by background subtraction.
//
// A Scorer owns one MOG2 background model and learns from every frame it is
// given, so frames must be submitted in temporal order, each exactly once.
// The color and texture stages each own a separate Scorer.
package motion

// Stage identifies which detector accepted a keyframe.
type Stage int

const (
	StageColor Stage = iota
	StageTexture
)

func (s Stage) String() string {
	switch s {
	case StageColor:
		return "color"
	case StageTexture:
		return "texture"
	default:
		return "unknown"
	}
}
