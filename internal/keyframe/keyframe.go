// Package keyframe implements the hybrid keyframe classifier.
//
// Frames pass through a two-tier funnel. The color scorer settles most of
// them: scores at or below the low threshold are rejected and scores at or
// above the high threshold are accepted. Only the ambiguous band in between
// pays for the texture scorer. Accepted frames are debounced by a minimum
// frame gap and the run stops once a configured number has been persisted.
//
// The classifier is generic over the frame type so the orchestration can be
// exercised without OpenCV; production code instantiates it with gocv.Mat.
package keyframe

import (
	"errors"

	"github.com/kai5263499/keyframe-sentry/internal/motion"
	"github.com/kai5263499/keyframe-sentry/internal/threshold"
)

// ErrSourceUnavailable is returned when the very first frame cannot be read.
var ErrSourceUnavailable = errors.New("cannot open frame source")

// Source supplies frames in temporal order.
type Source[F any] interface {
	// Read returns the next frame, or false when the source is exhausted.
	Read() (F, bool)
	// FPS returns the nominal frame rate, or 0 when unknown.
	FPS() float64
	// FrameCount returns the total number of frames, or 0 when unknown.
	FrameCount() int
}

// Preparer derives the frame to persist and the frame to score from a raw
// frame, and releases frames once an iteration is done with them.
type Preparer[F any] interface {
	Prepare(raw F) (frame, gray F)
	Release(frames ...F)
}

// Scorer returns a motion score and foreground mask for a frame. Scorers
// learn from every call, so each frame is submitted once and in order.
type Scorer[F any] interface {
	Process(frame F) (int, F)
}

// Sink persists accepted keyframes. A false return means the keyframe was
// not stored and must not count as accepted.
type Sink[F any] interface {
	Persist(ev Event[F]) bool
}

// Observer receives one Sample per scored frame.
type Observer interface {
	Observe(s Sample)
}

// Event is an accepted keyframe handed to a Sink.
type Event[F any] struct {
	FrameIndex int
	Timestamp  float64
	Stage      motion.Stage
	Frame      F
	Mask       *F // nil unless debug masks are enabled
}

// Decision is the per-frame outcome of the funnel.
type Decision int

const (
	DecisionReject Decision = iota
	DecisionAcceptImmediate
	DecisionEscalateConfirm
	DecisionEscalateReject
)

func (d Decision) String() string {
	switch d {
	case DecisionReject:
		return "reject"
	case DecisionAcceptImmediate:
		return "accept_immediate"
	case DecisionEscalateConfirm:
		return "escalate_confirm"
	case DecisionEscalateReject:
		return "escalate_reject"
	default:
		return "unknown"
	}
}

// MarshalText lets decisions key JSON maps by name.
func (d Decision) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Sample describes how one frame was classified.
type Sample struct {
	FrameIndex int             `json:"frame_index"`
	Timestamp  float64         `json:"timestamp"`
	Motion1    int             `json:"motion1"`
	Motion2    int             `json:"motion2"` // -1 when the texture stage did not run
	Thresholds threshold.Pair  `json:"thresholds"`
	Phase      threshold.Phase `json:"phase"`
	Decision   Decision        `json:"decision"`
	Persisted  bool            `json:"persisted"`
}
