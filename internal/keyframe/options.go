package keyframe

import (
	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/threshold"
)

// DefaultFPS is used when a source does not report its frame rate.
const DefaultFPS = 30.0

// Options is the resolved classifier configuration.
type Options struct {
	MinDistanceSeconds float64
	FrameStep          int
	MaxKeyframes       int // 0 means unlimited
	SaveDebugMasks     bool
	ProgressInterval   int // 0 disables progress logging

	Adaptive  bool
	Static    threshold.Pair
	Estimator threshold.Config
}

// OptionsFromConfig resolves the classifier options once, before a run.
// The static thresholds double as the estimator's warm-up defaults.
func OptionsFromConfig(k config.KeyframeConfig) Options {
	static := threshold.Pair{Low: k.LowMotionThreshold, High: k.HighMotionThreshold}
	return Options{
		MinDistanceSeconds: k.MinDistanceSeconds,
		FrameStep:          k.FrameStep,
		MaxKeyframes:       k.MaxKeyframes,
		SaveDebugMasks:     k.SaveDebugMasks,
		ProgressInterval:   k.ProgressInterval,
		Adaptive:           k.Adaptive.Enabled,
		Static:             static,
		Estimator: threshold.Config{
			WindowSize:   k.Adaptive.WindowSize,
			KLow:         k.Adaptive.KLow,
			KHigh:        k.Adaptive.KHigh,
			MinHistory:   k.Adaptive.MinHistory,
			Default:      static,
			SmoothFactor: k.Adaptive.SmoothFactor,
		},
	}
}

// minDistanceFrames converts the debounce interval to frames, at least one.
func (o Options) minDistanceFrames(fps float64) int {
	return max(1, int(o.MinDistanceSeconds*fps))
}
