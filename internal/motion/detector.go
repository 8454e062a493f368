//go:build opencv

package motion

import (
	"image"

	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// Scorer counts foreground pixels against an adaptive MOG2 background model.
type Scorer struct {
	Name   string
	mog2   gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	morph  bool
	mask   gocv.Mat
}

// NewScorer creates a scorer with its own background model. Morphology is
// applied only when enabled with a kernel larger than one pixel.
func NewScorer(name string, sub config.SubtractorConfig, morph config.MorphologyConfig) *Scorer {
	s := &Scorer{
		Name:  name,
		mog2:  gocv.NewBackgroundSubtractorMOG2WithParams(sub.History, sub.VarThreshold, sub.DetectShadows),
		morph: morph.Enabled && morph.KernelSize > 1,
		mask:  gocv.NewMat(),
	}
	if s.morph {
		s.kernel = gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(morph.KernelSize, morph.KernelSize))
	} else {
		s.kernel = gocv.NewMat()
	}

	log.Debug().
		Str("scorer", name).
		Int("history", sub.History).
		Float64("var_threshold", sub.VarThreshold).
		Bool("detect_shadows", sub.DetectShadows).
		Bool("morphology", s.morph).
		Msg("Background model created")
	return s
}

// Process updates the background model with frame and returns the motion
// score with the foreground mask. The mask belongs to the scorer and is
// overwritten by the next call.
func (s *Scorer) Process(frame gocv.Mat) (int, gocv.Mat) {
	s.mog2.Apply(frame, &s.mask)

	if s.morph {
		// Remove isolated noise, then fill small gaps
		gocv.MorphologyEx(s.mask, &s.mask, gocv.MorphOpen, s.kernel)
		gocv.MorphologyEx(s.mask, &s.mask, gocv.MorphClose, s.kernel)
	}

	return gocv.CountNonZero(s.mask), s.mask
}

// Close releases the background model and buffers.
func (s *Scorer) Close() {
	s.mog2.Close()
	s.kernel.Close()
	s.mask.Close()
}
