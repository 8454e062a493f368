//go:build opencv

package motion

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/kai5263499/keyframe-sentry/internal/config"
	"github.com/kai5263499/keyframe-sentry/internal/texture"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"
)

// TextureScorer runs background subtraction on texture codes instead of
// intensities. It catches patterned motion over similarly colored
// backgrounds that the intensity scorer misses.
type TextureScorer struct {
	scorer *Scorer
	radius int
	points int
	gray   gocv.Mat
}

// NewTextureScorer creates a texture scorer with its own background model.
func NewTextureScorer(sub config.SubtractorConfig, morph config.MorphologyConfig, lbp config.LBPConfig) *TextureScorer {
	return &TextureScorer{
		scorer: NewScorer("texture", sub, morph),
		radius: lbp.Radius,
		points: lbp.Points,
		gray:   gocv.NewMat(),
	}
}

// Process transforms frame into texture codes and scores them.
func (t *TextureScorer) Process(frame gocv.Mat) (int, gocv.Mat) {
	src := frame
	if frame.Channels() != 1 {
		gocv.CvtColor(frame, &t.gray, gocv.ColorBGRToGray)
		src = t.gray
	}

	codes := texture.Transform(matToGray(src), t.radius, t.points)
	input, err := codesToMat(codes)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build texture input")
		return 0, t.scorer.mask
	}
	defer input.Close()

	return t.scorer.Process(input)
}

// Close releases the underlying scorer.
func (t *TextureScorer) Close() {
	t.scorer.Close()
	t.gray.Close()
}

func matToGray(m gocv.Mat) *image.Gray {
	rows, cols := m.Rows(), m.Cols()
	return &image.Gray{
		Pix:    m.ToBytes(),
		Stride: cols,
		Rect:   image.Rect(0, 0, cols, rows),
	}
}

func codesToMat(c *texture.Codes) (gocv.Mat, error) {
	if c.Points <= 8 {
		return gocv.NewMatFromBytes(c.Height, c.Width, gocv.MatTypeCV8UC1, c.Gray().Pix)
	}

	values := c.Float32()
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return gocv.NewMatFromBytes(c.Height, c.Width, gocv.MatTypeCV32FC1, buf)
}
