//go:build opencv

package motion

import (
	"image"

	"gocv.io/x/gocv"
)

// Preparer resizes frames and converts them to grayscale for scoring.
// Every Mat it returns is a new allocation, so callers release all of them.
type Preparer struct {
	Scale     float64
	Grayscale bool
}

// Prepare returns the (possibly resized) frame to persist and the frame to
// score.
func (p Preparer) Prepare(raw gocv.Mat) (gocv.Mat, gocv.Mat) {
	frame := gocv.NewMat()
	if p.Scale > 0 && p.Scale != 1.0 {
		gocv.Resize(raw, &frame, image.Point{}, p.Scale, p.Scale, gocv.InterpolationArea)
	} else {
		raw.CopyTo(&frame)
	}

	gray := gocv.NewMat()
	if p.Grayscale && frame.Channels() == 3 {
		gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	return frame, gray
}

// Release closes every Mat handed out by Prepare or read from a source.
func (p Preparer) Release(frames ...gocv.Mat) {
	for _, m := range frames {
		m.Close()
	}
}
