// Package texture computes local binary pattern codes for gray frames.
package texture

import (
	"image"
	"math"
)

// MaxPoints is the widest code a Codes image can hold.
const MaxPoints = 32

// Codes is a per-pixel texture code image. Bit i of a code is set when the
// i-th ring neighbour is at least as bright as the centre pixel.
type Codes struct {
	Width  int
	Height int
	Points int
	Pix    []uint32
}

type offset struct{ dx, dy int }

// ringOffsets returns the integer neighbour offsets for points evenly spaced
// on a circle of the given radius. Ties round half to even.
func ringOffsets(radius, points int) []offset {
	offs := make([]offset, points)
	for i := range offs {
		angle := 2 * math.Pi * float64(i) / float64(points)
		offs[i] = offset{
			dx: int(math.RoundToEven(float64(radius) * math.Cos(angle))),
			dy: int(math.RoundToEven(float64(radius) * math.Sin(angle))),
		}
	}
	return offs
}

// Transform computes the texture code of every pixel in src. Neighbours
// outside the image take the value of the nearest edge pixel. points is
// clamped to [1, MaxPoints] and a negative radius is treated as zero.
func Transform(src *image.Gray, radius, points int) *Codes {
	points = min(max(points, 1), MaxPoints)
	radius = max(radius, 0)

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	out := &Codes{Width: w, Height: h, Points: points, Pix: make([]uint32, w*h)}
	if w == 0 || h == 0 {
		return out
	}

	base := src.PixOffset(b.Min.X, b.Min.Y)
	at := func(x, y int) uint8 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return src.Pix[base+y*src.Stride+x]
	}

	offs := ringOffsets(radius, points)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			centre := at(x, y)
			var code uint32
			for i, o := range offs {
				if at(x+o.dx, y+o.dy) >= centre {
					code |= 1 << uint(i)
				}
			}
			out.Pix[y*w+x] = code
		}
	}
	return out
}

// Gray returns the codes as an 8-bit image. Bits above the eighth are
// dropped, so it is lossless only when Points <= 8.
func (c *Codes) Gray() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	for i, v := range c.Pix {
		img.Pix[i] = uint8(v)
	}
	return img
}

// Float32 returns the codes as float32 values in row-major order.
func (c *Codes) Float32() []float32 {
	out := make([]float32, len(c.Pix))
	for i, v := range c.Pix {
		out[i] = float32(v)
	}
	return out
}
