package gfx

import (
	"image"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
)

// Scale resamples s to w×h. Smooth selects bilinear filtering over
// nearest-neighbour.
func (s *Surface) Scale(w, h int, smooth bool) *Surface {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var scaler draw.Scaler = draw.NearestNeighbor
	if smooth {
		scaler = draw.BiLinear
	}
	scaler.Scale(dst, dst.Rect, s.img, s.img.Rect, draw.Src, nil)
	return &Surface{img: dst}
}

// RotatedSize returns the bounding box of s rotated by degrees.
func (s *Surface) RotatedSize(degrees float64) (w, h int) {
	rad := gg.Radians(degrees)
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	fw, fh := float64(s.Width()), float64(s.Height())
	// Trim float noise so right angles keep exact sizes.
	fit := func(v float64) int { return int(math.Ceil(v - 1e-9)) }
	return fit(fw*cos + fh*sin), fit(fw*sin + fh*cos)
}

// Rotate returns s rotated counter-clockwise by degrees on a canvas grown
// to fit, transparent outside the source.
func (s *Surface) Rotate(degrees float64) *Surface {
	w, h := s.RotatedSize(degrees)
	dc := gg.NewContext(max(w, 1), max(h, 1))
	dc.Translate(float64(w)/2, float64(h)/2)
	dc.Rotate(-gg.Radians(degrees))
	dc.DrawImageAnchored(s.img, 0, 0, 0.5, 0.5)
	return &Surface{img: dc.Image().(*image.RGBA)}
}

// Flip mirrors s horizontally and/or vertically.
func (s *Surface) Flip(horizontal, vertical bool) *Surface {
	src := s.img
	w, h := s.Width(), s.Height()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := y
		if vertical {
			sy = h - 1 - y
		}
		for x := 0; x < w; x++ {
			sx := x
			if horizontal {
				sx = w - 1 - x
			}
			si := src.PixOffset(src.Rect.Min.X+sx, src.Rect.Min.Y+sy)
			di := dst.PixOffset(x, y)
			copy(dst.Pix[di:di+4], src.Pix[si:si+4])
		}
	}
	return &Surface{img: dst}
}
