package gfx

import (
	"fmt"
	"image/color"

	"github.com/fogleman/gg"
)

// Point is an x, y pair in surface coordinates.
type Point struct{ X, Y float64 }

// Stroke is the outline width; 0 fills the shape instead.
type Stroke float64

func (s *Surface) context(c color.NRGBA) *gg.Context {
	dc := gg.NewContextForRGBA(s.img)
	dc.SetColor(c)
	return dc
}

func finish(dc *gg.Context, width Stroke) {
	if width <= 0 {
		dc.Fill()
		return
	}
	dc.SetLineWidth(float64(width))
	dc.Stroke()
}

// DrawRect draws an axis-aligned rectangle.
func (s *Surface) DrawRect(c color.NRGBA, x, y, w, h float64, width Stroke) {
	dc := s.context(c)
	dc.DrawRectangle(x, y, w, h)
	finish(dc, width)
}

// DrawCircle draws a circle centred on (cx, cy).
func (s *Surface) DrawCircle(c color.NRGBA, cx, cy, r float64, width Stroke) {
	dc := s.context(c)
	dc.DrawCircle(cx, cy, r)
	finish(dc, width)
}

// DrawEllipse draws the ellipse inscribed in the given bounding box.
func (s *Surface) DrawEllipse(c color.NRGBA, x, y, w, h float64, width Stroke) {
	dc := s.context(c)
	dc.DrawEllipse(x+w/2, y+h/2, w/2, h/2)
	finish(dc, width)
}

// DrawLine draws a segment. Widths below 1 are drawn as 1.
func (s *Surface) DrawLine(c color.NRGBA, x1, y1, x2, y2 float64, width Stroke) {
	dc := s.context(c)
	dc.DrawLine(x1, y1, x2, y2)
	finish(dc, max(width, 1))
}

// DrawLines draws a polyline, optionally closed.
func (s *Surface) DrawLines(c color.NRGBA, closed bool, pts []Point, width Stroke) error {
	if len(pts) < 2 {
		return fmt.Errorf("TypeError: lines needs at least 2 points")
	}
	dc := s.context(c)
	path(dc, pts, closed)
	finish(dc, max(width, 1))
	return nil
}

// DrawPolygon draws a closed polygon.
func (s *Surface) DrawPolygon(c color.NRGBA, pts []Point, width Stroke) error {
	if len(pts) < 3 {
		return fmt.Errorf("TypeError: polygon needs at least 3 points")
	}
	dc := s.context(c)
	path(dc, pts, true)
	finish(dc, width)
	return nil
}

// DrawText renders text with its top-left corner at (x, y) using the
// built-in 7x13 bitmap face.
func (s *Surface) DrawText(c color.NRGBA, text string, x, y float64) {
	dc := s.context(c)
	dc.DrawStringAnchored(text, x, y, 0, 1)
}

// MeasureText returns the size text would occupy.
func MeasureText(text string) (w, h float64) {
	return gg.NewContext(1, 1).MeasureString(text)
}

func path(dc *gg.Context, pts []Point, closed bool) {
	dc.MoveTo(pts[0].X, pts[0].Y)
	for _, p := range pts[1:] {
		dc.LineTo(p.X, p.Y)
	}
	if closed {
		dc.ClosePath()
	}
}
