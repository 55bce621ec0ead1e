package gfx

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/gif"
	"image/png"

	"golang.org/x/image/draw"
)

// Content types of encoded run images.
const (
	ContentTypePNG = "image/png"
	ContentTypeGIF = "image/gif"
)

// EncodePNG encodes s as PNG.
func EncodePNG(s *Surface) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

// Frame is one GIF frame: a snapshot and its display time.
type Frame struct {
	Surface *Surface
	DelayMS int
}

// EncodeGIF encodes frames as a looping animated GIF. Each frame is
// quantised to the Plan 9 palette with Floyd-Steinberg dithering and
// placed at the origin of the first frame's canvas.
func EncodeGIF(frames []Frame) ([]byte, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("encoding gif: no frames")
	}
	bounds := frames[0].Surface.img.Rect
	anim := &gif.GIF{
		Config: image.Config{Width: bounds.Dx(), Height: bounds.Dy()},
	}
	for _, f := range frames {
		r := f.Surface.img.Rect.Sub(f.Surface.img.Rect.Min)
		p := image.NewPaletted(r.Intersect(image.Rect(0, 0, bounds.Dx(), bounds.Dy())), palette.Plan9)
		draw.FloydSteinberg.Draw(p, p.Rect, f.Surface.img, f.Surface.img.Rect.Min)
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, max(f.DelayMS, 10)/10)
		anim.Disposal = append(anim.Disposal, gif.DisposalBackground)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encoding gif: %w", err)
	}
	return buf.Bytes(), nil
}
