// Package gfx holds the per-run drawing state behind the script-visible
// gfx module: surfaces, colors, primitives, transforms and the PNG/GIF
// encoders used for the run's image output.
package gfx

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

// Surface is a mutable RGBA pixel buffer.
type Surface struct {
	img *image.RGBA
}

// Width returns the surface width in pixels.
func (s *Surface) Width() int { return s.img.Rect.Dx() }

// Height returns the surface height in pixels.
func (s *Surface) Height() int { return s.img.Rect.Dy() }

// Image exposes the backing image. Callers must not retain it past the run.
func (s *Surface) Image() *image.RGBA { return s.img }

// Fill paints r (clipped to the surface) with c. An empty r fills everything.
func (s *Surface) Fill(c color.NRGBA, r image.Rectangle) {
	if r.Empty() {
		r = s.img.Rect
	}
	draw.Draw(s.img, r.Intersect(s.img.Rect), image.NewUniform(c), image.Point{}, draw.Src)
}

// At returns the straight-alpha color at (x, y).
func (s *Surface) At(x, y int) (color.NRGBA, error) {
	if !(image.Point{x, y}).In(s.img.Rect) {
		return color.NRGBA{}, fmt.Errorf("RangeError: pixel (%d, %d) outside %dx%d surface", x, y, s.Width(), s.Height())
	}
	return color.NRGBAModel.Convert(s.img.RGBAAt(x, y)).(color.NRGBA), nil
}

// Set writes c at (x, y). Out-of-range writes are ignored.
func (s *Surface) Set(x, y int, c color.NRGBA) {
	s.img.Set(x, y, c)
}

// Blit composites src over s with src's top-left at (x, y). A non-empty
// area selects a sub-rectangle of src.
func (s *Surface) Blit(src *Surface, x, y int, area image.Rectangle) {
	if area.Empty() {
		area = src.img.Rect
	}
	area = area.Intersect(src.img.Rect)
	dst := image.Rect(x, y, x+area.Dx(), y+area.Dy())
	draw.Draw(s.img, dst, src.img, area.Min, draw.Over)
}

// Clone returns an independent copy.
func (s *Surface) Clone() *Surface {
	img := image.NewRGBA(s.img.Rect)
	copy(img.Pix, s.img.Pix)
	return &Surface{img: img}
}

// Bytes returns the pixels as straight-alpha RGBA, row-major.
func (s *Surface) Bytes() []byte {
	n := image.NewNRGBA(s.img.Rect)
	draw.Draw(n, n.Rect, s.img, s.img.Rect.Min, draw.Src)
	return n.Pix
}

// SubSurface copies r (clipped) into a new surface.
func (s *Surface) SubSurface(r image.Rectangle) *Surface {
	r = r.Intersect(s.img.Rect)
	img := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(img, img.Rect, s.img, r.Min, draw.Src)
	return &Surface{img: img}
}

// Registry owns every surface a run creates, addressed by integer handle.
// Handles are what the script side holds; pixels never leave Go except
// through explicit byte transfers.
type Registry struct {
	mu        sync.Mutex
	surfaces  map[int]*Surface
	next      int
	maxPixels int
}

// NewRegistry returns an empty registry that refuses surfaces larger than
// maxPixels (0 means unlimited).
func NewRegistry(maxPixels int) *Registry {
	return &Registry{surfaces: make(map[int]*Surface), maxPixels: maxPixels}
}

// Check reports whether a w×h surface may be created.
func (r *Registry) Check(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("RangeError: invalid surface size %dx%d", w, h)
	}
	if r.maxPixels > 0 && (w > r.maxPixels || h > r.maxPixels || w*h > r.maxPixels) {
		return fmt.Errorf("RangeError: surface %dx%d exceeds the %d pixel limit", w, h, r.maxPixels)
	}
	return nil
}

// New allocates a transparent w×h surface and returns its handle.
func (r *Registry) New(w, h int) (int, error) {
	if err := r.Check(w, h); err != nil {
		return 0, err
	}
	return r.Add(&Surface{img: image.NewRGBA(image.Rect(0, 0, w, h))}), nil
}

// FromBytes creates a surface from straight-alpha RGBA bytes.
func (r *Registry) FromBytes(data []byte, w, h int) (int, error) {
	if err := r.Check(w, h); err != nil {
		return 0, err
	}
	if len(data) != w*h*4 {
		return 0, fmt.Errorf("RangeError: got %d bytes, want %d for %dx%d", len(data), w*h*4, w, h)
	}
	n := &image.NRGBA{Pix: data, Stride: w * 4, Rect: image.Rect(0, 0, w, h)}
	img := image.NewRGBA(n.Rect)
	draw.Draw(img, img.Rect, n, image.Point{}, draw.Src)
	return r.Add(&Surface{img: img}), nil
}

// Add registers s and returns its handle. Size limits are the caller's job.
func (r *Registry) Add(s *Surface) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.surfaces[r.next] = s
	return r.next
}

// Get resolves a handle.
func (r *Registry) Get(h int) (*Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surfaces[h]
	if !ok {
		return nil, fmt.Errorf("TypeError: not a surface")
	}
	return s, nil
}

// Len reports how many surfaces exist.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.surfaces)
}
