package gfx

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

var (
	red  = color.NRGBA{255, 0, 0, 255}
	blue = color.NRGBA{0, 0, 255, 255}
	none = color.NRGBA{}
)

func newSurface(t *testing.T, r *Registry, w, h int) *Surface {
	t.Helper()
	id, err := r.New(w, h)
	if err != nil {
		t.Fatalf("New(%d, %d): %v", w, h, err)
	}
	s, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return s
}

func mustAt(t *testing.T, s *Surface, x, y int) color.NRGBA {
	t.Helper()
	c, err := s.At(x, y)
	if err != nil {
		t.Fatalf("At(%d, %d): %v", x, y, err)
	}
	return c
}

func TestRegistryLimits(t *testing.T) {
	r := NewRegistry(100)
	if _, err := r.New(10, 10); err != nil {
		t.Fatalf("10x10 within limit: %v", err)
	}
	if _, err := r.New(11, 10); err == nil {
		t.Fatal("11x10 should exceed a 100 pixel limit")
	}
	if _, err := r.New(0, 5); err == nil {
		t.Fatal("zero width accepted")
	}
	if _, err := r.Get(42); err == nil {
		t.Fatal("unknown handle resolved")
	}
}

func TestFillAndPixels(t *testing.T) {
	s := newSurface(t, NewRegistry(0), 4, 4)
	s.Fill(red, image.Rectangle{})
	if got := mustAt(t, s, 3, 3); got != red {
		t.Fatalf("after fill got %v", got)
	}
	s.Fill(blue, image.Rect(0, 0, 2, 2))
	if got := mustAt(t, s, 1, 1); got != blue {
		t.Fatalf("rect fill got %v", got)
	}
	if got := mustAt(t, s, 2, 2); got != red {
		t.Fatalf("outside rect got %v", got)
	}
	s.Set(3, 0, blue)
	s.Set(99, 99, blue)
	if got := mustAt(t, s, 3, 0); got != blue {
		t.Fatalf("Set got %v", got)
	}
	if _, err := s.At(4, 0); err == nil {
		t.Fatal("At outside bounds succeeded")
	}
}

func TestBytesRoundTripThroughRegistry(t *testing.T) {
	r := NewRegistry(0)
	s := newSurface(t, r, 2, 1)
	s.Set(0, 0, color.NRGBA{10, 20, 30, 255})
	s.Set(1, 0, color.NRGBA{255, 0, 0, 128})

	data := s.Bytes()
	if len(data) != 8 {
		t.Fatalf("len(Bytes) = %d", len(data))
	}
	if !bytes.Equal(data[:4], []byte{10, 20, 30, 255}) {
		t.Fatalf("first pixel = %v", data[:4])
	}

	id, err := r.FromBytes(data, 2, 1)
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	back, _ := r.Get(id)
	if got := mustAt(t, back, 0, 0); got != (color.NRGBA{10, 20, 30, 255}) {
		t.Fatalf("restored pixel = %v", got)
	}
	if _, err := r.FromBytes(data[:7], 2, 1); err == nil {
		t.Fatal("short buffer accepted")
	}
}

func TestBlitAndClone(t *testing.T) {
	r := NewRegistry(0)
	dst := newSurface(t, r, 4, 4)
	src := newSurface(t, r, 2, 2)
	src.Fill(red, image.Rectangle{})

	dst.Blit(src, 1, 1, image.Rectangle{})
	if got := mustAt(t, dst, 2, 2); got != red {
		t.Fatalf("blit target = %v", got)
	}
	if got := mustAt(t, dst, 0, 0); got != none {
		t.Fatalf("blit leaked to %v", got)
	}

	c := dst.Clone()
	dst.Fill(blue, image.Rectangle{})
	if got := mustAt(t, c, 2, 2); got != red {
		t.Fatalf("clone shares pixels: %v", got)
	}
}

func TestDrawPrimitives(t *testing.T) {
	s := newSurface(t, NewRegistry(0), 40, 40)
	s.DrawRect(red, 0, 0, 10, 10, 0)
	if got := mustAt(t, s, 5, 5); got != red {
		t.Fatalf("filled rect = %v", got)
	}
	s.DrawCircle(blue, 30, 30, 5, 0)
	if got := mustAt(t, s, 30, 30); got != blue {
		t.Fatalf("circle centre = %v", got)
	}
	if err := s.DrawPolygon(red, []Point{{20, 0}, {30, 0}, {25, 5}}, 0); err != nil {
		t.Fatalf("DrawPolygon: %v", err)
	}
	if err := s.DrawLines(red, false, []Point{{0, 0}}, 1); err == nil {
		t.Fatal("single-point polyline accepted")
	}
	s.DrawText(blue, "hi", 0, 20)
}

func TestTransforms(t *testing.T) {
	s := newSurface(t, NewRegistry(0), 4, 2)
	s.Set(0, 0, red)

	f := s.Flip(true, false)
	if got := mustAt(t, f, 3, 0); got != red {
		t.Fatalf("horizontal flip = %v", got)
	}
	f = s.Flip(false, true)
	if got := mustAt(t, f, 0, 1); got != red {
		t.Fatalf("vertical flip = %v", got)
	}

	big := s.Scale(8, 4, false)
	if big.Width() != 8 || big.Height() != 4 {
		t.Fatalf("scaled size %dx%d", big.Width(), big.Height())
	}
	if got := mustAt(t, big, 1, 1); got != red {
		t.Fatalf("nearest scale = %v", got)
	}

	rot := s.Rotate(90)
	if rot.Width() != 2 || rot.Height() != 4 {
		t.Fatalf("rotated size %dx%d, want 2x4", rot.Width(), rot.Height())
	}
}

func TestParseColor(t *testing.T) {
	cases := map[string]color.NRGBA{
		"red":       red,
		"#00f":      blue,
		"#0000ff":   blue,
		"#ff000080": {255, 0, 0, 128},
		" White ":   {255, 255, 255, 255},
	}
	for in, want := range cases {
		got, err := ParseColor(in)
		if err != nil {
			t.Errorf("ParseColor(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseColor(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "#12", "#zzzzzz", "chartreuse-ish"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) succeeded", bad)
		}
	}
	if Unpack(Pack(red)) != red {
		t.Fatal("Pack/Unpack mismatch")
	}
}

func TestEncoders(t *testing.T) {
	s := newSurface(t, NewRegistry(0), 3, 3)
	s.Fill(red, image.Rectangle{})

	data, err := EncodePNG(s)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("png.Decode: %v", err)
	}
	if img.Bounds().Dx() != 3 {
		t.Fatalf("png width = %d", img.Bounds().Dx())
	}

	other := s.Clone()
	other.Fill(blue, image.Rectangle{})
	data, err = EncodeGIF([]Frame{{Surface: s, DelayMS: 100}, {Surface: other}})
	if err != nil {
		t.Fatalf("EncodeGIF: %v", err)
	}
	anim, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("gif.DecodeAll: %v", err)
	}
	if len(anim.Image) != 2 || anim.Delay[0] != 10 {
		t.Fatalf("gif frames = %d delay = %v", len(anim.Image), anim.Delay)
	}
	if _, err := EncodeGIF(nil); err == nil {
		t.Fatal("EncodeGIF(nil) succeeded")
	}
}
