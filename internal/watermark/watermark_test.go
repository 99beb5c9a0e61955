package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 20, G: 20, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestApply_StampsCorner(t *testing.T) {
	in := solidPNG(t, 512, 512)

	out, err := Apply(in, "PIXELMINT", DefaultOptions())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if bytes.Equal(in, out) {
		t.Fatal("output identical to input, watermark not drawn")
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not valid PNG: %v", err)
	}
	if img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512 {
		t.Errorf("dimensions changed: %v", img.Bounds())
	}

	// Some pixel in the bottom-right quadrant must differ from the base color.
	changed := false
	for y := 256; y < 512 && !changed; y++ {
		for x := 256; x < 512; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			if r>>8 != 20 || g>>8 != 20 || b>>8 != 20 {
				changed = true
				break
			}
		}
	}
	if !changed {
		t.Error("no pixels changed in the bottom-right quadrant")
	}
}

func TestApply_TinyImagePassesThrough(t *testing.T) {
	in := solidPNG(t, 16, 16)
	out, err := Apply(in, "PIXELMINT", DefaultOptions())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Error("label larger than image should leave bytes untouched")
	}
}

func TestApply_BadInputReturnsOriginal(t *testing.T) {
	in := []byte("not a png")
	out, err := Apply(in, "PIXELMINT", DefaultOptions())
	if err == nil {
		t.Error("expected decode error")
	}
	if !bytes.Equal(in, out) {
		t.Error("undecodable input must be returned unchanged")
	}
}
