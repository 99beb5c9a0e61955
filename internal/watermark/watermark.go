// Package watermark stamps a small text label onto generated images for
// accounts without an active subscription.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Options controls placement and appearance of the label.
type Options struct {
	Margin  int     // distance from the bottom-right corner, pixels
	Opacity float64 // 0..1 label opacity
	Scale   int     // integer upscale of the base font raster
}

// DefaultOptions matches the production corner watermark.
func DefaultOptions() Options {
	return Options{Margin: 32, Opacity: 0.9, Scale: 3}
}

// Apply decodes a PNG, draws text in the bottom-right corner, and
// returns the re-encoded image. The input is returned unchanged if it
// cannot be decoded, so a bad watermark never loses a paid-for result.
func Apply(data []byte, text string, opts Options) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Errorf("watermark: decode: %w", err)
	}
	if opts.Scale < 1 {
		opts.Scale = 1
	}
	if opts.Opacity <= 0 || opts.Opacity > 1 {
		opts.Opacity = 0.9
	}

	bounds := src.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, src, bounds.Min, draw.Src)

	label := renderLabel(text, opts)
	lb := label.Bounds()
	offset := image.Pt(
		bounds.Max.X-lb.Dx()-opts.Margin,
		bounds.Max.Y-lb.Dy()-opts.Margin,
	)
	if offset.X < bounds.Min.X || offset.Y < bounds.Min.Y {
		// Image smaller than the label; skip rather than clip.
		return data, nil
	}
	draw.DrawMask(out, lb.Add(offset), &image.Uniform{labelColor(opts.Opacity)}, image.Point{}, label, lb.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return data, fmt.Errorf("watermark: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func labelColor(opacity float64) color.Color {
	a := uint8(opacity * 255)
	return color.NRGBA{R: 255, G: 255, B: 255, A: a}
}

// renderLabel rasterizes text at 1x with the built-in bitmap face, then
// integer-upscales it so the label stays legible on large outputs.
func renderLabel(text string, opts Options) *image.Alpha {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	small := image.NewAlpha(image.Rect(0, 0, width, height))
	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(color.Alpha{A: 255}),
		Face: face,
		Dot:  fixed.P(0, face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)

	if opts.Scale == 1 {
		return small
	}
	big := image.NewAlpha(image.Rect(0, 0, width*opts.Scale, height*opts.Scale))
	for y := 0; y < big.Rect.Dy(); y++ {
		for x := 0; x < big.Rect.Dx(); x++ {
			big.SetAlpha(x, y, small.AlphaAt(x/opts.Scale, y/opts.Scale))
		}
	}
	return big
}
