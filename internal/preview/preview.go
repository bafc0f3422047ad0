// Package preview renders a false-color image of a tile's first channel.
package preview

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/gen2brain/webp"
	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/kiesman99/retile/internal/pixel"
)

// Output is the image format of a rendered preview
type Output string

const (
	PNG  Output = "png"
	WebP Output = "webp"
)

// ParseOutput maps a format name to an Output. Empty means PNG.
func ParseOutput(s string) (Output, error) {
	switch Output(s) {
	case "", PNG:
		return PNG, nil
	case WebP:
		return WebP, nil
	default:
		return "", fmt.Errorf("unsupported preview format: %q (supported: png, webp)", s)
	}
}

// ContentType is the MIME type of the output
func (o Output) ContentType() string {
	if o == WebP {
		return "image/webp"
	}
	return "image/png"
}

// ErrRange is returned when the upper bound does not exceed the lower
var ErrRange = errors.New("preview range is empty")

// Moreland's seven-stop map from black through blue, purple, red, orange and
// yellow to white
var (
	stops = []colorful.Color{
		rgb(0, 0, 0),
		rgb(0, 24, 168),
		rgb(99, 0, 228),
		rgb(220, 20, 60),
		rgb(255, 117, 56),
		rgb(238, 210, 20),
		rgb(255, 255, 255),
	}
	positions = []float64{0, 0.22, 0.35, 0.47, 0.65, 0.84, 1}
)

func rgb(r, g, b float64) colorful.Color {
	return colorful.Color{R: r / 255, G: g / 255, B: b / 255}
}

// ColorMap maps a scalar in [0, 1] to a color. Values outside are clamped.
func ColorMap(scalar float64) colorful.Color {
	if scalar <= 0 || math.IsNaN(scalar) {
		return stops[0]
	}
	if scalar >= 1 {
		return stops[len(stops)-1]
	}
	for i := 0; i < len(stops)-1; i++ {
		if scalar >= positions[i] && scalar < positions[i+1] {
			t := (scalar - positions[i]) / (positions[i+1] - positions[i])
			return stops[i].BlendRgb(stops[i+1], t)
		}
	}
	return stops[len(stops)-1]
}

func toU8(v float64) uint8 {
	return uint8(math.Max(0, math.Min(255, v*255)))
}

// Colorize maps channel 0 of a raw tile onto the color map, with lo at the
// bottom of the map and hi at the top
func Colorize(raw []byte, f pixel.Format, lo, hi float64) (*image.NRGBA, error) {
	if !(hi > lo) {
		return nil, fmt.Errorf("%w: min %g, max %g", ErrRange, lo, hi)
	}
	if len(raw) != f.RawSize() {
		return nil, fmt.Errorf("preview: tile is %d bytes, format needs %d", len(raw), f.RawSize())
	}
	k, err := f.Encoding.Kernel()
	if err != nil {
		return nil, err
	}

	img := image.NewNRGBA(image.Rect(0, 0, f.Size.X, f.Size.Y))
	inv := 1 / (hi - lo)
	ch := f.Encoding.Channels

	for p := 0; p < f.Size.X*f.Size.Y; p++ {
		v := float64(k.Load(raw, p*ch))
		c := ColorMap((v - lo) * inv)
		img.Pix[4*p] = toU8(c.R)
		img.Pix[4*p+1] = toU8(c.G)
		img.Pix[4*p+2] = toU8(c.B)
		img.Pix[4*p+3] = 0xff
	}
	return img, nil
}

// Render colorizes a raw tile and encodes it
func Render(raw []byte, f pixel.Format, lo, hi float64, out Output) ([]byte, error) {
	img, err := Colorize(raw, f, lo, hi)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch out {
	case WebP:
		if err := webp.Encode(&buf, img, webp.Options{Quality: 90}); err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
	case PNG, "":
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported preview format: %q", out)
	}
	return buf.Bytes(), nil
}
