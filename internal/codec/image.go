package codec

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"

	"github.com/kiesman99/retile/internal/pixel"
)

// imageCompatible reports whether PNG/TIFF can carry the format: 1, 3 or 4
// channels of 8 or 16 bits. Signed samples are stored as their bit pattern.
func imageCompatible(f pixel.Format) error {
	enc := f.Encoding
	if enc.BitDepth != 8 && enc.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit samples", ErrUnsupported, enc.BitDepth)
	}
	switch enc.Channels {
	case 1, 3, 4:
		return nil
	default:
		return fmt.Errorf("%w: %d channels", ErrUnsupported, enc.Channels)
	}
}

// toImage wraps a raw buffer in the matching image type
func toImage(raw []byte, f pixel.Format) (image.Image, error) {
	if err := imageCompatible(f); err != nil {
		return nil, err
	}

	enc := f.Encoding
	order := enc.ByteOrder()
	rect := image.Rect(0, 0, f.Size.X, f.Size.Y)
	n := f.Size.X * f.Size.Y
	ch := enc.Channels

	sample := func(i int) uint16 {
		if enc.BitDepth == 8 {
			return uint16(raw[i])
		}
		return order.Uint16(raw[2*i:])
	}

	switch {
	case ch == 1 && enc.BitDepth == 8:
		img := image.NewGray(rect)
		copy(img.Pix, raw)
		return img, nil
	case ch == 1:
		img := image.NewGray16(rect)
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint16(img.Pix[2*i:], sample(i))
		}
		return img, nil
	case enc.BitDepth == 8:
		img := image.NewNRGBA(rect)
		for p := 0; p < n; p++ {
			img.Pix[4*p+3] = 0xff
			for c := 0; c < ch; c++ {
				img.Pix[4*p+c] = raw[ch*p+c]
			}
		}
		return img, nil
	default:
		img := image.NewNRGBA64(rect)
		for p := 0; p < n; p++ {
			binary.BigEndian.PutUint16(img.Pix[8*p+6:], 0xffff)
			for c := 0; c < ch; c++ {
				binary.BigEndian.PutUint16(img.Pix[8*p+2*c:], sample(ch*p+c))
			}
		}
		return img, nil
	}
}

// fromImage writes a decoded image into dst in the format's layout
func fromImage(img image.Image, f pixel.Format, dst []byte) error {
	if err := imageCompatible(f); err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != f.Size.X || b.Dy() != f.Size.Y {
		return fmt.Errorf("%w: image is %dx%d, want %v", ErrSizeMismatch, b.Dx(), b.Dy(), f.Size)
	}

	enc := f.Encoding
	order := enc.ByteOrder()
	ch := enc.Channels

	put := func(i int, v uint16) {
		if enc.BitDepth == 8 {
			dst[i] = byte(v >> 8)
			return
		}
		order.PutUint16(dst[2*i:], v)
	}

	for y := 0; y < f.Size.Y; y++ {
		for x := 0; x < f.Size.X; x++ {
			p := y*f.Size.X + x
			at := img.At(b.Min.X+x, b.Min.Y+y)
			if ch == 1 {
				put(p, color.Gray16Model.Convert(at).(color.Gray16).Y)
				continue
			}
			c := color.NRGBA64Model.Convert(at).(color.NRGBA64)
			vals := [4]uint16{c.R, c.G, c.B, c.A}
			for i := 0; i < ch; i++ {
				put(ch*p+i, vals[i])
			}
		}
	}
	return nil
}
