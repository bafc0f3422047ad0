// Package pixel describes how raw tile bytes decode to integer samples.
//
// The sample type of a dataset is known only from configuration, so every
// (bit depth, signedness) pair is served by a Kernel picked from a table at
// runtime and reused for the whole run.
package pixel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/kiesman99/retile/pkg/tile"
)

var (
	// ErrUnsupported is returned for bit depth / signedness pairs with no kernel
	ErrUnsupported = errors.New("unsupported pixel encoding")
	// ErrTooLarge is returned when a tile's raw size does not fit in an int
	ErrTooLarge = errors.New("tile too large")
)

// Encoding describes one pixel's samples
type Encoding struct {
	BitDepth   int     `json:"bit_depth" mapstructure:"bit_depth"`
	Signed     bool    `json:"signed" mapstructure:"signed"`
	Channels   int     `json:"channels" mapstructure:"channels"`
	Gamma      float64 `json:"gamma" mapstructure:"gamma"`
	SwapEndian bool    `json:"swap_endian" mapstructure:"swap_endian"`
}

// SRTM is the 16-bit signed big-endian elevation encoding of .hgt tiles
func SRTM() Encoding {
	return Encoding{BitDepth: 16, Signed: true, Channels: 1, Gamma: 1}
}

// Color is 8-bit unsigned RGB
func Color() Encoding {
	return Encoding{BitDepth: 8, Signed: false, Channels: 3, Gamma: 1}
}

// SampleBytes is the width in bytes of one sample
func (e Encoding) SampleBytes() int {
	return e.BitDepth / 8
}

// PixelBytes is the width in bytes of one pixel
func (e Encoding) PixelBytes() int {
	return e.SampleBytes() * e.Channels
}

// ByteOrder is big-endian, or little-endian when SwapEndian is set
func (e Encoding) ByteOrder() binary.ByteOrder {
	if e.SwapEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// Kernel returns the sample accessor for this encoding
func (e Encoding) Kernel() (Kernel, error) {
	build, ok := kernels[kind{e.BitDepth, e.Signed}]
	if !ok {
		return nil, fmt.Errorf("%w: %d-bit signed=%t", ErrUnsupported, e.BitDepth, e.Signed)
	}
	return build(e.ByteOrder()), nil
}

// Validate checks that the encoding can be decoded
func (e Encoding) Validate() error {
	if _, err := e.Kernel(); err != nil {
		return err
	}
	if e.Channels <= 0 {
		return fmt.Errorf("%w: %d channels", ErrUnsupported, e.Channels)
	}
	return nil
}

func (e Encoding) String() string {
	sign := "u"
	if e.Signed {
		sign = "i"
	}
	return fmt.Sprintf("%s%dx%d", sign, e.BitDepth, e.Channels)
}

// Format is an encoding together with a tile size
type Format struct {
	Size     tile.Point `json:"size" mapstructure:"size"`
	Encoding Encoding   `json:"encoding" mapstructure:",squash"`
}

// RawSize is the number of bytes of an uncompressed tile. It is only
// meaningful for a format that passed Validate.
func (f Format) RawSize() int {
	return f.Size.X * f.Size.Y * f.Encoding.PixelBytes()
}

// CheckedRawSize is RawSize with overflow detection
func (f Format) CheckedRawSize() (int, error) {
	if f.Size.X < 0 || f.Size.Y < 0 || f.Encoding.PixelBytes() < 0 {
		return 0, fmt.Errorf("negative tile dimensions %v", f.Size)
	}
	hi, n := bits.Mul64(uint64(f.Size.X), uint64(f.Size.Y))
	if hi != 0 {
		return 0, fmt.Errorf("%w: %v pixels", ErrTooLarge, f.Size)
	}
	hi, n = bits.Mul64(n, uint64(f.Encoding.PixelBytes()))
	if hi != 0 || n > math.MaxInt {
		return 0, fmt.Errorf("%w: %v pixels of %d bytes", ErrTooLarge, f.Size, f.Encoding.PixelBytes())
	}
	return int(n), nil
}

// Samples is the number of samples of a tile
func (f Format) Samples() int {
	return f.Size.X * f.Size.Y * f.Encoding.Channels
}

// Validate checks the encoding, that the size is positive and that the raw
// size fits in an int
func (f Format) Validate() error {
	if f.Size.X <= 0 || f.Size.Y <= 0 {
		return fmt.Errorf("tile size must be positive, got %v", f.Size)
	}
	if err := f.Encoding.Validate(); err != nil {
		return err
	}
	_, err := f.CheckedRawSize()
	return err
}
