// Package codec converts between tile containers and raw pixel buffers.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"golang.org/x/image/tiff"

	"github.com/kiesman99/retile/internal/pixel"
)

var (
	// ErrSizeMismatch is returned when data does not decode to exactly the
	// raw size of the declared format
	ErrSizeMismatch = errors.New("decoded size does not match format")
	// ErrUnsupported is returned when a container cannot hold a format
	ErrUnsupported = errors.New("unsupported by container")
)

// Compression names a tile container
type Compression string

const (
	Raw  Compression = "raw"
	PNG  Compression = "png"
	TIFF Compression = "tiff"
	Zstd Compression = "zstd"
	LZ4  Compression = "lz4"
)

// ParseCompression accepts the container names used in configuration
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case Raw, PNG, TIFF, Zstd, LZ4:
		return Compression(s), nil
	case "", "none":
		return Raw, nil
	case "tif":
		return TIFF, nil
	default:
		return "", fmt.Errorf("unsupported compression: %q (supported: raw, png, tiff, zstd, lz4)", s)
	}
}

// ContentType is the MIME type written alongside encoded tiles
func (c Compression) ContentType() string {
	switch c {
	case PNG:
		return "image/png"
	case TIFF:
		return "image/tiff"
	case Zstd:
		return "application/zstd"
	default:
		return "application/octet-stream"
	}
}

// Codec is a pixel format plus the container it is stored in
type Codec struct {
	Format      pixel.Format
	Compression Compression
}

// New validates the format and container
func New(format pixel.Format, compression Compression) (Codec, error) {
	if err := format.Validate(); err != nil {
		return Codec{}, err
	}
	c := Codec{Format: format, Compression: compression}
	if _, err := ParseCompression(string(compression)); err != nil {
		return Codec{}, err
	}
	if compression == PNG || compression == TIFF {
		if err := imageCompatible(format); err != nil {
			return Codec{}, err
		}
	}
	return c, nil
}

// DecodeInto decodes data into dst, which must be exactly Format.RawSize()
// bytes long. A dst of any other length is a programming error and panics.
func (c Codec) DecodeInto(data, dst []byte) error {
	if len(dst) != c.Format.RawSize() {
		panic(fmt.Sprintf("codec: destination is %d bytes, format needs %d", len(dst), c.Format.RawSize()))
	}

	switch c.Compression {
	case Raw, "":
		if len(data) != len(dst) {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(data), len(dst))
		}
		copy(dst, data)
		return nil
	case Zstd:
		return zstdDecodeInto(data, dst)
	case LZ4:
		return lz4DecodeInto(data, dst)
	case PNG:
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return err
		}
		return fromImage(img, c.Format, dst)
	case TIFF:
		img, err := tiff.Decode(bytes.NewReader(data))
		if err != nil {
			return err
		}
		return fromImage(img, c.Format, dst)
	default:
		return fmt.Errorf("unsupported compression: %q", c.Compression)
	}
}

// Decode allocates a raw buffer and decodes data into it
func (c Codec) Decode(data []byte) ([]byte, error) {
	dst := make([]byte, c.Format.RawSize())
	if err := c.DecodeInto(data, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// Encode packs a raw buffer into the container
func (c Codec) Encode(raw []byte) ([]byte, error) {
	if len(raw) != c.Format.RawSize() {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, len(raw), c.Format.RawSize())
	}

	switch c.Compression {
	case Raw, "":
		return bytes.Clone(raw), nil
	case Zstd:
		return zstdEncode(raw), nil
	case LZ4:
		return lz4Encode(raw)
	case PNG:
		img, err := toImage(raw, c.Format)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		enc := &png.Encoder{CompressionLevel: png.BestSpeed}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case TIFF:
		img, err := toImage(raw, c.Format)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression: %q", c.Compression)
	}
}
