package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// maxZstdWindow bounds the history a frame may demand from a decoder
const maxZstdWindow = 64 << 20

// zstd encoders and decoders are built to be reused after warmup
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxWindow(maxZstdWindow),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

var zstdEncoderPool = sync.Pool{
	New: func() any {
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd encoder for pool: %v", err))
		}
		return encoder
	},
}

func zstdEncode(raw []byte) []byte {
	encoder := zstdEncoderPool.Get().(*zstd.Encoder)
	defer zstdEncoderPool.Put(encoder)

	return encoder.EncodeAll(raw, nil)
}

// zstdDecodeInto streams into dst so a frame claiming more output than the
// tile holds never grows a buffer past len(dst)+1
func zstdDecodeInto(data, dst []byte) error {
	decoder := zstdDecoderPool.Get().(*zstd.Decoder)
	defer zstdDecoderPool.Put(decoder)

	if err := decoder.Reset(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("zstd decompression failed: %w", err)
	}

	n, err := io.ReadFull(decoder, dst)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, len(dst))
		}
		return fmt.Errorf("zstd decompression failed: %w", err)
	}

	var probe [1]byte
	if m, _ := decoder.Read(probe[:]); m != 0 {
		return fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, len(dst))
	}
	return nil
}

var lz4WriterPool = sync.Pool{
	New: func() any {
		return lz4.NewWriter(nil)
	},
}

func lz4Encode(raw []byte) ([]byte, error) {
	var buf bytes.Buffer

	w := lz4WriterPool.Get().(*lz4.Writer)
	defer lz4WriterPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4DecodeInto(data, dst []byte) error {
	r := lz4.NewReader(bytes.NewReader(data))

	n, err := io.ReadFull(r, dst)
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, len(dst))
		}
		return fmt.Errorf("lz4 decompression failed: %w", err)
	}

	var probe [1]byte
	if m, _ := r.Read(probe[:]); m != 0 {
		return fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, len(dst))
	}
	return nil
}
