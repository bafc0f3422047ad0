package dataset

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// Writer encodes output tiles and hands them to a sink
type Writer struct {
	template *tile.Template
	codec    codec.Codec
	space    tile.Space
	sink     tile.Sink
	logger   *zap.Logger
}

// NewWriter validates the URI template. The tile space has the codec's tile
// size and no offset.
func NewWriter(template string, c codec.Codec, sink tile.Sink, logger *zap.Logger) (*Writer, error) {
	tmpl, err := tile.ParseTemplate(template)
	if err != nil {
		return nil, err
	}
	if err := c.Format.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, errors.New("dataset: writer needs a sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Writer{
		template: tmpl,
		codec:    c,
		space:    tile.NewSpace(c.Format.Size, tile.Point{}),
		sink:     sink,
		logger:   logger,
	}, nil
}

// Space is the output tile grid
func (w *Writer) Space() tile.Space { return w.space }

// Format is the output tile format
func (w *Writer) Format() pixel.Format { return w.codec.Format }

// Resource is the URI of an output tile
func (w *Writer) Resource(c tile.TileCoord) string {
	return w.template.Format(c)
}

// WriteTile encodes a raw tile and writes it
func (w *Writer) WriteTile(ctx context.Context, c tile.TileCoord, raw []byte) error {
	uri := w.Resource(c)

	data, err := w.codec.Encode(raw)
	if err != nil {
		return fmt.Errorf("encode %s: %w", uri, err)
	}
	if err := w.sink.Write(ctx, uri, data, w.codec.Compression.ContentType()); err != nil {
		return fmt.Errorf("write %s: %w", uri, err)
	}

	w.logger.Debug("tile written", zap.String("uri", uri), zap.Int("bytes", len(data)))
	return nil
}
