// Package dataset reads source tiles through a slot cache and writes output
// tiles through a sink.
package dataset

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/cache"
	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// ErrFetch is returned when a tile cannot be fetched or decoded
var ErrFetch = errors.New("tile unavailable")

// DefaultCacheSlots is the number of decoded tiles a provider keeps
const DefaultCacheSlots = 16

// ProviderOptions contains the optional provider parameters
type ProviderOptions struct {
	// Offset of the tile space in pixels
	Offset tile.Point
	// CacheSlots defaults to DefaultCacheSlots
	CacheSlots int
	// Manifest limits which level-0 tiles exist. Nil means all do.
	Manifest *Manifest
	Logger   *zap.Logger
}

// Provider serves decoded source tiles
type Provider struct {
	template *tile.Template
	codec    codec.Codec
	space    tile.Space
	manifest *Manifest
	cache    *cache.LRU
	fetcher  tile.Fetcher
	logger   *zap.Logger
}

// NewProvider validates the URI template and allocates the tile cache
func NewProvider(template string, c codec.Codec, fetcher tile.Fetcher, opts ProviderOptions) (*Provider, error) {
	tmpl, err := tile.ParseTemplate(template)
	if err != nil {
		return nil, err
	}
	if err := c.Format.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("dataset: provider needs a fetcher")
	}

	slots := opts.CacheSlots
	if slots == 0 {
		slots = DefaultCacheSlots
	}
	if slots < 0 {
		return nil, fmt.Errorf("dataset: cache slots must be positive, got %d", slots)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		template: tmpl,
		codec:    c,
		space:    tile.NewSpace(c.Format.Size, opts.Offset),
		manifest: opts.Manifest,
		cache:    cache.New(c.Format.RawSize(), slots),
		fetcher:  fetcher,
		logger:   logger,
	}, nil
}

// Space is the source tile grid
func (p *Provider) Space() tile.Space { return p.space }

// Format is the decoded tile format
func (p *Provider) Format() pixel.Format { return p.codec.Format }

// Has reports whether the manifest lists a tile
func (p *Provider) Has(c tile.TileCoord) bool {
	if p.manifest == nil {
		return true
	}
	return p.manifest.Has(c)
}

// Resource is the URI of a tile
func (p *Provider) Resource(c tile.TileCoord) string {
	return p.template.Format(c)
}

// Load returns the decoded bytes of a tile. The slice is a view into the
// cache and is valid only until the next Load.
func (p *Provider) Load(ctx context.Context, c tile.TileCoord) ([]byte, error) {
	uri := p.Resource(c)

	slot, valid := p.cache.AccessOrReserve(uri)
	buf := p.cache.Bytes(slot)
	if valid {
		return buf, nil
	}

	data, err := p.fetcher.Fetch(ctx, uri)
	if err != nil {
		p.cache.Discard(slot)
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, uri, err)
	}
	if err := p.codec.DecodeInto(data, buf); err != nil {
		p.cache.Discard(slot)
		return nil, fmt.Errorf("%w: decode %s: %w", ErrFetch, uri, err)
	}

	p.logger.Debug("tile loaded",
		zap.String("uri", uri),
		zap.Int("bytes", len(data)),
		zap.Int("resident", p.cache.Len()))
	return buf, nil
}
