package dataset

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiesman99/retile/pkg/tile"
)

// Manifest lists the level-0 tiles a source dataset contains
type Manifest struct {
	coords []tile.TileCoord
	set    map[tile.TileCoord]struct{}
}

// NewManifest keeps coordinates in the given order, dropping duplicates
func NewManifest(coords []tile.TileCoord) *Manifest {
	m := &Manifest{set: make(map[tile.TileCoord]struct{}, len(coords))}
	for _, c := range coords {
		if _, ok := m.set[c]; ok {
			continue
		}
		m.set[c] = struct{}{}
		m.coords = append(m.coords, c)
	}
	return m
}

// ParseManifest decodes a JSON array of [x, y, z] coordinates
func ParseManifest(data []byte) (*Manifest, error) {
	var coords []tile.TileCoord
	if err := json.Unmarshal(data, &coords); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return NewManifest(coords), nil
}

// LoadManifest fetches and parses a manifest
func LoadManifest(ctx context.Context, f tile.Fetcher, resource string) (*Manifest, error) {
	data, err := f.Fetch(ctx, resource)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest %s: %w", ErrFetch, resource, err)
	}
	return ParseManifest(data)
}

// Has reports whether the manifest lists c
func (m *Manifest) Has(c tile.TileCoord) bool {
	_, ok := m.set[c]
	return ok
}

// Coords returns the listed tiles in manifest order
func (m *Manifest) Coords() []tile.TileCoord {
	return append([]tile.TileCoord(nil), m.coords...)
}

func (m *Manifest) Len() int { return len(m.coords) }

// PixelBounds is the smallest box containing every listed tile's pixels
func (m *Manifest) PixelBounds(space tile.Space) tile.Box {
	var bounds tile.Box
	for i, c := range m.coords {
		px := space.TilePixelsAtLevel(c)
		if i == 0 {
			bounds = px
			continue
		}
		bounds = tile.Bounds(
			tile.Pt(min(bounds.Begin.X, px.Begin.X), min(bounds.Begin.Y, px.Begin.Y)),
			tile.Pt(max(bounds.End.X, px.End.X), max(bounds.End.Y, px.End.Y)),
		)
	}
	return bounds
}
