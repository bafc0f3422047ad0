// Package retile plans and executes the conversion of one tiled dataset into
// another grid and pyramid.
package retile

import (
	"fmt"

	"github.com/kiesman99/retile/pkg/tile"
)

// SampleRegion is a block of pixels, in the source tile's local
// coordinates, that contributes to one output tile
type SampleRegion struct {
	Source tile.TileCoord `json:"source"`
	Pixels tile.Box       `json:"pixels"`
}

// Job produces one output tile
type Job struct {
	Output  tile.TileCoord `json:"output"`
	Regions []SampleRegion `json:"regions"`
}

// JobSource is the part of a source dataset job planning needs
type JobSource interface {
	Space() tile.Space
	Has(c tile.TileCoord) bool
}

// GenerateJobs plans every output tile over pixels for levels endLevel
// through beginLevel inclusive. Output tiles without any existing source
// pixels are omitted. Jobs are ordered by level, then row-major.
func GenerateJobs(src JobSource, dst tile.Space, pixels tile.Box, beginLevel, endLevel int) ([]Job, error) {
	if beginLevel < 0 || endLevel < 0 {
		return nil, fmt.Errorf("levels must be non-negative, got begin=%d end=%d", beginLevel, endLevel)
	}
	if endLevel > beginLevel {
		return nil, fmt.Errorf("end level %d is coarser than begin level %d", endLevel, beginLevel)
	}

	srcSpace := src.Space()

	var jobs []Job
	for level := endLevel; level <= beginLevel; level++ {
		for out := range dst.CoveredTilesAtLevel(pixels, level).Points() {
			output := tile.TileCoord{X: out.X, Y: out.Y, Z: level}
			outPixels := dst.TilePixelsAtLevel(output)

			var regions []SampleRegion
			for in := range srcSpace.CoveredTiles(outPixels).Points() {
				source := tile.TileCoord{X: in.X, Y: in.Y}
				if !src.Has(source) {
					continue
				}
				inPixels := srcSpace.TilePixels(in)
				overlap := outPixels.Intersect(inPixels)
				if overlap.Empty() {
					continue
				}
				regions = append(regions, SampleRegion{
					Source: source,
					Pixels: overlap.Sub(inPixels.Begin),
				})
			}

			if len(regions) == 0 {
				continue
			}
			jobs = append(jobs, Job{Output: output, Regions: regions})
		}
	}
	return jobs, nil
}
