// Package accum implements box-filter downsampling as running per-sample sums.
package accum

import (
	"fmt"

	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// Accumulator sums samples for one output tile. It is allocated once per
// writer tile size and cleared between jobs.
type Accumulator struct {
	size     tile.Point
	channels int
	sum      []int64
	count    []uint64
	total    uint64
}

// New allocates an accumulator for a size.X by size.Y tile
func New(size tile.Point, channels int) *Accumulator {
	if size.X <= 0 || size.Y <= 0 || channels <= 0 {
		panic(fmt.Sprintf("accum: invalid geometry %v x %d", size, channels))
	}
	n := size.X * size.Y * channels
	return &Accumulator{
		size:     size,
		channels: channels,
		sum:      make([]int64, n),
		count:    make([]uint64, n),
	}
}

func (a *Accumulator) index(px tile.Point, channel int) int {
	if px.X < 0 || px.X >= a.size.X || px.Y < 0 || px.Y >= a.size.Y || channel < 0 || channel >= a.channels {
		panic(fmt.Sprintf("accum: sample %v channel %d outside %v x %d", px, channel, a.size, a.channels))
	}
	return (px.Y*a.size.X+px.X)*a.channels + channel
}

// AddSample adds v to the running sum of one pixel channel
func (a *Accumulator) AddSample(px tile.Point, channel int, v int64) {
	i := a.index(px, channel)
	a.sum[i] += v
	a.count[i]++
	a.total++
}

// Add widens a sample of any integer type and adds it
func Add[T pixel.Integer](a *Accumulator, px tile.Point, channel int, v T) {
	a.AddSample(px, channel, int64(v))
}

// Resolve averages every element and packs the results with the encoding's
// sample type. Elements that never received a sample are 0.
func (a *Accumulator) Resolve(enc pixel.Encoding) ([]byte, error) {
	k, err := enc.Kernel()
	if err != nil {
		return nil, err
	}
	if enc.Channels != a.channels {
		return nil, fmt.Errorf("accum: encoding has %d channels, accumulator %d", enc.Channels, a.channels)
	}

	out := make([]byte, len(a.sum)*k.Width())
	for i, n := range a.count {
		if n == 0 {
			continue
		}
		k.Store(out, i, a.sum[i]/int64(n))
	}
	return out, nil
}

// Clear resets all sums and counts. It does nothing if no sample was added
// since the previous Clear.
func (a *Accumulator) Clear() {
	if a.total == 0 {
		return
	}
	clear(a.sum)
	clear(a.count)
	a.total = 0
}

// Samples is the number of samples added since the last Clear
func (a *Accumulator) Samples() uint64 { return a.total }

// Size is the tile size in pixels
func (a *Accumulator) Size() tile.Point { return a.size }

// Channels is the number of channels per pixel
func (a *Accumulator) Channels() int { return a.channels }
