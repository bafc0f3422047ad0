package retile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kiesman99/retile/internal/accum"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

// Source provides decoded source tiles
type Source interface {
	Space() tile.Space
	Format() pixel.Format
	// Load returns the raw tile. The slice may be reused by the next Load.
	Load(ctx context.Context, c tile.TileCoord) ([]byte, error)
}

// Destination accepts finished output tiles
type Destination interface {
	Space() tile.Space
	Format() pixel.Format
	WriteTile(ctx context.Context, c tile.TileCoord, raw []byte) error
}

// Stats summarizes a run
type Stats struct {
	Jobs          int
	Written       int
	Empty         int
	RegionsFailed int
	WritesFailed  int
	Samples       uint64
	Failures      []Failure
	Duration      time.Duration
}

// Failure records a tile that could not be read or written
type Failure struct {
	Coord tile.TileCoord
	Op    string
	Err   error
}

// Orchestrator executes jobs one at a time with a single accumulator
type Orchestrator struct {
	src    Source
	dst    Destination
	srcK   pixel.Kernel
	acc    *accum.Accumulator
	logger *zap.Logger
}

// New checks that both encodings are supported and have the same channel count
func New(src Source, dst Destination, logger *zap.Logger) (*Orchestrator, error) {
	srcFormat, dstFormat := src.Format(), dst.Format()

	srcK, err := srcFormat.Encoding.Kernel()
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	if _, err := dstFormat.Encoding.Kernel(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	if srcFormat.Encoding.Channels != dstFormat.Encoding.Channels {
		return nil, fmt.Errorf("source has %d channels, destination %d",
			srcFormat.Encoding.Channels, dstFormat.Encoding.Channels)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		src:    src,
		dst:    dst,
		srcK:   srcK,
		acc:    accum.New(dstFormat.Size, dstFormat.Encoding.Channels),
		logger: logger,
	}, nil
}

// Run executes jobs in order. Unreadable source tiles are skipped. Write
// failures do not stop the run; they are returned together once it ends.
// Cancellation is checked between jobs.
func (o *Orchestrator) Run(ctx context.Context, jobs []Job) (Stats, error) {
	start := time.Now()
	var stats Stats
	var writeErrs error

	for _, job := range jobs {
		select {
		case <-ctx.Done():
			stats.Duration = time.Since(start)
			return stats, multierr.Append(writeErrs, ctx.Err())
		default:
		}

		stats.Jobs++
		o.accumulate(ctx, job, &stats)

		if o.acc.Samples() == 0 {
			stats.Empty++
			continue
		}
		stats.Samples += o.acc.Samples()

		if err := o.flush(ctx, job.Output); err != nil {
			o.logger.Warn("failed to write tile", zap.Stringer("tile", job.Output), zap.Error(err))
			stats.WritesFailed++
			stats.Failures = append(stats.Failures, Failure{Coord: job.Output, Op: "write", Err: err})
			writeErrs = multierr.Append(writeErrs, err)
		} else {
			stats.Written++
		}
		o.acc.Clear()
	}

	stats.Duration = time.Since(start)
	o.logger.Info("retile finished",
		zap.Int("jobs", stats.Jobs),
		zap.Int("written", stats.Written),
		zap.Int("empty", stats.Empty),
		zap.Int("regions_failed", stats.RegionsFailed),
		zap.Int("writes_failed", stats.WritesFailed),
		zap.Duration("duration", stats.Duration))
	return stats, writeErrs
}

// accumulate adds every region of a job to the accumulator. Both the read and
// the write address are mirrored on both axes; output tiles above level 0
// fold 2^z by 2^z input pixels into one output pixel.
func (o *Orchestrator) accumulate(ctx context.Context, job Job, stats *Stats) {
	srcSpace, dstSpace := o.src.Space(), o.dst.Space()
	srcSize := o.src.Format().Size
	dstSize := o.dst.Format().Size
	channels := o.acc.Channels()

	outBegin := dstSpace.TilePixelsAtLevel(job.Output).Begin
	outDiv := 1 << job.Output.Z
	one := tile.Pt(1, 1)

	for _, region := range job.Regions {
		buf, err := o.src.Load(ctx, region.Source)
		if err != nil {
			o.logger.Warn("skipping source tile", zap.Stringer("tile", region.Source), zap.Error(err))
			stats.RegionsFailed++
			stats.Failures = append(stats.Failures, Failure{Coord: region.Source, Op: "load", Err: err})
			continue
		}

		delta := srcSpace.TilePixelsAtLevel(region.Source).Begin.Sub(outBegin)
		inDiv := 1 << region.Source.Z

		for p := range region.Pixels.Points() {
			read := srcSize.Sub(p).Sub(one).Shrink(inDiv)
			at := dstSize.Sub(p.Add(delta).Shrink(outDiv)).Sub(one)

			base := (read.Y*srcSize.X + read.X) * channels
			for c := 0; c < channels; c++ {
				o.acc.AddSample(at, c, o.srcK.Load(buf, base+c))
			}
		}
	}
}

func (o *Orchestrator) flush(ctx context.Context, c tile.TileCoord) error {
	raw, err := o.acc.Resolve(o.dst.Format().Encoding)
	if err != nil {
		return err
	}
	return o.dst.WriteTile(ctx, c, raw)
}
