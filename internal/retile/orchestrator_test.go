package retile

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/dataset"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

var gray8 = pixel.Encoding{BitDepth: 8, Channels: 1}

type memSource struct {
	format pixel.Format
	tiles  map[tile.TileCoord][]byte
	broken map[tile.TileCoord]bool
	loads  int
}

func (s *memSource) Space() tile.Space    { return tile.NewSpace(s.format.Size, tile.Point{}) }
func (s *memSource) Format() pixel.Format { return s.format }

func (s *memSource) Has(c tile.TileCoord) bool {
	_, ok := s.tiles[c]
	return ok
}

func (s *memSource) Load(_ context.Context, c tile.TileCoord) ([]byte, error) {
	s.loads++
	if s.broken[c] {
		return nil, dataset.ErrFetch
	}
	return s.tiles[c], nil
}

type memDest struct {
	format  pixel.Format
	written map[tile.TileCoord][]byte
	reject  map[tile.TileCoord]bool
}

func newMemDest(f pixel.Format) *memDest {
	return &memDest{format: f, written: map[tile.TileCoord][]byte{}, reject: map[tile.TileCoord]bool{}}
}

func (d *memDest) Space() tile.Space    { return tile.NewSpace(d.format.Size, tile.Point{}) }
func (d *memDest) Format() pixel.Format { return d.format }

func (d *memDest) WriteTile(_ context.Context, c tile.TileCoord, raw []byte) error {
	if d.reject[c] {
		return errors.New("sink rejected " + c.String())
	}
	d.written[c] = append([]byte(nil), raw...)
	return nil
}

func constant(n int, v byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

func TestRunIdentity(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(4, 4), Encoding: gray8}
	in := make([]byte, f.RawSize())
	for i := range in {
		in[i] = byte(i * 3)
	}
	src := &memSource{format: f, tiles: map[tile.TileCoord][]byte{{}: in}}
	dst := newMemDest(f)

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(4, 4)), 0, 0)
	require.NoError(err)
	require.Len(jobs, 1)

	o, err := New(src, dst, zaptest.NewLogger(t))
	require.NoError(err)
	stats, err := o.Run(context.Background(), jobs)
	require.NoError(err)

	require.Equal(1, stats.Written)
	require.Equal(uint64(16), stats.Samples)
	require.Equal(in, dst.written[tile.TileCoord{}])
}

func TestRunIdentitySigned16(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(3, 2), Encoding: pixel.SRTM()}
	k, err := f.Encoding.Kernel()
	require.NoError(err)

	in := make([]byte, f.RawSize())
	for i, v := range []int64{-32768, -1, 0, 1, 8848, 32767} {
		k.Store(in, i, v)
	}
	src := &memSource{format: f, tiles: map[tile.TileCoord][]byte{{X: 2, Y: 1}: in}}
	dst := newMemDest(f)

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Pt(6, 2), tile.Pt(9, 4)), 0, 0)
	require.NoError(err)
	require.Len(jobs, 1)

	o, err := New(src, dst, nil)
	require.NoError(err)
	_, err = o.Run(context.Background(), jobs)
	require.NoError(err)
	require.Equal(in, dst.written[tile.TileCoord{X: 2, Y: 1}])
}

func TestRunDownsamples(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8}
	src := &memSource{format: f, tiles: map[tile.TileCoord][]byte{
		{X: 0, Y: 0}: constant(4, 10),
		{X: 1, Y: 0}: constant(4, 20),
		{X: 0, Y: 1}: constant(4, 30),
		{X: 1, Y: 1}: constant(4, 40),
	}}
	dst := newMemDest(f)

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(4, 4)), 1, 1)
	require.NoError(err)
	require.Len(jobs, 1)
	require.Len(jobs[0].Regions, 4)

	o, err := New(src, dst, nil)
	require.NoError(err)
	stats, err := o.Run(context.Background(), jobs)
	require.NoError(err)
	require.Equal(1, stats.Written)

	// each source tile folds into one output pixel, mirrored on both axes
	require.Equal([]byte{40, 30, 20, 10}, dst.written[tile.TileCoord{Z: 1}])
}

func TestRunAveragesWithinPixel(t *testing.T) {
	require := require.New(t)

	src := &memSource{
		format: pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8},
		tiles:  map[tile.TileCoord][]byte{{}: {10, 20, 30, 41}},
	}
	dst := newMemDest(pixel.Format{Size: tile.Pt(1, 1), Encoding: gray8})

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(2, 2)), 1, 1)
	require.NoError(err)

	o, err := New(src, dst, nil)
	require.NoError(err)
	_, err = o.Run(context.Background(), jobs)
	require.NoError(err)
	require.Equal([]byte{25}, dst.written[tile.TileCoord{Z: 1}])
}

func TestRunSkipsFailedRegions(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8}
	src := &memSource{
		format: f,
		tiles:  map[tile.TileCoord][]byte{{X: 0}: constant(4, 7), {X: 1}: constant(4, 9)},
		broken: map[tile.TileCoord]bool{{X: 1}: true},
	}
	dst := newMemDest(f)

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(4, 2)), 0, 0)
	require.NoError(err)
	require.Len(jobs, 2)

	o, err := New(src, dst, nil)
	require.NoError(err)
	stats, err := o.Run(context.Background(), jobs)
	require.NoError(err)

	require.Equal(2, stats.Jobs)
	require.Equal(1, stats.Written)
	require.Equal(1, stats.Empty)
	require.Equal(1, stats.RegionsFailed)
	require.Len(stats.Failures, 1)
	require.Equal("load", stats.Failures[0].Op)
	require.ErrorIs(stats.Failures[0].Err, dataset.ErrFetch)
	require.Equal(constant(4, 7), dst.written[tile.TileCoord{X: 0}])
	require.NotContains(dst.written, tile.TileCoord{X: 1})
}

func TestRunCollectsWriteErrors(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8}
	src := &memSource{format: f, tiles: map[tile.TileCoord][]byte{
		{X: 0}: constant(4, 1), {X: 1}: constant(4, 2), {X: 2}: constant(4, 3),
	}}
	dst := newMemDest(f)
	dst.reject[tile.TileCoord{X: 0}] = true
	dst.reject[tile.TileCoord{X: 2}] = true

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(6, 2)), 0, 0)
	require.NoError(err)

	o, err := New(src, dst, nil)
	require.NoError(err)
	stats, err := o.Run(context.Background(), jobs)
	require.Error(err)
	require.ErrorContains(err, "sink rejected 0/0/0")
	require.ErrorContains(err, "sink rejected 0/2/0")

	// the run continued past the first failure
	require.Equal(3, stats.Jobs)
	require.Equal(1, stats.Written)
	require.Equal(2, stats.WritesFailed)
	require.Equal(constant(4, 2), dst.written[tile.TileCoord{X: 1}])
}

func TestRunStopsWhenCancelled(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8}
	src := &memSource{format: f, tiles: map[tile.TileCoord][]byte{{}: constant(4, 1)}}
	dst := newMemDest(f)

	jobs, err := GenerateJobs(src, dst.Space(), tile.Bounds(tile.Point{}, tile.Pt(2, 2)), 0, 0)
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, err := New(src, dst, nil)
	require.NoError(err)
	stats, err := o.Run(ctx, jobs)
	require.ErrorIs(err, context.Canceled)
	require.Zero(stats.Jobs)
	require.Zero(src.loads)
	require.Empty(dst.written)
}

func TestNewRejectsMismatchedEncodings(t *testing.T) {
	src := &memSource{format: pixel.Format{Size: tile.Pt(2, 2), Encoding: pixel.Color()}}

	_, err := New(src, newMemDest(pixel.Format{Size: tile.Pt(2, 2), Encoding: gray8}), nil)
	require.Error(t, err)

	_, err = New(src, newMemDest(pixel.Format{Size: tile.Pt(2, 2), Encoding: pixel.Encoding{BitDepth: 24, Channels: 3}}), nil)
	require.ErrorIs(t, err, pixel.ErrUnsupported)
}

func TestRunEndToEnd(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	fs := afero.NewMemMapFs()

	srcFormat := pixel.Format{Size: tile.Pt(4, 4), Encoding: pixel.SRTM()}
	srcCodec, err := codec.New(srcFormat, codec.Raw)
	require.NoError(err)

	k, err := srcFormat.Encoding.Kernel()
	require.NoError(err)
	for _, x := range []int{0, 1} {
		raw := make([]byte, srcFormat.RawSize())
		for i := 0; i < srcFormat.Samples(); i++ {
			k.Store(raw, i, int64(100*(x+1)))
		}
		path := tile.MustParseTemplate("/hgt/{x:3}_{y:3}_{z:3}.hgt").Format(tile.TileCoord{X: x})
		require.NoError(afero.WriteFile(fs, path, raw, 0o644))
	}
	require.NoError(afero.WriteFile(fs, "/hgt/manifest.json", []byte(`[[0,0,0],[1,0,0]]`), 0o644))

	fetcher := tile.NewFSFetcher(fs)
	manifest, err := dataset.LoadManifest(ctx, fetcher, "/hgt/manifest.json")
	require.NoError(err)
	src, err := dataset.NewProvider("/hgt/{x:3}_{y:3}_{z:3}.hgt", srcCodec, fetcher, dataset.ProviderOptions{Manifest: manifest})
	require.NoError(err)

	dstFormat := pixel.Format{Size: tile.Pt(2, 2), Encoding: pixel.SRTM()}
	dstCodec, err := codec.New(dstFormat, codec.Zstd)
	require.NoError(err)
	dst, err := dataset.NewWriter("/out/{z}/{x}/{y}.zst", dstCodec, tile.NewFSSink(fs), nil)
	require.NoError(err)

	jobs, err := GenerateJobs(src, dst.Space(), manifest.PixelBounds(src.Space()), 2, 0)
	require.NoError(err)
	// 4x2 + 2x1 + 1x1 output tiles
	require.Len(jobs, 11)

	o, err := New(src, dst, zaptest.NewLogger(t))
	require.NoError(err)
	stats, err := o.Run(ctx, jobs)
	require.NoError(err)
	require.Equal(11, stats.Written)
	// every source pixel is sampled once per level
	require.Equal(uint64(3*2*4*4), stats.Samples)

	read := func(path string) []int64 {
		data, err := afero.ReadFile(fs, path)
		require.NoError(err)
		raw, err := dstCodec.Decode(data)
		require.NoError(err)
		out := make([]int64, dstFormat.Samples())
		for i := range out {
			out[i] = k.Load(raw, i)
		}
		return out
	}

	require.Equal([]int64{100, 100, 100, 100}, read("/out/0/0/0.zst"))
	require.Equal([]int64{200, 200, 200, 200}, read("/out/0/3/1.zst"))
	require.Equal([]int64{100, 100, 100, 100}, read("/out/1/0/0.zst"))
	// both axes are mirrored, the rows past the source stay empty
	require.Equal([]int64{0, 0, 200, 100}, read("/out/2/0/0.zst"))
}
