package dataset

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/retile/internal/codec"
	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

var u8 = pixel.Format{Size: tile.Pt(2, 2), Encoding: pixel.Encoding{BitDepth: 8, Channels: 1}}

// countingFetcher records how often each resource is fetched
type countingFetcher struct {
	inner tile.Fetcher
	calls map[string]int
}

func (f *countingFetcher) Fetch(ctx context.Context, resource string) ([]byte, error) {
	f.calls[resource]++
	return f.inner.Fetch(ctx, resource)
}

func newProvider(t *testing.T, fs afero.Fs, opts ProviderOptions) (*Provider, *countingFetcher) {
	t.Helper()
	c, err := codec.New(u8, codec.Raw)
	require.NoError(t, err)

	f := &countingFetcher{inner: tile.NewFSFetcher(fs), calls: map[string]int{}}
	p, err := NewProvider("/src/{z:1}/{x:2}_{y:2}.raw", c, f, opts)
	require.NoError(t, err)
	return p, f
}

func TestProviderLoadCaches(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "/src/0/01_02.raw", []byte{1, 2, 3, 4}, 0o644))

	p, f := newProvider(t, fs, ProviderOptions{})
	require.Equal(tile.NewSpace(tile.Pt(2, 2), tile.Point{}), p.Space())

	buf, err := p.Load(context.Background(), tile.TileCoord{X: 1, Y: 2})
	require.NoError(err)
	require.Equal([]byte{1, 2, 3, 4}, buf)

	buf, err = p.Load(context.Background(), tile.TileCoord{X: 1, Y: 2})
	require.NoError(err)
	require.Equal([]byte{1, 2, 3, 4}, buf)
	require.Equal(1, f.calls["/src/0/01_02.raw"])
}

func TestProviderFailedLoadIsNotCached(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	p, f := newProvider(t, fs, ProviderOptions{CacheSlots: 2})

	c := tile.TileCoord{X: 3, Y: 3}
	_, err := p.Load(context.Background(), c)
	require.ErrorIs(err, ErrFetch)
	require.Zero(p.cache.Len())

	// a tile that later appears is fetched again
	require.NoError(afero.WriteFile(fs, "/src/0/03_03.raw", []byte{9, 9, 9, 9}, 0o644))
	buf, err := p.Load(context.Background(), c)
	require.NoError(err)
	require.Equal([]byte{9, 9, 9, 9}, buf)
	require.Equal(2, f.calls["/src/0/03_03.raw"])
}

func TestProviderDecodeFailure(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "/src/0/00_00.raw", []byte{1, 2, 3}, 0o644))

	p, _ := newProvider(t, fs, ProviderOptions{})
	_, err := p.Load(context.Background(), tile.TileCoord{})
	require.ErrorIs(err, ErrFetch)
	require.ErrorIs(err, codec.ErrSizeMismatch)
	require.Zero(p.cache.Len())
}

func TestProviderEviction(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	for _, name := range []string{"00_00", "01_00", "02_00"} {
		require.NoError(afero.WriteFile(fs, "/src/0/"+name+".raw", []byte{0, 0, 0, 0}, 0o644))
	}
	p, f := newProvider(t, fs, ProviderOptions{CacheSlots: 2})

	ctx := context.Background()
	for _, x := range []int{0, 1, 0, 2, 0, 1} {
		_, err := p.Load(ctx, tile.TileCoord{X: x})
		require.NoError(err)
	}
	// 0 stays hot, 1 is evicted by 2 and fetched again
	require.Equal(1, f.calls["/src/0/00_00.raw"])
	require.Equal(2, f.calls["/src/0/01_00.raw"])
	require.Equal(1, f.calls["/src/0/02_00.raw"])
}

func TestProviderManifest(t *testing.T) {
	require := require.New(t)

	m := NewManifest([]tile.TileCoord{{X: 0, Y: 0}, {X: 1, Y: 0}})
	p, _ := newProvider(t, afero.NewMemMapFs(), ProviderOptions{Manifest: m})
	require.True(p.Has(tile.TileCoord{X: 1}))
	require.False(p.Has(tile.TileCoord{X: 2}))

	open, _ := newProvider(t, afero.NewMemMapFs(), ProviderOptions{})
	require.True(open.Has(tile.TileCoord{X: 99, Y: -4}))
}

func TestNewProviderRejectsTemplates(t *testing.T) {
	c, err := codec.New(u8, codec.Raw)
	require.NoError(t, err)
	fetch := tile.NewFSFetcher(afero.NewMemMapFs())

	for _, tmpl := range []string{"/src/{x:2}_{y:2}", "/src/{x:2}_{y:2}_{q:1}_{z:1}", "/src/{x:a}/{y}/{z}"} {
		_, err := NewProvider(tmpl, c, fetch, ProviderOptions{})
		require.ErrorIs(t, err, tile.ErrTemplate, tmpl)
	}

	_, err = NewProvider("/src/{z}/{x}/{y}", c, fetch, ProviderOptions{CacheSlots: -1})
	require.Error(t, err)
}

func TestWriterWritesEncodedTiles(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	c, err := codec.New(u8, codec.Zstd)
	require.NoError(err)

	w, err := NewWriter("/out/{z}/{x}/{y}.zst", c, tile.NewFSSink(fs), nil)
	require.NoError(err)

	raw := []byte{10, 20, 30, 40}
	require.NoError(w.WriteTile(context.Background(), tile.TileCoord{X: 4, Y: 5, Z: 1}, raw))

	data, err := afero.ReadFile(fs, "/out/1/4/5.zst")
	require.NoError(err)
	out, err := c.Decode(data)
	require.NoError(err)
	require.Equal(raw, out)
}

type failingSink struct{}

func (failingSink) Write(context.Context, string, []byte, string) error {
	return errors.New("disk full")
}

type recordingSink map[string]string

func (s recordingSink) Write(_ context.Context, resource string, _ []byte, contentType string) error {
	s[resource] = contentType
	return nil
}

func TestWriterSendsContentType(t *testing.T) {
	require := require.New(t)

	for comp, want := range map[codec.Compression]string{
		codec.PNG:  "image/png",
		codec.Zstd: "application/zstd",
		codec.Raw:  "application/octet-stream",
	} {
		c, err := codec.New(u8, comp)
		require.NoError(err)
		sink := recordingSink{}
		w, err := NewWriter("out/{z}/{x}/{y}", c, sink, nil)
		require.NoError(err)

		require.NoError(w.WriteTile(context.Background(), tile.TileCoord{X: 1}, []byte{1, 2, 3, 4}))
		require.Equal(want, sink["out/0/1/0"], comp)
	}
}

func TestWriterErrors(t *testing.T) {
	require := require.New(t)

	c, err := codec.New(u8, codec.Raw)
	require.NoError(err)
	w, err := NewWriter("/out/{z}/{x}/{y}", c, failingSink{}, nil)
	require.NoError(err)

	err = w.WriteTile(context.Background(), tile.TileCoord{}, []byte{1, 2, 3, 4})
	require.ErrorContains(err, "disk full")

	err = w.WriteTile(context.Background(), tile.TileCoord{}, []byte{1})
	require.ErrorIs(err, codec.ErrSizeMismatch)
}

func TestManifest(t *testing.T) {
	require := require.New(t)

	fs := afero.NewMemMapFs()
	require.NoError(afero.WriteFile(fs, "/manifest.json", []byte(`[[0,0,0],[1,0,0],{"x":1,"y":2,"z":0},[0,0,0]]`), 0o644))

	m, err := LoadManifest(context.Background(), tile.NewFSFetcher(fs), "/manifest.json")
	require.NoError(err)
	require.Equal(3, m.Len())
	require.Equal([]tile.TileCoord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 2}}, m.Coords())
	require.True(m.Has(tile.TileCoord{X: 1, Y: 2}))
	require.False(m.Has(tile.TileCoord{X: 2}))

	space := tile.NewSpace(tile.Pt(512, 512), tile.Point{})
	require.Equal(tile.Bounds(tile.Pt(0, 0), tile.Pt(1024, 1536)), m.PixelBounds(space))

	_, err = LoadManifest(context.Background(), tile.NewFSFetcher(fs), "/missing.json")
	require.ErrorIs(err, ErrFetch)

	_, err = ParseManifest([]byte(`{"not": "a list"}`))
	require.Error(err)
}
