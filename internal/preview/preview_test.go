package preview

import (
	"bytes"
	"image/color"
	"image/png"
	"testing"

	"github.com/gen2brain/webp"
	"github.com/stretchr/testify/require"

	"github.com/kiesman99/retile/internal/pixel"
	"github.com/kiesman99/retile/pkg/tile"
)

func TestColorMapEndpoints(t *testing.T) {
	require := require.New(t)

	for _, s := range []float64{-3, 0} {
		c := ColorMap(s)
		require.Equal(0.0, c.R+c.G+c.B, "scalar %g", s)
	}
	for _, s := range []float64{1, 12} {
		c := ColorMap(s)
		require.Equal(3.0, c.R+c.G+c.B, "scalar %g", s)
	}
}

func TestColorMapStops(t *testing.T) {
	require := require.New(t)

	c := ColorMap(0.22)
	require.InDelta(0.0, c.R, 1e-9)
	require.InDelta(24.0/255, c.G, 1e-9)
	require.InDelta(168.0/255, c.B, 1e-9)

	// halfway between the red and orange stops
	c = ColorMap(0.56)
	require.InDelta((220.0+255.0)/2/255, c.R, 1e-9)
	require.InDelta((20.0+117.0)/2/255, c.G, 1e-9)
	require.InDelta((60.0+56.0)/2/255, c.B, 1e-9)
}

func TestColorizeSigned16(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(3, 1), Encoding: pixel.SRTM()}
	k, err := f.Encoding.Kernel()
	require.NoError(err)
	raw := make([]byte, f.RawSize())
	for i, v := range []int64{-500, 0, 400} {
		k.Store(raw, i, v)
	}

	img, err := Colorize(raw, f, 0, 400)
	require.NoError(err)
	require.Equal(color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(0, 0))
	require.Equal(color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(1, 0))
	require.Equal(color.NRGBA{255, 255, 255, 255}, img.NRGBAAt(2, 0))
}

func TestColorizeUsesFirstChannel(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(2, 1), Encoding: pixel.Encoding{BitDepth: 8, Channels: 2}}
	img, err := Colorize([]byte{255, 0, 0, 255}, f, 0, 255)
	require.NoError(err)
	require.Equal(color.NRGBA{255, 255, 255, 255}, img.NRGBAAt(0, 0))
	require.Equal(color.NRGBA{0, 0, 0, 255}, img.NRGBAAt(1, 0))
}

func TestColorizeErrors(t *testing.T) {
	f := pixel.Format{Size: tile.Pt(2, 2), Encoding: pixel.SRTM()}

	_, err := Colorize(make([]byte, 8), f, 10, 10)
	require.ErrorIs(t, err, ErrRange)

	_, err = Colorize(make([]byte, 7), f, 0, 10)
	require.Error(t, err)
}

func TestRender(t *testing.T) {
	require := require.New(t)

	f := pixel.Format{Size: tile.Pt(16, 8), Encoding: pixel.Encoding{BitDepth: 8, Channels: 1}}
	raw := make([]byte, f.RawSize())
	for i := range raw {
		raw[i] = byte(i * 2)
	}

	data, err := Render(raw, f, 0, 255, PNG)
	require.NoError(err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(err)
	require.Equal(16, img.Bounds().Dx())
	require.Equal(8, img.Bounds().Dy())

	data, err = Render(raw, f, 0, 255, WebP)
	require.NoError(err)
	img, err = webp.Decode(bytes.NewReader(data))
	require.NoError(err)
	require.Equal(16, img.Bounds().Dx())

	_, err = Render(raw, f, 0, 255, Output("gif"))
	require.Error(err)
}

func TestParseOutput(t *testing.T) {
	o, err := ParseOutput("")
	require.NoError(t, err)
	require.Equal(t, PNG, o)

	o, err = ParseOutput("webp")
	require.NoError(t, err)
	require.Equal(t, "image/webp", o.ContentType())

	_, err = ParseOutput("jpeg")
	require.Error(t, err)
}
