package render

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

func sampleRaster(w, h int) *layer.Raster {
	r := &layer.Raster{Width: w, Height: h, Data: make([]float64, w*h), DType: wrg.Float32}
	for i := range r.Data {
		r.Data[i] = float64(i)
	}
	return r
}

func TestRender_PNGWidthFollowsFigureAndDPI(t *testing.T) {
	data, err := Render(sampleRaster(6, 4), Extent{Left: 0, Right: 600, Bottom: 0, Top: 400}, DefaultOptions())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	b := img.Bounds()
	// 6.4 inches at 130 dpi; the height follows the 3:2 extent.
	assert.InDelta(t, 832, b.Dx(), 1)
	assert.Less(t, b.Dy(), 624)
	assert.Greater(t, b.Dy(), 300)
}

// heatmapBox returns the bounding box of saturated pixels left of the
// colour bar. Axes, labels and background are grey.
func heatmapBox(img image.Image) image.Rectangle {
	b := img.Bounds()
	limit := b.Max.X - int(DPI*barWidth/vg.Inch)
	box := image.Rectangle{Min: b.Max, Max: b.Min}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < limit; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			hi := max(r, g, bl) >> 8
			lo := min(r, g, bl) >> 8
			if hi-lo < 40 {
				continue
			}
			box.Min.X, box.Min.Y = min(box.Min.X, x), min(box.Min.Y, y)
			box.Max.X, box.Max.Y = max(box.Max.X, x+1), max(box.Max.Y, y+1)
		}
	}
	return box
}

func TestRender_CellsStaySquare(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		ext    Extent
		aspect float64
	}{
		{"wide", 40, 4, Extent{Left: 0, Right: 4000, Bottom: 0, Top: 400}, 10},
		{"square", 5, 5, Extent{Left: 0, Right: 500, Bottom: 0, Top: 500}, 1},
		{"tall", 3, 6, Extent{Left: 0, Right: 300, Bottom: 0, Top: 600}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Render(sampleRaster(tt.w, tt.h), tt.ext, DefaultOptions())
			require.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)

			box := heatmapBox(img)
			require.False(t, box.Empty())
			got := float64(box.Dx()) / float64(box.Dy())
			assert.InEpsilon(t, tt.aspect, got, 0.05, "heatmap box %v in %v", box, img.Bounds())
		})
	}
}

func TestFigureSize(t *testing.T) {
	p := plot.New()
	p.X.Min, p.X.Max = 0, 100
	p.Y.Min, p.Y.Max = 0, 100
	w, h := 6.4*vg.Inch, 4.8*vg.Inch

	// Degenerate extents keep the requested size.
	gw, gh := figureSize(p, Extent{Left: 0, Right: 0, Bottom: 0, Top: 1}, w, h)
	assert.Equal(t, w, gw)
	assert.Equal(t, h, gh)

	// A very tall extent is capped at twice the height and narrows instead.
	gw, gh = figureSize(p, Extent{Left: 0, Right: 1, Bottom: 0, Top: 100}, w, h)
	assert.InDelta(t, float64(2*h), float64(gh), 1e-6)
	assert.Less(t, gw, w)

	// A very wide one keeps the width and gets a short figure.
	gw, gh = figureSize(p, Extent{Left: 0, Right: 100, Bottom: 0, Top: 1}, w, h)
	assert.InDelta(t, float64(w), float64(gw), 1e-6)
	assert.Less(t, gh, h/2)
}

func TestRender_Palettes(t *testing.T) {
	for _, name := range Palettes() {
		opts := DefaultOptions()
		opts.Palette = name
		opts.Title = "Elevation"
		opts.Label = "m"
		_, err := Render(sampleRaster(3, 3), Extent{0, 3, 0, 3}, opts)
		assert.NoError(t, err, name)
	}

	opts := DefaultOptions()
	opts.Palette = "rainbow"
	_, err := Render(sampleRaster(3, 3), Extent{0, 3, 0, 3}, opts)
	assert.True(t, errors.Is(err, ErrUnknownPalette))
}

func TestRender_FlatAndNaNRasters(t *testing.T) {
	flat := &layer.Raster{Width: 2, Height: 2, Data: []float64{5, 5, 5, 5}}
	_, err := Render(flat, Extent{0, 2, 0, 2}, DefaultOptions())
	assert.NoError(t, err)

	nan := math.NaN()
	allNaN := &layer.Raster{Width: 2, Height: 1, Data: []float64{nan, nan}}
	_, err = Render(allNaN, Extent{0, 2, 0, 1}, DefaultOptions())
	assert.NoError(t, err)
}

func TestRender_Empty(t *testing.T) {
	_, err := Render(&layer.Raster{}, Extent{}, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptyRaster))
	_, err = Render(nil, Extent{}, DefaultOptions())
	assert.True(t, errors.Is(err, ErrEmptyRaster))
}

func TestRasterGrid_LowerLeftOrigin(t *testing.T) {
	g := rasterGrid{r: sampleRaster(4, 2), x0: 100, dx: 10, y0: 50, dy: 20}
	c, r := g.Dims()
	assert.Equal(t, 4, c)
	assert.Equal(t, 2, r)
	assert.Equal(t, 105.0, g.X(0))
	assert.Equal(t, 135.0, g.X(3))
	// Row 0 is the bottom of the extent.
	assert.Equal(t, 60.0, g.Y(0))
	assert.Equal(t, 80.0, g.Y(1))
	assert.Equal(t, 5.0, g.Z(1, 1))
}

func TestEmbedHTML(t *testing.T) {
	data, err := Render(sampleRaster(2, 2), Extent{0, 2, 0, 2}, DefaultOptions())
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)

	html, err := EmbedHTML(data)
	require.NoError(t, err)
	s := string(html)
	assert.True(t, strings.HasPrefix(s, `<img src="data:image/png;base64,`))
	assert.Contains(t, s, `width="`+strconv.Itoa(cfg.Width)+`"`)
	assert.Contains(t, s, `height="`+strconv.Itoa(cfg.Height)+`"`)

	_, err = EmbedHTML([]byte("not a png"))
	assert.Error(t, err)
}

func TestColorMap_ViridisEndpoints(t *testing.T) {
	cm, err := ColorMap("viridis")
	require.NoError(t, err)
	cm.SetMin(0)
	cm.SetMax(1)
	lo, err := cm.At(0)
	require.NoError(t, err)
	hi, err := cm.At(1)
	require.NoError(t, err)
	_, _, blo, _ := lo.RGBA()
	_, ghi, _, _ := hi.RGBA()
	// Dark purple at the bottom, bright yellow at the top.
	assert.Greater(t, ghi, blo)
}
