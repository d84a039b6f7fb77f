package layer_test

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/testutil"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

func TestAll_FixedOrder(t *testing.T) {
	labels := make([]string, 0, 8)
	for _, v := range layer.All() {
		labels = append(labels, v.Label())
	}
	assert.Equal(t, []string{
		"Elevation",
		"Global scale",
		"Global shape",
		"Global speed",
		"Directional scale",
		"Directional shape",
		"Directional speed",
		"Directional frequency",
	}, labels)

	var zero layer.Variable
	assert.Equal(t, layer.Elevation, zero, "zero value must be the default option")
}

func TestVariable_Directional(t *testing.T) {
	for _, v := range layer.All() {
		want := v >= layer.DirectionalScale
		assert.Equal(t, want, v.Directional(), v.Label())
	}
	assert.False(t, layer.Variable(42).Directional())
}

func TestParse(t *testing.T) {
	tests := map[string]layer.Variable{
		"Elevation":             layer.Elevation,
		"global_speed":          layer.GlobalSpeed,
		"Directional Frequency": layer.DirectionalFrequency,
		"  directional   shape": layer.DirectionalShape,
	}
	for in, want := range tests {
		got, err := layer.Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := layer.Parse("turbulence")
	assert.True(t, errors.Is(err, layer.ErrUnknownVariable))
}

func TestVariable_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		V layer.Variable `json:"v"`
	}{layer.DirectionalSpeed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"directional_speed"}`, string(b))

	var out struct {
		V layer.Variable `json:"v"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"v":"Global shape"}`), &out))
	assert.Equal(t, layer.GlobalShape, out.V)
}

func TestDefaultFilename(t *testing.T) {
	assert.Equal(t, "elevation.tif", layer.DefaultFilename(layer.Elevation, 0))
	assert.Equal(t, "global_scale.tif", layer.DefaultFilename(layer.GlobalScale, 7))
	assert.Equal(t, "directional_speed_03.tif", layer.DefaultFilename(layer.DirectionalSpeed, 3))
	assert.Equal(t, "directional_frequency_11.tif", layer.DefaultFilename(layer.DirectionalFrequency, 11))
}

func TestExtract_ShapeForAllVariables(t *testing.T) {
	g := testutil.SampleGrid(5, 3, 12)
	for _, v := range layer.All() {
		r, err := layer.Extract(g, v, 4)
		require.NoError(t, err, v.Label())
		assert.Equal(t, 5, r.Width, v.Label())
		assert.Equal(t, 3, r.Height, v.Label())
		assert.Len(t, r.Data, 15, v.Label())
		assert.Equal(t, wrg.Float32, r.DType)
	}
}

func TestExtract_SectorSlice(t *testing.T) {
	g := testutil.SampleGrid(3, 2, 8)
	scale := g.Scale()
	for s := 0; s < g.NSectors; s++ {
		r, err := layer.Extract(g, layer.DirectionalScale, s)
		require.NoError(t, err)
		for i, v := range r.Data {
			assert.Equal(t, scale[i*g.NSectors+s], v, "cell %d sector %d", i, s)
		}
	}
}

func TestExtract_DirectionalSpeedIsWeibullMean(t *testing.T) {
	g := testutil.SampleGrid(2, 2, 4)
	r, err := layer.Extract(g, layer.DirectionalSpeed, 2)
	require.NoError(t, err)
	p := g.Point(1, 1)
	want := p.SectorA[2] * math.Gamma(1+1/p.SectorK[2])
	assert.InDelta(t, want, r.At(1, 1), 1e-9)
}

func TestExtract_SectorRangeErrors(t *testing.T) {
	g := testutil.SampleGrid(2, 2, 4)
	for _, s := range []int{-1, 4, 100} {
		_, err := layer.Extract(g, layer.DirectionalFrequency, s)
		assert.True(t, errors.Is(err, layer.ErrSectorRange), "sector %d: %v", s, err)
	}
	// Global variables ignore the sector.
	_, err := layer.Extract(g, layer.Elevation, 100)
	assert.NoError(t, err)

	_, err = layer.Extract(g, layer.Variable(99), 0)
	assert.True(t, errors.Is(err, layer.ErrUnknownVariable))
}

func TestExtract_NoSectors(t *testing.T) {
	g := testutil.SampleGrid(2, 2, 0)
	_, err := layer.Extract(g, layer.DirectionalSpeed, 0)
	assert.True(t, errors.Is(err, layer.ErrNoSectors))

	for _, opt := range layer.Options(g) {
		assert.Equal(t, !opt.Directional, opt.Enabled, opt.Label)
	}
}

func TestExtract_DoesNotMutateGrid(t *testing.T) {
	g := testutil.SampleGrid(3, 3, 4)
	before := g.Elev()
	r, err := layer.Extract(g, layer.Elevation, 0)
	require.NoError(t, err)
	for i := range r.Data {
		r.Data[i] = 0
	}
	assert.Equal(t, before, g.Elev())
	assert.Equal(t, 3, g.NX)
	assert.Equal(t, 3, g.NY)
}

func TestSectorRange(t *testing.T) {
	g := testutil.SampleGrid(2, 2, 12)
	r := layer.SectorRange(g, layer.DirectionalSpeed)
	assert.Equal(t, layer.Range{Min: 0, Max: 12}, r)
	assert.True(t, r.Contains(0))
	assert.True(t, r.Contains(11))
	assert.False(t, r.Contains(12))
	assert.Equal(t, 0, layer.SectorRange(g, layer.GlobalSpeed).Len())
}

func TestRaster_Range(t *testing.T) {
	r := &layer.Raster{Width: 2, Height: 2, Data: []float64{3, math.NaN(), -1, 7}}
	lo, hi, ok := r.Range()
	assert.True(t, ok)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 7.0, hi)

	empty := &layer.Raster{Width: 1, Height: 1, Data: []float64{math.NaN()}}
	_, _, ok = empty.Range()
	assert.False(t, ok)
}
