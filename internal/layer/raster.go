package layer

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

var (
	// ErrSectorRange is returned for a sector index outside [0, nsectors).
	ErrSectorRange = errors.New("sector out of range")
	// ErrNoSectors is returned when a directional variable is requested
	// from a grid without direction sectors.
	ErrNoSectors = errors.New("grid has no direction sectors")
)

// Raster is a 2-D array of Width x Height values stored row-major with row
// 0 at the bottom.
type Raster struct {
	Width, Height int
	Data          []float64
	DType         wrg.DType
}

// At returns the value at column col and row row.
func (r *Raster) At(col, row int) float64 { return r.Data[row*r.Width+col] }

// Row returns row i, bottom row first. The slice aliases Data.
func (r *Raster) Row(i int) []float64 { return r.Data[i*r.Width : (i+1)*r.Width] }

// Range returns the smallest and largest finite values. ok is false when
// the raster has none.
func (r *Raster) Range() (min, max float64, ok bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range r.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		min = math.Min(min, v)
		max = math.Max(max, v)
		ok = true
	}
	if !ok {
		return 0, 0, false
	}
	return min, max, true
}

// Range is a half open interval of sector indices.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Len returns the number of indices in the range.
func (r Range) Len() int { return r.Max - r.Min }

// Contains reports whether s lies in the range.
func (r Range) Contains(s int) bool { return s >= r.Min && s < r.Max }

// SectorRange returns the selectable sectors for v: [0, nsectors) for
// directional variables and an empty range otherwise.
func SectorRange(g *wrg.Grid, v Variable) Range {
	if !v.Directional() {
		return Range{}
	}
	return Range{Min: 0, Max: g.NSectors}
}

// Option describes one entry of the variable selector.
type Option struct {
	Variable    Variable `json:"variable"`
	Label       string   `json:"label"`
	Unit        string   `json:"unit,omitempty"`
	Directional bool     `json:"directional"`
	Enabled     bool     `json:"enabled"`
}

// Options lists all variables for g. Directional variables are disabled
// when the grid has no sectors.
func Options(g *wrg.Grid) []Option {
	out := make([]Option, 0, numVariables)
	for _, v := range All() {
		out = append(out, Option{
			Variable:    v,
			Label:       v.Label(),
			Unit:        v.Unit(),
			Directional: v.Directional(),
			Enabled:     !v.Directional() || g.NSectors > 0,
		})
	}
	return out
}

// Extract returns the raster for v. Directional variables take the slice
// at sector; the sector is ignored otherwise. The grid is never modified.
func Extract(g *wrg.Grid, v Variable, sector int) (*Raster, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariable, int(v))
	}
	if v.Directional() {
		if g.NSectors == 0 {
			return nil, fmt.Errorf("%s: %w", v.Label(), ErrNoSectors)
		}
		if r := SectorRange(g, v); !r.Contains(sector) {
			return nil, fmt.Errorf("%w: %d not in [%d, %d)", ErrSectorRange, sector, r.Min, r.Max)
		}
	}

	var data []float64
	switch v {
	case Elevation:
		data = g.Elev()
	case GlobalScale:
		data = g.GlobalScale()
	case GlobalShape:
		data = g.GlobalShape()
	case GlobalSpeed:
		data = g.GlobalSpeed()
	case DirectionalScale:
		data = sectorSlice(g.Scale(), g.NSectors, sector)
	case DirectionalShape:
		data = sectorSlice(g.Shape(), g.NSectors, sector)
	case DirectionalSpeed:
		data = sectorSlice(g.Speed(), g.NSectors, sector)
	case DirectionalFrequency:
		data = sectorSlice(g.Freq(), g.NSectors, sector)
	}
	return &Raster{Width: g.NX, Height: g.NY, Data: data, DType: g.DType()}, nil
}

func sectorSlice(cube []float64, nsectors, sector int) []float64 {
	out := make([]float64, len(cube)/nsectors)
	for i := range out {
		out[i] = cube[i*nsectors+sector]
	}
	return out
}
