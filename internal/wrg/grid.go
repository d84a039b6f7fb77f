// Package wrg reads and writes WAsP resource grid (WRG) files.
//
// A WRG file describes a regular grid of points. Each point carries the
// terrain elevation, the height above ground the statistics refer to, the
// all-sector Weibull parameters and, per direction sector, the sector
// frequency and Weibull parameters. Grid exposes these as flat arrays laid
// out row-major with row 0 at the bottom (smallest y) of the grid.
package wrg

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// DType names the numeric type a Grid stores its values in.
type DType string

const (
	Float32 DType = "float32"
	Float64 DType = "float64"
)

// Size returns the size in bytes of one value of the type, or 0 when the
// type is unknown.
func (d DType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// Grid is a decoded resource grid.
type Grid struct {
	NX, NY   int
	NSectors int

	// XMin and YMin locate the centre of the lower-left grid point.
	XMin, YMin float64
	CellSize   float64

	names  []string
	elev   []float32
	height []float32
	a, k   []float32
	power  []float32

	// Per sector values, cell-major with the sector index varying fastest.
	freq   []float32
	sa, sk []float32
}

// NewGrid allocates an empty grid. All values start at zero and point
// names are empty.
func NewGrid(nx, ny, nsectors int, xmin, ymin, cellSize float64) *Grid {
	n := nx * ny
	return &Grid{
		NX:       nx,
		NY:       ny,
		NSectors: nsectors,
		XMin:     xmin,
		YMin:     ymin,
		CellSize: cellSize,
		names:    make([]string, n),
		elev:     make([]float32, n),
		height:   make([]float32, n),
		a:        make([]float32, n),
		k:        make([]float32, n),
		power:    make([]float32, n),
		freq:     make([]float32, n*nsectors),
		sa:       make([]float32, n*nsectors),
		sk:       make([]float32, n*nsectors),
	}
}

// Point is the content of one grid record in physical units.
type Point struct {
	Name         string
	Elevation    float64
	Height       float64
	A, K         float64
	PowerDensity float64

	// Freq is in percent, SectorA in m/s. All three have NSectors entries.
	Freq    []float64
	SectorA []float64
	SectorK []float64
}

// DType returns the type the grid values are stored in.
func (g *Grid) DType() DType { return Float32 }

// Len returns the number of grid points.
func (g *Grid) Len() int { return g.NX * g.NY }

// Index returns the flat index of column ix and row iy.
func (g *Grid) Index(ix, iy int) int { return iy*g.NX + ix }

// Coord returns the centre coordinate of column ix and row iy.
func (g *Grid) Coord(ix, iy int) (x, y float64) {
	return g.XMin + float64(ix)*g.CellSize, g.YMin + float64(iy)*g.CellSize
}

// Extent returns the outer edges of the grid cells as left, right, bottom
// and top.
func (g *Grid) Extent() (left, right, bottom, top float64) {
	half := g.CellSize / 2
	left = g.XMin - half
	bottom = g.YMin - half
	right = left + float64(g.NX)*g.CellSize
	top = bottom + float64(g.NY)*g.CellSize
	return left, right, bottom, top
}

// HubHeight returns the height above ground of the grid statistics. WRG
// files carry one height for all points, so the first point is reported.
func (g *Grid) HubHeight() float64 {
	if len(g.height) == 0 {
		return 0
	}
	return float64(g.height[0])
}

// SetPoint stores p at column ix and row iy.
func (g *Grid) SetPoint(ix, iy int, p Point) {
	i := g.Index(ix, iy)
	g.names[i] = p.Name
	g.elev[i] = float32(p.Elevation)
	g.height[i] = float32(p.Height)
	g.a[i] = float32(p.A)
	g.k[i] = float32(p.K)
	g.power[i] = float32(p.PowerDensity)
	base := i * g.NSectors
	for s := 0; s < g.NSectors; s++ {
		g.freq[base+s] = float32(p.Freq[s])
		g.sa[base+s] = float32(p.SectorA[s])
		g.sk[base+s] = float32(p.SectorK[s])
	}
}

// Point returns the record at column ix and row iy.
func (g *Grid) Point(ix, iy int) Point {
	i := g.Index(ix, iy)
	p := Point{
		Name:         g.names[i],
		Elevation:    float64(g.elev[i]),
		Height:       float64(g.height[i]),
		A:            float64(g.a[i]),
		K:            float64(g.k[i]),
		PowerDensity: float64(g.power[i]),
		Freq:         make([]float64, g.NSectors),
		SectorA:      make([]float64, g.NSectors),
		SectorK:      make([]float64, g.NSectors),
	}
	base := i * g.NSectors
	for s := 0; s < g.NSectors; s++ {
		p.Freq[s] = float64(g.freq[base+s])
		p.SectorA[s] = float64(g.sa[base+s])
		p.SectorK[s] = float64(g.sk[base+s])
	}
	return p
}

func widen(src []float32) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

// Elev returns the terrain elevation of every point.
func (g *Grid) Elev() []float64 { return widen(g.elev) }

// GlobalScale returns the all-sector Weibull A parameter in m/s.
func (g *Grid) GlobalScale() []float64 { return widen(g.a) }

// GlobalShape returns the all-sector Weibull k parameter.
func (g *Grid) GlobalShape() []float64 { return widen(g.k) }

// PowerDensity returns the mean power density in W/m².
func (g *Grid) PowerDensity() []float64 { return widen(g.power) }

// GlobalSpeed returns the all-sector mean wind speed in m/s.
func (g *Grid) GlobalSpeed() []float64 { return meanSpeeds(g.a, g.k) }

// Scale returns the per sector Weibull A parameter in m/s.
func (g *Grid) Scale() []float64 { return widen(g.sa) }

// Shape returns the per sector Weibull k parameter.
func (g *Grid) Shape() []float64 { return widen(g.sk) }

// Freq returns the per sector frequency in percent.
func (g *Grid) Freq() []float64 { return widen(g.freq) }

// Speed returns the per sector mean wind speed in m/s.
func (g *Grid) Speed() []float64 { return meanSpeeds(g.sa, g.sk) }

func meanSpeeds(a, k []float32) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = MeanSpeed(float64(a[i]), float64(k[i]))
	}
	return out
}

// MeanSpeed returns the mean of a Weibull distribution with scale a and
// shape k. Parameters outside the distribution's domain give NaN.
func MeanSpeed(a, k float64) float64 {
	if !(k > 0) || a < 0 || math.IsNaN(a) {
		return math.NaN()
	}
	return distuv.Weibull{K: k, Lambda: a}.Mean()
}
