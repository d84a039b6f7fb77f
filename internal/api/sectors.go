package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wrg-explorer/internal/httputil"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/units"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// echartsAssetsHost serves the echarts scripts referenced by chart pages.
const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// SectorProfile is the per-sector wind climate of one cell, or the grid
// average when Cell is nil. Sectors without a usable Weibull fit report a
// speed of 0.
type SectorProfile struct {
	Cell      *[2]int   `json:"cell,omitempty"`
	Units     string    `json:"units"`
	Direction []float64 `json:"direction"`
	Frequency []float64 `json:"frequency"`
	Speed     []float64 `json:"speed"`
}

// sectorProfile averages frequency and mean speed per sector over the grid,
// or takes them from cell (ix, iy) when cell is non-nil.
func sectorProfile(g *wrg.Grid, cell *[2]int) SectorProfile {
	ns := g.NSectors
	p := SectorProfile{
		Cell:      cell,
		Units:     units.MPS,
		Direction: make([]float64, ns),
		Frequency: make([]float64, ns),
		Speed:     make([]float64, ns),
	}
	for s := 0; s < ns; s++ {
		p.Direction[s] = float64(s) * 360 / float64(ns)
	}
	if cell != nil {
		pt := g.Point(cell[0], cell[1])
		for s := 0; s < ns; s++ {
			p.Frequency[s] = pt.Freq[s]
			p.Speed[s] = finite(wrg.MeanSpeed(pt.SectorA[s], pt.SectorK[s]))
		}
		return p
	}

	freq, speed := g.Freq(), g.Speed()
	counts := make([]int, ns)
	for i := range freq {
		s := i % ns
		p.Frequency[s] += freq[i]
		if !math.IsNaN(speed[i]) {
			p.Speed[s] += speed[i]
			counts[s]++
		}
	}
	cells := float64(g.Len())
	for s := 0; s < ns; s++ {
		p.Frequency[s] /= cells
		if counts[s] > 0 {
			p.Speed[s] /= float64(counts[s])
		}
	}
	return p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// handleSectors renders the sector frequency and speed profile as an
// echarts page. ?ix=&iy= selects a cell, ?units= converts speeds and
// ?format=json returns the numbers.
func (s *Server) handleSectors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	g, err := s.session(w, r).Grid()
	if err != nil {
		writeError(w, err)
		return
	}
	if g.NSectors == 0 {
		writeError(w, layer.ErrNoSectors)
		return
	}

	var cell *[2]int
	q := r.URL.Query()
	if q.Has("ix") || q.Has("iy") {
		ix, errX := strconv.Atoi(q.Get("ix"))
		iy, errY := strconv.Atoi(q.Get("iy"))
		if errX != nil || errY != nil || ix < 0 || ix >= g.NX || iy < 0 || iy >= g.NY {
			httputil.BadRequest(w, fmt.Sprintf("cell must satisfy 0 <= ix < %d and 0 <= iy < %d", g.NX, g.NY))
			return
		}
		cell = &[2]int{ix, iy}
	}
	unit, err := units.Parse(q.Get("units"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	profile := sectorProfile(g, cell)
	profile.Units = unit
	for i, v := range profile.Speed {
		profile.Speed[i] = units.ConvertSpeed(v, unit)
	}
	if q.Get("format") == "json" {
		httputil.WriteJSONOK(w, profile)
		return
	}

	subtitle := fmt.Sprintf("grid average over %d cells", g.Len())
	if cell != nil {
		subtitle = fmt.Sprintf("cell ix=%d iy=%d", cell[0], cell[1])
	}
	labels := make([]string, g.NSectors)
	freq := make([]opts.BarData, g.NSectors)
	speed := make([]opts.LineData, g.NSectors)
	for i := range labels {
		labels[i] = strconv.FormatFloat(profile.Direction[i], 'f', -1, 64) + "°"
		freq[i] = opts.BarData{Value: round2(profile.Frequency[i])}
		speed[i] = opts.LineData{Value: round2(profile.Speed[i])}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sector profile", Width: "900px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Sector frequency", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", NameLocation: "middle", NameGap: 30}),
	)
	bar.SetXAxis(labels).AddSeries("frequency", freq,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Sector mean speed", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: units.Label(unit), NameLocation: "middle", NameGap: 30}),
	)
	line.SetXAxis(labels).AddSeries("speed", speed)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(bar, line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
