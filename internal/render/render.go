// Package render draws rasters as colour-mapped PNG images.
package render

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/color"
	_ "image/png"
	"math"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/wrg-explorer/internal/layer"
)

// DPI is the resolution images are rendered at.
const DPI = 130

var (
	ErrEmptyRaster    = errors.New("raster has no cells")
	ErrUnknownPalette = errors.New("unknown palette")
)

// Extent is the geographic rectangle the raster covers.
type Extent struct {
	Left, Right, Bottom, Top float64
}

// Options controls the figure.
type Options struct {
	// Palette is one of Palettes(); empty selects viridis.
	Palette string
	Width   vg.Length
	// Height is nominal: the figure height follows the extent and is at
	// most twice this.
	Height vg.Length
	Title  string
	// Label is drawn next to the colour bar.
	Label string
}

// DefaultOptions returns a 6.4 inch wide figure, at most 9.6 inches tall,
// with the viridis palette.
func DefaultOptions() Options {
	return Options{
		Palette: "viridis",
		Width:   6.4 * vg.Inch,
		Height:  4.8 * vg.Inch,
	}
}

// viridis control points, darkest first.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Palettes lists the accepted palette names.
func Palettes() []string {
	return []string{"viridis", "moreland", "blackbody", "kindlmann"}
}

// ColorMap returns a fresh colour map for name.
func ColorMap(name string) (palette.ColorMap, error) {
	switch strings.ToLower(name) {
	case "", "viridis":
		controls := make([]color.Color, len(viridis))
		for i, hex := range viridis {
			controls[i] = parseHex(hex)
		}
		return moreland.NewLuminance(controls)
	case "moreland":
		return moreland.SmoothBlueRed(), nil
	case "blackbody":
		return moreland.BlackBody(), nil
	case "kindlmann":
		return moreland.Kindlmann(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPalette, name)
}

func parseHex(s string) color.Color {
	var r, g, b uint8
	fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}
}

// rasterGrid adapts a raster to plotter.GridXYZ with cell centres spread
// evenly over the extent. Row 0 is the bottom row.
type rasterGrid struct {
	r      *layer.Raster
	x0, dx float64
	y0, dy float64
}

func (g rasterGrid) Dims() (c, r int)   { return g.r.Width, g.r.Height }
func (g rasterGrid) Z(c, r int) float64 { return g.r.At(c, r) }
func (g rasterGrid) X(c int) float64    { return g.x0 + (float64(c)+0.5)*g.dx }
func (g rasterGrid) Y(r int) float64    { return g.y0 + (float64(r)+0.5)*g.dy }

// heatMap drops the per-cell glyph boxes so the data area stays flush with
// the extent instead of being padded around edge cell centres.
type heatMap struct{ *plotter.HeatMap }

func (heatMap) GlyphBoxes(*plot.Plot) []plot.GlyphBox { return nil }

// barWidth is the strip reserved for the colour bar and its labels.
const barWidth = vg.Inch

// minDataSide keeps very elongated extents from collapsing the heatmap.
const minDataSide = vg.Inch / 4

// figureSize returns the canvas size that gives p's data area the aspect
// ratio of ext, so cells are drawn square. The width is kept and the height
// follows the extent; extents taller than twice the requested height shrink
// the width instead.
func figureSize(p *plot.Plot, ext Extent, width, height vg.Length) (vg.Length, vg.Length) {
	aspect := (ext.Top - ext.Bottom) / (ext.Right - ext.Left)
	if !(aspect > 0) || math.IsInf(aspect, 0) {
		return width, height
	}
	// Axis padding depends on the tick labels, not the canvas size, so one
	// measurement at the requested size is enough.
	da := p.DataCanvas(draw.Canvas{Rectangle: vg.Rectangle{Max: vg.Point{X: width - barWidth, Y: height}}})
	dataW, dataH := da.Max.X-da.Min.X, da.Max.Y-da.Min.Y
	if dataW <= 0 || dataH <= 0 {
		return width, height
	}
	padX, padY := width-dataW, height-dataH

	dataH = dataW * vg.Length(aspect)
	if maxH := 2*height - padY; dataH > maxH {
		dataH = maxH
		dataW = dataH / vg.Length(aspect)
	}
	dataW = max(dataW, minDataSide)
	dataH = max(dataH, minDataSide)
	return dataW + padX, dataH + padY
}

// Render draws r as a heatmap anchored to ext, with a vertical colour bar
// on the right, and returns the PNG encoding. NaN cells are transparent.
// opts.Width is the figure width; the height is derived from the extent so
// cells keep their geographic aspect, and opts.Height bounds it.
func Render(r *layer.Raster, ext Extent, opts Options) ([]byte, error) {
	if r == nil || r.Width == 0 || r.Height == 0 {
		return nil, ErrEmptyRaster
	}
	if opts.Width == 0 || opts.Height == 0 {
		def := DefaultOptions()
		opts.Width, opts.Height = def.Width, def.Height
	}

	cm, err := ColorMap(opts.Palette)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := r.Range()
	if !ok {
		lo, hi = 0, 1
	}
	if hi <= lo {
		// A flat raster still needs a non-empty colour scale.
		lo, hi = lo-0.5, hi+0.5
	}
	cm.SetMin(lo)
	cm.SetMax(hi)

	grid := rasterGrid{
		r:  r,
		x0: ext.Left, dx: (ext.Right - ext.Left) / float64(r.Width),
		y0: ext.Bottom, dy: (ext.Top - ext.Bottom) / float64(r.Height),
	}
	hm := plotter.NewHeatMap(grid, cm.Palette(255))
	hm.Min, hm.Max = lo, hi
	hm.NaN = color.Transparent
	hm.Rasterized = true

	p := plot.New()
	p.Title.Text = opts.Title
	p.Add(heatMap{hm})
	p.X.Min, p.X.Max = ext.Left, ext.Right
	p.Y.Min, p.Y.Max = ext.Bottom, ext.Top

	bar := plot.New()
	bar.HideX()
	bar.Y.Label.Text = opts.Label
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true, Colors: 255})
	bar.Y.Min, bar.Y.Max = lo, hi
	if opts.Title != "" {
		// Keep the bar aligned with the heatmap below the title.
		bar.Title.Text = " "
	}

	width, height := figureSize(p, ext, opts.Width, opts.Height)
	canvas := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(DPI))
	dc := draw.New(canvas)
	p.Draw(draw.Crop(dc, 0, -barWidth, 0, 0))
	bar.Draw(draw.Crop(dc, width-barWidth, 0, 0, 0))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EmbedHTML returns an <img> element carrying png as a data URI. The
// element's width and height are the image's pixel size, so browsers show
// it unscaled.
func EmbedHTML(png []byte) (template.HTML, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
	if err != nil {
		return "", fmt.Errorf("decode png header: %w", err)
	}
	return template.HTML(fmt.Sprintf(
		`<img src="data:image/png;base64,%s" width="%d" height="%d" alt="raster">`,
		base64.StdEncoding.EncodeToString(png), cfg.Width, cfg.Height)), nil
}
