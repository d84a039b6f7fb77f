package session

import (
	"fmt"
	"strconv"

	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// Attribute is one row of the attribute table. Value keeps the typed value
// for JSON clients and Text its display form.
type Attribute struct {
	Label string `json:"label"`
	Value any    `json:"value"`
	Text  string `json:"text"`
}

// Attributes summarises g: hub height, width, height, sector count, cell
// size and the extent as a single [left, right, bottom, top] value.
func Attributes(g *wrg.Grid) []Attribute {
	l, r, b, t := g.Extent()
	extent := [4]float64{l, r, b, t}
	return []Attribute{
		{Label: "Hub height", Value: g.HubHeight(), Text: num(g.HubHeight())},
		{Label: "Width", Value: g.NX, Text: strconv.Itoa(g.NX)},
		{Label: "Height", Value: g.NY, Text: strconv.Itoa(g.NY)},
		{Label: "Number of sectors", Value: g.NSectors, Text: strconv.Itoa(g.NSectors)},
		{Label: "Cell size", Value: g.CellSize, Text: num(g.CellSize)},
		{Label: "Left, right, bottom, top", Value: extent, Text: fmt.Sprintf("[%s, %s, %s, %s]", num(l), num(r), num(b), num(t))},
	}
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// View is a read-only snapshot of a session for the page and /api/state.
type View struct {
	ID          string         `json:"id"`
	State       State          `json:"state"`
	Source      string         `json:"source,omitempty"`
	Selection   Selection      `json:"selection"`
	Directional bool           `json:"directional"`
	Sectors     layer.Range    `json:"sectors"`
	CRS         *crs.Entry     `json:"crs,omitempty"`
	Filename    string         `json:"filename,omitempty"`
	Attributes  []Attribute    `json:"attributes,omitempty"`
	Options     []layer.Option `json:"options,omitempty"`
	Stats       Stats          `json:"stats"`
}

// View returns a consistent snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{ID: s.ID, State: s.state, Stats: s.stats}
	if s.state != Loaded {
		return v
	}
	v.Source = s.source
	v.Selection = s.sel
	v.Directional = s.sel.Variable.Directional()
	v.Sectors = layer.SectorRange(s.grid, s.sel.Variable)
	if s.crs != nil {
		c := *s.crs
		v.CRS = &c
	}
	v.Filename = s.filename
	v.Attributes = Attributes(s.grid)
	v.Options = layer.Options(s.grid)
	return v
}
