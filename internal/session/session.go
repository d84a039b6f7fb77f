// Package session holds per-user viewer state as an explicit state machine.
//
// A Session starts in NoFile. Upload moves it to Loaded with the default
// selection; every later interaction is a single transition that drops only
// the derived artefacts (rendered image, GeoTIFF export, default file name)
// that depend on what changed.
package session

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/geotiff"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/monitoring"
	"github.com/banshee-data/wrg-explorer/internal/render"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

var logf = monitoring.Prefixed("[session] ")

var (
	// ErrNoFile is returned by every operation except Upload while no grid
	// is loaded.
	ErrNoFile = errors.New("no file loaded")
	// ErrNotFound is returned by Store.Get for unknown or expired ids.
	ErrNotFound = errors.New("session not found")
	// ErrNotDirectional is returned when a sector is chosen for a variable
	// without a sector axis.
	ErrNotDirectional = errors.New("variable has no sector axis")
)

// State is the state machine's position.
type State int

const (
	NoFile State = iota
	Loaded
)

func (s State) String() string {
	if s == Loaded {
		return "loaded"
	}
	return "no_file"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Selection is the chosen variable and, for directional variables, sector.
type Selection struct {
	Variable layer.Variable `json:"variable"`
	Sector   int            `json:"sector"`
}

// Options are the rendering and export settings shared by a store's
// sessions.
type Options struct {
	Render      render.Options
	Compression geotiff.Compression
}

// Stats counts how often derived artefacts were computed.
type Stats struct {
	Renders int `json:"renders"`
	Exports int `json:"exports"`
}

// Session is one viewer's state. All methods are safe for concurrent use;
// transitions on one session are serialised.
type Session struct {
	ID      string
	Created time.Time

	opts Options

	mu       sync.Mutex
	lastSeen time.Time
	state    State
	grid     *wrg.Grid
	source   string
	sel      Selection
	crs      *crs.Entry
	filename string
	userName bool
	image    []byte
	export   []byte
	stats    Stats
}

func newSession(id string, now time.Time, opts Options) *Session {
	return &Session{ID: id, Created: now, lastSeen: now, opts: opts}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Upload decodes a WRG file and, on success, replaces the loaded grid and
// resets the selection, CRS and file name. A malformed file leaves the
// session unchanged.
func (s *Session) Upload(name string, r io.Reader) error {
	g, err := wrg.Decode(r)
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	s.Load(name, g)
	return nil
}

// Load installs an already decoded grid, as Upload does.
func (s *Session) Load(name string, g *wrg.Grid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Loaded
	s.grid = g
	s.source = name
	s.sel = Selection{}
	s.crs = nil
	s.userName = false
	s.invalidate()
	logf("%s loaded %s: %dx%d, %d sectors", s.ID, name, g.NX, g.NY, g.NSectors)
}

// invalidate drops the image and export and recomputes the default file
// name unless the user has set one. Callers hold mu.
func (s *Session) invalidate() {
	s.image = nil
	s.export = nil
	if !s.userName {
		s.filename = layer.DefaultFilename(s.sel.Variable, s.sel.Sector)
	}
}

// SelectVariable switches the variable. The current sector is kept when it
// is valid for the new variable and reset to 0 otherwise.
func (s *Session) SelectVariable(v layer.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return ErrNoFile
	}
	sector := s.sel.Sector
	if !layer.SectorRange(s.grid, v).Contains(sector) {
		sector = 0
	}
	return s.selectLocked(Selection{Variable: v, Sector: sector})
}

// SelectSector picks the sector of the current directional variable.
func (s *Session) SelectSector(sector int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return ErrNoFile
	}
	if !s.sel.Variable.Directional() {
		return fmt.Errorf("%s: %w", s.sel.Variable.Label(), ErrNotDirectional)
	}
	return s.selectLocked(Selection{Variable: s.sel.Variable, Sector: sector})
}

// Select applies variable and sector together. The sector is ignored for
// non-directional variables.
func (s *Session) Select(sel Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return ErrNoFile
	}
	if !sel.Variable.Directional() {
		sel.Sector = 0
	}
	return s.selectLocked(sel)
}

func (s *Session) selectLocked(sel Selection) error {
	v := sel.Variable
	if !v.Valid() {
		return fmt.Errorf("%w: %d", layer.ErrUnknownVariable, int(v))
	}
	if v.Directional() {
		if s.grid.NSectors == 0 {
			return fmt.Errorf("%s: %w", v.Label(), layer.ErrNoSectors)
		}
		if r := layer.SectorRange(s.grid, v); !r.Contains(sel.Sector) {
			return fmt.Errorf("%w: %d not in [%d, %d)", layer.ErrSectorRange, sel.Sector, r.Min, r.Max)
		}
	}
	if sel == s.sel {
		return nil
	}
	s.sel = sel
	s.userName = false
	s.invalidate()
	return nil
}

// SelectCRS sets the reference system written into exports. nil clears
// it. Only the export depends on the CRS.
func (s *Session) SelectCRS(e *crs.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return ErrNoFile
	}
	if sameCRS(s.crs, e) {
		return nil
	}
	if e != nil {
		c := *e
		e = &c
	}
	s.crs = e
	s.export = nil
	return nil
}

func sameCRS(a, b *crs.Entry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Key() == b.Key()
}

// EditFilename replaces the download file name. An empty name restores the
// default for the current selection. Nothing is recomputed.
func (s *Session) EditFilename(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return ErrNoFile
	}
	if name == "" {
		s.userName = false
		s.filename = layer.DefaultFilename(s.sel.Variable, s.sel.Sector)
		return nil
	}
	s.userName = true
	s.filename = name
	return nil
}

// Grid returns the loaded grid.
func (s *Session) Grid() (*wrg.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return nil, ErrNoFile
	}
	return s.grid, nil
}

// Attributes returns the attribute table of the loaded grid.
func (s *Session) Attributes() ([]Attribute, error) {
	g, err := s.Grid()
	if err != nil {
		return nil, err
	}
	return Attributes(g), nil
}

// Image returns the PNG of the current selection, rendering it on first
// use after a change.
func (s *Session) Image() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return nil, ErrNoFile
	}
	if s.image != nil {
		return s.image, nil
	}
	r, err := layer.Extract(s.grid, s.sel.Variable, s.sel.Sector)
	if err != nil {
		return nil, err
	}
	opts := s.opts.Render
	opts.Title = title(s.sel)
	opts.Label = s.sel.Variable.Unit()
	left, right, bottom, top := s.grid.Extent()
	png, err := render.Render(r, render.Extent{Left: left, Right: right, Bottom: bottom, Top: top}, opts)
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", opts.Title, err)
	}
	s.image = png
	s.stats.Renders++
	return png, nil
}

// ImageHTML returns the current image as an embeddable <img> element.
func (s *Session) ImageHTML() (template.HTML, error) {
	png, err := s.Image()
	if err != nil {
		return "", err
	}
	return render.EmbedHTML(png)
}

// Export returns the GeoTIFF of the current selection and its file name.
func (s *Session) Export() (data []byte, filename string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Loaded {
		return nil, "", ErrNoFile
	}
	if s.export != nil {
		return s.export, s.filename, nil
	}
	b, err := GeoTIFF(s.grid, s.sel, s.crs, s.opts.Compression)
	if err != nil {
		return nil, "", fmt.Errorf("exporting %s: %w", s.filename, err)
	}
	s.export = b
	s.stats.Exports++
	return b, s.filename, nil
}

// GeoTIFF encodes the selected layer of g, georeferenced by the grid's
// cell edges and tagged with e when it is non-nil.
func GeoTIFF(g *wrg.Grid, sel Selection, e *crs.Entry, comp geotiff.Compression) ([]byte, error) {
	r, err := layer.Extract(g, sel.Variable, sel.Sector)
	if err != nil {
		return nil, err
	}
	left, _, _, top := g.Extent()
	return geotiff.Bytes(r, geotiff.Options{
		Transform:   geotiff.GridTransform(left, top, g.CellSize),
		CRS:         geoCRS(e),
		Compression: comp,
	})
}

// Stats returns the render and export counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func title(sel Selection) string {
	if sel.Variable.Directional() {
		return fmt.Sprintf("%s, sector %d", sel.Variable.Label(), sel.Sector)
	}
	return sel.Variable.Label()
}

// geoCRS converts a catalogue entry into the GeoKey description.
func geoCRS(e *crs.Entry) *geotiff.CRS {
	if e == nil {
		return nil
	}
	c := &geotiff.CRS{AuthName: e.AuthName, Code: e.Code}
	switch e.Type {
	case crs.Projected:
		c.Model = geotiff.ModelProjected
	case crs.Geographic2D, crs.Geographic3D:
		c.Model = geotiff.ModelGeographic
	case crs.Geocentric:
		c.Model = geotiff.ModelGeocentric
	default:
		c.Model = geotiff.ModelUserDefined
	}
	return c
}
