package wrg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed is returned for input that is not a valid WRG file.
var ErrMalformed = errors.New("wrg: malformed file")

// MaxPoints bounds the number of grid points Decode accepts.
const MaxPoints = 25_000_000

// Column widths of the fixed layout written by WAsP.
var recordWidths = [...]int{10, 10, 10, 8, 5, 5, 6, 15, 3}

const (
	recordHeadWidth = 72
	sectorWidth     = 13
)

// record is one parsed data line before it is placed on the grid.
type record struct {
	x, y  float64
	point Point
}

func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformed, line, fmt.Sprintf(format, args...))
}

// Decode reads a WRG file. Records may appear in any order; each one is
// placed on the grid by its coordinates.
func Decode(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	var header string
	for sc.Scan() {
		lineNo++
		if strings.TrimSpace(sc.Text()) != "" {
			header = sc.Text()
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformed)
	}

	nx, ny, xmin, ymin, cell, err := parseHeader(header)
	if err != nil {
		return nil, malformed(lineNo, "%v", err)
	}

	var g *Grid
	seen := make([]bool, nx*ny)
	count := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, malformed(lineNo, "%v", err)
		}
		if g == nil {
			g = NewGrid(nx, ny, len(rec.point.Freq), xmin, ymin, cell)
		} else if len(rec.point.Freq) != g.NSectors {
			return nil, malformed(lineNo, "record has %d sectors, expected %d", len(rec.point.Freq), g.NSectors)
		}

		ix, okx := cellIndex(rec.x, xmin, cell, nx)
		iy, oky := cellIndex(rec.y, ymin, cell, ny)
		if !okx || !oky {
			return nil, malformed(lineNo, "point (%g, %g) is outside the grid", rec.x, rec.y)
		}
		i := g.Index(ix, iy)
		if seen[i] {
			return nil, malformed(lineNo, "duplicate point at column %d row %d", ix, iy)
		}
		seen[i] = true
		g.SetPoint(ix, iy, rec.point)
		count++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	if count != nx*ny {
		return nil, fmt.Errorf("%w: found %d records, header declares %d x %d", ErrMalformed, count, nx, ny)
	}
	return g, nil
}

func parseHeader(line string) (nx, ny int, xmin, ymin, cell float64, err error) {
	f := strings.Fields(line)
	if len(f) < 5 {
		return 0, 0, 0, 0, 0, fmt.Errorf("header has %d fields, expected 5", len(f))
	}
	if nx, err = strconv.Atoi(f[0]); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("nx: %v", err)
	}
	if ny, err = strconv.Atoi(f[1]); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("ny: %v", err)
	}
	if xmin, err = strconv.ParseFloat(f[2], 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("xmin: %v", err)
	}
	if ymin, err = strconv.ParseFloat(f[3], 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("ymin: %v", err)
	}
	if cell, err = strconv.ParseFloat(f[4], 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("cell size: %v", err)
	}
	switch {
	case nx <= 0 || ny <= 0:
		return 0, 0, 0, 0, 0, fmt.Errorf("grid dimensions %d x %d must be positive", nx, ny)
	case nx > MaxPoints/ny:
		return 0, 0, 0, 0, 0, fmt.Errorf("grid of %d x %d points exceeds %d", nx, ny, MaxPoints)
	case !(cell > 0) || math.IsInf(cell, 0):
		return 0, 0, 0, 0, 0, fmt.Errorf("cell size %g must be positive", cell)
	}
	return nx, ny, xmin, ymin, cell, nil
}

func cellIndex(v, min, cell float64, n int) (int, bool) {
	f := (v - min) / cell
	i := int(math.Round(f))
	if math.IsNaN(f) || i < 0 || i >= n || math.Abs(f-float64(i)) > 0.25 {
		return 0, false
	}
	return i, true
}

// parseRecord splits a data line by the fixed column layout when it fits,
// and by whitespace otherwise.
func parseRecord(line string) (record, error) {
	if fields, ok := fixedFields(line); ok {
		return recordFromFields(fields)
	}
	return recordFromFields(strings.Fields(line))
}

func fixedFields(line string) ([]string, bool) {
	if len(line) < recordHeadWidth {
		return nil, false
	}
	ns, err := strconv.Atoi(strings.TrimSpace(line[recordHeadWidth-3 : recordHeadWidth]))
	if err != nil || ns < 0 || len(line) != recordHeadWidth+ns*sectorWidth {
		return nil, false
	}
	fields := make([]string, 0, len(recordWidths)+3*ns)
	pos := 0
	for _, w := range recordWidths {
		fields = append(fields, strings.TrimSpace(line[pos:pos+w]))
		pos += w
	}
	for s := 0; s < ns; s++ {
		for _, w := range [...]int{4, 4, 5} {
			fields = append(fields, strings.TrimSpace(line[pos:pos+w]))
			pos += w
		}
	}
	return fields, true
}

func recordFromFields(f []string) (record, error) {
	if len(f) < len(recordWidths) {
		return record{}, fmt.Errorf("record has %d fields, expected at least %d", len(f), len(recordWidths))
	}
	var vals [8]float64
	names := [...]string{"", "x", "y", "elevation", "height", "A", "k", "power density"}
	for i := 1; i < 8; i++ {
		v, err := strconv.ParseFloat(f[i], 64)
		if err != nil {
			return record{}, fmt.Errorf("%s: %v", names[i], err)
		}
		vals[i] = v
	}
	ns, err := strconv.Atoi(f[8])
	if err != nil {
		return record{}, fmt.Errorf("sector count: %v", err)
	}
	if ns < 0 || len(f) != len(recordWidths)+3*ns {
		return record{}, fmt.Errorf("record has %d fields, %d sectors need %d", len(f), ns, len(recordWidths)+3*ns)
	}

	p := Point{
		Name:         f[0],
		Elevation:    vals[3],
		Height:       vals[4],
		A:            vals[5],
		K:            vals[6],
		PowerDensity: vals[7],
		Freq:         make([]float64, ns),
		SectorA:      make([]float64, ns),
		SectorK:      make([]float64, ns),
	}
	for s := 0; s < ns; s++ {
		base := len(recordWidths) + 3*s
		var raw [3]float64
		for j := range raw {
			v, err := strconv.ParseFloat(f[base+j], 64)
			if err != nil {
				return record{}, fmt.Errorf("sector %d: %v", s, err)
			}
			raw[j] = v
		}
		p.Freq[s] = raw[0] / 10
		p.SectorA[s] = raw[1] / 10
		p.SectorK[s] = raw[2] / 100
	}
	return record{x: vals[1], y: vals[2], point: p}, nil
}
