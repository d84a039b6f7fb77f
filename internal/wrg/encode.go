package wrg

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DefaultPointName is written for points without a name.
const DefaultPointName = "GridPoint"

// Encode writes g in the fixed column layout. Sector values are rounded to
// the file's integer units: tenths of a percent, tenths of m/s and
// hundredths. Coordinates carry enough decimals to tell neighbouring points
// apart; records whose coordinates no longer fit their 10 columns are
// written whitespace separated.
func Encode(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%d %d %g %g %g\n", g.NX, g.NY, g.XMin, g.YMin, g.CellSize); err != nil {
		return err
	}
	decimals := coordDecimals(g.CellSize)
	for iy := 0; iy < g.NY; iy++ {
		for ix := 0; ix < g.NX; ix++ {
			p := g.Point(ix, iy)
			x, y := g.Coord(ix, iy)
			name := p.Name
			if name == "" {
				name = DefaultPointName
			}
			if len(name) > 10 {
				name = name[:10]
			}
			xs := strconv.FormatFloat(x, 'f', decimals, 64)
			ys := strconv.FormatFloat(y, 'f', decimals, 64)
			if len(xs) <= 10 && len(ys) <= 10 {
				fmt.Fprintf(bw, "%-10s%10s%10s%8.1f%5.1f%5.2f%6.3f%15.4e%3d",
					name, xs, ys, p.Elevation, p.Height, p.A, p.K, p.PowerDensity, g.NSectors)
				for s := 0; s < g.NSectors; s++ {
					fmt.Fprintf(bw, "%4d%4d%5d",
						int(math.Round(p.Freq[s]*10)),
						int(math.Round(p.SectorA[s]*10)),
						int(math.Round(p.SectorK[s]*100)))
				}
			} else {
				writeFreeRecord(bw, name, xs, ys, p, g.NSectors)
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// coordDecimals returns the number of decimals that resolves a tenth of
// cell, with at least one.
func coordDecimals(cell float64) int {
	if !(cell > 0) || cell >= 1 {
		return 1
	}
	return min(1+int(math.Ceil(-math.Log10(cell)-1e-9)), 12)
}

// writeFreeRecord writes a whitespace separated record. The line length is
// kept off the fixed layout's so Decode splits it by whitespace.
func writeFreeRecord(w *bufio.Writer, name, x, y string, p Point, ns int) {
	if name = strings.Join(strings.Fields(name), "_"); name == "" {
		name = DefaultPointName
	}
	f := []string{
		name, x, y,
		strconv.FormatFloat(p.Elevation, 'f', 1, 64),
		strconv.FormatFloat(p.Height, 'f', 1, 64),
		strconv.FormatFloat(p.A, 'f', 2, 64),
		strconv.FormatFloat(p.K, 'f', 3, 64),
		strconv.FormatFloat(p.PowerDensity, 'e', 4, 64),
		strconv.Itoa(ns),
	}
	for s := 0; s < ns; s++ {
		f = append(f,
			strconv.Itoa(int(math.Round(p.Freq[s]*10))),
			strconv.Itoa(int(math.Round(p.SectorA[s]*10))),
			strconv.Itoa(int(math.Round(p.SectorK[s]*100))))
	}
	line := strings.Join(f, " ")
	if len(line) == recordHeadWidth+ns*sectorWidth {
		line = " " + line
	}
	w.WriteString(line)
}
