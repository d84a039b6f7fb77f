// Package testutil provides shared test helpers and WRG fixtures.
package testutil

import (
	"bytes"
	"fmt"
	"math"
	"mime/multipart"
	"testing"

	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// SampleGrid builds a deterministic nx x ny grid with nsectors sectors
// located at (500000, 6000000) with 100 m cells and an 80 m hub height.
// Values are already quantised to the precision of the WRG text layout,
// so they survive an encode/decode round trip.
func SampleGrid(nx, ny, nsectors int) *wrg.Grid {
	g := wrg.NewGrid(nx, ny, nsectors, 500000, 6000000, 100)
	for iy := 0; iy < ny; iy++ {
		for ix := 0; ix < nx; ix++ {
			p := wrg.Point{
				Name:         fmt.Sprintf("P%d_%d", ix, iy),
				Elevation:    float64(100 + 10*iy + ix),
				Height:       80,
				A:            6.5 + 0.25*float64(ix) + 0.5*float64(iy),
				K:            2.0 + 0.125*float64(ix%4),
				PowerDensity: float64(300 + ix + iy),
				Freq:         make([]float64, nsectors),
				SectorA:      make([]float64, nsectors),
				SectorK:      make([]float64, nsectors),
			}
			if nsectors > 0 {
				even := math.Floor(1000/float64(nsectors)) / 10
				for s := 0; s < nsectors; s++ {
					p.Freq[s] = even
					p.SectorA[s] = 5.0 + float64(s) + float64(ix)/2
					p.SectorK[s] = 1.5 + float64(s%5)/4 + float64(iy)/4
				}
				// The last sector takes the rounding remainder.
				p.Freq[nsectors-1] = math.Round((100-even*float64(nsectors-1))*10) / 10
			}
			g.SetPoint(ix, iy, p)
		}
	}
	return g
}

// SampleWRG returns SampleGrid encoded as a WRG file.
func SampleWRG(t testing.TB, nx, ny, nsectors int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := wrg.Encode(&buf, SampleGrid(nx, ny, nsectors)); err != nil {
		t.Fatalf("encode sample grid: %v", err)
	}
	return buf.Bytes()
}

// MultipartFile builds a multipart/form-data body carrying one file under
// field. It returns the body and its content type.
func MultipartFile(t testing.TB, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}
