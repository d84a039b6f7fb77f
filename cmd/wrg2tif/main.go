// Command wrg2tif converts one layer of a WRG file into a GeoTIFF.
//
//	wrg2tif -in site.wrg -variable directional_speed -sector 3 -crs EPSG:32632 -out speed.tif
//
// -in may also be an http(s) URL.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/wrg-explorer/internal/crs"
	"github.com/banshee-data/wrg-explorer/internal/fsutil"
	"github.com/banshee-data/wrg-explorer/internal/geotiff"
	"github.com/banshee-data/wrg-explorer/internal/httputil"
	"github.com/banshee-data/wrg-explorer/internal/layer"
	"github.com/banshee-data/wrg-explorer/internal/session"
	"github.com/banshee-data/wrg-explorer/internal/wrg"
)

// maxRemoteBytes caps downloads of remote WRG files.
const maxRemoteBytes = 256 << 20

type options struct {
	in       string
	out      string
	variable layer.Variable
	sector   int
	crsKey   string
	compress geotiff.Compression
	projDB   string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("wrg2tif", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		o        options
		variable string
		compress string
	)
	fs.StringVar(&o.in, "in", "", "WRG file path or http(s) URL (required)")
	fs.StringVar(&o.out, "out", "", "Output GeoTIFF path; defaults to the suggested file name")
	fs.StringVar(&variable, "variable", "elevation", "Variable label or slug, e.g. global_speed")
	fs.IntVar(&o.sector, "sector", 0, "Sector index for directional variables")
	fs.StringVar(&o.crsKey, "crs", "", "CRS as AUTHORITY:CODE, e.g. EPSG:32632")
	fs.StringVar(&compress, "compress", "none", "GeoTIFF compression: none or deflate")
	fs.StringVar(&o.projDB, "proj-db", "", "PROJ proj.db used to resolve -crs instead of the bundled catalogue")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.in == "" {
		return o, fmt.Errorf("-in is required")
	}
	v, err := layer.Parse(variable)
	if err != nil {
		return o, err
	}
	o.variable = v
	if o.compress, err = geotiff.ParseCompression(compress); err != nil {
		return o, err
	}
	if o.out == "" {
		o.out = layer.DefaultFilename(o.variable, o.sector)
	}
	return o, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func readInput(ctx context.Context, fsys fsutil.FileSystem, client httputil.HTTPClient, in string) ([]byte, error) {
	if isURL(in) {
		return httputil.Fetch(ctx, client, in, maxRemoteBytes)
	}
	return fsys.ReadFile(in)
}

func lookupCRS(ctx context.Context, key, projDB string) (*crs.Entry, error) {
	if key == "" {
		return nil, nil
	}
	var (
		db  *crs.DB
		err error
	)
	if projDB != "" {
		db, err = crs.OpenProjDB(projDB)
	} else {
		db, err = crs.OpenBundled("")
	}
	if err != nil {
		return nil, err
	}
	defer db.Close()
	e, err := crs.NewCatalogue(db).LookupKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// run converts o.in and writes the GeoTIFF to o.out.
func run(ctx context.Context, args []string, fsys fsutil.FileSystem, client httputil.HTTPClient, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	data, err := readInput(ctx, fsys, client, o.in)
	if err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	g, err := wrg.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	entry, err := lookupCRS(ctx, o.crsKey, o.projDB)
	if err != nil {
		return err
	}
	tif, err := session.GeoTIFF(g, session.Selection{Variable: o.variable, Sector: o.sector}, entry, o.compress)
	if err != nil {
		return err
	}
	if err := fsys.WriteFile(o.out, tif, 0o644); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s: %d x %d, %s, %d bytes\n", o.out, g.NX, g.NY, o.variable.Label(), len(tif))
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], fsutil.OSFileSystem{}, nil, os.Stdout, os.Stderr); err != nil {
		if err == flag.ErrHelp {
			return
		}
		log.Fatalf("wrg2tif: %v", err)
	}
}
