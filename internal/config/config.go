package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/wrg-explorer/internal/geotiff"
	"github.com/banshee-data/wrg-explorer/internal/render"
)

// DefaultConfigPath is where the shipped defaults live.
const DefaultConfigPath = "config/wrg-explorer.defaults.json"

// Config is the service configuration. Every field is optional; the Get*
// methods fill in defaults for absent ones so partial files are valid.
type Config struct {
	Listen         *string `json:"listen,omitempty"`
	SessionTTL     *string `json:"session_ttl,omitempty"` // duration string like "30m"
	MaxUploadBytes *int64  `json:"max_upload_bytes,omitempty"`

	// CRS catalogue
	ProjDB      *string `json:"proj_db,omitempty"`      // PROJ proj.db; empty uses the bundled catalogue
	CatalogueDB *string `json:"catalogue_db,omitempty"` // bundled catalogue file; empty keeps it in memory

	// Figure
	Palette      *string  `json:"palette,omitempty"`
	PlotWidthIn  *float64 `json:"plot_width_in,omitempty"`
	PlotHeightIn *float64 `json:"plot_height_in,omitempty"`

	// Export
	Compression *string `json:"compression,omitempty"` // "none" or "deflate"
}

func ptrString(v string) *string { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config { return &Config{} }

// Load reads a Config from a .json file of at most 1 MiB and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 << 20
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if c.SessionTTL != nil {
		d, err := time.ParseDuration(*c.SessionTTL)
		if err != nil {
			return fmt.Errorf("invalid session_ttl %q: %w", *c.SessionTTL, err)
		}
		if d <= 0 {
			return fmt.Errorf("session_ttl must be positive, got %s", d)
		}
	}
	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}
	if c.Palette != nil {
		if _, err := render.ColorMap(*c.Palette); err != nil {
			return err
		}
	}
	if c.PlotWidthIn != nil && (*c.PlotWidthIn < 2 || *c.PlotWidthIn > 40) {
		return fmt.Errorf("plot_width_in must be within [2, 40], got %g", *c.PlotWidthIn)
	}
	if c.PlotHeightIn != nil && (*c.PlotHeightIn < 2 || *c.PlotHeightIn > 40) {
		return fmt.Errorf("plot_height_in must be within [2, 40], got %g", *c.PlotHeightIn)
	}
	if c.Compression != nil {
		if _, err := geotiff.ParseCompression(*c.Compression); err != nil {
			return err
		}
	}
	return nil
}

// GetListen returns the listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return ":8050"
	}
	return *c.Listen
}

// GetSessionTTL returns the idle session lifetime or the default.
func (c *Config) GetSessionTTL() time.Duration {
	if c.SessionTTL == nil {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(*c.SessionTTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetMaxUploadBytes returns the upload size limit or the default.
func (c *Config) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return 256 << 20
	}
	return *c.MaxUploadBytes
}

// GetProjDB returns the proj.db path, empty when unset.
func (c *Config) GetProjDB() string {
	if c.ProjDB == nil {
		return ""
	}
	return *c.ProjDB
}

// GetCatalogueDB returns the bundled catalogue path, empty when unset.
func (c *Config) GetCatalogueDB() string {
	if c.CatalogueDB == nil {
		return ""
	}
	return *c.CatalogueDB
}

// GetPalette returns the palette name or the default.
func (c *Config) GetPalette() string {
	if c.Palette == nil {
		return "viridis"
	}
	return *c.Palette
}

// GetPlotWidthIn returns the figure width in inches or the default.
func (c *Config) GetPlotWidthIn() float64 {
	if c.PlotWidthIn == nil {
		return 6.4
	}
	return *c.PlotWidthIn
}

// GetPlotHeightIn returns the figure height in inches or the default.
func (c *Config) GetPlotHeightIn() float64 {
	if c.PlotHeightIn == nil {
		return 4.8
	}
	return *c.PlotHeightIn
}

// GetCompression returns the GeoTIFF compression or the default.
func (c *Config) GetCompression() geotiff.Compression {
	if c.Compression == nil {
		return geotiff.NoCompression
	}
	comp, err := geotiff.ParseCompression(*c.Compression)
	if err != nil {
		return geotiff.NoCompression
	}
	return comp
}

// RenderOptions returns the figure settings for rendered layers.
func (c *Config) RenderOptions() render.Options {
	return render.Options{
		Palette: c.GetPalette(),
		Width:   vg.Length(c.GetPlotWidthIn()) * vg.Inch,
		Height:  vg.Length(c.GetPlotHeightIn()) * vg.Inch,
	}
}

// SetListen overrides the listen address, e.g. from a flag.
func (c *Config) SetListen(addr string) { c.Listen = ptrString(addr) }

// SetProjDB overrides the proj.db path, e.g. from a flag.
func (c *Config) SetProjDB(path string) { c.ProjDB = ptrString(path) }
