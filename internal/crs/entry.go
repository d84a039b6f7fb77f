// Package crs lists coordinate reference systems from a SQLite catalogue,
// either a PROJ proj.db or the bundled catalogue of common systems.
package crs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound   = errors.New("crs not found")
	ErrInvalidKey = errors.New("invalid crs key")
)

// Type is the kind of reference system, using the PROJ database names.
type Type string

const (
	Geographic2D Type = "geographic 2D"
	Geographic3D Type = "geographic 3D"
	Geocentric   Type = "geocentric"
	Projected    Type = "projected"
	Vertical     Type = "vertical"
	Compound     Type = "compound"
	Engineering  Type = "engineering"
)

// Entry is one catalogue row.
type Entry struct {
	AuthName   string `json:"auth_name"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Type       Type   `json:"type"`
	Deprecated bool   `json:"deprecated,omitempty"`
}

// String formats the entry for display: "WGS 84 (EPSG:4326)".
func (e Entry) String() string {
	return fmt.Sprintf("%s (%s)", e.Name, e.Key())
}

// Key returns "<authority>:<code>".
func (e Entry) Key() string { return e.AuthName + ":" + e.Code }

// Geographic reports whether coordinates are latitude/longitude.
func (e Entry) Geographic() bool {
	return e.Type == Geographic2D || e.Type == Geographic3D
}

// ParseKey splits "EPSG:4326" into authority and code. The authority is
// upper-cased.
func ParseKey(s string) (auth, code string, err error) {
	auth, code, ok := strings.Cut(strings.TrimSpace(s), ":")
	auth, code = strings.TrimSpace(auth), strings.TrimSpace(code)
	if !ok || auth == "" || code == "" {
		return "", "", fmt.Errorf("%w: %q, expected AUTHORITY:CODE", ErrInvalidKey, s)
	}
	return strings.ToUpper(auth), code, nil
}
