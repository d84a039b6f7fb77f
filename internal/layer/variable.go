// Package layer turns a WRG grid into single 2-D rasters, one per
// selectable variable.
package layer

import (
	"errors"
	"fmt"
	"strings"
)

// Variable identifies one of the rasters derived from a grid. The zero
// value is Elevation.
type Variable int

const (
	Elevation Variable = iota
	GlobalScale
	GlobalShape
	GlobalSpeed
	DirectionalScale
	DirectionalShape
	DirectionalSpeed
	DirectionalFrequency

	numVariables
)

var ErrUnknownVariable = errors.New("unknown variable")

var variableInfo = [numVariables]struct {
	label       string
	unit        string
	directional bool
}{
	Elevation:            {"Elevation", "m", false},
	GlobalScale:          {"Global scale", "m/s", false},
	GlobalShape:          {"Global shape", "", false},
	GlobalSpeed:          {"Global speed", "m/s", false},
	DirectionalScale:     {"Directional scale", "m/s", true},
	DirectionalShape:     {"Directional shape", "", true},
	DirectionalSpeed:     {"Directional speed", "m/s", true},
	DirectionalFrequency: {"Directional frequency", "%", true},
}

// All returns every variable in display order.
func All() []Variable {
	out := make([]Variable, numVariables)
	for i := range out {
		out[i] = Variable(i)
	}
	return out
}

// Valid reports whether v is one of the defined variables.
func (v Variable) Valid() bool { return v >= 0 && v < numVariables }

// Label returns the human readable name, e.g. "Directional speed".
func (v Variable) Label() string {
	if !v.Valid() {
		return fmt.Sprintf("Variable(%d)", int(v))
	}
	return variableInfo[v].label
}

// Unit returns the physical unit of the values, empty when dimensionless.
func (v Variable) Unit() string {
	if !v.Valid() {
		return ""
	}
	return variableInfo[v].unit
}

// Slug returns the lower case, underscore separated label used in file
// names, e.g. "directional_speed".
func (v Variable) Slug() string {
	return strings.Join(strings.Fields(strings.ToLower(v.Label())), "_")
}

// Directional reports whether the variable needs a sector index.
func (v Variable) Directional() bool {
	return v.Valid() && variableInfo[v].directional
}

func (v Variable) String() string { return v.Label() }

// Parse accepts a label ("Global speed") or a slug ("global_speed"),
// ignoring case.
func Parse(s string) (Variable, error) {
	key := strings.Join(strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " "))), " ")
	for _, v := range All() {
		if strings.ToLower(v.Label()) == key {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownVariable, s)
}

// MarshalText encodes the variable as its slug.
func (v Variable) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVariable, int(v))
	}
	return []byte(v.Slug()), nil
}

// UnmarshalText accepts anything Parse does.
func (v *Variable) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// DefaultFilename suggests an export file name: "<slug>.tif" for global
// variables and "<slug>_<sector>.tif" with a two digit sector otherwise.
func DefaultFilename(v Variable, sector int) string {
	if !v.Directional() {
		return v.Slug() + ".tif"
	}
	return fmt.Sprintf("%s_%02d.tif", v.Slug(), sector)
}
