// Package units converts wind speeds from m/s for display.
package units

import (
	"fmt"
	"strings"
)

// Speed units accepted by the sector chart.
const (
	MPS   = "mps"
	KMPH  = "kmph"
	KPH   = "kph"
	MPH   = "mph"
	Knots = "kt"
)

// ValidUnits lists the accepted unit names.
var ValidUnits = []string{MPS, KMPH, KPH, MPH, Knots}

// IsValid reports whether unit is one of ValidUnits.
func IsValid(unit string) bool {
	for _, u := range ValidUnits {
		if unit == u {
			return true
		}
	}
	return false
}

// Parse normalises unit, defaulting to m/s when empty.
func Parse(unit string) (string, error) {
	u := strings.ToLower(strings.TrimSpace(unit))
	if u == "" {
		return MPS, nil
	}
	if !IsValid(u) {
		return "", fmt.Errorf("invalid speed unit %q, expected one of %s", unit, strings.Join(ValidUnits, ", "))
	}
	return u, nil
}

// ConvertSpeed converts a speed in m/s to unit. Unknown units leave the
// value in m/s.
func ConvertSpeed(speedMPS float64, unit string) float64 {
	switch unit {
	case KMPH, KPH:
		return speedMPS * 3.6
	case MPH:
		return speedMPS * 2.236936
	case Knots:
		return speedMPS * 1.943844
	default:
		return speedMPS
	}
}

// Label returns the axis label for unit.
func Label(unit string) string {
	switch unit {
	case KMPH, KPH:
		return "km/h"
	case MPH:
		return "mph"
	case Knots:
		return "kn"
	default:
		return "m/s"
	}
}
