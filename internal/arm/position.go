// Package arm holds the coordinate vocabulary of the four-axis plate crane:
// the Position value type, the Axis enum and the coordinate line grammar
// reported by the controller.
package arm

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Axis is one of the four controlled degrees of freedom.
type Axis string

const (
	AxisZ Axis = "Z" // vertical
	AxisR Axis = "R" // base rotation
	AxisY Axis = "Y" // extension
	AxisP Axis = "P" // gripper rotation
)

// Axes lists every axis in controller order.
var Axes = []Axis{AxisZ, AxisR, AxisY, AxisP}

// ParseAxis accepts an axis letter in either case.
func ParseAxis(value string) (Axis, error) {
	switch Axis(strings.ToUpper(strings.TrimSpace(value))) {
	case AxisZ:
		return AxisZ, nil
	case AxisR:
		return AxisR, nil
	case AxisY:
		return AxisY, nil
	case AxisP:
		return AxisP, nil
	default:
		return "", fmt.Errorf("unknown axis %q (expected Z, R, Y or P)", value)
	}
}

// Position is a four-axis pose. It is a value: copies never alias.
type Position struct {
	Z float64 `json:"z" toml:"z" yaml:"z"`
	R float64 `json:"r" toml:"r" yaml:"r"`
	Y float64 `json:"y" toml:"y" yaml:"y"`
	P float64 `json:"p" toml:"p" yaml:"p"`
}

// At returns the coordinate for axis.
func (p Position) At(axis Axis) float64 {
	switch axis {
	case AxisZ:
		return p.Z
	case AxisR:
		return p.R
	case AxisY:
		return p.Y
	case AxisP:
		return p.P
	default:
		return math.NaN()
	}
}

// WithZ returns a copy of p at height z.
func (p Position) WithZ(z float64) Position {
	p.Z = z
	return p
}

// Equal reports whether every axis of p and other differs by at most tol.
func (p Position) Equal(other Position, tol float64) bool {
	for _, axis := range Axes {
		if math.Abs(p.At(axis)-other.At(axis)) > tol {
			return false
		}
	}
	return true
}

func (p Position) String() string {
	return fmt.Sprintf("Z:%s, R:%s, Y:%s, P:%s",
		FormatCoordinate(p.Z), FormatCoordinate(p.R), FormatCoordinate(p.Y), FormatCoordinate(p.P))
}

// FormatCoordinate renders a coordinate the way the controller accepts it:
// shortest decimal form, no exponent.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var coordinatePattern = regexp.MustCompile(`Z:\s*([-.\d]+),\s*R:\s*([-.\d]+),\s*Y:\s*([-.\d]+),\s*P:\s*([-.\d]+)`)

// FindPosition extracts the first coordinate group from text. The second
// return is false when the grammar is absent.
func FindPosition(text string) (Position, bool, error) {
	match := coordinatePattern.FindStringSubmatch(text)
	if match == nil {
		return Position{}, false, nil
	}
	values := make([]float64, 4)
	for i := range values {
		v, err := strconv.ParseFloat(match[i+1], 64)
		if err != nil {
			return Position{}, true, fmt.Errorf("parse %s coordinate %q: %w", Axes[i], match[i+1], err)
		}
		values[i] = v
	}
	return Position{Z: values[0], R: values[1], Y: values[2], P: values[3]}, true, nil
}
