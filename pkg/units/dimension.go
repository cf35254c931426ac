// Package units provides dimension-tagged scalar and vector arithmetic for the
// simulation. Compile-time safety comes from marker unit types; general
// dimensional algebra is available at run time through Quantity.
package units

import (
	"fmt"
	"strings"
)

// Base SI dimensions, indexing a Dimension.
const (
	Metre = iota
	Kilogram
	Second
	Ampere
	Kelvin
	Mole
	Candela
	numBase
)

var baseSymbols = [numBase]string{"m", "kg", "s", "A", "K", "mol", "cd"}

// Dimension holds the exponent of each SI base unit.
type Dimension [numBase]int8

// Dimensionless is the zero dimension.
var Dimensionless = Dimension{}

// Mul returns the dimension of a product.
func (d Dimension) Mul(o Dimension) Dimension {
	var r Dimension
	for i := range d {
		r[i] = d[i] + o[i]
	}
	return r
}

// Div returns the dimension of a quotient.
func (d Dimension) Div(o Dimension) Dimension {
	var r Dimension
	for i := range d {
		r[i] = d[i] - o[i]
	}
	return r
}

// Half returns the dimension of a square root. ok is false when any exponent is odd.
func (d Dimension) Half() (r Dimension, ok bool) {
	for i := range d {
		if d[i]%2 != 0 {
			return Dimension{}, false
		}
		r[i] = d[i] / 2
	}
	return r, true
}

func (d Dimension) String() string {
	var parts []string
	for i, e := range d {
		switch {
		case e == 0:
		case e == 1:
			parts = append(parts, baseSymbols[i])
		default:
			parts = append(parts, fmt.Sprintf("%s^%d", baseSymbols[i], e))
		}
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, "·")
}

// Unit is implemented by the marker types that tag Scalar and Vector2.
type Unit interface {
	Dimension() Dimension
}

// Time is measured in seconds.
type Time struct{}

// Length is measured in tiles (metres).
type Length struct{}

// Velocity is length per time.
type Velocity struct{}

// Angle is measured in radians.
type Angle struct{}

// Position marks a point in the plane, as opposed to a displacement (Length).
type Position struct{}

// Unitless marks pure numbers and direction vectors.
type Unitless struct{}

func (Time) Dimension() Dimension     { return Dimension{Second: 1} }
func (Length) Dimension() Dimension   { return Dimension{Metre: 1} }
func (Velocity) Dimension() Dimension { return Dimension{Metre: 1, Second: -1} }
func (Angle) Dimension() Dimension    { return Dimensionless }
func (Position) Dimension() Dimension { return Dimension{Metre: 1} }
func (Unitless) Dimension() Dimension { return Dimensionless }

func dimensionOf[U Unit]() Dimension {
	var u U
	return u.Dimension()
}
