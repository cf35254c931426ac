package units

import (
	"math"
	"strconv"
)

// Scalar is a float64 tagged with a unit.
type Scalar[U Unit] struct {
	v float64
}

// Of wraps a raw value in unit U.
func Of[U Unit](v float64) Scalar[U] {
	return Scalar[U]{v: v}
}

// Value returns the raw value.
func (s Scalar[U]) Value() float64 { return s.v }

func (s Scalar[U]) Add(o Scalar[U]) Scalar[U] { return Scalar[U]{v: s.v + o.v} }
func (s Scalar[U]) Sub(o Scalar[U]) Scalar[U] { return Scalar[U]{v: s.v - o.v} }
func (s Scalar[U]) Neg() Scalar[U]            { return Scalar[U]{v: -s.v} }
func (s Scalar[U]) Abs() Scalar[U]            { return Scalar[U]{v: math.Abs(s.v)} }

// Scale multiplies by a dimensionless factor.
func (s Scalar[U]) Scale(k float64) Scalar[U] { return Scalar[U]{v: s.v * k} }

// Ratio divides two values of the same unit, yielding a pure number.
func (s Scalar[U]) Ratio(o Scalar[U]) float64 { return s.v / o.v }

func (s Scalar[U]) Less(o Scalar[U]) bool { return s.v < o.v }

// Quantity converts to the run-time dimensional form.
func (s Scalar[U]) Quantity() Quantity {
	return Quantity{Value: s.v, Dim: dimensionOf[U]()}
}

func (s Scalar[U]) String() string {
	return strconv.FormatFloat(s.v, 'g', -1, 64) + " " + dimensionOf[U]().String()
}

// Travel is the distance covered at velocity v during t.
func Travel(v Scalar[Velocity], t Scalar[Time]) Scalar[Length] {
	return Scalar[Length]{v: v.v * t.v}
}

// Speed is the velocity needed to cover l in t.
func Speed(l Scalar[Length], t Scalar[Time]) Scalar[Velocity] {
	return Scalar[Velocity]{v: l.v / t.v}
}

// Duration is the time needed to cover l at velocity v.
func Duration(l Scalar[Length], v Scalar[Velocity]) Scalar[Time] {
	return Scalar[Time]{v: l.v / v.v}
}
