package units

import "math"

// Vector2 is a two-component vector tagged with a unit.
type Vector2[U Unit] struct {
	X, Y float64
}

// Vec builds a vector in unit U.
func Vec[U Unit](x, y float64) Vector2[U] {
	return Vector2[U]{X: x, Y: y}
}

func (a Vector2[U]) Add(b Vector2[U]) Vector2[U] { return Vector2[U]{a.X + b.X, a.Y + b.Y} }
func (a Vector2[U]) Sub(b Vector2[U]) Vector2[U] { return Vector2[U]{a.X - b.X, a.Y - b.Y} }
func (a Vector2[U]) Scale(k float64) Vector2[U]  { return Vector2[U]{a.X * k, a.Y * k} }

// Dot has dimension U², returned as a raw value.
func (a Vector2[U]) Dot(b Vector2[U]) float64 { return a.X*b.X + a.Y*b.Y }

// Cross is the z component of the 3D cross product.
func (a Vector2[U]) Cross(b Vector2[U]) float64 { return a.X*b.Y - a.Y*b.X }

func (a Vector2[U]) LengthSquared() float64 { return a.Dot(a) }

func (a Vector2[U]) Length() Scalar[U] {
	return Scalar[U]{v: math.Sqrt(a.LengthSquared())}
}

// Normal returns the unit-length direction of a. The zero vector maps to itself.
func (a Vector2[U]) Normal() Vector2[Unitless] {
	l := math.Sqrt(a.LengthSquared())
	if l == 0 {
		return Vector2[Unitless]{}
	}
	return Vector2[Unitless]{a.X / l, a.Y / l}
}

// Bearing is the angle of a measured from the positive x axis.
func (a Vector2[U]) Bearing() Scalar[Angle] {
	return Scalar[Angle]{v: math.Atan2(a.Y, a.X)}
}

func (a Vector2[U]) IsZero() bool { return a.X == 0 && a.Y == 0 }

// Offset is the displacement from one position to another.
func Offset(from, to Vector2[Position]) Vector2[Length] {
	return Vector2[Length]{to.X - from.X, to.Y - from.Y}
}

// Translate moves a position by a displacement.
func Translate(p Vector2[Position], d Vector2[Length]) Vector2[Position] {
	return Vector2[Position]{p.X + d.X, p.Y + d.Y}
}

// Along scales a direction by a magnitude, giving a vector in the magnitude's unit.
func Along[U Unit](dir Vector2[Unitless], s Scalar[U]) Vector2[U] {
	return Vector2[U]{dir.X * s.v, dir.Y * s.v}
}
