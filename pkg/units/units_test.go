package units

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScalarArithmetic(t *testing.T) {
	a := Of[Length](3)
	b := Of[Length](1.5)

	assert.Equal(t, 4.5, a.Add(b).Value())
	assert.Equal(t, 1.5, a.Sub(b).Value())
	assert.Equal(t, -3.0, a.Neg().Value())
	assert.Equal(t, 3.0, a.Neg().Abs().Value())
	assert.Equal(t, 6.0, a.Scale(2).Value())
	assert.Equal(t, 2.0, a.Ratio(b))
	assert.True(t, b.Less(a))
	assert.False(t, a.Less(b))
}

func TestCrossUnitFunctions(t *testing.T) {
	v := Of[Velocity](4)
	dt := Of[Time](1.0 / 32)

	assert.Equal(t, 0.125, Travel(v, dt).Value())
	assert.Equal(t, 4.0, Speed(Of[Length](0.125), dt).Value())
	assert.Equal(t, 2.0, Duration(Of[Length](8), v).Value())
}

func TestVectorOperations(t *testing.T) {
	a := Vec[Length](3, 4)
	b := Vec[Length](1, 0)

	assert.Equal(t, 5.0, a.Length().Value())
	assert.Equal(t, 25.0, a.LengthSquared())
	assert.Equal(t, 3.0, a.Dot(b))
	assert.Equal(t, -4.0, a.Cross(b))
	assert.Equal(t, Vec[Length](4, 4), a.Add(b))
	assert.Equal(t, Vec[Length](2, 4), a.Sub(b))
	assert.Equal(t, Vec[Length](6, 8), a.Scale(2))

	n := a.Normal()
	assert.InDelta(t, 0.6, n.X, 1e-12)
	assert.InDelta(t, 0.8, n.Y, 1e-12)
	assert.True(t, Vec[Length](0, 0).Normal().IsZero())

	assert.InDelta(t, math.Pi/2, Vec[Length](0, 1).Bearing().Value(), 1e-12)
}

func TestAffinePositions(t *testing.T) {
	from := Vec[Position](1, 1)
	to := Vec[Position](4, 5)

	d := Offset(from, to)
	assert.Equal(t, Vec[Length](3, 4), d)
	assert.Equal(t, to, Translate(from, d))

	step := Along(d.Normal(), Of[Length](10))
	assert.InDelta(t, 6, step.X, 1e-12)
	assert.InDelta(t, 8, step.Y, 1e-12)
}

func TestQuantityAlgebra(t *testing.T) {
	length := Of[Length](6).Quantity()
	time := Of[Time](2).Quantity()

	speed := length.Div(time)
	assert.False(t, speed.Invalid)
	v, ok := As[Velocity](speed)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v.Value())

	area := length.Mul(length)
	side := area.Sqrt()
	assert.False(t, side.Invalid)
	l, ok := As[Length](side)
	assert.True(t, ok)
	assert.Equal(t, 6.0, l.Value())

	_, ok = As[Time](side)
	assert.False(t, ok, "dimension mismatch must not convert")
}

func TestQuantityInvalidOperations(t *testing.T) {
	length := Of[Length](4).Quantity()
	time := Of[Time](1).Quantity()

	assert.True(t, length.Sqrt().Invalid, "odd exponent has no square root")
	assert.True(t, length.Add(time).Invalid)
	assert.True(t, length.Sub(time).Invalid)

	// invalid is sticky
	bad := length.Sqrt()
	assert.True(t, bad.Mul(length).Invalid)
	assert.True(t, bad.Div(length).Invalid)
}

func TestDimensionString(t *testing.T) {
	assert.Equal(t, "m·s^-1", Velocity{}.Dimension().String())
	assert.Equal(t, "1", Angle{}.Dimension().String())
	assert.Equal(t, "s", Time{}.Dimension().String())
}
