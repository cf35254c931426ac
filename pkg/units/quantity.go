package units

import "math"

// Quantity is a value with a dimension known only at run time. Operations that
// would produce an ill-formed dimension set Invalid, which is sticky.
type Quantity struct {
	Value   float64
	Dim     Dimension
	Invalid bool
}

// Q builds a valid quantity.
func Q(v float64, dim Dimension) Quantity {
	return Quantity{Value: v, Dim: dim}
}

func (q Quantity) Mul(o Quantity) Quantity {
	return Quantity{Value: q.Value * o.Value, Dim: q.Dim.Mul(o.Dim), Invalid: q.Invalid || o.Invalid}
}

func (q Quantity) Div(o Quantity) Quantity {
	return Quantity{Value: q.Value / o.Value, Dim: q.Dim.Div(o.Dim), Invalid: q.Invalid || o.Invalid}
}

// Add requires matching dimensions.
func (q Quantity) Add(o Quantity) Quantity {
	return Quantity{Value: q.Value + o.Value, Dim: q.Dim, Invalid: q.Invalid || o.Invalid || q.Dim != o.Dim}
}

// Sub requires matching dimensions.
func (q Quantity) Sub(o Quantity) Quantity {
	return Quantity{Value: q.Value - o.Value, Dim: q.Dim, Invalid: q.Invalid || o.Invalid || q.Dim != o.Dim}
}

// Sqrt halves every exponent; an odd exponent marks the result invalid.
func (q Quantity) Sqrt() Quantity {
	dim, ok := q.Dim.Half()
	return Quantity{Value: math.Sqrt(q.Value), Dim: dim, Invalid: q.Invalid || !ok}
}

// As converts back to a typed scalar when the dimension matches.
func As[U Unit](q Quantity) (Scalar[U], bool) {
	if q.Invalid || q.Dim != dimensionOf[U]() {
		return Scalar[U]{}, false
	}
	return Scalar[U]{v: q.Value}, true
}
