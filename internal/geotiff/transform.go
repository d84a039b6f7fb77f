package geotiff

// Transform is an affine map from pixel (col, row) to model coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
type Transform struct {
	A, B, C float64
	D, E, F float64
}

// Identity is the transform that leaves coordinates unchanged.
var Identity = Transform{A: 1, E: 1}

// Translation moves the origin to (x, y).
func Translation(x, y float64) Transform {
	return Transform{A: 1, C: x, E: 1, F: y}
}

// Scale scales columns by sx and rows by sy.
func Scale(sx, sy float64) Transform {
	return Transform{A: sx, E: sy}
}

// Mul composes t and o so that t.Mul(o).Apply(p) == t.Apply(o.Apply(p)).
func (t Transform) Mul(o Transform) Transform {
	return Transform{
		A: t.A*o.A + t.B*o.D,
		B: t.A*o.B + t.B*o.E,
		C: t.A*o.C + t.B*o.F + t.C,
		D: t.D*o.A + t.E*o.D,
		E: t.D*o.B + t.E*o.E,
		F: t.D*o.C + t.E*o.F + t.F,
	}
}

// Apply maps pixel coordinates to model coordinates.
func (t Transform) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// NorthUp reports whether the transform has no rotation or shear.
func (t Transform) NorthUp() bool { return t.B == 0 && t.D == 0 }

// GridTransform places pixel (0, 0) at the top-left corner (left, top) of
// a grid with square cells of size cell, rows increasing southwards.
func GridTransform(left, top, cell float64) Transform {
	return Translation(left, top).Mul(Scale(cell, -cell))
}
