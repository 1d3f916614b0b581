package fixed

// Expm1 approximates e^x - 1 with a truncated Taylor series evaluated in
// Horner form. The caller chooses the term count based on how large x can
// get; interest accrual keeps x small by bounding elapsed time.
func Expm1(x Number, terms int) Number {
	acc := Zero()
	for k := terms; k >= 1; k-- {
		acc = x.DivU64(uint64(k)).Mul(One().Add(acc))
	}
	return acc
}

// Interpolate linearly maps x from the segment [x0, x1] onto [y0, y1].
// Requires x0 <= x <= x1 and x0 < x1.
func Interpolate(x, x0, x1, y0, y1 Number) Number {
	if x.Cmp(x0) < 0 || x.Cmp(x1) > 0 || x0.Cmp(x1) >= 0 {
		panic("fixed: interpolation bounds")
	}
	if y1.Cmp(y0) >= 0 {
		return y0.Add(x.Sub(x0).Mul(y1.Sub(y0)).Div(x1.Sub(x0)))
	}
	return y0.Sub(x.Sub(x0).Mul(y0.Sub(y1)).Div(x1.Sub(x0)))
}
