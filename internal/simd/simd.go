package simd

// Mix2x2 applies the matrix [[m00, m01], [m10, m11]] to the paired runs a0 and a1 in place:
//
//	a0' = m00*a0 + m01*a1
//	a1' = m10*a0 + m11*a1
//
// Both outputs are computed from the original a0/a1 values. a0 and a1 must have
// the same length and must not overlap.
func Mix2x2(a0, a1 []complex128, m00, m01, m10, m11 complex128) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(a0)-4; i += 4 {
		x0, x1, x2, x3 := a0[i], a0[i+1], a0[i+2], a0[i+3]
		y0, y1, y2, y3 := a1[i], a1[i+1], a1[i+2], a1[i+3]
		a0[i] = m00*x0 + m01*y0
		a0[i+1] = m00*x1 + m01*y1
		a0[i+2] = m00*x2 + m01*y2
		a0[i+3] = m00*x3 + m01*y3
		a1[i] = m10*x0 + m11*y0
		a1[i+1] = m10*x1 + m11*y1
		a1[i+2] = m10*x2 + m11*y2
		a1[i+3] = m10*x3 + m11*y3
	}
	// Handle remainder
	for ; i < len(a0); i++ {
		x, y := a0[i], a1[i]
		a0[i] = m00*x + m01*y
		a1[i] = m10*x + m11*y
	}
}

// AbsSquared writes |src[i]|^2 into dst.
func AbsSquared(dst []float64, src []complex128) {
	i := 0
	for ; i <= len(src)-4; i += 4 {
		dst[i] = real(src[i])*real(src[i]) + imag(src[i])*imag(src[i])
		dst[i+1] = real(src[i+1])*real(src[i+1]) + imag(src[i+1])*imag(src[i+1])
		dst[i+2] = real(src[i+2])*real(src[i+2]) + imag(src[i+2])*imag(src[i+2])
		dst[i+3] = real(src[i+3])*real(src[i+3]) + imag(src[i+3])*imag(src[i+3])
	}
	for ; i < len(src); i++ {
		dst[i] = real(src[i])*real(src[i]) + imag(src[i])*imag(src[i])
	}
}

// SumSquares returns the sum of |x[i]|^2.
func SumSquares(x []complex128) float64 {
	var s0, s1, s2, s3 float64
	i := 0
	for ; i <= len(x)-4; i += 4 {
		s0 += real(x[i])*real(x[i]) + imag(x[i])*imag(x[i])
		s1 += real(x[i+1])*real(x[i+1]) + imag(x[i+1])*imag(x[i+1])
		s2 += real(x[i+2])*real(x[i+2]) + imag(x[i+2])*imag(x[i+2])
		s3 += real(x[i+3])*real(x[i+3]) + imag(x[i+3])*imag(x[i+3])
	}
	for ; i < len(x); i++ {
		s0 += real(x[i])*real(x[i]) + imag(x[i])*imag(x[i])
	}
	return (s0 + s1) + (s2 + s3)
}

// VecAdd performs dst += src for float64 vectors
func VecAdd(dst, src []float64) {
	// Unrolled loop for better pipelining
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	// Handle remainder
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}
