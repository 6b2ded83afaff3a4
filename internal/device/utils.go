package device

import "math"

// HasNonFinite reports whether any amplitude has a NaN or infinite component.
func HasNonFinite(data []complex128) bool {
	for _, v := range data {
		re, im := real(v), imag(v)
		if math.IsNaN(re) || math.IsNaN(im) || math.IsInf(re, 0) || math.IsInf(im, 0) {
			return true
		}
	}
	return false
}

// HasNaN checks the tensor's amplitudes for NaN or Inf.
func HasNaN(t Tensor) bool {
	return HasNonFinite(t.Data())
}
