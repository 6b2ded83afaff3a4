package device

import (
	"math"
	"testing"
)

func TestHasNaN_Correctness(t *testing.T) {
	b := NewCPUBackend()

	t.Run("NaN", func(t *testing.T) {
		tm := b.NewTensor(2, []complex128{1, complex(math.NaN(), 0), 0, 0})
		if !HasNaN(tm) {
			t.Error("Expected true for NaN real part")
		}
	})

	t.Run("Inf", func(t *testing.T) {
		tm := b.NewTensor(1, []complex128{complex(0, math.Inf(-1)), 0})
		if !HasNaN(tm) {
			t.Error("Expected true for Inf imaginary part")
		}
	})

	t.Run("Finite", func(t *testing.T) {
		tm := b.NewTensor(2, []complex128{0.5, 0.5i, -0.5, -0.5i})
		if HasNaN(tm) {
			t.Error("Expected false for finite amplitudes")
		}
	})
}
