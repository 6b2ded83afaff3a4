package device

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"
)

// applyNaive is the reference kernel: visit every index with target=0 and all
// controls=1 and mix it with its partner.
func applyNaive(data []complex128, m [2][2]complex128, target int, controls []int) {
	for i := range data {
		if i&(1<<target) != 0 {
			continue
		}
		ok := true
		for _, c := range controls {
			if i&(1<<c) == 0 {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		j := i | 1<<target
		a0, a1 := data[i], data[j]
		data[i] = m[0][0]*a0 + m[0][1]*a1
		data[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func randomState(rank int, seed uint64) []complex128 {
	rng := rand.New(rand.NewPCG(seed, 7))
	data := make([]complex128, 1<<rank)
	var norm float64
	for i := range data {
		data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
		norm += real(data[i])*real(data[i]) + imag(data[i])*imag(data[i])
	}
	s := complex(1/math.Sqrt(norm), 0)
	for i := range data {
		data[i] *= s
	}
	return data
}

func assertClose(t *testing.T, got, want []complex128, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range got {
		if cmplx.Abs(got[i]-want[i]) > tol {
			t.Fatalf("mismatch at %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

var hadamard = [2][2]complex128{
	{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)},
	{complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)},
}

var pauliX = [2][2]complex128{{0, 1}, {1, 0}}

func TestCPUBackend_TensorOps(t *testing.T) {
	backend := NewCPUBackend()

	t.Run("Hadamard", func(t *testing.T) {
		a := backend.NewTensor(1, []complex128{1, 0})
		a.ApplyControlled(hadamard, 0, nil)

		h := complex(1/math.Sqrt2, 0)
		assertClose(t, a.ToHost(), []complex128{h, h}, 1e-12)
	})

	t.Run("CX", func(t *testing.T) {
		// qubit 0 set: index 1. Control 0, target 1 flips qubit 1 -> index 3.
		a := backend.NewTensor(2, []complex128{0, 1, 0, 0})
		a.ApplyControlled(pauliX, 1, []int{0})
		assertClose(t, a.ToHost(), []complex128{0, 0, 0, 1}, 0)

		// Control 0 is clear in index 2, nothing happens.
		b := backend.NewTensor(2, []complex128{0, 0, 1, 0})
		b.ApplyControlled(pauliX, 1, []int{0})
		assertClose(t, b.ToHost(), []complex128{0, 0, 1, 0}, 0)
	})

	t.Run("MatchesReference", func(t *testing.T) {
		m := [2][2]complex128{{0.6, 0.8i}, {0.8i, 0.6}}
		const rank = 4
		for target := 0; target < rank; target++ {
			for mask := 0; mask < 1<<rank; mask++ {
				if mask&(1<<target) != 0 {
					continue
				}
				var controls []int
				for c := rank - 1; c >= 0; c-- {
					if mask&(1<<c) != 0 {
						controls = append(controls, c)
					}
				}
				init := randomState(rank, uint64(target*100+mask))
				want := append([]complex128(nil), init...)
				applyNaive(want, m, target, controls)

				a := backend.NewTensor(rank, init)
				a.ApplyControlled(m, target, controls)
				assertClose(t, a.ToHost(), want, 1e-12)
			}
		}
	})

	t.Run("ParallelMatchesReference", func(t *testing.T) {
		const rank = 16
		m := [2][2]complex128{{0, -1i}, {1i, 0}}
		for _, tc := range []struct {
			target   int
			controls []int
		}{
			{0, nil},
			{15, nil},
			{3, []int{7}},
			{9, []int{0, 14}},
		} {
			init := randomState(rank, uint64(tc.target))
			want := append([]complex128(nil), init...)
			applyNaive(want, m, tc.target, tc.controls)

			a := backend.NewTensor(rank, init)
			a.ApplyControlled(m, tc.target, tc.controls)
			assertClose(t, a.ToHost(), want, 1e-12)
		}
	})

	t.Run("InvalidControlPanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic when target is also a control")
			}
		}()
		a := backend.NewTensor(2, nil)
		a.ApplyControlled(pauliX, 1, []int{1})
	})

	t.Run("Scale", func(t *testing.T) {
		a := backend.NewTensor(1, []complex128{1 + 1i, 2})
		a.Scale(2.0)
		assertClose(t, a.ToHost(), []complex128{2 + 2i, 4}, 1e-12)
	})

	t.Run("Norm", func(t *testing.T) {
		a := backend.NewTensor(2, []complex128{3, 4i, 0, 0})
		if n := a.Norm(); math.Abs(n-5) > 1e-12 {
			t.Errorf("Norm = %f, want 5", n)
		}
		if n := a.NormSquared(); math.Abs(n-25) > 1e-12 {
			t.Errorf("NormSquared = %f, want 25", n)
		}
	})

	t.Run("Pooling", func(t *testing.T) {
		t1 := backend.GetTensor(3)
		t1.Set(0, 123)
		backend.PutTensor(t1)

		t2 := backend.GetTensor(3)
		// Should overwrite t1's memory, verify it is zeroed
		if val := t2.At(0); val != 0 {
			t.Errorf("Pooled tensor not zeroed: got %v", val)
		}
		if t2.Len() != 8 || t2.Rank() != 3 {
			t.Errorf("Pooled tensor has rank %d / len %d, want 3 / 8", t2.Rank(), t2.Len())
		}
	})
}

func marginalNaive(data []complex128, positions []int, condMask, condValue int) []float64 {
	out := make([]float64, 1<<len(positions))
	for i, a := range data {
		if i&condMask != condValue {
			continue
		}
		out[gatherBits(i, positions)] += real(a)*real(a) + imag(a)*imag(a)
	}
	return out
}

func TestCPUTensor_Marginal(t *testing.T) {
	backend := NewCPUBackend()

	t.Run("BellPair", func(t *testing.T) {
		h := complex(1/math.Sqrt2, 0)
		a := backend.NewTensor(2, []complex128{h, 0, 0, h})

		p := a.Marginal([]int{0, 1}, 0, 0)
		want := []float64{0.5, 0, 0, 0.5}
		for i := range want {
			if math.Abs(p[i]-want[i]) > 1e-12 {
				t.Errorf("p[%d] = %f, want %f", i, p[i], want[i])
			}
		}

		single := a.Marginal([]int{1}, 0, 0)
		if math.Abs(single[0]-0.5) > 1e-12 || math.Abs(single[1]-0.5) > 1e-12 {
			t.Errorf("single-qubit marginal = %v, want [0.5 0.5]", single)
		}
	})

	t.Run("KeyOrderFollowsPositions", func(t *testing.T) {
		// Only index 0b01 (qubit 0 = 1) is populated.
		a := backend.NewTensor(2, []complex128{0, 1, 0, 0})
		p := a.Marginal([]int{1, 0}, 0, 0)
		// key bit 0 <- qubit 1 (=0), key bit 1 <- qubit 0 (=1)
		if p[2] != 1 {
			t.Errorf("Marginal([1 0]) = %v, want mass at key 2", p)
		}
	})

	for _, rank := range []int{5, 16} {
		data := randomState(rank, uint64(rank))
		a := backend.NewTensor(rank, data)
		for _, tc := range []struct {
			positions           []int
			condMask, condValue int
		}{
			{[]int{0}, 0, 0},
			{[]int{1, 3}, 0, 0},
			{[]int{4, 2, 0}, 0, 0},
			{[]int{2}, 0b1, 0b1},
			{[]int{0, 4}, 0b1010, 0b1000},
		} {
			want := marginalNaive(data, tc.positions, tc.condMask, tc.condValue)
			got := a.Marginal(tc.positions, tc.condMask, tc.condValue)
			for i := range want {
				if math.Abs(got[i]-want[i]) > 1e-12 {
					t.Fatalf("rank %d positions %v: got[%d] = %g, want %g", rank, tc.positions, i, got[i], want[i])
				}
			}
		}
	}
}

func TestCPUTensor_ProjectInto(t *testing.T) {
	backend := NewCPUBackend()

	for _, rank := range []int{3, 15} {
		data := randomState(rank, 42)
		src := backend.NewTensor(rank, data)

		mask, value := 0b101, 0b100
		dst := backend.GetTensor(rank)
		src.ProjectInto(dst, mask, value)

		got := dst.ToHost()
		for i := range got {
			want := complex128(0)
			if i&mask == value {
				want = data[i]
			}
			if got[i] != want {
				t.Fatalf("rank %d: cell %d = %v, want %v", rank, i, got[i], want)
			}
		}
		// Source is left alone.
		assertClose(t, src.ToHost(), data, 0)
		backend.PutTensor(dst)
	}
}

func TestRunPlan_CoversFreeCells(t *testing.T) {
	const rank = 6
	for _, fixed := range [][]int{{0}, {5}, {1, 3}, {4, 0, 2}} {
		plan := newRunPlan(rank, fixed)
		mask := 0
		for _, p := range fixed {
			mask |= 1 << p
		}

		seen := make(map[int]bool)
		for j := 0; j < plan.count; j++ {
			base := plan.base(j)
			for k := 0; k < plan.run; k++ {
				i := base + k
				if i&mask != 0 {
					t.Fatalf("fixed %v: run %d covers cell %b with a fixed bit set", fixed, j, i)
				}
				if seen[i] {
					t.Fatalf("fixed %v: cell %d visited twice", fixed, i)
				}
				seen[i] = true
			}
		}
		if want := 1 << (rank - len(fixed)); len(seen) != want {
			t.Errorf("fixed %v: visited %d cells, want %d", fixed, len(seen), want)
		}
	}
}
