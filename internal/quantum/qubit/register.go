// Package qubit simulates a register of qubits by holding the full amplitude
// tensor of the joint state.
//
// Qubit q is bit q of a flat amplitude index, for gate application,
// measurement and collapse alike. A Register is not safe for concurrent
// mutation; callers that share one must serialize access.
package qubit

import (
	"fmt"
	"math/rand/v2"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-qsim/internal/device"
	"github.com/23skdu/longbow-qsim/internal/quantum/gates"
)

// MaxQubits is the largest register New accepts.
const MaxQubits = 31

// Register holds the joint state of n qubits.
type Register struct {
	n       int
	state   device.Tensor
	backend device.Backend
	src     rand.Source
}

// New creates a register of n qubits in |0...0>.
func New(n int, opts ...Option) (*Register, error) {
	if n < 1 || n > MaxQubits {
		return nil, fmt.Errorf("%w: got %d", ErrQubitCount, n)
	}
	o := newOptions(opts)

	state := o.backend.GetTensor(n)
	state.Set(0, 1)

	return &Register{
		n:       n,
		state:   state,
		backend: o.backend,
		src:     o.src,
	}, nil
}

// Qubits returns the number of qubits in the register.
func (r *Register) Qubits() int {
	return r.n
}

// Release hands the amplitude buffer back to the backend pool. The register
// must not be used afterwards.
func (r *Register) Release() {
	if r.state != nil {
		r.backend.PutTensor(r.state)
		r.state = nil
	}
}

// Apply applies m to target on the subspace where every control qubit is 1.
// With no controls, m is applied unconditionally. The state is left untouched
// when an argument is invalid.
func (r *Register) Apply(m gates.Matrix, target int, controls ...int) error {
	if err := r.checkQubit(target); err != nil {
		return err
	}
	seen := uint64(1) << target
	for _, c := range controls {
		if err := r.checkQubit(c); err != nil {
			return err
		}
		if c == target {
			return fmt.Errorf("%w: qubit %d", ErrTargetIsControl, c)
		}
		if seen&(1<<c) != 0 {
			return fmt.Errorf("%w: control %d", ErrDuplicateQubit, c)
		}
		seen |= 1 << c
	}

	r.state.ApplyControlled(m, target, controls)
	gatesApplied.Inc()
	return nil
}

// Norm returns the L2 norm of the state, 1 up to rounding.
func (r *Register) Norm() float64 {
	return r.state.Norm()
}

// Amplitudes returns a copy of the amplitude buffer, indexed so that bit q of
// the index is qubit q. It is a debugging aid: no physical device can read
// out its own state vector.
func (r *Register) Amplitudes() []complex128 {
	return r.state.ToHost()
}

// ResetAll reinitializes the register to |0...0>.
func (r *Register) ResetAll() {
	r.state.Zero()
	r.state.Set(0, 1)
	log.Debug().Int("qubits", r.n).Msg("register reset")
}

func (r *Register) checkQubit(q int) error {
	if q < 0 || q >= r.n {
		return fmt.Errorf("%w: qubit %d of %d", ErrQubitOutOfRange, q, r.n)
	}
	return nil
}

// sortedQubits validates a measurement set and returns it in ascending order.
func (r *Register) sortedQubits(qubits []int) ([]int, error) {
	if len(qubits) == 0 {
		return nil, ErrNoQubits
	}
	var seen uint64
	for _, q := range qubits {
		if err := r.checkQubit(q); err != nil {
			return nil, err
		}
		if seen&(1<<q) != 0 {
			return nil, fmt.Errorf("%w: qubit %d", ErrDuplicateQubit, q)
		}
		seen |= 1 << q
	}

	sorted := make([]int, 0, len(qubits))
	for q := 0; q < r.n; q++ {
		if seen&(1<<q) != 0 {
			sorted = append(sorted, q)
		}
	}
	return sorted, nil
}
