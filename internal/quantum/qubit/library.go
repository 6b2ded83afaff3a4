package qubit

import (
	"fmt"

	"github.com/23skdu/longbow-qsim/internal/quantum/gates"
)

func (r *Register) named(n gates.Name, target int, controls ...int) error {
	return r.Apply(gates.Named(n), target, controls...)
}

func (r *Register) X(q int) error       { return r.named(gates.X, q) }
func (r *Register) Y(q int) error       { return r.named(gates.Y, q) }
func (r *Register) Z(q int) error       { return r.named(gates.Z, q) }
func (r *Register) H(q int) error       { return r.named(gates.H, q) }
func (r *Register) I(q int) error       { return r.named(gates.Id, q) }
func (r *Register) S(q int) error       { return r.named(gates.S, q) }
func (r *Register) SDagger(q int) error { return r.named(gates.SDagger, q) }
func (r *Register) T(q int) error       { return r.named(gates.T, q) }
func (r *Register) TDagger(q int) error { return r.named(gates.TDagger, q) }

func (r *Register) RX(theta float64, q int) error { return r.Apply(gates.RX(theta), q) }
func (r *Register) RY(theta float64, q int) error { return r.Apply(gates.RY(theta), q) }
func (r *Register) RZ(theta float64, q int) error { return r.Apply(gates.RZ(theta), q) }

// CX flips target when control is 1.
func (r *Register) CX(control, target int) error {
	return r.named(gates.X, target, control)
}

// CNOT is an alias for CX.
func (r *Register) CNOT(control, target int) error {
	return r.CX(control, target)
}

// CZ flips the phase of |11>.
func (r *Register) CZ(control, target int) error {
	return r.named(gates.Z, target, control)
}

// Toffoli flips target when both controls are 1.
func (r *Register) Toffoli(c1, c2, target int) error {
	return r.named(gates.X, target, c1, c2)
}

// CCNOT is an alias for Toffoli.
func (r *Register) CCNOT(c1, c2, target int) error {
	return r.Toffoli(c1, c2, target)
}

// Swap exchanges the states of a and b with three CX gates.
func (r *Register) Swap(a, b int) error {
	if err := r.CX(a, b); err != nil {
		return err
	}
	if err := r.CX(b, a); err != nil {
		return err
	}
	return r.CX(a, b)
}

// MultiControlled applies a named gate to target when every control is 1.
func (r *Register) MultiControlled(n gates.Name, target int, controls ...int) error {
	if !n.Valid() {
		return fmt.Errorf("%w: %s", gates.ErrUnknownGate, n)
	}
	return r.named(n, target, controls...)
}

func (r *Register) MultiControlledRX(theta float64, target int, controls ...int) error {
	return r.Apply(gates.RX(theta), target, controls...)
}

func (r *Register) MultiControlledRY(theta float64, target int, controls ...int) error {
	return r.Apply(gates.RY(theta), target, controls...)
}

func (r *Register) MultiControlledRZ(theta float64, target int, controls ...int) error {
	return r.Apply(gates.RZ(theta), target, controls...)
}
