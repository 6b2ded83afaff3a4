// Package gates provides the 2x2 complex matrices used to evolve a register.
//
// A Matrix is a plain value: every builder returns a fresh copy, so the named
// table can be shared freely without anyone being able to alter it.
package gates

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/cblas128"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownGate is returned when a gate name is not in the table.
var ErrUnknownGate = errors.New("gates: unknown gate")

// Matrix is a single-qubit operator in row-major order: m[row][col].
type Matrix [2][2]complex128

// Name identifies one of the fixed, parameterless gates.
type Name int

const (
	X Name = iota
	Y
	Z
	H
	Id
	S
	SDagger
	T
	TDagger

	numNamed
)

var names = [numNamed]string{"x", "y", "z", "h", "id", "s", "sdg", "t", "tdg"}

// Valid reports whether n is one of the named gates.
func (n Name) Valid() bool {
	return n >= 0 && n < numNamed
}

func (n Name) String() string {
	if !n.Valid() {
		return fmt.Sprintf("Name(%d)", int(n))
	}
	return names[n]
}

var invSqrt2 = complex(1/math.Sqrt2, 0)

// table is built once and only ever read.
var table = [numNamed]Matrix{
	X:       {{0, 1}, {1, 0}},
	Y:       {{0, -1i}, {1i, 0}},
	Z:       {{1, 0}, {0, -1}},
	H:       {{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}},
	Id:      {{1, 0}, {0, 1}},
	S:       {{1, 0}, {0, 1i}},
	SDagger: {{1, 0}, {0, -1i}},
	T:       {{1, 0}, {0, cmplx.Exp(1i * math.Pi / 4)}},
	TDagger: {{1, 0}, {0, cmplx.Exp(-1i * math.Pi / 4)}},
}

// aliases maps accepted spellings onto the closed set of names.
var aliases = map[string]Name{
	"x": X, "not": X,
	"y": Y,
	"z": Z,
	"h": H, "hadamard": H,
	"id": Id, "i": Id, "identity": Id,
	"s": S,
	"sdg": SDagger, "sdagger": SDagger, "s_dagger": SDagger,
	"t": T,
	"tdg": TDagger, "tdagger": TDagger, "t_dagger": TDagger,
}

// Named returns the matrix for a named gate. It panics on a Name outside the
// enumeration.
func Named(n Name) Matrix {
	if !n.Valid() {
		panic(fmt.Sprintf("gates: invalid gate name %d", int(n)))
	}
	return table[n]
}

// ByName resolves a case-insensitive gate name such as "h" or "s_dagger".
func ByName(s string) (Name, error) {
	n, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGate, s)
	}
	return n, nil
}

// RX is a rotation of theta radians about the X axis.
func RX(theta float64) Matrix {
	c := complex(math.Cos(theta/2), 0)
	s := complex(0, -math.Sin(theta/2))
	return Matrix{{c, s}, {s, c}}
}

// RY is a rotation of theta radians about the Y axis.
func RY(theta float64) Matrix {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return Matrix{{c, -s}, {s, c}}
}

// RZ is a rotation of theta radians about the Z axis.
func RZ(theta float64) Matrix {
	return Matrix{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}

// P is the phase gate diag(1, e^{i*lambda}).
func P(lambda float64) Matrix {
	return Matrix{{1, 0}, {0, cmplx.Exp(complex(0, lambda))}}
}

// U3 is the generic single-qubit rotation with Euler angles theta, phi, lambda.
func U3(theta, phi, lambda float64) Matrix {
	c := math.Cos(theta / 2)
	s := math.Sin(theta / 2)
	return Matrix{
		{complex(c, 0), -cmplx.Exp(complex(0, lambda)) * complex(s, 0)},
		{cmplx.Exp(complex(0, phi)) * complex(s, 0), cmplx.Exp(complex(0, phi+lambda)) * complex(c, 0)},
	}
}

// Dagger returns the conjugate transpose.
func (m Matrix) Dagger() Matrix {
	return Matrix{
		{cmplx.Conj(m[0][0]), cmplx.Conj(m[1][0])},
		{cmplx.Conj(m[0][1]), cmplx.Conj(m[1][1])},
	}
}

// Mul returns the product m·o, i.e. o applied first.
func (m Matrix) Mul(o Matrix) Matrix {
	a, b := m.general(), o.general()
	c := cblas128.General{Rows: 2, Cols: 2, Stride: 2, Data: make([]complex128, 4)}
	cblas128.Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, c)
	return Matrix{{c.Data[0], c.Data[1]}, {c.Data[2], c.Data[3]}}
}

// IsUnitary reports whether m·m† equals the identity within tol.
func (m Matrix) IsUnitary(tol float64) bool {
	p := m.Mul(m.Dagger())
	return mat.CEqualApprox(p.Dense(), table[Id].Dense(), tol)
}

// Dense copies m into a gonum complex matrix.
func (m Matrix) Dense() *mat.CDense {
	return mat.NewCDense(2, 2, []complex128{m[0][0], m[0][1], m[1][0], m[1][1]})
}

func (m Matrix) general() cblas128.General {
	return cblas128.General{
		Rows:   2,
		Cols:   2,
		Stride: 2,
		Data:   []complex128{m[0][0], m[0][1], m[1][0], m[1][1]},
	}
}
