package qubit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is the parent of every precondition failure. Nothing
	// is mutated when it is returned.
	ErrInvalidArgument = errors.New("qubit: invalid argument")

	ErrTargetIsControl = fmt.Errorf("%w: target is also a control", ErrInvalidArgument)
	ErrQubitOutOfRange = fmt.Errorf("%w: qubit index out of range", ErrInvalidArgument)
	ErrDuplicateQubit  = fmt.Errorf("%w: qubit listed more than once", ErrInvalidArgument)
	ErrNoQubits        = fmt.Errorf("%w: no qubits to measure", ErrInvalidArgument)
	ErrOutcomeWidth    = fmt.Errorf("%w: outcome width does not match qubit count", ErrInvalidArgument)
	ErrBadOutcome      = fmt.Errorf("%w: outcome must only contain 0 and 1", ErrInvalidArgument)

	ErrQubitCount = fmt.Errorf("qubit: qubit count must be between 1 and %d", MaxQubits)

	// ErrZeroNorm means every amplitude consistent with the request is zero.
	ErrZeroNorm = errors.New("qubit: zero norm")

	ErrQubitMismatch = errors.New("qubit: snapshot qubit count mismatch")
	ErrNonFinite     = errors.New("qubit: snapshot contains NaN or Inf amplitudes")

	// ErrNotNormalized rejects loaded amplitudes whose squared magnitudes do
	// not sum to 1 within normTolerance.
	ErrNotNormalized = errors.New("qubit: snapshot amplitudes are not normalized")
)
