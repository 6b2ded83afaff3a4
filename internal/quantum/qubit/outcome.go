package qubit

import (
	"fmt"
	"slices"
	"strings"
)

// Outcome is the classical result of measuring a set of qubits.
//
// Key bit r holds the value of Qubits[r], with Qubits in ascending order. The
// string form prints the largest measured qubit first.
type Outcome struct {
	Qubits []int
	Key    int
}

// ParseOutcome builds an Outcome from a bit string such as "10" for the given
// qubits. The leftmost character belongs to the largest qubit.
func ParseOutcome(bits string, qubits ...int) (Outcome, error) {
	if len(bits) != len(qubits) {
		return Outcome{}, fmt.Errorf("%w: %d bits for %d qubits", ErrOutcomeWidth, len(bits), len(qubits))
	}
	sorted := slices.Clone(qubits)
	slices.Sort(sorted)

	key := 0
	for i, c := range []byte(bits) {
		r := len(bits) - 1 - i
		switch c {
		case '0':
		case '1':
			key |= 1 << r
		default:
			return Outcome{}, fmt.Errorf("%w: %q", ErrBadOutcome, bits)
		}
	}
	return Outcome{Qubits: sorted, Key: key}, nil
}

// Bit returns the measured value of qubit q.
func (o Outcome) Bit(q int) (int, bool) {
	r, ok := slices.BinarySearch(o.Qubits, q)
	if !ok {
		return 0, false
	}
	return (o.Key >> r) & 1, true
}

func (o Outcome) String() string {
	var sb strings.Builder
	sb.Grow(len(o.Qubits))
	for r := len(o.Qubits) - 1; r >= 0; r-- {
		if (o.Key>>r)&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// mask returns the flat-index mask of the measured qubits and the value those
// bits must take.
func (o Outcome) mask() (mask, value int) {
	for r, q := range o.Qubits {
		mask |= 1 << q
		value |= ((o.Key >> r) & 1) << q
	}
	return mask, value
}
