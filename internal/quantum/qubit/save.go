package qubit

import (
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-qsim/internal/device"
	"github.com/23skdu/longbow-qsim/internal/quantum/snapshot"
	"github.com/23skdu/longbow-qsim/internal/simd"
)

// Save writes the amplitudes as a .npy tensor of shape (2, ..., 2). Like
// Amplitudes, this exposes state no physical device could read out.
func (r *Register) Save(w io.Writer) error {
	return snapshot.WriteNPY(w, r.state.Data())
}

// Load creates a register from a .npy tensor written by Save. The qubit count
// is taken from the tensor rank. Amplitudes must be finite and normalized.
func Load(rd io.Reader, opts ...Option) (*Register, error) {
	data, rank, err := readAmplitudes(rd)
	if err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Register{
		n:       rank,
		state:   o.backend.NewTensor(rank, data),
		backend: o.backend,
		src:     o.src,
	}, nil
}

// Restore replaces the state with a .npy tensor of the same qubit count. The
// register is unchanged on error.
func (r *Register) Restore(rd io.Reader) error {
	data, rank, err := readAmplitudes(rd)
	if err != nil {
		return err
	}
	if rank != r.n {
		return fmt.Errorf("%w: snapshot has %d qubits, register has %d", ErrQubitMismatch, rank, r.n)
	}
	r.state.CopyFrom(data)
	return nil
}

// FromAmplitudes creates a register holding a copy of data, indexed like
// Amplitudes. It fails with ErrNotNormalized unless sum(|a|^2) is 1.
func FromAmplitudes(data []complex128, opts ...Option) (*Register, error) {
	rank, err := snapshot.RankOf(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQubitCount, err)
	}
	if err := checkAmplitudes(data); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &Register{
		n:       rank,
		state:   o.backend.NewTensor(rank, data),
		backend: o.backend,
		src:     o.src,
	}, nil
}

func readAmplitudes(rd io.Reader) ([]complex128, int, error) {
	data, rank, err := snapshot.ReadNPY(rd)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if err := checkAmplitudes(data); err != nil {
		return nil, 0, err
	}
	return data, rank, nil
}

// normTolerance bounds |sum(|a|^2) - 1| for amplitudes accepted from outside.
const normTolerance = 1e-6

func checkAmplitudes(data []complex128) error {
	if device.HasNonFinite(data) {
		return ErrNonFinite
	}
	sum := simd.SumSquares(data)
	if math.Abs(sum-1) > normTolerance {
		log.Warn().Float64("norm_squared", sum).Msg("rejecting unnormalized amplitudes")
		return fmt.Errorf("%w: squared norm %g", ErrNotNormalized, sum)
	}
	return nil
}
