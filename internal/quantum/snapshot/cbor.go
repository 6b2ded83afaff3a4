package snapshot

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is the CBOR form of an amplitude buffer. CBOR has no complex
// type, so amplitudes are stored as interleaved real and imaginary parts.
type Snapshot struct {
	Qubits     int       `cbor:"qubits"`
	Amplitudes []float64 `cbor:"amplitudes"`
}

// NewSnapshot packs data into a Snapshot.
func NewSnapshot(data []complex128) (Snapshot, error) {
	rank, err := RankOf(data)
	if err != nil {
		return Snapshot{}, err
	}
	flat := make([]float64, 2*len(data))
	for i, v := range data {
		flat[2*i] = real(v)
		flat[2*i+1] = imag(v)
	}
	return Snapshot{Qubits: rank, Amplitudes: flat}, nil
}

// Data unpacks the amplitudes after checking they match Qubits.
func (s Snapshot) Data() ([]complex128, error) {
	if s.Qubits < 1 || s.Qubits > MaxRank {
		return nil, fmt.Errorf("%w: rank %d outside [1, %d]", ErrBadShape, s.Qubits, MaxRank)
	}
	if len(s.Amplitudes) != 2<<s.Qubits {
		return nil, fmt.Errorf("%w: %d values for %d qubits", ErrBadShape, len(s.Amplitudes), s.Qubits)
	}
	data := make([]complex128, 1<<s.Qubits)
	for i := range data {
		data[i] = complex(s.Amplitudes[2*i], s.Amplitudes[2*i+1])
	}
	return data, nil
}

// WriteCBOR encodes data as a CBOR Snapshot.
func WriteCBOR(w io.Writer, data []complex128) error {
	s, err := NewSnapshot(data)
	if err != nil {
		return err
	}
	return cbor.NewEncoder(w).Encode(s)
}

// ReadCBOR decodes a CBOR Snapshot and returns its amplitudes and rank.
func ReadCBOR(r io.Reader) ([]complex128, int, error) {
	var s Snapshot
	if err := cbor.NewDecoder(r).Decode(&s); err != nil {
		return nil, 0, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	data, err := s.Data()
	if err != nil {
		return nil, 0, err
	}
	return data, s.Qubits, nil
}
