package qubit

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/23skdu/longbow-qsim/internal/device"
	"github.com/23skdu/longbow-qsim/internal/quantum/gates"
)

const (
	// splitThreshold is the measured-qubit count from which the marginal is
	// sampled in two conditional batches instead of one 2^k vector.
	splitThreshold = 21

	// lowBatch is the number of smallest measured qubits sampled first.
	lowBatch = 14
)

// Sample draws an outcome for the given qubits from the current state
// without modifying it.
func (r *Register) Sample(qubits ...int) (Outcome, error) {
	return r.sampleWith(r.src, qubits)
}

func (r *Register) sampleWith(src rand.Source, qubits []int) (Outcome, error) {
	sorted, err := r.sortedQubits(qubits)
	if err != nil {
		return Outcome{}, err
	}
	s, err := newSampler(r.state, sorted, src)
	if err != nil {
		return Outcome{}, err
	}
	return s.draw()
}

// Collapse projects the state onto o and renormalizes it. On ErrZeroNorm the
// register is left as it was.
func (r *Register) Collapse(o Outcome) error {
	sorted, err := r.sortedQubits(o.Qubits)
	if err != nil {
		return err
	}
	if !slices.Equal(sorted, o.Qubits) {
		return fmt.Errorf("%w: outcome qubits %v are not ascending", ErrInvalidArgument, o.Qubits)
	}
	if o.Key < 0 || o.Key >= 1<<len(sorted) {
		return fmt.Errorf("%w: key %d for %d qubits", ErrOutcomeWidth, o.Key, len(sorted))
	}
	mask, value := o.mask()

	next := r.backend.GetTensor(r.n)
	r.state.ProjectInto(next, mask, value)

	norm := next.Norm()
	if norm == 0 {
		r.backend.PutTensor(next)
		return fmt.Errorf("%w: outcome %s", ErrZeroNorm, o)
	}
	next.Scale(1 / norm)

	old := r.state
	r.state = next
	r.backend.PutTensor(old)

	collapses.Inc()
	collapseNorm.Observe(norm)
	log.Debug().Str("outcome", o.String()).Float64("norm", norm).Msg("state collapsed")
	return nil
}

// Measure samples the given qubits, collapses the state onto the result and
// returns it as a bit string, largest qubit first.
func (r *Register) Measure(qubits ...int) (string, error) {
	o, err := r.Sample(qubits...)
	if err != nil {
		return "", err
	}
	if err := r.Collapse(o); err != nil {
		return "", err
	}
	return o.String(), nil
}

// MeasureZ measures q in the computational basis.
func (r *Register) MeasureZ(q int) (int, error) {
	o, err := r.Sample(q)
	if err != nil {
		return 0, err
	}
	if err := r.Collapse(o); err != nil {
		return 0, err
	}
	return o.Key, nil
}

// MeasureX measures q in the Hadamard basis.
func (r *Register) MeasureX(q int) (int, error) {
	return r.measureInBasis(q, gates.Named(gates.H), gates.Named(gates.H))
}

// MeasureY measures q in the Y basis.
func (r *Register) MeasureY(q int) (int, error) {
	// H·S† maps the Y eigenbasis onto the computational one; S·H maps it back.
	h, s, sdg := gates.Named(gates.H), gates.Named(gates.S), gates.Named(gates.SDagger)
	return r.measureInBasis(q, h.Mul(sdg), s.Mul(h))
}

func (r *Register) measureInBasis(q int, into, back gates.Matrix) (int, error) {
	if err := r.Apply(into, q); err != nil {
		return 0, err
	}
	bit, err := r.MeasureZ(q)
	if err != nil {
		return 0, err
	}
	if err := r.Apply(back, q); err != nil {
		return 0, err
	}
	return bit, nil
}

// Reset measures q and flips it back to 0 if needed.
func (r *Register) Reset(q int) error {
	bit, err := r.MeasureZ(q)
	if err != nil {
		return err
	}
	if bit == 1 {
		return r.Apply(gates.Named(gates.X), q)
	}
	return nil
}

// Histogram samples the qubits shots times without collapsing and counts
// each outcome string.
func (r *Register) Histogram(shots int, qubits ...int) (map[string]int, error) {
	return r.HistogramWith(r.src, shots, qubits...)
}

// HistogramWith is Histogram drawing from src. Several calls may run
// concurrently on the same register as long as each has its own source and
// nothing mutates the register meanwhile.
func (r *Register) HistogramWith(src rand.Source, shots int, qubits ...int) (map[string]int, error) {
	if shots < 0 {
		return nil, fmt.Errorf("%w: negative shot count %d", ErrInvalidArgument, shots)
	}
	sorted, err := r.sortedQubits(qubits)
	if err != nil {
		return nil, err
	}
	s, err := newSampler(r.state, sorted, src)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for i := 0; i < shots; i++ {
		o, err := s.draw()
		if err != nil {
			return nil, err
		}
		counts[o.String()]++
	}
	return counts, nil
}

// Probabilities returns the marginal distribution of the given qubits,
// indexed by outcome key (bit r = r-th smallest qubit). It is renormalized to
// sum to 1.
func (r *Register) Probabilities(qubits ...int) ([]float64, error) {
	sorted, err := r.sortedQubits(qubits)
	if err != nil {
		return nil, err
	}
	p := r.state.Marginal(sorted, 0, 0)
	total := floats.Sum(p)
	if total == 0 {
		return nil, ErrZeroNorm
	}
	floats.Scale(1/total, p)
	return p, nil
}

// sampler draws outcomes for a fixed set of qubits from an unchanging state.
// Marginals are reduced once and reused across draws.
type sampler struct {
	state  device.Tensor
	qubits []int
	src    rand.Source

	low  *categorical
	high []int

	// Conditional distributions of the high batch, keyed by low outcome.
	conditional map[int]*categorical
}

func newSampler(state device.Tensor, sorted []int, src rand.Source) (*sampler, error) {
	s := &sampler{state: state, qubits: sorted, src: src}
	lowQubits := sorted
	if len(sorted) >= splitThreshold {
		lowQubits = sorted[:lowBatch]
		s.high = sorted[lowBatch:]
		s.conditional = make(map[int]*categorical)
	}

	low, err := newCategorical(state.Marginal(lowQubits, 0, 0), src)
	if err != nil {
		return nil, err
	}
	s.low = low
	return s, nil
}

func (s *sampler) draw() (Outcome, error) {
	key := s.low.draw()
	if s.high != nil {
		dist, ok := s.conditional[key]
		if !ok {
			var mask, value int
			for r, q := range s.qubits[:lowBatch] {
				mask |= 1 << q
				value |= ((key >> r) & 1) << q
			}
			var err error
			dist, err = newCategorical(s.state.Marginal(s.high, mask, value), s.src)
			if err != nil {
				return Outcome{}, err
			}
			s.conditional[key] = dist
		}
		key |= dist.draw() << lowBatch
	}
	samplesDrawn.Inc()
	return Outcome{Qubits: s.qubits, Key: key}, nil
}

type categorical struct {
	weights []float64
	dist    distuv.Categorical
}

// newCategorical fails with ErrZeroNorm when every weight is zero. Weights
// need not sum to 1; the distribution normalizes by their total.
func newCategorical(weights []float64, src rand.Source) (*categorical, error) {
	if !(floats.Sum(weights) > 0) {
		return nil, ErrZeroNorm
	}
	return &categorical{
		weights: weights,
		dist:    distuv.NewCategorical(weights, src),
	}, nil
}

func (c *categorical) draw() int {
	for {
		i := int(c.dist.Rand())
		// A uniform draw of exactly 0 lands on the first item even when
		// its weight is zero.
		if c.weights[i] > 0 {
			return i
		}
	}
}
