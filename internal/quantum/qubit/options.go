package qubit

import (
	"math/rand/v2"

	"github.com/23skdu/longbow-qsim/internal/device"
)

// defaultBackend is shared by every register that does not bring its own, so
// collapsed buffers are recycled across registers.
var defaultBackend device.Backend = device.NewCPUBackend()

type options struct {
	src     rand.Source
	backend device.Backend
}

// Option configures a Register.
type Option func(*options)

// WithSeed makes measurement outcomes reproducible.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.src = rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	}
}

// WithSource sets the randomness source used by Sample and Measure.
func WithSource(src rand.Source) Option {
	return func(o *options) {
		o.src = src
	}
}

// WithBackend sets the backend that allocates amplitude buffers.
func WithBackend(b device.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

func newOptions(opts []Option) options {
	o := options{backend: defaultBackend}
	for _, opt := range opts {
		opt(&o)
	}
	if o.src == nil {
		o.src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return o
}
