package quantum

import (
	"time"

	"github.com/23skdu/longbow-qsim/internal/quantum/snapshot"
)

// Job describes one simulation: a register size, a program to run on it and
// what to report afterwards.
type Job struct {
	ID      string `cbor:"id"`
	Qubits  int    `cbor:"qubits"`
	Program string `cbor:"program"`
	// Shots is the number of non-collapsing samples taken from the final
	// state for Histogram.
	Shots int `cbor:"shots,omitempty"`
	// Measure lists the qubits sampled for the histogram. Empty means all.
	Measure []int `cbor:"measure,omitempty"`
	// Seed makes the run reproducible. Zero picks a random seed.
	Seed        uint64 `cbor:"seed,omitempty"`
	ReturnState bool   `cbor:"return_state,omitempty"`
	// Initial replaces |0...0> as the starting state. Its qubit count must
	// equal Qubits. Jobs with an initial state are never cached.
	Initial *snapshot.Snapshot `cbor:"initial,omitempty"`
}

// Result is what a Job produced.
type Result struct {
	ID string `cbor:"id"`
	// Outcomes holds the result of every measurement instruction, in
	// program order.
	Outcomes   []string           `cbor:"outcomes,omitempty"`
	Histogram  map[string]int     `cbor:"histogram,omitempty"`
	Amplitudes *snapshot.Snapshot `cbor:"amplitudes,omitempty"`
	Elapsed    time.Duration      `cbor:"elapsed_ns"`
	Cached     bool               `cbor:"cached,omitempty"`
	Error      string             `cbor:"error,omitempty"`
}

// StreamResult is one entry of a RunBatch stream. Offset is the index of the
// job in the submitted batch.
type StreamResult struct {
	Offset int
	Result Result
	Err    error
}
