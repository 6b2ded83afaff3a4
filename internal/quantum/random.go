package quantum

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var randomGates = []string{"h", "x", "y", "z", "s", "t", "sdg", "tdg"}

// RandomProgram generates a circuit of the given depth on n qubits. Each layer
// applies a random single-qubit gate or rotation to every qubit followed by a
// ladder of CX gates with random direction. It is meant for soak tests and
// benchmarks.
func RandomProgram(r *rand.Rand, n, depth int) string {
	var sb strings.Builder
	for layer := 0; layer < depth; layer++ {
		for q := 0; q < n; q++ {
			switch r.IntN(3) {
			case 0:
				fmt.Fprintf(&sb, "%s %d\n", randomGates[r.IntN(len(randomGates))], q)
			case 1:
				fmt.Fprintf(&sb, "ry(%g) %d\n", r.Float64()*6.283185307179586, q)
			default:
				fmt.Fprintf(&sb, "u3(%g, %g, %g) %d\n", r.Float64()*3.14, r.Float64()*3.14, r.Float64()*3.14, q)
			}
		}
		for q := layer % 2; q+1 < n; q += 2 {
			if r.IntN(2) == 0 {
				fmt.Fprintf(&sb, "cx %d %d\n", q, q+1)
			} else {
				fmt.Fprintf(&sb, "cx %d %d\n", q+1, q)
			}
		}
	}
	return sb.String()
}

// RandomJobs builds count jobs of random circuits.
func RandomJobs(seed uint64, count, n, depth, shots int) []Job {
	r := rand.New(rand.NewPCG(seed, seed+1))
	jobs := make([]Job, count)
	for i := range jobs {
		jobs[i] = Job{
			ID:      fmt.Sprintf("random-%d", i),
			Qubits:  n,
			Program: RandomProgram(r, n, depth),
			Shots:   shots,
			Seed:    r.Uint64() | 1,
		}
	}
	return jobs
}
