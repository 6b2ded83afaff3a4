package quantum

import "runtime"

// Config controls how a Runner executes jobs.
type Config struct {
	// Workers bounds the number of jobs simulated at once by RunBatch.
	Workers int
	// MaxQubits is the largest register a job may request.
	MaxQubits int
	// MaxShots caps Job.Shots.
	MaxShots int
	// EnableCache stores final states of measurement-free programs.
	EnableCache bool
	// CacheEntries bounds the state cache, 0 means unbounded.
	CacheEntries int
}

// DefaultConfig returns settings suitable for a single host.
func DefaultConfig() Config {
	workers := runtime.NumCPU()
	if workers > 16 {
		workers = 16
	}
	return Config{
		Workers:      workers,
		MaxQubits:    26,
		MaxShots:     1_000_000,
		EnableCache:  true,
		CacheEntries: 256,
	}
}
