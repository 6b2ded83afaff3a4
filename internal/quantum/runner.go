// Package quantum runs circuit jobs on simulated registers.
package quantum

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/23skdu/longbow-qsim/internal/cache"
	"github.com/23skdu/longbow-qsim/internal/quantum/parser"
	"github.com/23skdu/longbow-qsim/internal/quantum/qubit"
	"github.com/23skdu/longbow-qsim/internal/quantum/snapshot"
)

// ErrInvalidJob is returned for jobs rejected before simulation starts.
var ErrInvalidJob = errors.New("quantum: invalid job")

var tracer = otel.Tracer("qsim-runner")

// Runner executes jobs. It is safe for concurrent use; every job gets its
// own register.
type Runner struct {
	cfg   Config
	cache cache.StateCache
}

// NewRunner creates a runner. A state cache is created when cfg.EnableCache
// is set.
func NewRunner(cfg Config) *Runner {
	var c cache.StateCache
	if cfg.EnableCache {
		c = cache.NewMapCache(cfg.CacheEntries)
	}
	return NewRunnerWithCache(cfg, c)
}

// NewRunnerWithCache creates a runner using c, which may be nil.
func NewRunnerWithCache(cfg Config, c cache.StateCache) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxQubits < 1 || cfg.MaxQubits > qubit.MaxQubits {
		cfg.MaxQubits = qubit.MaxQubits
	}
	return &Runner{cfg: cfg, cache: c}
}

// Config returns the runner settings.
func (r *Runner) Config() Config {
	return r.cfg
}

// StateBytes is the amplitude memory a job of n qubits may hold at once: the
// live state plus the buffer a collapse projects into.
func StateBytes(n int) int64 {
	return 2 * 16 * (int64(1) << n)
}

// Run simulates a single job. The context is checked between instructions.
func (r *Runner) Run(ctx context.Context, job Job) (Result, error) {
	ctx, span := tracer.Start(ctx, "Runner.Run", trace.WithAttributes(
		attribute.String("job_id", job.ID),
		attribute.Int("qubits", job.Qubits),
		attribute.Int("shots", job.Shots),
	))
	defer span.End()

	start := time.Now()
	res, err := r.run(ctx, job)
	res.ID = job.ID
	res.Elapsed = time.Since(start)

	jobDuration.Observe(res.Elapsed.Seconds())
	if err != nil {
		span.RecordError(err)
		jobsTotal.WithLabelValues("error").Inc()
		res.Error = err.Error()
		return res, err
	}
	jobsTotal.WithLabelValues("ok").Inc()
	log.Debug().
		Str("job", job.ID).
		Int("qubits", job.Qubits).
		Dur("elapsed", res.Elapsed).
		Bool("cached", res.Cached).
		Msg("Job complete")
	return res, nil
}

func (r *Runner) run(ctx context.Context, job Job) (Result, error) {
	prog, err := r.validate(job)
	if err != nil {
		return Result{}, err
	}
	jobQubits.Observe(float64(job.Qubits))

	opts := []qubit.Option{}
	if job.Seed != 0 {
		opts = append(opts, qubit.WithSeed(job.Seed))
	}

	var res Result
	var reg *qubit.Register

	if job.Initial != nil {
		amps, err := job.Initial.Data()
		if err != nil {
			return Result{}, fmt.Errorf("%w: initial state: %v", ErrInvalidJob, err)
		}
		reg, err = qubit.FromAmplitudes(amps, opts...)
		if err != nil {
			return Result{}, fmt.Errorf("failed to load initial state: %w", err)
		}
		res.Outcomes, err = execute(ctx, reg, prog)
		if err != nil {
			reg.Release()
			return Result{}, err
		}
	}

	cacheable := reg == nil && r.cache != nil && prog.Unitary()
	var key uint64
	if cacheable {
		key = cache.Key(job.Qubits, prog.String())
		if amps, ok := r.cache.Get(key); ok {
			cacheHits.Inc()
			reg, err = qubit.FromAmplitudes(amps, opts...)
			if err != nil {
				log.Warn().Err(err).Str("job", job.ID).Msg("Discarding corrupt cache entry")
				reg = nil
			} else {
				res.Cached = true
			}
		} else {
			cacheMisses.Inc()
		}
	}

	if reg == nil {
		reg, err = qubit.New(job.Qubits, opts...)
		if err != nil {
			return Result{}, err
		}
		res.Outcomes, err = execute(ctx, reg, prog)
		if err != nil {
			reg.Release()
			return Result{}, err
		}
		if cacheable {
			r.cache.Put(key, reg.Amplitudes())
		}
	}
	defer reg.Release()

	if job.Shots > 0 {
		measured := job.Measure
		if len(measured) == 0 {
			measured = allQubits(job.Qubits)
		}
		res.Histogram, err = reg.Histogram(job.Shots, measured...)
		if err != nil {
			return Result{}, fmt.Errorf("failed to sample histogram: %w", err)
		}
	}

	if job.ReturnState {
		snap, err := snapshot.NewSnapshot(reg.Amplitudes())
		if err != nil {
			return Result{}, err
		}
		res.Amplitudes = &snap
	}
	return res, nil
}

func (r *Runner) validate(job Job) (*parser.Program, error) {
	if job.Qubits < 1 || job.Qubits > r.cfg.MaxQubits {
		return nil, fmt.Errorf("%w: %d qubits, limit is %d", ErrInvalidJob, job.Qubits, r.cfg.MaxQubits)
	}
	if job.Shots < 0 || job.Shots > r.cfg.MaxShots {
		return nil, fmt.Errorf("%w: %d shots, limit is %d", ErrInvalidJob, job.Shots, r.cfg.MaxShots)
	}
	prog, err := parser.Parse(job.Program)
	if err != nil {
		return nil, fmt.Errorf("failed to parse program: %w", err)
	}
	if job.Initial != nil && job.Initial.Qubits != job.Qubits {
		return nil, fmt.Errorf("%w: initial state has %d qubits, job has %d", ErrInvalidJob, job.Initial.Qubits, job.Qubits)
	}
	if m := prog.MaxQubit(); m >= job.Qubits {
		return nil, fmt.Errorf("%w: program uses qubit %d of a %d-qubit register", ErrInvalidJob, m, job.Qubits)
	}
	return prog, nil
}

// execute runs every instruction of prog on reg and returns the measurement
// outcomes in order.
func execute(ctx context.Context, reg *qubit.Register, prog *parser.Program) ([]string, error) {
	var outcomes []string
	for i, in := range prog.Instructions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var err error
		switch in.Op {
		case parser.OpGate:
			m, mErr := in.Matrix()
			if mErr != nil {
				return nil, mErr
			}
			err = reg.Apply(m, in.Qubits[0], in.Controls...)
		case parser.OpMeasure:
			qubits := in.Qubits
			if len(qubits) == 0 {
				qubits = allQubits(reg.Qubits())
			}
			var o string
			if o, err = reg.Measure(qubits...); err == nil {
				outcomes = append(outcomes, o)
			}
		case parser.OpMeasureX, parser.OpMeasureY, parser.OpMeasureZ:
			var bit int
			switch in.Op {
			case parser.OpMeasureX:
				bit, err = reg.MeasureX(in.Qubits[0])
			case parser.OpMeasureY:
				bit, err = reg.MeasureY(in.Qubits[0])
			default:
				bit, err = reg.MeasureZ(in.Qubits[0])
			}
			if err == nil {
				outcomes = append(outcomes, strconv.Itoa(bit))
			}
		case parser.OpReset:
			err = reg.Reset(in.Qubits[0])
		case parser.OpResetAll:
			reg.ResetAll()
		case parser.OpBarrier:
		}
		if err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i+1, in, err)
		}
	}
	return outcomes, nil
}

// RunBatch runs jobs on up to Config.Workers goroutines and streams results
// as they complete. Once ctx is done no further jobs are started; the channel
// is closed after every started job has reported.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job) <-chan StreamResult {
	out := make(chan StreamResult, len(jobs))

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(r.cfg.Workers)
		for i, job := range jobs {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				res, err := r.Run(ctx, job)
				out <- StreamResult{Offset: i, Result: res, Err: err}
				return nil
			})
		}
		_ = g.Wait()
	}()

	return out
}

// RunAll runs jobs and returns results in submission order. Jobs that were
// never started because ctx ended carry the context error.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	done := make([]bool, len(jobs))
	for sr := range r.RunBatch(ctx, jobs) {
		results[sr.Offset] = sr.Result
		done[sr.Offset] = true
	}
	for i := range results {
		if !done[i] {
			results[i] = Result{ID: jobs[i].ID, Error: context.Cause(ctx).Error()}
		}
	}
	return results
}

func allQubits(n int) []int {
	qs := make([]int, n)
	for i := range qs {
		qs[i] = i
	}
	return qs
}
