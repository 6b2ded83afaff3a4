package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-qsim/internal/client"
	"github.com/23skdu/longbow-qsim/internal/quantum"
	"github.com/23skdu/longbow-qsim/internal/quantum/qubit"
)

var (
	jobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_http_jobs_submitted_total",
		Help: "The total number of jobs received over HTTP",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qsim_request_duration_seconds",
		Help:    "Time spent processing run requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	forwardFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qsim_forward_failures_total",
		Help: "Result batches that could not be forwarded to Longbow",
	})
)

// JobRunner executes simulation jobs.
type JobRunner interface {
	RunBatch(ctx context.Context, jobs []quantum.Job) <-chan quantum.StreamResult
	RunAll(ctx context.Context, jobs []quantum.Job) []quantum.Result
}

type FlightClientInterface interface {
	DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error
	Close() error
}

var _ JobRunner = (*quantum.Runner)(nil)

type Server struct {
	runner       JobRunner
	flightClient FlightClientInterface
	breaker      *client.CircuitBreaker
	datasetName  string
	builder      *client.RecordBatchBuilder
	sem          *semaphore.Weighted
	maxMemory    int64
}

// NewServer creates the HTTP front end. maxMemory bounds the amplitude bytes
// held by in-flight requests; 0 disables admission control.
func NewServer(runner JobRunner, fc FlightClientInterface, dataset string, maxMemory int64) *Server {
	s := &Server{
		runner:       runner,
		flightClient: fc,
		datasetName:  dataset,
		builder:      client.NewRecordBatchBuilder(memory.NewGoAllocator()),
		maxMemory:    maxMemory,
	}
	if fc != nil {
		s.breaker = client.NewCircuitBreaker("longbow", 5, 30*time.Second)
	}
	if maxMemory > 0 {
		s.sem = semaphore.NewWeighted(maxMemory)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/run", s.handleRun)
	mux.HandleFunc("/run/arrow", s.handleRunArrow)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func startServer(addr string, srv *Server) {
	log.Info().Str("addr", addr).Msg("Starting qsim HTTP server")
	if srv.flightClient != nil {
		log.Info().Str("dataset", srv.datasetName).Msg("Forwarding results to Longbow")
	}

	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

var tracer = otel.Tracer("qsim-server")

var errTooLarge = errors.New("job exceeds the memory budget")

// admit reserves amplitude memory for jobs. The returned func releases it.
func (s *Server) admit(ctx context.Context, jobs []quantum.Job) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}
	var weight int64
	for _, j := range jobs {
		if j.Qubits < 1 || j.Qubits > qubit.MaxQubits {
			continue // rejected by the runner
		}
		b := quantum.StateBytes(j.Qubits)
		if b > s.maxMemory {
			return nil, fmt.Errorf("%w: job %q needs %d bytes, budget is %d", errTooLarge, j.ID, b, s.maxMemory)
		}
		weight += b
	}
	weight = min(weight, s.maxMemory)
	if weight == 0 {
		return func() {}, nil
	}
	if err := s.sem.Acquire(ctx, weight); err != nil {
		return nil, err
	}
	return func() { s.sem.Release(weight) }, nil
}

func (s *Server) decodeJobs(w http.ResponseWriter, r *http.Request) ([]quantum.Job, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	var jobs []quantum.Job
	if err := cbor.NewDecoder(r.Body).Decode(&jobs); err != nil {
		http.Error(w, fmt.Sprintf("Bad Request (CBOR decode): %v", err), http.StatusBadRequest)
		return nil, false
	}
	jobsSubmitted.Add(float64(len(jobs)))
	return jobs, true
}

func (s *Server) admitOrFail(ctx context.Context, w http.ResponseWriter, jobs []quantum.Job) (func(), bool) {
	release, err := s.admit(ctx, jobs)
	if errors.Is(err, errTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return nil, false
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return nil, false
	}
	return release, true
}

// handleRun takes a CBOR []Job and answers with a CBOR []Result in the same
// order. Per-job failures are reported in Result.Error.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleRun")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("run").Observe(time.Since(start).Seconds())
	}()

	jobs, ok := s.decodeJobs(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("job_count", len(jobs)))

	release, ok := s.admitOrFail(ctx, w, jobs)
	if !ok {
		return
	}
	results := s.runner.RunAll(ctx, jobs)
	release()

	s.forward(ctx, results)

	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	if err := cbor.NewEncoder(w).Encode(results); err != nil {
		log.Error().Err(err).Msg("Failed to encode results")
	}
}

// handleRunArrow takes a CBOR []Job and streams histogram batches as Arrow
// IPC, one batch per job as it completes. Jobs without shots or that failed
// produce no batch.
func (s *Server) handleRunArrow(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleRunArrow")
	defer span.End()

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues("run_arrow").Observe(time.Since(start).Seconds())
	}()

	jobs, ok := s.decodeJobs(w, r)
	if !ok {
		return
	}
	span.SetAttributes(attribute.Int("job_count", len(jobs)))

	release, ok := s.admitOrFail(ctx, w, jobs)
	if !ok {
		return
	}
	defer release()

	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	writer := ipc.NewWriter(w, ipc.WithSchema(client.HistogramSchema))
	defer func() {
		if err := writer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close arrow stream")
		}
	}()

	failed := 0
	for sr := range s.runner.RunBatch(ctx, jobs) {
		if sr.Err != nil {
			failed++
			log.Warn().Err(sr.Err).Str("job", sr.Result.ID).Msg("Job failed")
			continue
		}
		rec, err := s.builder.BuildHistogramBatch([]quantum.Result{sr.Result})
		if err != nil {
			log.Error().Err(err).Msg("Failed to build histogram batch")
			continue
		}
		if rec == nil {
			continue
		}
		err = writer.Write(rec)
		rec.Release()
		if err != nil {
			log.Error().Err(err).Msg("Failed to write arrow batch")
			return
		}
		s.forward(ctx, []quantum.Result{sr.Result})
	}
	span.SetAttributes(attribute.Int("failed", failed))
}

// forward sends histograms and requested states to Longbow. Failures are
// logged and never fail the request.
func (s *Server) forward(ctx context.Context, results []quantum.Result) {
	if s.flightClient == nil {
		return
	}

	if rec, err := s.builder.BuildHistogramBatch(results); err != nil {
		log.Error().Err(err).Msg("Failed to build histogram batch")
	} else if rec != nil {
		s.put(ctx, s.datasetName, rec)
		rec.Release()
	}

	for _, res := range results {
		if res.Amplitudes == nil {
			continue
		}
		amps, err := res.Amplitudes.Data()
		if err != nil {
			log.Error().Err(err).Str("job", res.ID).Msg("Invalid state snapshot")
			continue
		}
		rec, err := s.builder.BuildAmplitudeBatch(res.ID, amps)
		if err != nil || rec == nil {
			continue
		}
		s.put(ctx, s.datasetName+"_states", rec)
		rec.Release()
	}
}

func (s *Server) put(ctx context.Context, dataset string, rec arrow.RecordBatch) {
	err := s.breaker.Execute(func() error {
		return s.flightClient.DoPut(ctx, dataset, rec)
	})
	switch {
	case errors.Is(err, client.ErrCircuitOpen):
		forwardFailures.Inc()
		log.Warn().Str("dataset", dataset).Msg("Circuit open, dropping batch")
	case err != nil:
		forwardFailures.Inc()
		log.Error().Err(err).Str("dataset", dataset).Msg("Error forwarding batch to Longbow")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
