package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-qsim/internal/client"
	"github.com/23skdu/longbow-qsim/internal/quantum"
	"github.com/23skdu/longbow-qsim/internal/quantum/snapshot"
)

var (
	numQubits     = flag.Int("qubits", 2, "Register size")
	program       = flag.String("program", "h 0\ncx 0 1", "Program text, or @path to read it from a file")
	shots         = flag.Int("shots", 1024, "Histogram samples taken from the final state")
	seed          = flag.Uint64("seed", 0, "Random seed (0 picks one)")
	cpuProfile    = flag.String("cpuprofile", "", "Write cpu profile to file")
	randomJobs    = flag.Int("random", 0, "Run N random circuits instead of -program")
	depth         = flag.Int("depth", 8, "Layer count of -random circuits")
	duration      = flag.Duration("duration", 0, "Run soak test for specified duration (e.g. 10s, 20m)")
	savePath      = flag.String("save", "", "Write the final state to this .npy file")
	loadPath      = flag.String("load", "", "Start from the state in this .npy file (overrides -qubits)")
	arrowOut      = flag.Bool("arrow", false, "Write histograms to stdout as an Arrow IPC stream")
	serverAddr    = flag.String("server", "", "Longbow server address (e.g., localhost:3000)")
	datasetName   = flag.String("dataset", "qsim_results", "Target dataset name on server")
	listenAddr    = flag.String("listen", "", "Address to listen on for HTTP Server (e.g. :8080)")
	flightAddr    = flag.String("flight", "", "Address to listen on for Flight Server (e.g. :9090)")
	maxConcurrent = flag.Int("max-concurrent", 0, "Maximum number of jobs simulated at once (0 = default)")
	enableOTel    = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	maxMemory     = flag.String("max-memory", "4GB", "Amplitude memory admitted across HTTP requests (e.g. 4GB, 512MB)")
)

// parseBytes reads sizes like 4GB, 512MB, 64K or a plain byte count.
func parseBytes(s string) int64 {
	if s == "" || s == "0" {
		return 0
	}
	var val int64
	var unit string
	fmt.Sscanf(s, "%d%s", &val, &unit)

	switch strings.ToUpper(unit) {
	case "GB", "G":
		return val << 30
	case "MB", "M":
		return val << 20
	case "KB", "K":
		return val << 10
	default:
		return val
	}
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	cfg := quantum.DefaultConfig()
	if *maxConcurrent > 0 {
		cfg.Workers = *maxConcurrent
	}
	runner := quantum.NewRunner(cfg)

	// Server Mode
	if *listenAddr != "" {
		var fc FlightClientInterface
		if *serverAddr != "" {
			c, err := client.NewFlightClient(*serverAddr)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create flight client")
			}
			log.Info().Str("addr", *serverAddr).Msg("Connected to Flight Server")
			fc = c
		}

		budget := parseBytes(*maxMemory)
		log.Info().Str("max_memory", *maxMemory).Int64("bytes", budget).Msg("Memory Admission Control")

		srv := NewServer(runner, fc, *datasetName, budget)
		if *flightAddr == "" {
			startServer(*listenAddr, srv)
			return
		}
		go startServer(*listenAddr, srv)
	}

	if *flightAddr != "" {
		StartFlightServer(*flightAddr, runner)
		return
	}

	jobs, err := buildJobs()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid job")
	}

	if *duration > 0 {
		soak(runner, jobs)
		return
	}

	start := time.Now()
	results := runner.RunAll(context.Background(), jobs)
	elapsed := time.Since(start)

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
			log.Error().Str("job", res.ID).Str("error", res.Error).Msg("Job failed")
			continue
		}
		log.Info().
			Str("job", res.ID).
			Strs("outcomes", res.Outcomes).
			Interface("histogram", res.Histogram).
			Dur("elapsed", res.Elapsed).
			Msg("Job complete")
	}
	log.Info().
		Int("count", len(jobs)).
		Int("failed", failed).
		Dur("elapsed", elapsed).
		Msg("Simulated circuits")
	if failed > 0 {
		os.Exit(1)
	}

	if *savePath != "" {
		if err := saveState(*savePath, results[0]); err != nil {
			log.Fatal().Err(err).Str("path", *savePath).Msg("Failed to save state")
		}
		log.Info().Str("path", *savePath).Msg("Saved final state")
	}

	rec, err := client.NewRecordBatchBuilder(memory.NewGoAllocator()).BuildHistogramBatch(results)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build histogram batch")
	}
	if rec == nil {
		return
	}
	defer rec.Release()

	if *serverAddr != "" {
		log.Info().Int64("rows", rec.NumRows()).Str("server", *serverAddr).Str("dataset", *datasetName).Msg("Sending histograms to Longbow")
		flightClient, err := client.NewFlightClient(*serverAddr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Longbow")
		}
		defer func() {
			if err := flightClient.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close flight client")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := flightClient.DoPut(ctx, *datasetName, rec); err != nil {
			log.Fatal().Err(err).Msg("Flight DoPut failed")
		}
		log.Info().Msg("Successfully sent histograms to Longbow")
	} else if *arrowOut {
		if err := writeArrowStream(os.Stdout, rec); err != nil {
			log.Warn().Err(err).Msg("Failed to write arrow stream")
		}
	}
}

// buildJobs turns the command line into jobs.
func buildJobs() ([]quantum.Job, error) {
	if *randomJobs > 0 {
		if *savePath != "" || *loadPath != "" {
			return nil, fmt.Errorf("-save and -load need a single -program job")
		}
		s := *seed
		if s == 0 {
			s = uint64(time.Now().UnixNano())
		}
		return quantum.RandomJobs(s, *randomJobs, *numQubits, *depth, *shots), nil
	}

	src := *program
	if path, ok := strings.CutPrefix(src, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read program: %w", err)
		}
		src = string(b)
	}

	job := quantum.Job{
		ID:          "cli",
		Qubits:      *numQubits,
		Program:     src,
		Shots:       *shots,
		Seed:        *seed,
		ReturnState: *savePath != "",
	}

	if *loadPath != "" {
		f, err := os.Open(*loadPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		data, rank, err := snapshot.ReadNPY(f)
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot: %w", err)
		}
		snap, err := snapshot.NewSnapshot(data)
		if err != nil {
			return nil, err
		}
		job.Qubits = rank
		job.Initial = &snap
	}
	return []quantum.Job{job}, nil
}

func saveState(path string, res quantum.Result) error {
	if res.Amplitudes == nil {
		return fmt.Errorf("job %s returned no state", res.ID)
	}
	data, err := res.Amplitudes.Data()
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := snapshot.WriteNPY(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func soak(runner *quantum.Runner, jobs []quantum.Job) {
	log.Info().Str("duration", duration.String()).Int("jobs", len(jobs)).Msg("Starting soak test")

	startTime := time.Now()
	endTime := startTime.Add(*duration)
	var totalJobs, failures int64
	var iter int

	for time.Now().Before(endTime) {
		for _, res := range runner.RunAll(context.Background(), jobs) {
			if res.Error != "" {
				failures++
			}
		}
		totalJobs += int64(len(jobs))
		iter++

		if iter%10 == 0 {
			elapsed := time.Since(startTime)
			log.Info().
				Str("elapsed", elapsed.Round(time.Second).String()).
				Int("iter", iter).
				Int64("total_jobs", totalJobs).
				Int64("failures", failures).
				Float64("jobs_per_sec", float64(totalJobs)/elapsed.Seconds()).
				Msg("Soak test progress")
		}
	}

	totalElapsed := time.Since(startTime)
	log.Info().
		Int64("total_jobs", totalJobs).
		Int64("failures", failures).
		Dur("total_time", totalElapsed).
		Float64("avg_jobs_per_sec", float64(totalJobs)/totalElapsed.Seconds()).
		Msg("Soak test complete")
}

func writeArrowStream(w io.Writer, rec arrow.RecordBatch) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("qsim"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
