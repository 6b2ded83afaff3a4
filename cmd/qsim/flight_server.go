package main

import (
	"context"
	"errors"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-qsim/internal/client"
	"github.com/23skdu/longbow-qsim/internal/quantum"
)

// QsimFlightServer exposes the runner over Arrow Flight. DoGet takes a CBOR
// encoded Job as its ticket; DoPut takes JobSchema batches and acknowledges
// each with the CBOR encoded results.
type QsimFlightServer struct {
	flight.BaseFlightServer
	runner JobRunner
	alloc  memory.Allocator
}

func NewQsimFlightServer(runner JobRunner) *QsimFlightServer {
	return &QsimFlightServer{
		runner: runner,
		alloc:  memory.NewGoAllocator(),
	}
}

func (s *QsimFlightServer) DoGet(ticket *flight.Ticket, stream flight.FlightService_DoGetServer) error {
	ctx, span := tracer.Start(stream.Context(), "Flight.DoGet", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	var job quantum.Job
	if err := cbor.Unmarshal(ticket.GetTicket(), &job); err != nil {
		return status.Errorf(codes.InvalidArgument, "ticket is not a CBOR job: %v", err)
	}
	span.SetAttributes(attribute.String("job_id", job.ID), attribute.Int("qubits", job.Qubits))

	res := s.runner.RunAll(ctx, []quantum.Job{job})[0]
	if res.Error != "" {
		if ctx.Err() != nil {
			return status.FromContextError(ctx.Err()).Err()
		}
		return status.Error(codes.InvalidArgument, res.Error)
	}

	builder := client.NewRecordBatchBuilder(s.alloc)
	var (
		rec arrow.RecordBatch
		err error
	)
	switch {
	case len(res.Histogram) > 0:
		rec, err = builder.BuildHistogramBatch([]quantum.Result{res})
	case res.Amplitudes != nil:
		amps, dErr := res.Amplitudes.Data()
		if dErr != nil {
			return status.Error(codes.Internal, dErr.Error())
		}
		rec, err = builder.BuildAmplitudeBatch(res.ID, amps)
	default:
		return status.Error(codes.InvalidArgument, "job requests neither shots nor state")
	}
	if err != nil {
		return status.Error(codes.Internal, err.Error())
	}
	defer rec.Release()

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(s.alloc))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (s *QsimFlightServer) DoPut(stream flight.FlightService_DoPutServer) error {
	ctx, span := tracer.Start(stream.Context(), "Flight.DoPut", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(s.alloc))
	if err != nil {
		return err
	}
	defer reader.Release()

	total := 0
	for reader.Next() {
		rec := reader.Record()
		jobs, err := client.ReadJobs(rec)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		log.Info().Int64("rows", rec.NumRows()).Msg("DoPut received job batch")

		results := s.runner.RunAll(ctx, jobs)
		payload, err := cbor.Marshal(results)
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if err := stream.Send(&flight.PutResult{AppMetadata: payload}); err != nil {
			return err
		}
		total += len(jobs)
	}
	span.SetAttributes(attribute.Int("job_count", total))

	if err := reader.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func StartFlightServer(addr string, runner JobRunner) {
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(NewQsimFlightServer(runner))

	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting qsim Flight server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
