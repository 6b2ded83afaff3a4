package client

import (
	"context"
	"sync"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-qsim/internal/quantum"
)

type mockFlightServer struct {
	flight.BaseFlightServer
	mu          sync.Mutex
	descriptors []*flight.FlightDescriptor
	records     []arrow.RecordBatch
	tickets     []quantum.Job
}

func (s *mockFlightServer) DoPut(server flight.FlightService_DoPutServer) error {
	reader, err := flight.NewRecordReader(server)
	if err != nil {
		return err
	}
	defer reader.Release()

	// The descriptor travels on the first message only.
	desc := reader.LatestFlightDescriptor()

	var results []quantum.Result
	for reader.Next() {
		if desc == nil {
			desc = reader.LatestFlightDescriptor()
		}
		rec := reader.Record()
		rec.Retain()

		s.mu.Lock()
		s.records = append(s.records, rec)
		s.mu.Unlock()

		if jobs, err := ReadJobs(rec); err == nil {
			for _, j := range jobs {
				results = append(results, quantum.Result{ID: j.ID, Histogram: map[string]int{"0": j.Shots}})
			}
		}
	}

	s.mu.Lock()
	s.descriptors = append(s.descriptors, desc)
	s.mu.Unlock()

	payload, err := cbor.Marshal(results)
	if err != nil {
		return err
	}
	return server.Send(&flight.PutResult{AppMetadata: payload})
}

func (s *mockFlightServer) DoGet(ticket *flight.Ticket, server flight.FlightService_DoGetServer) error {
	var job quantum.Job
	if err := cbor.Unmarshal(ticket.GetTicket(), &job); err != nil {
		return err
	}
	s.mu.Lock()
	s.tickets = append(s.tickets, job)
	s.mu.Unlock()

	if job.Shots == 0 {
		return status.Errorf(codes.InvalidArgument, "job %s has no shots", job.ID)
	}

	rec, err := NewRecordBatchBuilder(memory.NewGoAllocator()).BuildHistogramBatch([]quantum.Result{
		{ID: job.ID, Histogram: map[string]int{"00": job.Shots / 2, "11": job.Shots - job.Shots/2}},
	})
	if err != nil {
		return err
	}
	if rec == nil {
		return status.Error(codes.Internal, "empty histogram")
	}
	defer rec.Release()

	writer := flight.NewRecordWriter(server, ipc.WithSchema(rec.Schema()))
	defer writer.Close()
	return writer.Write(rec)
}

func (s *mockFlightServer) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		r.Release()
	}
}

func startMockServer(t *testing.T) (*mockFlightServer, *FlightClient) {
	t.Helper()
	mock := &mockFlightServer{}
	server := flight.NewServerWithMiddleware(nil)
	server.RegisterFlightService(mock)

	require.NoError(t, server.Init("localhost:0"))
	go func() {
		_ = server.Serve()
	}()

	client, err := NewFlightClient(server.Addr().String())
	require.NoError(t, err)

	t.Cleanup(func() {
		client.Close()
		server.Shutdown()
		mock.release()
	})
	return mock, client
}

func TestFlightClient_DoPut(t *testing.T) {
	mock, client := startMockServer(t)

	rb, err := NewRecordBatchBuilder(memory.NewGoAllocator()).BuildAmplitudeBatch("bell", []complex128{1, 0, 0, 0})
	require.NoError(t, err)
	defer rb.Release()

	err = client.DoPut(context.Background(), "qsim-states", rb)
	require.NoError(t, err)

	mock.mu.Lock()
	defer mock.mu.Unlock()
	require.Len(t, mock.records, 1)
	assert.Equal(t, int64(4), mock.records[0].NumRows())
	require.Len(t, mock.descriptors, 1)
	assert.Equal(t, []string{"qsim-states"}, mock.descriptors[0].GetPath())
}

func TestFlightClient_Submit(t *testing.T) {
	_, client := startMockServer(t)

	jobs := []quantum.Job{
		{ID: "a", Qubits: 1, Program: "h 0", Shots: 10},
		{ID: "b", Qubits: 2, Program: "x 1", Shots: 4},
	}
	results, err := client.Submit(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, 4, results[1].Histogram["0"])

	results, err = client.Submit(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
}

func TestFlightClient_DoGet(t *testing.T) {
	mock, client := startMockServer(t)

	recs, err := client.DoGet(context.Background(), quantum.Job{ID: "bell", Qubits: 2, Program: "h 0\ncx 0 1", Shots: 8})
	require.NoError(t, err)
	defer func() {
		for _, r := range recs {
			r.Release()
		}
	}()

	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].NumRows())

	mock.mu.Lock()
	tickets := append([]quantum.Job(nil), mock.tickets...)
	mock.mu.Unlock()
	require.Len(t, tickets, 1)
	assert.Equal(t, "h 0\ncx 0 1", tickets[0].Program)

	_, err = client.DoGet(context.Background(), quantum.Job{ID: "empty", Qubits: 1, Program: "x 0"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "has no shots")
}
