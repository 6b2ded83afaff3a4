package client

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/23skdu/longbow-qsim/internal/quantum"
)

// FlightClient talks Apache Flight to either a Longbow server (result
// forwarding) or another qsim instance (remote job execution).
type FlightClient struct {
	client flight.Client
	conn   *grpc.ClientConn
	mem    memory.Allocator
}

// NewFlightClient creates a new Flight client connected to the given address.
func NewFlightClient(addr string) (*FlightClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}

	return &FlightClient{
		client: flight.NewClientFromConn(conn, nil),
		conn:   conn,
		mem:    memory.NewGoAllocator(),
	}, nil
}

// DoPut sends a RecordBatch to the given dataset and waits for the server to
// acknowledge the stream.
func (c *FlightClient) DoPut(ctx context.Context, datasetName string, record arrow.RecordBatch) error {
	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return err
	}

	writer := flight.NewRecordWriter(stream, ipc.WithSchema(record.Schema()))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{datasetName},
	})

	if err := writer.Write(record); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		if _, err := stream.Recv(); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// Submit ships jobs to a remote qsim Flight server as one JobSchema batch and
// collects the results it acknowledges with.
func (c *FlightClient) Submit(ctx context.Context, jobs []quantum.Job) ([]quantum.Result, error) {
	rec, err := NewRecordBatchBuilder(c.mem).BuildJobBatch(jobs)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	defer rec.Release()

	stream, err := c.client.DoPut(ctx)
	if err != nil {
		return nil, err
	}
	writer := flight.NewRecordWriter(stream, ipc.WithSchema(rec.Schema()))
	writer.SetFlightDescriptor(&flight.FlightDescriptor{
		Type: flight.DescriptorCMD,
		Cmd:  []byte("run"),
	})
	if err := writer.Write(rec); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	results := make([]quantum.Result, 0, len(jobs))
	for {
		put, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return results, err
		}
		var batch []quantum.Result
		if err := cbor.Unmarshal(put.GetAppMetadata(), &batch); err != nil {
			return results, fmt.Errorf("decode put result: %w", err)
		}
		results = append(results, batch...)
	}
	return results, nil
}

// DoGet runs a single job remotely and returns its histogram batches. The
// caller owns the returned records.
func (c *FlightClient) DoGet(ctx context.Context, job quantum.Job) ([]arrow.RecordBatch, error) {
	ticket, err := cbor.Marshal(job)
	if err != nil {
		return nil, err
	}

	stream, err := c.client.DoGet(ctx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		return nil, err
	}
	reader, err := flight.NewRecordReader(stream, ipc.WithAllocator(c.mem))
	if err != nil {
		return nil, err
	}
	defer reader.Release()

	var out []arrow.RecordBatch
	for reader.Next() {
		rec := reader.Record()
		rec.Retain()
		out = append(out, rec)
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		for _, r := range out {
			r.Release()
		}
		return nil, err
	}
	return out, nil
}

// Close closes the client connection.
func (c *FlightClient) Close() error {
	return c.conn.Close()
}
