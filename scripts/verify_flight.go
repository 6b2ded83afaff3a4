//go:build ignore

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-qsim/internal/client"
	"github.com/23skdu/longbow-qsim/internal/quantum"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	addr := "localhost:9090"
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	log.Info().Str("addr", addr).Msg("Connecting to qsim Flight Server")

	c, err := client.NewFlightClient(addr)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create client")
	}
	defer c.Close()

	job := quantum.Job{
		ID:      "verify-ghz",
		Qubits:  4,
		Program: "h 0\ncx 0 1\ncx 1 2\ncx 2 3",
		Shots:   2000,
	}

	// The server may still be starting.
	var recs []arrow.RecordBatch
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		start := time.Now()
		got, err := c.DoGet(ctx, job)
		cancel()
		if err == nil {
			log.Info().Dur("elapsed", time.Since(start)).Int("batches", len(got)).Msg("Received histogram")
			recs = got
			break
		}
		log.Warn().Err(err).Msg("DoGet failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if recs == nil {
		log.Fatal().Msg("No histogram after retries")
	}

	var total int64
	for _, rec := range recs {
		outcomes := rec.Column(1).(*array.String)
		counts := rec.Column(2).(*array.Int64)
		for i := 0; i < int(rec.NumRows()); i++ {
			o := outcomes.Value(i)
			if o != "0000" && o != "1111" {
				log.Fatal().Str("outcome", o).Msg("GHZ correlation broken")
			}
			total += counts.Value(i)
			log.Info().Str("outcome", o).Int64("count", counts.Value(i)).Msg("Outcome")
		}
		rec.Release()
	}
	if total != int64(job.Shots) {
		log.Fatal().Int("expected", job.Shots).Int64("got", total).Msg("Shot count mismatch")
	}

	fmt.Println("VERIFICATION PASSED")
}
