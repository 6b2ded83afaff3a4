package client

import (
	"fmt"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/23skdu/longbow-qsim/internal/quantum"
)

var (
	// HistogramSchema has one row per (job, outcome) pair.
	HistogramSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: "job_id", Type: arrow.BinaryTypes.String},
			{Name: "outcome", Type: arrow.BinaryTypes.String},
			{Name: "count", Type: arrow.PrimitiveTypes.Int64},
			{Name: "probability", Type: arrow.PrimitiveTypes.Float64},
		},
		nil,
	)

	// AmplitudeSchema has one row per basis state.
	AmplitudeSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: "job_id", Type: arrow.BinaryTypes.String},
			{Name: "basis", Type: arrow.BinaryTypes.String},
			{Name: "real", Type: arrow.PrimitiveTypes.Float64},
			{Name: "imag", Type: arrow.PrimitiveTypes.Float64},
			{Name: "probability", Type: arrow.PrimitiveTypes.Float64},
		},
		nil,
	)

	// JobSchema carries job submissions, one row per job.
	JobSchema = arrow.NewSchema(
		[]arrow.Field{
			{Name: "id", Type: arrow.BinaryTypes.String},
			{Name: "qubits", Type: arrow.PrimitiveTypes.Int32},
			{Name: "program", Type: arrow.BinaryTypes.String},
			{Name: "shots", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
			{Name: "measure", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32), Nullable: true},
			{Name: "seed", Type: arrow.PrimitiveTypes.Uint64, Nullable: true},
			{Name: "return_state", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
		},
		nil,
	)
)

// RecordBatchBuilder creates Arrow RecordBatches from simulation results.
type RecordBatchBuilder struct {
	mem memory.Allocator
}

// NewRecordBatchBuilder creates a new builder.
func NewRecordBatchBuilder(mem memory.Allocator) *RecordBatchBuilder {
	return &RecordBatchBuilder{mem: mem}
}

// BuildHistogramBatch flattens the histograms of results into a RecordBatch.
// Outcomes of a job are emitted in lexical order. Histograms without any
// counts are skipped; it returns nil when no result is left.
func (b *RecordBatchBuilder) BuildHistogramBatch(results []quantum.Result) (arrow.RecordBatch, error) {
	rb := array.NewRecordBuilder(b.mem, HistogramSchema)
	defer rb.Release()

	ids := rb.Field(0).(*array.StringBuilder)
	outcomes := rb.Field(1).(*array.StringBuilder)
	counts := rb.Field(2).(*array.Int64Builder)
	probs := rb.Field(3).(*array.Float64Builder)

	rows := 0
	for _, res := range results {
		if len(res.Histogram) == 0 {
			continue
		}
		total := 0
		for _, n := range res.Histogram {
			total += n
		}
		if total <= 0 {
			continue
		}
		keys := make([]string, 0, len(res.Histogram))
		for k := range res.Histogram {
			keys = append(keys, k)
		}
		slices.Sort(keys)

		for _, k := range keys {
			n := res.Histogram[k]
			ids.Append(res.ID)
			outcomes.Append(k)
			counts.Append(int64(n))
			probs.Append(float64(n) / float64(total))
			rows++
		}
	}

	if rows == 0 {
		return nil, nil
	}
	return finish(rb, rows), nil
}

// BuildAmplitudeBatch converts a state vector into a RecordBatch. The basis
// column prints the largest qubit first.
func (b *RecordBatchBuilder) BuildAmplitudeBatch(jobID string, amps []complex128) (arrow.RecordBatch, error) {
	if len(amps) == 0 {
		return nil, nil
	}
	if len(amps)&(len(amps)-1) != 0 {
		return nil, fmt.Errorf("amplitude count %d is not a power of two", len(amps))
	}
	n := 0
	for 1<<n < len(amps) {
		n++
	}

	rb := array.NewRecordBuilder(b.mem, AmplitudeSchema)
	defer rb.Release()

	ids := rb.Field(0).(*array.StringBuilder)
	basis := rb.Field(1).(*array.StringBuilder)
	re := rb.Field(2).(*array.Float64Builder)
	im := rb.Field(3).(*array.Float64Builder)
	probs := rb.Field(4).(*array.Float64Builder)

	ids.Reserve(len(amps))
	re.Reserve(len(amps))
	im.Reserve(len(amps))
	probs.Reserve(len(amps))

	for i, a := range amps {
		ids.Append(jobID)
		basis.Append(basisString(i, n))
		re.Append(real(a))
		im.Append(imag(a))
		probs.Append(real(a)*real(a) + imag(a)*imag(a))
	}
	return finish(rb, len(amps)), nil
}

// BuildJobBatch packs jobs into a RecordBatch of JobSchema.
func (b *RecordBatchBuilder) BuildJobBatch(jobs []quantum.Job) (arrow.RecordBatch, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	rb := array.NewRecordBuilder(b.mem, JobSchema)
	defer rb.Release()

	ids := rb.Field(0).(*array.StringBuilder)
	qubits := rb.Field(1).(*array.Int32Builder)
	programs := rb.Field(2).(*array.StringBuilder)
	shots := rb.Field(3).(*array.Int64Builder)
	measure := rb.Field(4).(*array.ListBuilder)
	measureValues := measure.ValueBuilder().(*array.Int32Builder)
	seeds := rb.Field(5).(*array.Uint64Builder)
	returnState := rb.Field(6).(*array.BooleanBuilder)

	for _, j := range jobs {
		ids.Append(j.ID)
		qubits.Append(int32(j.Qubits))
		programs.Append(j.Program)
		shots.Append(int64(j.Shots))
		measure.Append(true)
		for _, q := range j.Measure {
			measureValues.Append(int32(q))
		}
		seeds.Append(j.Seed)
		returnState.Append(j.ReturnState)
	}
	return finish(rb, len(jobs)), nil
}

// ReadJobs decodes a RecordBatch of JobSchema. Columns are looked up by name;
// only id, qubits and program are required.
func ReadJobs(rec arrow.RecordBatch) ([]quantum.Job, error) {
	col := func(name string) arrow.Array {
		if idx := rec.Schema().FieldIndices(name); len(idx) > 0 {
			return rec.Column(idx[0])
		}
		return nil
	}

	ids, ok := col("id").(*array.String)
	if !ok {
		return nil, fmt.Errorf("job batch: missing string column %q", "id")
	}
	qubits, ok := col("qubits").(*array.Int32)
	if !ok {
		return nil, fmt.Errorf("job batch: missing int32 column %q", "qubits")
	}
	programs, ok := col("program").(*array.String)
	if !ok {
		return nil, fmt.Errorf("job batch: missing string column %q", "program")
	}
	shots, _ := col("shots").(*array.Int64)
	measure, _ := col("measure").(*array.List)
	seeds, _ := col("seed").(*array.Uint64)
	returnState, _ := col("return_state").(*array.Boolean)

	jobs := make([]quantum.Job, rec.NumRows())
	for i := range jobs {
		j := quantum.Job{
			ID:      ids.Value(i),
			Qubits:  int(qubits.Value(i)),
			Program: programs.Value(i),
		}
		if shots != nil && shots.IsValid(i) {
			j.Shots = int(shots.Value(i))
		}
		if seeds != nil && seeds.IsValid(i) {
			j.Seed = seeds.Value(i)
		}
		if returnState != nil && returnState.IsValid(i) {
			j.ReturnState = returnState.Value(i)
		}
		if measure != nil && measure.IsValid(i) {
			values, ok := measure.ListValues().(*array.Int32)
			if !ok {
				return nil, fmt.Errorf("job batch: measure must be list<int32>")
			}
			start, end := measure.ValueOffsets(i)
			for k := start; k < end; k++ {
				j.Measure = append(j.Measure, int(values.Value(int(k))))
			}
		}
		jobs[i] = j
	}
	return jobs, nil
}

// finish drains every field builder into a RecordBatch.
func finish(rb *array.RecordBuilder, rows int) arrow.RecordBatch {
	fields := rb.Fields()
	cols := make([]arrow.Array, len(fields))
	for i, f := range fields {
		cols[i] = f.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()
	return array.NewRecordBatch(rb.Schema(), cols, int64(rows))
}

func basisString(i, n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for q := n - 1; q >= 0; q-- {
		if i&(1<<q) != 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
