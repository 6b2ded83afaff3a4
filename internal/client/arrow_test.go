package client

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-qsim/internal/quantum"
)

func TestBuildHistogramBatch(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)
	builder := NewRecordBatchBuilder(pool)

	t.Run("Empty input", func(t *testing.T) {
		rb, err := builder.BuildHistogramBatch(nil)
		assert.NoError(t, err)
		assert.Nil(t, rb)

		rb, err = builder.BuildHistogramBatch([]quantum.Result{{ID: "no-shots"}})
		assert.NoError(t, err)
		assert.Nil(t, rb)

		rb, err = builder.BuildHistogramBatch([]quantum.Result{{ID: "zero", Histogram: map[string]int{"00": 0, "11": 0}}})
		assert.NoError(t, err)
		assert.Nil(t, rb)
	})

	t.Run("Zero-count histograms are skipped", func(t *testing.T) {
		rb, err := builder.BuildHistogramBatch([]quantum.Result{
			{ID: "zero", Histogram: map[string]int{"0": 0}},
			{ID: "one", Histogram: map[string]int{"1": 2}},
		})
		require.NoError(t, err)
		require.NotNil(t, rb)
		defer rb.Release()

		assert.Equal(t, int64(1), rb.NumRows())
		assert.Equal(t, "one", rb.Column(0).(*array.String).Value(0))
		probs := rb.Column(3).(*array.Float64)
		assert.False(t, math.IsNaN(probs.Value(0)))
		assert.Equal(t, 1.0, probs.Value(0))
	})

	t.Run("Valid input", func(t *testing.T) {
		results := []quantum.Result{
			{ID: "bell", Histogram: map[string]int{"11": 3, "00": 1}},
			{ID: "skip"},
			{ID: "one", Histogram: map[string]int{"1": 5}},
		}

		rb, err := builder.BuildHistogramBatch(results)
		require.NoError(t, err)
		require.NotNil(t, rb)
		defer rb.Release()

		assert.Equal(t, int64(3), rb.NumRows())
		assert.Equal(t, int64(4), rb.NumCols())
		assert.Equal(t, "outcome", rb.ColumnName(1))

		ids := rb.Column(0).(*array.String)
		outcomes := rb.Column(1).(*array.String)
		counts := rb.Column(2).(*array.Int64)
		probs := rb.Column(3).(*array.Float64)

		assert.Equal(t, []string{"bell", "bell", "one"}, []string{ids.Value(0), ids.Value(1), ids.Value(2)})
		assert.Equal(t, []string{"00", "11", "1"}, []string{outcomes.Value(0), outcomes.Value(1), outcomes.Value(2)})
		assert.Equal(t, []int64{1, 3, 5}, counts.Int64Values())
		assert.InDelta(t, 0.25, probs.Value(0), 1e-12)
		assert.InDelta(t, 0.75, probs.Value(1), 1e-12)
		assert.InDelta(t, 1.0, probs.Value(2), 1e-12)
	})
}

func TestBuildAmplitudeBatch(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)
	builder := NewRecordBatchBuilder(pool)

	h := 1 / math.Sqrt2
	amps := []complex128{complex(h, 0), 0, 0, complex(0, h)}

	rb, err := builder.BuildAmplitudeBatch("bell", amps)
	require.NoError(t, err)
	require.NotNil(t, rb)
	defer rb.Release()

	assert.Equal(t, int64(4), rb.NumRows())
	basis := rb.Column(1).(*array.String)
	assert.Equal(t, "00", basis.Value(0))
	assert.Equal(t, "01", basis.Value(1))
	assert.Equal(t, "10", basis.Value(2))
	assert.Equal(t, "11", basis.Value(3))

	re := rb.Column(2).(*array.Float64)
	im := rb.Column(3).(*array.Float64)
	probs := rb.Column(4).(*array.Float64)
	assert.InDelta(t, h, re.Value(0), 1e-12)
	assert.InDelta(t, h, im.Value(3), 1e-12)
	assert.InDelta(t, 0.5, probs.Value(3), 1e-12)
	assert.Equal(t, 0.0, probs.Value(1))

	_, err = builder.BuildAmplitudeBatch("bad", make([]complex128, 3))
	assert.Error(t, err)

	rb, err = builder.BuildAmplitudeBatch("none", nil)
	assert.NoError(t, err)
	assert.Nil(t, rb)
}

func TestJobBatch_RoundTrip(t *testing.T) {
	pool := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer pool.AssertSize(t, 0)
	builder := NewRecordBatchBuilder(pool)

	jobs := []quantum.Job{
		{ID: "a", Qubits: 2, Program: "h 0\ncx 0 1", Shots: 100, Measure: []int{0, 1}, Seed: 7},
		{ID: "b", Qubits: 1, Program: "x 0", ReturnState: true},
	}

	rb, err := builder.BuildJobBatch(jobs)
	require.NoError(t, err)
	defer rb.Release()

	got, err := ReadJobs(rb)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, jobs[0], got[0])
	assert.Equal(t, "b", got[1].ID)
	assert.True(t, got[1].ReturnState)
	assert.Empty(t, got[1].Measure)
}

func TestReadJobs_MissingColumn(t *testing.T) {
	pool := memory.NewGoAllocator()
	builder := NewRecordBatchBuilder(pool)

	rb, err := builder.BuildHistogramBatch([]quantum.Result{{ID: "x", Histogram: map[string]int{"0": 1}}})
	require.NoError(t, err)
	defer rb.Release()

	_, err = ReadJobs(rb)
	assert.Error(t, err)
}
