package device

import (
	"log"
	"runtime"
	"slices"
	"sync"
	"time"

	"gonum.org/v1/gonum/blas/cblas128"

	"github.com/23skdu/longbow-qsim/internal/simd"
)

// ensure interface compliance
var _ Backend = (*CPUBackend)(nil)
var _ Tensor = (*CPUTensor)(nil)

// numWorkers defines the default parallelism for CPU operations
var numWorkers = runtime.NumCPU()

// parallelThreshold is the number of touched cells below which kernels stay
// on the calling goroutine.
const parallelThreshold = 1 << 14

// marginalChunk bounds the probability scratch buffer used per reduction pass.
const marginalChunk = 4096

type CPUBackend struct {
	pool sync.Pool
}

func NewCPUBackend() *CPUBackend {
	return &CPUBackend{
		pool: sync.Pool{
			New: func() interface{} {
				// Initialize a new CPUTensor
				return &CPUTensor{}
			},
		},
	}
}

func (b *CPUBackend) Name() string {
	return "CPU"
}

func (b *CPUBackend) NewTensor(rank int, data []complex128) Tensor {
	size := 1 << rank
	t := &CPUTensor{
		backend: b,
		rank:    rank,
		data:    make([]complex128, size),
	}

	if data != nil {
		if len(data) != size {
			panic("NewTensor: provided data length does not match rank")
		}
		copy(t.data, data)
	}

	return t
}

func (b *CPUBackend) GetTensor(rank int) Tensor {
	// Try to get from pool
	v := b.pool.Get()
	ct, ok := v.(*CPUTensor)
	if !ok || ct == nil {
		ct = &CPUTensor{}
	}

	// Initialize/reset the tensor
	ct.backend = b
	ct.rank = rank
	size := 1 << rank
	if cap(ct.data) < size {
		poolMisses.Inc()
		ct.data = make([]complex128, size)
	} else {
		poolHits.Inc()
		ct.data = ct.data[:size] // Reslice to correct size
		clear(ct.data)
	}
	return ct
}

func (b *CPUBackend) PutTensor(t Tensor) {
	ct, ok := t.(*CPUTensor)
	if !ok {
		return // Don't pool foreign tensors
	}

	ct.rank = 0
	// Data is zeroed when retrieved by GetTensor
	b.pool.Put(ct)
}

func (b *CPUBackend) Synchronize() {
	// CPU is always synchronous
}

type CPUTensor struct {
	backend *CPUBackend
	data    []complex128
	rank    int
}

func (t *CPUTensor) Rank() int {
	return t.rank
}

func (t *CPUTensor) Len() int {
	return len(t.data)
}

func (t *CPUTensor) At(i int) complex128 {
	return t.data[i]
}

func (t *CPUTensor) Set(i int, v complex128) {
	t.data[i] = v
}

func (t *CPUTensor) Data() []complex128 {
	return t.data
}

func (t *CPUTensor) ToHost() []complex128 {
	out := make([]complex128, len(t.data))
	copy(out, t.data)
	return out
}

func (t *CPUTensor) CopyFrom(data []complex128) {
	if len(data) != len(t.data) {
		panic("Size mismatch")
	}
	copy(t.data, data)
}

func (t *CPUTensor) Copy(from Tensor) {
	ft, ok := from.(*CPUTensor)
	if !ok {
		log.Panic("Copying between different backends not yet supported directly")
	}
	if ft.rank != t.rank {
		log.Panicf("Copy: rank mismatch. Target: %d, Source: %d", t.rank, ft.rank)
	}
	copy(t.data, ft.data)
}

func (t *CPUTensor) Zero() {
	clear(t.data)
}

func (t *CPUTensor) ApplyControlled(m [2][2]complex128, target int, controls []int) {
	start := time.Now()
	defer func() {
		kernelDuration.WithLabelValues("apply").Observe(time.Since(start).Seconds())
	}()

	if target < 0 || target >= t.rank {
		log.Panicf("ApplyControlled: target %d out of range for rank %d", target, t.rank)
	}

	fixed := make([]int, 0, len(controls)+1)
	fixed = append(fixed, target)
	ctrlMask := 0
	for _, c := range controls {
		if c < 0 || c >= t.rank || c == target || ctrlMask&(1<<c) != 0 {
			log.Panicf("ApplyControlled: invalid control %d (target %d, rank %d)", c, target, t.rank)
		}
		ctrlMask |= 1 << c
		fixed = append(fixed, c)
	}

	plan := newRunPlan(t.rank, fixed)
	tbit := 1 << target
	m00, m01, m10, m11 := m[0][0], m[0][1], m[1][0], m[1][1]

	t.parallelFor(plan.count, plan.run, func(start, end int) {
		for j := start; j < end; j++ {
			// a0: target=0, controls=1; a1: same cells with target=1
			i0 := plan.base(j) | ctrlMask
			i1 := i0 | tbit
			simd.Mix2x2(t.data[i0:i0+plan.run], t.data[i1:i1+plan.run], m00, m01, m10, m11)
		}
	})
}

func (t *CPUTensor) Marginal(positions []int, condMask, condValue int) []float64 {
	start := time.Now()
	defer func() {
		kernelDuration.WithLabelValues("marginal").Observe(time.Since(start).Seconds())
	}()

	seen := 0
	for _, p := range positions {
		if p < 0 || p >= t.rank || seen&(1<<p) != 0 {
			log.Panicf("Marginal: invalid axis %d for rank %d", p, t.rank)
		}
		seen |= 1 << p
	}
	if condValue&^condMask != 0 {
		log.Panicf("Marginal: condition value %b outside mask %b", condValue, condMask)
	}

	out := make([]float64, 1<<len(positions))
	n := len(t.data)
	if n < parallelThreshold || numWorkers == 1 {
		t.reduceRange(out, 0, n, positions, condMask, condValue)
		return out
	}

	// Each worker reduces its own slice of the tensor into a partial
	// marginal; the partials are merged once all workers are done.
	var wg sync.WaitGroup
	cellsPerWorker := (n + numWorkers - 1) / numWorkers
	partials := make([][]float64, 0, numWorkers)

	for w := 0; w < numWorkers; w++ {
		startCell := w * cellsPerWorker
		endCell := startCell + cellsPerWorker
		if startCell >= n {
			break
		}
		if endCell > n {
			endCell = n
		}

		partial := make([]float64, len(out))
		partials = append(partials, partial)

		wg.Add(1)
		go func(dst []float64, s, e int) {
			defer wg.Done()
			t.reduceRange(dst, s, e, positions, condMask, condValue)
		}(partial, startCell, endCell)
	}
	wg.Wait()

	for _, p := range partials {
		simd.VecAdd(out, p)
	}
	return out
}

// reduceRange accumulates |a|^2 for cells [start, end) into dst.
func (t *CPUTensor) reduceRange(dst []float64, start, end int, positions []int, condMask, condValue int) {
	scratch := make([]float64, min(marginalChunk, end-start))
	for s := start; s < end; s += marginalChunk {
		e := min(s+marginalChunk, end)
		probs := scratch[:e-s]
		simd.AbsSquared(probs, t.data[s:e])

		for k, p := range probs {
			i := s + k
			if i&condMask != condValue {
				continue
			}
			dst[gatherBits(i, positions)] += p
		}
	}
}

func (t *CPUTensor) ProjectInto(dst Tensor, mask, value int) {
	start := time.Now()
	defer func() {
		kernelDuration.WithLabelValues("project").Observe(time.Since(start).Seconds())
	}()

	dt, ok := dst.(*CPUTensor)
	if !ok {
		log.Panic("Projecting between different backends not yet supported directly")
	}
	if dt.rank != t.rank {
		log.Panicf("ProjectInto: rank mismatch. Target: %d, Source: %d", dt.rank, t.rank)
	}
	if value&^mask != 0 || mask>>t.rank != 0 {
		log.Panicf("ProjectInto: invalid mask %b / value %b for rank %d", mask, value, t.rank)
	}

	var fixed []int
	for q := 0; q < t.rank; q++ {
		if mask&(1<<q) != 0 {
			fixed = append(fixed, q)
		}
	}

	plan := newRunPlan(t.rank, fixed)
	t.parallelFor(plan.count, plan.run, func(start, end int) {
		for j := start; j < end; j++ {
			base := plan.base(j) | value
			copy(dt.data[base:base+plan.run], t.data[base:base+plan.run])
		}
	})
}

func (t *CPUTensor) Norm() float64 {
	return cblas128.Nrm2(t.vector())
}

func (t *CPUTensor) NormSquared() float64 {
	return simd.SumSquares(t.data)
}

func (t *CPUTensor) Scale(s float64) {
	cblas128.Dscal(s, t.vector())
}

func (t *CPUTensor) vector() cblas128.Vector {
	return cblas128.Vector{N: len(t.data), Inc: 1, Data: t.data}
}

// parallelFor splits [0, count) across workers when count*weight touched
// cells is large enough to pay for the goroutines.
func (t *CPUTensor) parallelFor(count, weight int, fn func(start, end int)) {
	if count*weight < parallelThreshold || numWorkers == 1 || count < 2 {
		fn(0, count)
		return
	}

	var wg sync.WaitGroup
	perWorker := (count + numWorkers - 1) / numWorkers

	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		end := start + perWorker
		if start >= count {
			break
		}
		if end > count {
			end = count
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// runPlan enumerates the contiguous runs of cells whose fixed axes are all 0.
// Axes below the lowest fixed axis are free, so every run spans 2^low cells.
type runPlan struct {
	fixed []int // ascending
	low   int
	run   int
	count int
}

func newRunPlan(rank int, fixed []int) runPlan {
	if len(fixed) == 0 {
		return runPlan{run: 1 << rank, count: 1}
	}
	sorted := slices.Clone(fixed)
	slices.Sort(sorted)
	low := sorted[0]
	return runPlan{
		fixed: sorted,
		low:   low,
		run:   1 << low,
		count: 1 << (rank - len(sorted) - low),
	}
}

// base returns the first cell of run j by inserting a zero bit at every
// fixed axis.
func (p runPlan) base(j int) int {
	k := j << p.low
	for _, pos := range p.fixed {
		k = ((k >> pos) << (pos + 1)) | (k & ((1 << pos) - 1))
	}
	return k
}

// gatherBits packs the bits of i found at positions into a dense key:
// bit r of the key is bit positions[r] of i.
func gatherBits(i int, positions []int) int {
	key := 0
	for r, p := range positions {
		key |= ((i >> p) & 1) << r
	}
	return key
}
