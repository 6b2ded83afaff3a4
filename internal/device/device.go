package device

// Tensor is a rank-n complex amplitude tensor where every axis has extent 2.
// It is stored as a flat buffer of 2^n cells; bit q of a cell index is the
// coordinate on axis q, so an axis selector {FIXED(0), FIXED(1), ALL} becomes a
// bit mask on the index.
type Tensor interface {
	// Rank returns the number of axes (qubits).
	Rank() int

	// Len returns the number of cells, 2^Rank().
	Len() int

	// At returns the amplitude at flat index i.
	At(i int) complex128

	// Set sets the amplitude at flat index i.
	Set(i int, v complex128)

	// Data returns the underlying slice. Writes go straight to the tensor.
	Data() []complex128

	// ToHost copies the amplitudes to a new slice.
	ToHost() []complex128

	// CopyFrom copies amplitudes from a Go slice of matching length.
	CopyFrom(data []complex128)

	// Copy copies content from another tensor of the same rank.
	Copy(from Tensor)

	// Zero sets every cell to 0.
	Zero()

	// Operations

	// ApplyControlled applies the 2x2 matrix m to the target axis on the
	// subspace where every control axis equals 1. Cells where any control is 0
	// are left untouched. target must not appear in controls.
	ApplyControlled(m [2][2]complex128, target int, controls []int)

	// Marginal sums |amplitude|^2 over every axis not in positions, restricted
	// to cells where index&condMask == condValue. Bit r of the result index is
	// the coordinate on axis positions[r]. The tensor is not modified.
	Marginal(positions []int, condMask, condValue int) []float64

	// ProjectInto copies into dst (which must be zeroed and of the same rank)
	// only the cells where index&mask == value.
	ProjectInto(dst Tensor, mask, value int)

	// Norm returns the L2 norm of the whole tensor.
	Norm() float64

	// NormSquared returns the sum of squared magnitudes.
	NormSquared() float64

	// Scale performs: t = t * s
	Scale(s float64)
}

// Backend creates tensors and manages their memory.
type Backend interface {
	Name() string

	// NewTensor creates a tensor of the given rank. A nil data slice yields
	// an all-zero tensor; otherwise data is copied.
	NewTensor(rank int, data []complex128) Tensor

	// GetTensor gets a zeroed tensor from the pool or creates a new one.
	GetTensor(rank int) Tensor

	// PutTensor returns a tensor to the pool.
	PutTensor(t Tensor)

	// Synchronize blocks until all queued operations are complete.
	Synchronize()
}
