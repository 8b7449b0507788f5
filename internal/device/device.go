// Package device provides the tensor storage and kernel layer the encoder
// runs on. Tensors are 2-D row-major float32 matrices; higher-rank logical
// shapes are tracked by the caller (see internal/shape).
package device

// Tensor is a 2-D matrix of float32 values.
//
// The kernels panic on dimension mismatches: callers are expected to have
// validated logical shapes before reaching this layer, so a mismatch here is
// a programmer error, not an input error.
type Tensor interface {
	// Dims returns the (rows, cols) of the tensor.
	Dims() (int, int)

	// At returns the value at (i, j). Slow; for tests and debugging.
	At(i, j int) float32

	// Set sets the value at (i, j).
	Set(i, j int, v float32)

	// Data returns the underlying row-major slice, or nil for transposed
	// views whose data is not contiguous in logical order.
	Data() []float32

	// ToHost copies the logical contents into a fresh row-major slice.
	ToHost() []float32

	// CopyFrom overwrites the tensor's contents from a row-major slice.
	CopyFrom(data []float32)

	// Copy copies content from another tensor of identical dims.
	Copy(from Tensor)

	// Slice returns a copy of the sub-matrix [i:k, j:l].
	Slice(i, k, j, l int) Tensor

	// T returns a transposed view sharing the underlying data.
	T() Tensor

	// Mul performs matrix multiplication: t = a * b.
	Mul(a, b Tensor)

	// Add performs element-wise addition: t += other.
	Add(other Tensor)

	// Scale performs t *= val.
	Scale(val float32)

	// AddBias adds a 1xN bias vector to every row.
	AddBias(bias Tensor)

	// Softmax applies a row-wise max-shifted softmax in-place.
	Softmax()

	// Tanh applies tanh elementwise in-place.
	Tanh()

	// LayerNorm standardizes each row to zero mean and unit variance, then
	// applies the learnable scale and shift, in-place.
	LayerNorm(gamma, beta Tensor, eps float32)

	// Gather collects rows by index into a new tensor.
	Gather(indices []int) Tensor
}

// Backend creates tensors and manages their memory.
type Backend interface {
	Name() string

	// NewTensor allocates an r x c tensor, copying data when non-nil.
	NewTensor(r, c int, data []float32) Tensor

	// GetTensor returns a zeroed r x c tensor from the pool.
	GetTensor(r, c int) Tensor

	// PutTensor returns a tensor to the pool.
	PutTensor(t Tensor)
}
