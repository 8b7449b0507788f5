package simd

import "math"

// ExpFast is a fast approximation of exp(x).
// Uses the identity exp(x) = 2^(x/ln2) and a polynomial approximation.
func ExpFast(x float32) float32 {
	// Clamp to avoid overflow
	if x > 88 {
		return 1e38
	}
	if x < -88 {
		return 0
	}

	// exp(x) = 2^(x * log2(e))
	const log2e = 1.4426950408889634

	t := float64(x) * log2e
	k := int(t)
	if t < 0 {
		k--
	}

	// Fractional part in [0, 1)
	f := t - float64(k)

	// Polynomial approximation for 2^f where f in [0, 1)
	p := 1.0 + f*(0.6931471805599453+f*(0.24022650695910072+f*0.05550410866482157))

	if k >= 0 && k < 1024 {
		return float32(p * float64(uint64(1)<<k))
	}
	if k < 0 && k > -1024 {
		return float32(p / float64(uint64(1)<<(-k)))
	}
	return float32(p)
}

// TanhFast computes tanh for float32 inputs. The pooler and the gelu kernel
// are sensitive to tanh error near zero, so this defers to the stdlib
// rather than a rational approximation.
func TanhFast(x float32) float32 {
	if x > 9 {
		return 1
	}
	if x < -9 {
		return -1
	}
	return float32(math.Tanh(float64(x)))
}

// GeluFast applies the tanh-form GELU approximation in-place:
// gelu(x) = 0.5 * x * (1 + tanh(sqrt(2/pi) * (x + 0.044715*x^3)))
func GeluFast(data []float32) {
	const (
		sqrt2overPi = 0.7978845608028654
		coeff       = 0.044715
	)
	for i, x := range data {
		data[i] = 0.5 * x * (1 + TanhFast(sqrt2overPi*(x+coeff*x*x*x)))
	}
}

// ReluFast applies max(0, x) in-place.
func ReluFast(data []float32) {
	for i, x := range data {
		if x < 0 {
			data[i] = 0
		}
	}
}

// TanhAll applies tanh in-place.
func TanhAll(data []float32) {
	for i, x := range data {
		data[i] = TanhFast(x)
	}
}

// SoftmaxRow applies a max-shifted softmax in-place to a single row.
func SoftmaxRow(row []float32) {
	max := row[0]
	for _, v := range row {
		if v > max {
			max = v
		}
	}

	var sum float32
	for i, v := range row {
		row[i] = ExpFast(v - max)
		sum += row[i]
	}

	invSum := 1.0 / sum
	for i := range row {
		row[i] *= invSum
	}
}

// VecAdd performs dst += src.
func VecAdd(dst, src []float32) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i]
		dst[i+1] += src[i+1]
		dst[i+2] += src[i+2]
		dst[i+3] += src[i+3]
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i]
	}
}

// VecAddScaled performs dst += src * scale.
func VecAddScaled(dst, src []float32, scale float32) {
	i := 0
	for ; i <= len(dst)-4; i += 4 {
		dst[i] += src[i] * scale
		dst[i+1] += src[i+1] * scale
		dst[i+2] += src[i+2] * scale
		dst[i+3] += src[i+3] * scale
	}
	for ; i < len(dst); i++ {
		dst[i] += src[i] * scale
	}
}

// DotProduct computes the dot product of two float32 vectors.
func DotProduct(a, b []float32) float32 {
	var sum float32
	i := 0
	for ; i <= len(a)-4; i += 4 {
		sum += a[i] * b[i]
		sum += a[i+1] * b[i+1]
		sum += a[i+2] * b[i+2]
		sum += a[i+3] * b[i+3]
	}
	for ; i < len(a); i++ {
		sum += a[i] * b[i]
	}
	return sum
}
