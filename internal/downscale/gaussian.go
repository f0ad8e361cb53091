package downscale

import "math"

// GaussianFilter applies a separable gaussian blur with reflected edges,
// the same behaviour scipy's gaussian_filter defaults to.
func GaussianFilter(in []float64, rows, cols int, sigma float64) []float64 {
	if sigma <= 0 {
		out := make([]float64, len(in))
		copy(out, in)
		return out
	}

	kernel := gaussianKernel(sigma)
	radius := len(kernel) / 2

	// horizontal pass
	tmp := make([]float64, len(in))

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum := 0.0

			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * in[r*cols+reflect(c+k, cols)]
			}

			tmp[r*cols+c] = sum
		}
	}

	// vertical pass
	out := make([]float64, len(in))

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sum := 0.0

			for k := -radius; k <= radius; k++ {
				sum += kernel[k+radius] * tmp[reflect(r+k, rows)*cols+c]
			}

			out[r*cols+c] = sum
		}
	}

	return out
}

func gaussianKernel(sigma float64) []float64 {
	// truncate at 4 standard deviations, scipy's default
	radius := int(4*sigma + 0.5)

	if radius < 1 {
		radius = 1
	}

	kernel := make([]float64, 2*radius+1)
	sum := 0.0

	for i := -radius; i <= radius; i++ {
		v := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		kernel[i+radius] = v
		sum += v
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

// reflect mirrors an out-of-range index back into [0, n) ("reflect" edge
// mode: d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}

	period := 2 * n

	i %= period

	if i < 0 {
		i += period
	}

	if i >= n {
		i = period - 1 - i
	}

	return i
}
