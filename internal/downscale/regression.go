package downscale

// zoomRegression fits z = a + b*x + c*y over the normalized coordinate
// grid by ordinary least squares and evaluates the plane on the refined
// grid. The normal equations are solved in closed form.
func zoomRegression(in []float64, rows, cols, outRows, outCols int) []float64 {
	xs := normAxis(cols)
	ys := normAxis(rows)

	// accumulate X'X and X'z for X = [1, x, y]
	var (
		n                  = float64(rows * cols)
		sumX, sumY         float64
		sumXX, sumYY, sumXY float64
		sumZ, sumXZ, sumYZ float64
	)

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x := xs[c]
			y := ys[r]
			z := in[r*cols+c]

			sumX += x
			sumY += y
			sumXX += x * x
			sumYY += y * y
			sumXY += x * y
			sumZ += z
			sumXZ += x * z
			sumYZ += y * z
		}
	}

	a, b, c := solve3(
		[3][3]float64{
			{n, sumX, sumY},
			{sumX, sumXX, sumXY},
			{sumY, sumXY, sumYY},
		},
		[3]float64{sumZ, sumXZ, sumYZ},
	)

	outXs := normAxis(outCols)
	outYs := normAxis(outRows)

	out := make([]float64, outRows*outCols)

	for r := 0; r < outRows; r++ {
		for col := 0; col < outCols; col++ {
			out[r*outCols+col] = a + b*outXs[col] + c*outYs[r]
		}
	}

	return out
}

// normAxis is linspace(0, 1, n).
func normAxis(n int) []float64 {
	out := make([]float64, n)

	if n == 1 {
		return out
	}

	for i := range out {
		out[i] = float64(i) / float64(n-1)
	}

	return out
}

// solve3 solves a 3x3 linear system by gaussian elimination with
// partial pivoting. Degenerate systems (single row or column inputs)
// fall back to the mean plane.
func solve3(m [3][3]float64, v [3]float64) (float64, float64, float64) {
	for i := 0; i < 3; i++ {
		// pivot
		p := i

		for r := i + 1; r < 3; r++ {
			if abs(m[r][i]) > abs(m[p][i]) {
				p = r
			}
		}

		if abs(m[p][i]) < 1e-12 {
			// singular: constant fit on whatever the first equation says
			if m[0][0] != 0 {
				return v[0] / m[0][0], 0, 0
			}
			return 0, 0, 0
		}

		m[i], m[p] = m[p], m[i]
		v[i], v[p] = v[p], v[i]

		for r := i + 1; r < 3; r++ {
			f := m[r][i] / m[i][i]

			for c := i; c < 3; c++ {
				m[r][c] -= f * m[i][c]
			}

			v[r] -= f * v[i]
		}
	}

	// back substitution
	var out [3]float64

	for i := 2; i >= 0; i-- {
		s := v[i]

		for c := i + 1; c < 3; c++ {
			s -= m[i][c] * out[c]
		}

		out[i] = s / m[i][i]
	}

	return out[0], out[1], out[2]
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
