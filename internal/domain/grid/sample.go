package grid

import (
	"math"
	"math/rand"
)

const (
	sampleRows = 180
	sampleCols = 360
)

// GenerateSample builds the simulated global NO2 field used when no
// upload is provided: a sin^2(2*lat)*cos(lon)/2 base with three fixed
// hotspot patches and gaussian noise (sigma 0.1).
func GenerateSample(ownerID, name string, seed int64) Grid {
	rng := rand.New(rand.NewSource(seed))

	lat := Linspace(-90, 90, sampleRows)
	lon := Linspace(-180, 180, sampleCols)

	values := make([]float64, sampleRows*sampleCols)

	for r := 0; r < sampleRows; r++ {
		sinTerm := math.Pow(math.Sin(2*lat[r]*math.Pi/180), 2)

		for c := 0; c < sampleCols; c++ {
			cosTerm := math.Cos(lon[c]*math.Pi/180) / 2
			values[r*sampleCols+c] = sinTerm * cosTerm
		}
	}

	addPatch(values, 60, 80, 100, 120, 0.5)
	addPatch(values, 30, 50, 200, 220, 0.4)
	addPatch(values, 20, 40, 70, 90, 0.6)

	for i := range values {
		values[i] += rng.NormFloat64() * 0.1
	}

	g, _ := New(ownerID, name, SourceSample, sampleRows, sampleCols, values)

	return g
}

func addPatch(values []float64, r0, r1, c0, c1 int, delta float64) {
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			values[r*sampleCols+c] += delta
		}
	}
}
