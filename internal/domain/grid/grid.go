package grid

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("grid not found")
	ErrBadDimensions = errors.New("grid dimensions do not match values")
	ErrEmpty         = errors.New("grid has no values")
)

const (
	SourceSample    = "sample"
	SourceUpload    = "upload"
	SourceDownscale = "downscale"
)

// Grid is a rectangular field of samples with geographic bounds.
// Values are stored row-major, row 0 being the southernmost latitude.
type Grid struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Source  string `json:"source"`

	Rows int `json:"rows"`
	Cols int `json:"cols"`

	LatMin float64 `json:"latMin"`
	LatMax float64 `json:"latMax"`
	LonMin float64 `json:"lonMin"`
	LonMax float64 `json:"lonMax"`

	Values []float64 `json:"values,omitempty"`

	// set on downscale results
	ParentID *string `json:"parentId,omitempty"`
	Method   *string `json:"method,omitempty"`
	Factor   *int    `json:"factor,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

func New(ownerID, name, source string, rows, cols int, values []float64) (Grid, error) {
	if rows <= 0 || cols <= 0 || len(values) != rows*cols {
		return Grid{}, ErrBadDimensions
	}

	return Grid{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Name:      name,
		Source:    source,
		Rows:      rows,
		Cols:      cols,
		LatMin:    -90,
		LatMax:    90,
		LonMin:    -180,
		LonMax:    180,
		Values:    values,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (g Grid) At(row, col int) float64 {
	return g.Values[row*g.Cols+col]
}

// Latitudes returns the latitude axis, one value per row.
func (g Grid) Latitudes() []float64 {
	return Linspace(g.LatMin, g.LatMax, g.Rows)
}

// Longitudes returns the longitude axis, one value per column.
func (g Grid) Longitudes() []float64 {
	return Linspace(g.LonMin, g.LonMax, g.Cols)
}

// Linspace mirrors numpy.linspace: n evenly spaced samples over [from, to].
func Linspace(from, to float64, n int) []float64 {
	out := make([]float64, n)

	if n == 1 {
		out[0] = from
		return out
	}

	step := (to - from) / float64(n-1)

	for i := range out {
		out[i] = from + float64(i)*step
	}

	return out
}

type Stats struct {
	Count    int     `json:"count"`
	NaNCount int     `json:"nanCount"`
	Mean     float64 `json:"mean"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	StdDev   float64 `json:"stdDev"`
}

// ComputeStats aggregates the finite cells only: NaN and ±Inf are
// counted as missing and excluded, matching numpy's nanmean behaviour.
// Infinities arrive via CSV uploads, where ParseFloat accepts them.
func ComputeStats(values []float64) (Stats, error) {
	if len(values) == 0 {
		return Stats{}, ErrEmpty
	}

	s := Stats{
		Min: math.Inf(1),
		Max: math.Inf(-1),
	}

	sum := 0.0

	for _, v := range values {
		if !isFinite(v) {
			s.NaNCount++
			continue
		}

		s.Count++
		sum += v

		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}

	if s.Count == 0 {
		return Stats{}, ErrEmpty
	}

	s.Mean = sum / float64(s.Count)

	variance := 0.0

	for _, v := range values {
		if !isFinite(v) {
			continue
		}
		d := v - s.Mean
		variance += d * d
	}

	s.StdDev = math.Sqrt(variance / float64(s.Count))

	return s, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

type Histogram struct {
	Bins   int       `json:"bins"`
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// ComputeHistogram buckets the finite values into equal-width bins over
// [min, max], like matplotlib's hist view of the downscaled field.
func ComputeHistogram(values []float64, bins int) (Histogram, error) {
	if bins < 1 {
		bins = 50
	}

	s, err := ComputeStats(values)

	if err != nil {
		return Histogram{}, err
	}

	h := Histogram{
		Bins:   bins,
		Edges:  Linspace(s.Min, s.Max, bins+1),
		Counts: make([]int, bins),
	}

	width := (s.Max - s.Min) / float64(bins)

	for _, v := range values {
		if !isFinite(v) {
			continue
		}

		idx := bins - 1

		if width > 0 {
			idx = int((v - s.Min) / width)

			if idx >= bins {
				idx = bins - 1
			}
		}

		h.Counts[idx]++
	}

	return h, nil
}
