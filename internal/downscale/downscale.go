package downscale

import (
	"errors"
	"math"
	"math/rand"

	"github.com/allwinromario/AirQ/internal/domain/grid"
)

type Method string

const (
	// gaussian pre-smooth followed by nearest-neighbour zoom
	MethodGaussian Method = "gaussian"
	MethodBilinear Method = "bilinear"
	MethodBicubic  Method = "bicubic"
	// planar least-squares fit evaluated on the refined grid
	MethodRegression Method = "regression"
)

const (
	MinFactor = 2
	MaxFactor = 10

	MinSigma = 0.1
	MaxSigma = 5.0
)

var (
	ErrBadFactor  = errors.New("downscale factor must be between 2 and 10")
	ErrBadMethod  = errors.New("unknown downscale method")
	ErrBadSigma   = errors.New("sigma must be between 0.1 and 5.0")
	ErrEmptyInput = errors.New("input grid is empty")
)

func (m Method) IsValid() bool {
	switch m {
	case MethodGaussian, MethodBilinear, MethodBicubic, MethodRegression:
		return true
	default:
		return false
	}
}

type Options struct {
	Factor   int
	Method   Method
	Sigma    float64 // pre-smoothing sigma, 0 disables
	AddNoise bool
	Seed     int64
}

func (o Options) Validate() error {
	if o.Factor < MinFactor || o.Factor > MaxFactor {
		return ErrBadFactor
	}

	if !o.Method.IsValid() {
		return ErrBadMethod
	}

	if o.Sigma != 0 && (o.Sigma < MinSigma || o.Sigma > MaxSigma) {
		return ErrBadSigma
	}

	return nil
}

type Result struct {
	Rows      int
	Cols      int
	Values    []float64
	Processed []float64 // input after NaN replacement + smoothing, original resolution
}

// Run applies the original pipeline: replace NaN with zero, smooth with
// the caller's sigma, optionally add noise, then upsample by the factor
// using the chosen method.
func Run(g grid.Grid, opts Options) (Result, error) {
	if err := opts.Validate(); err != nil {
		return Result{}, err
	}

	if g.Rows == 0 || g.Cols == 0 || len(g.Values) == 0 {
		return Result{}, ErrEmptyInput
	}

	processed := make([]float64, len(g.Values))

	for i, v := range g.Values {
		if math.IsNaN(v) {
			processed[i] = 0
			continue
		}
		processed[i] = v
	}

	if opts.AddNoise {
		rng := rand.New(rand.NewSource(opts.Seed))

		for i := range processed {
			processed[i] += rng.NormFloat64() * 0.05
		}
	}

	if opts.Sigma > 0 {
		processed = GaussianFilter(processed, g.Rows, g.Cols, opts.Sigma)
	}

	outRows := g.Rows * opts.Factor
	outCols := g.Cols * opts.Factor

	var out []float64

	switch opts.Method {
	case MethodGaussian:
		smoothed := GaussianFilter(processed, g.Rows, g.Cols, 1.0)
		out = zoomNearest(smoothed, g.Rows, g.Cols, opts.Factor)

	case MethodBilinear:
		out = zoomBilinear(processed, g.Rows, g.Cols, outRows, outCols)

	case MethodBicubic:
		out = zoomBicubic(processed, g.Rows, g.Cols, outRows, outCols)

	case MethodRegression:
		out = zoomRegression(processed, g.Rows, g.Cols, outRows, outCols)
	}

	return Result{
		Rows:      outRows,
		Cols:      outCols,
		Values:    out,
		Processed: processed,
	}, nil
}

// Baseline is the nearest-neighbour upsample of the processed field.
// The difference between a result and its baseline is the original
// app's "Downscaled - Upsampled Processed" view.
func Baseline(processed []float64, rows, cols, factor int) []float64 {
	return zoomNearest(processed, rows, cols, factor)
}

// DiffStats summarizes Values - Baseline cell by cell.
func (r Result) DiffStats(factor int, inRows, inCols int) (grid.Stats, error) {
	base := Baseline(r.Processed, inRows, inCols, factor)

	diff := make([]float64, len(r.Values))

	for i := range diff {
		diff[i] = r.Values[i] - base[i]
	}

	return grid.ComputeStats(diff)
}

func zoomNearest(in []float64, rows, cols, factor int) []float64 {
	outRows := rows * factor
	outCols := cols * factor

	out := make([]float64, outRows*outCols)

	for r := 0; r < outRows; r++ {
		sr := r / factor

		for c := 0; c < outCols; c++ {
			out[r*outCols+c] = in[sr*cols+c/factor]
		}
	}

	return out
}

func zoomBilinear(in []float64, rows, cols, outRows, outCols int) []float64 {
	out := make([]float64, outRows*outCols)

	for r := 0; r < outRows; r++ {
		y := srcCoord(r, rows, outRows)
		y0 := int(math.Floor(y))
		y1 := y0 + 1

		if y1 > rows-1 {
			y1 = rows - 1
		}

		fy := y - float64(y0)

		for c := 0; c < outCols; c++ {
			x := srcCoord(c, cols, outCols)
			x0 := int(math.Floor(x))
			x1 := x0 + 1

			if x1 > cols-1 {
				x1 = cols - 1
			}

			fx := x - float64(x0)

			top := in[y0*cols+x0]*(1-fx) + in[y0*cols+x1]*fx
			bottom := in[y1*cols+x0]*(1-fx) + in[y1*cols+x1]*fx

			out[r*outCols+c] = top*(1-fy) + bottom*fy
		}
	}

	return out
}

func zoomBicubic(in []float64, rows, cols, outRows, outCols int) []float64 {
	out := make([]float64, outRows*outCols)

	sample := func(r, c int) float64 {
		if r < 0 {
			r = 0
		}
		if r > rows-1 {
			r = rows - 1
		}
		if c < 0 {
			c = 0
		}
		if c > cols-1 {
			c = cols - 1
		}
		return in[r*cols+c]
	}

	for r := 0; r < outRows; r++ {
		y := srcCoord(r, rows, outRows)
		y0 := int(math.Floor(y))
		fy := y - float64(y0)

		for c := 0; c < outCols; c++ {
			x := srcCoord(c, cols, outCols)
			x0 := int(math.Floor(x))
			fx := x - float64(x0)

			var col [4]float64

			for i := -1; i <= 2; i++ {
				col[i+1] = catmullRom(
					sample(y0+i, x0-1),
					sample(y0+i, x0),
					sample(y0+i, x0+1),
					sample(y0+i, x0+2),
					fx,
				)
			}

			out[r*outCols+c] = catmullRom(col[0], col[1], col[2], col[3], fy)
		}
	}

	return out
}

// catmullRom evaluates the Catmull-Rom cubic through p0..p3 at t in [0,1].
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	a := -0.5*p0 + 1.5*p1 - 1.5*p2 + 0.5*p3
	b := p0 - 2.5*p1 + 2*p2 - 0.5*p3
	c := -0.5*p0 + 0.5*p2
	d := p1

	return ((a*t+b)*t+c)*t + d
}

// srcCoord maps an output index onto the continuous input axis with the
// endpoints aligned, the same convention the original zoom used.
func srcCoord(i, inN, outN int) float64 {
	if outN == 1 || inN == 1 {
		return 0
	}

	return float64(i) * float64(inN-1) / float64(outN-1)
}
