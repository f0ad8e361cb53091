package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/allwinromario/AirQ/internal/domain/grid"
)

var (
	ErrBadFormat = errors.New("unsupported export format")
	ErrBadCSV    = errors.New("csv rows must be numeric and equal length")
)

const (
	FormatCSV = "csv"
	FormatPNG = "png"
)

// WriteCSV streams the grid values, one row of the field per CSV record.
func WriteCSV(w io.Writer, g grid.Grid) error {
	cw := csv.NewWriter(w)

	record := make([]string, g.Cols)

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			record[c] = strconv.FormatFloat(g.At(r, c), 'g', -1, 64)
		}

		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

// WritePNG renders the grid as a grayscale raster, values clamped into
// [vmin, vmax]. NaN cells render black.
func WritePNG(w io.Writer, g grid.Grid, vmin, vmax float64) error {
	if vmax <= vmin {
		vmin, vmax = 0, 1
	}

	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))

	scale := 255 / (vmax - vmin)

	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)

			if math.IsNaN(v) {
				v = vmin
			}

			if v < vmin {
				v = vmin
			}
			if v > vmax {
				v = vmax
			}

			// flip vertically so north is up
			img.SetGray(c, g.Rows-1-r, color.Gray{Y: uint8((v - vmin) * scale)})
		}
	}

	return png.Encode(w, img)
}

// ParseCSV reads an uploaded grid. A leading non-numeric row is treated
// as a header and skipped.
func ParseCSV(r io.Reader) (values []float64, rows, cols int, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	first := true

	for {
		record, readErr := cr.Read()

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return nil, 0, 0, readErr
		}

		parsed := make([]float64, len(record))
		numeric := true

		for i, field := range record {
			v, parseErr := strconv.ParseFloat(field, 64)

			if parseErr != nil {
				numeric = false
				break
			}

			parsed[i] = v
		}

		if !numeric {
			if first {
				first = false
				continue
			}
			return nil, 0, 0, ErrBadCSV
		}

		first = false

		if cols == 0 {
			cols = len(parsed)
		}

		if len(parsed) != cols || cols == 0 {
			return nil, 0, 0, ErrBadCSV
		}

		values = append(values, parsed...)
		rows++
	}

	if rows == 0 {
		return nil, 0, 0, ErrBadCSV
	}

	return values, rows, cols, nil
}

// Encode renders a grid into the requested format.
func Encode(format string, g grid.Grid, vmin, vmax float64) (data []byte, contentType string, err error) {
	var buf bytes.Buffer

	switch format {
	case FormatCSV:
		if err := WriteCSV(&buf, g); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "text/csv", nil

	case FormatPNG:
		if err := WritePNG(&buf, g, vmin, vmax); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil

	default:
		return nil, "", ErrBadFormat
	}
}
