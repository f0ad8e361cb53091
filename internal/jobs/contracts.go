package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	TypeGridDownscale = "grid.downscale"
)

// GridDownscalePayload is kept ID-based and minimal; the worker loads
// the grid from the DB.
type GridDownscalePayload struct {
	GridID      string  `json:"gridId"`
	Factor      int     `json:"factor"`
	Method      string  `json:"method"`
	Sigma       float64 `json:"sigma"`
	AddNoise    bool    `json:"addNoise"`
	RequestedBy string  `json:"requestedBy"`
	RequestID   string  `json:"requestId,omitempty"`
}

// Helper to convert payload to json.RawMessage

func (p GridDownscalePayload) ToJSONRaw() (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// IdempotencyKey is stable across retries of the same submission: the
// same grid and parameters always hash to the same key, so a duplicate
// POST returns the existing job instead of queueing a second one.
func (p GridDownscalePayload) IdempotencyKey() string {
	h := sha256.New()

	h.Write([]byte(strings.Join([]string{
		p.GridID,
		strconv.Itoa(p.Factor),
		p.Method,
		strconv.FormatFloat(p.Sigma, 'g', -1, 64),
		strconv.FormatBool(p.AddNoise),
	}, "|")))

	return hex.EncodeToString(h.Sum(nil))
}

// DecodeGridDownscale unmarshals a raw job payload into the typed struct.
func DecodeGridDownscale(raw json.RawMessage) (GridDownscalePayload, error) {
	if len(raw) == 0 {
		return GridDownscalePayload{}, ErrInvalidJobPayload
	}

	var p GridDownscalePayload

	if err := json.Unmarshal(raw, &p); err != nil {
		return GridDownscalePayload{}, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return p, nil
}
