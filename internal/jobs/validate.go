package jobs

import (
	"strings"

	"github.com/allwinromario/AirQ/internal/downscale"
)

// ValidatePayload performs the checks a job must pass before it is
// worth persisting.
func ValidatePayload(jobType string, payload any) error {
	switch jobType {
	case TypeGridDownscale:
		var p GridDownscalePayload

		switch v := payload.(type) {
		case GridDownscalePayload:
			p = v
		case *GridDownscalePayload:
			p = *v
		default:
			return ErrInvalidJobPayload
		}

		if strings.TrimSpace(p.GridID) == "" {
			return ErrInvalidJobPayload
		}

		opts := downscale.Options{
			Factor: p.Factor,
			Method: downscale.Method(p.Method),
			Sigma:  p.Sigma,
		}

		if err := opts.Validate(); err != nil {
			return err
		}

		return nil

	default:
		return ErrInvalidJobType
	}
}
