package notifications

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/allwinromario/AirQ/internal/actorctx"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) SendDownscaleComplete(ctx context.Context, in DownscaleCompleteInput) error {
	// Optional: simulate slow provider
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	// Optional: simulate provider outage
	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	actor := "unknown"

	if id, ok := actorctx.UserIDFrom(ctx); ok {
		actor = id
	}

	log.Printf("notification.downscale_complete actor=%s email=%s name=%s grid=%s result=%s job=%s",
		actor, in.Email, in.FirstName, in.GridID, in.ResultGridID, in.JobID,
	)
	return nil
}
