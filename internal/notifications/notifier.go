package notifications

import "context"

type DownscaleCompleteInput struct {
	Email        string
	FirstName    string
	GridID       string
	ResultGridID string
	JobID        string
}

type Notifier interface {
	SendDownscaleComplete(ctx context.Context, input DownscaleCompleteInput) error
}
