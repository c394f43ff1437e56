// Package downloader wraps the external media-extraction engine behind a
// small capability interface.
package downloader

import (
	"context"
	"errors"
	"time"

	"vidgate/internal/entity"
)

const (
	defaultProgressFreq = 2 * time.Second
)

// Engine resolves metadata and fetches media for a URL.
type Engine interface {
	// Name returns the engine identifier used in logs and metrics.
	Name() string
	// Resolve reads the URL metadata without downloading it.
	Resolve(ctx context.Context, url string) (*entity.Metadata, error)
	// Fetch downloads and post-processes the media and returns the path the
	// engine reports for the final file, which may be empty.
	Fetch(ctx context.Context, req entity.FetchRequest) (string, error)
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "process"
	}
}
