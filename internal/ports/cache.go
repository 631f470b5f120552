package ports

import (
	"context"
	"time"
)

// RateLimitStore is a fixed-window request counter keyed by caller identity
// (IP plus endpoint scope). It is orthogonal to the per-account guard.
type RateLimitStore interface {
	// Take records one request against key and reports whether it is still
	// within limit for the window.
	Take(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
