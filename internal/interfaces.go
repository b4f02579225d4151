package internal

import "context"

// RateLimiter paces outgoing requests
type RateLimiter interface {
	Wait(ctx context.Context) error
	SetRate(requestsPerSecond float64)
}
