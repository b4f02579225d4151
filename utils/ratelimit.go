package utils

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"rblxcloud/internal"
)

// RequestLimiter caps the number of requests sent per second. A rate of zero
// disables limiting.
type RequestLimiter struct {
	limiter *rate.Limiter
}

var _ internal.RateLimiter = (*RequestLimiter)(nil)

// NewRequestLimiter creates a limiter allowing requestsPerSecond with the given burst
func NewRequestLimiter(requestsPerSecond float64, burst int) *RequestLimiter {
	if burst < 1 {
		burst = max(1, int(math.Ceil(requestsPerSecond)))
	}
	return &RequestLimiter{limiter: rate.NewLimiter(toLimit(requestsPerSecond), burst)}
}

func toLimit(requestsPerSecond float64) rate.Limit {
	if requestsPerSecond <= 0 {
		return rate.Inf
	}
	return rate.Limit(requestsPerSecond)
}

// Wait blocks until one request may be sent or ctx is done
func (r *RequestLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetRate changes the allowed requests per second
func (r *RequestLimiter) SetRate(requestsPerSecond float64) {
	r.limiter.SetLimit(toLimit(requestsPerSecond))
}

// Rate returns the current requests per second, or +Inf when unlimited
func (r *RequestLimiter) Rate() float64 {
	limit := r.limiter.Limit()
	if limit == rate.Inf {
		return math.Inf(1)
	}
	return float64(limit)
}

// ParseRate parses a request rate such as "10", "10/s", "300/m" or "5000/h"
// into requests per second.
func ParseRate(s string) (float64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty rate")
	}

	count, unit, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(strings.TrimSpace(count), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("rate cannot be negative: %q", s)
	}
	if !found {
		return n, nil
	}

	switch strings.TrimSpace(unit) {
	case "s", "sec", "second":
		return n, nil
	case "m", "min", "minute":
		return n / 60, nil
	case "h", "hour":
		return n / 3600, nil
	default:
		return 0, fmt.Errorf("unsupported rate unit %q (use s, m or h)", unit)
	}
}
