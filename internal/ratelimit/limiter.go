package ratelimit

import "context"

// RateLimiter throttles outbound delivery attempts per notification
// channel so provider quotas are respected across all workers.
type RateLimiter interface {
	// Allow reports whether one more dispatch on the channel fits the
	// current window.
	Allow(ctx context.Context, channel string) (bool, error)
	// Wait blocks until a dispatch slot opens or ctx is done.
	Wait(ctx context.Context, channel string) error
}
