package services

import (
	"context"
	"time"
)

// FastStore is the volatile tier behind caching and conversation state. The
// redis-backed implementation swallows transport errors, so callers treat a
// miss and a failure identically.
type FastStore interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value string, ttl time.Duration)
	Del(ctx context.Context, key string)
}
