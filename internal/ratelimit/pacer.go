package ratelimit

import (
	"context"
	"fmt"
	"time"

	identitydomain "github.com/envisionerapp/envisioner-discovery-sub000/internal/identity/domain"
	redis "github.com/redis/go-redis/v9"
)

const keyProviderPace = "sync:pace:%s"

// Pacer spreads provider calls out to one per call-delay interval, shared
// across worker replicas through redis. Disabled it always allows; the
// worker then falls back to a local sleep between calls.
type Pacer struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewPacer(client *redis.Client, callDelay time.Duration) *Pacer {
	if client == nil || callDelay <= 0 {
		return nil
	}
	return &Pacer{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    float64(time.Second) / float64(callDelay),
		burst:   1,
	}
}

func (p *Pacer) Enabled() bool {
	return p != nil && p.enabled
}

func (p *Pacer) Allow(ctx context.Context, platform identitydomain.Platform) (*PaceResult, error) {
	if !p.Enabled() {
		return &PaceResult{Allowed: true}, nil
	}
	return p.bucket.Allow(ctx, fmt.Sprintf(keyProviderPace, platform), p.rate, p.burst)
}
