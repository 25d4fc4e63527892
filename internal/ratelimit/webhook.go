package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/intellispire/commercestore/internal/config"
	redis "github.com/redis/go-redis/v9"
)

const keyWebhookGateway = "webhook:ingest:%s"

// WebhookLimiter throttles inbound gateway notifications per gateway.
// A misbehaving gateway retrying a backlog cannot starve the others.
type WebhookLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewWebhookLimiter returns nil when limiting is disabled; a nil
// limiter admits everything.
func NewWebhookLimiter(cfg config.Config, client *redis.Client) *WebhookLimiter {
	if cfg.WebhookRateLimitRPS <= 0 || client == nil {
		return nil
	}
	burst := cfg.WebhookRateLimitBurst
	if burst <= 0 {
		burst = 1
	}
	return &WebhookLimiter{
		bucket: NewTokenBucket(client),
		rate:   cfg.WebhookRateLimitRPS,
		burst:  burst,
	}
}

// AllowGateway admits or rejects one webhook delivery for the gateway.
func (l *WebhookLimiter) AllowGateway(ctx context.Context, gateway string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	if gateway == "" {
		gateway = "unknown"
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookGateway, gateway), l.rate, l.burst)
	if err != nil {
		// Redis trouble must not drop gateway notifications.
		return Result{Allowed: true}, nil
	}
	return res, nil
}
