package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/intellispire/commercestore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWebhookLimiterDisabled(t *testing.T) {
	assert.Nil(t, NewWebhookLimiter(config.Config{WebhookRateLimitRPS: 0}, nil))
	assert.Nil(t, NewWebhookLimiter(config.Config{WebhookRateLimitRPS: 5}, nil))
}

func TestNilLimiterAdmitsEverything(t *testing.T) {
	var l *WebhookLimiter
	res, err := l.AllowGateway(context.Background(), "stripe")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNilBucketAdmits(t *testing.T) {
	var b *TokenBucket
	res, err := b.Allow(context.Background(), "k", 1, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestBucketTTLCoversRefill(t *testing.T) {
	assert.Equal(t, 40*time.Second, bucketTTL(1, 20))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
}

func TestCastHelpers(t *testing.T) {
	assert.Equal(t, int64(1), castInt(int64(1)))
	assert.Equal(t, int64(2), castInt(2))
	assert.Equal(t, int64(0), castInt("nope"))
	assert.Equal(t, 1.5, castFloat(1.5))
	assert.Equal(t, 3.0, castFloat(int64(3)))
	assert.Equal(t, 2.25, castFloat("2.25"))
	assert.Equal(t, 0.0, castFloat(nil))
}
