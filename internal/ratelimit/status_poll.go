package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/undangly/undangly/internal/config"
)

const keyStatusPoll = "payment:status:poll:%s:%s"

// StatusPollLimiter throttles status polling per caller and order. A nil
// limiter allows everything, so the server runs unchanged without redis.
type StatusPollLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewStatusPollLimiter(cfg config.Config) (*StatusPollLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("rate limit enabled without redis addr")
	}
	if limitCfg.StatusPollRate <= 0 || limitCfg.StatusPollBurst <= 0 {
		return nil, fmt.Errorf("status poll rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: limitCfg.RedisPassword,
		DB:       limitCfg.RedisDB,
	})

	return &StatusPollLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.StatusPollRate,
		burst:  limitCfg.StatusPollBurst,
	}, nil
}

func (l *StatusPollLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *StatusPollLimiter) Allow(ctx context.Context, clientIP, orderRef string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	key := fmt.Sprintf(keyStatusPoll, strings.TrimSpace(clientIP), strings.TrimSpace(orderRef))
	return l.bucket.Allow(ctx, key, l.rate, l.burst)
}
