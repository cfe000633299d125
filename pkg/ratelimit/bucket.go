// Package ratelimit provides token-bucket rate limiting primitives.
//
// Bucket is a single token bucket; RouteLimiter tracks one bucket per
// (route, client) pair with the route's own configured rate, which is how
// per-endpoint limits are enforced at dispatch time.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a single token bucket rate limiter.
// It is safe for concurrent use.
type Bucket struct {
	tokens     float64
	maxTokens  float64
	rate       float64 // tokens per second
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewBucket creates a new token bucket with the given rate (tokens/second)
// and burst (maximum tokens). The bucket starts full.
func NewBucket(rate float64, burst int) *Bucket {
	maxTokens := float64(burst)
	if maxTokens <= 0 {
		maxTokens = rate
	}
	return &Bucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		rate:       rate,
		lastUpdate: time.Now(),
	}
}

// refill adds tokens based on elapsed time. Caller must hold b.mu.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens += elapsed * b.rate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastUpdate = now
}

// Allow tries to consume one token. Returns true if a token was available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(time.Now())

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Available returns the current number of tokens (including time-based refill).
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastUpdate).Seconds()
	tokens := b.tokens + elapsed*b.rate
	if tokens > b.maxTokens {
		tokens = b.maxTokens
	}
	return tokens
}

// retryAfter reports the seconds until one token becomes available.
func (b *Bucket) retryAfter() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= 1 || b.rate <= 0 {
		return 0
	}
	secs := (1 - b.tokens) / b.rate
	retry := int64(secs)
	if float64(retry) < secs {
		retry++
	}
	if retry < 1 {
		retry = 1
	}
	return retry
}
