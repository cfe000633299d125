package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Default limiter housekeeping values.
const (
	DefaultCleanupInterval = 1 * time.Minute
	DefaultEntryTTL        = 5 * time.Minute
)

type routeEntry struct {
	bucket   *Bucket
	lastSeen time.Time
}

// RouteLimiter enforces per-route request limits, tracked per client IP.
// Each route declares its own requests-per-minute budget; the limiter lazily
// creates a bucket per (route, client) pair and evicts idle entries.
type RouteLimiter struct {
	mu        sync.Mutex
	entries   map[string]*routeEntry
	stopCh    chan struct{}
	entryTTL  time.Duration
	trustedXF bool
}

// NewRouteLimiter creates a limiter and starts its eviction loop.
// trustForwarded controls whether X-Forwarded-For is believed for client
// identity; enable it only behind a proxy that sets the header itself.
func NewRouteLimiter(trustForwarded bool) *RouteLimiter {
	rl := &RouteLimiter{
		entries:   make(map[string]*routeEntry),
		stopCh:    make(chan struct{}),
		entryTTL:  DefaultEntryTTL,
		trustedXF: trustForwarded,
	}
	go rl.cleanup(DefaultCleanupInterval)
	return rl
}

// Stop halts the eviction loop.
func (rl *RouteLimiter) Stop() {
	close(rl.stopCh)
}

// Allow consumes one token from the (routeID, clientIP) bucket, creating it
// at perMinute requests per minute if absent. perMinute <= 0 disables the
// limit for that route.
func (rl *RouteLimiter) Allow(routeID, clientIP string, perMinute int) (allowed bool, remaining int, retryAfterSec int64) {
	if perMinute <= 0 {
		return true, -1, 0
	}

	key := routeID + "|" + clientIP
	now := time.Now()

	rl.mu.Lock()
	entry, ok := rl.entries[key]
	if !ok {
		entry = &routeEntry{bucket: NewBucket(float64(perMinute)/60.0, perMinute)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now
	rl.mu.Unlock()

	if entry.bucket.Allow() {
		return true, int(entry.bucket.Available()), 0
	}
	return false, 0, entry.bucket.retryAfter()
}

// ClientIP extracts the client address for bucket keying. Falls back to the
// whole RemoteAddr when it does not split.
func (rl *RouteLimiter) ClientIP(r *http.Request) string {
	if rl.trustedXF {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			if i := strings.IndexByte(xf, ','); i >= 0 {
				xf = xf[:i]
			}
			if ip := strings.TrimSpace(xf); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (rl *RouteLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastSeen) > rl.entryTTL {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}
