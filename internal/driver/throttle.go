package driver

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostThrottle enforces a request rate per host across navigations
type HostThrottle struct {
	limit rate.Limit
	burst int
	mu    sync.Mutex
	// Map: hostname -> limiter
	limiters map[string]*rate.Limiter
}

// NewHostThrottle creates a throttle allowing perSecond requests per host.
// A non-positive rate disables throttling.
func NewHostThrottle(perSecond float64, burst int) *HostThrottle {
	if burst < 1 {
		burst = 1
	}
	return &HostThrottle{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to rawURL's host is allowed
func (ht *HostThrottle) Wait(ctx context.Context, rawURL string) error {
	if ht == nil || ht.limit <= 0 {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return nil
	}

	return ht.limiter(strings.ToLower(parsed.Hostname())).Wait(ctx)
}

func (ht *HostThrottle) limiter(host string) *rate.Limiter {
	ht.mu.Lock()
	defer ht.mu.Unlock()

	l, ok := ht.limiters[host]
	if !ok {
		l = rate.NewLimiter(ht.limit, ht.burst)
		ht.limiters[host] = l
	}
	return l
}
