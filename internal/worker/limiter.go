package worker

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minThrottledRate is the slowest pace Throttle will push a host to
const minThrottledRate = rate.Limit(0.1)

// Limiter paces registry requests per host. Every host starts at the configured rate;
// a robots.txt crawl delay or a 429 answer slows that host for the rest of the run.
// Nothing ever speeds a host back up.
type Limiter struct {
	mu    sync.Mutex
	hosts map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// NewLimiter creates a limiter. A non-positive rate disables limiting.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}

	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		hosts: make(map[string]*rate.Limiter),
		limit: limit,
		burst: burst,
	}
}

// Wait blocks until a request to rawURL may proceed or ctx is done
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := hostOf(rawURL)
	if err != nil {
		return err
	}
	return l.host(host).Wait(ctx)
}

// Limit reports the current pace for host
func (l *Limiter) Limit(host string) rate.Limit {
	return l.host(host).Limit()
}

// SetCrawlDelay slows host to one request per delay. Delays looser than the current
// pace are ignored.
func (l *Limiter) SetCrawlDelay(host string, delay time.Duration) {
	if delay <= 0 {
		return
	}
	l.slow(host, rate.Every(delay))
}

// Throttle halves the pace for the host of rawURL after the registry answered 429 and
// returns the new rate in requests per second. Unlimited hosts are left alone.
func (l *Limiter) Throttle(rawURL string) float64 {
	host, err := hostOf(rawURL)
	if err != nil {
		return float64(l.limit)
	}

	current := l.host(host).Limit()
	if current == rate.Inf {
		return float64(current)
	}
	l.slow(host, max(current/2, minThrottledRate))
	return float64(l.host(host).Limit())
}

// slow lowers host to limit with a burst of one, never raising it
func (l *Limiter) slow(host string, limit rate.Limit) {
	lim := l.host(host)

	l.mu.Lock()
	defer l.mu.Unlock()

	if lim.Limit() <= limit {
		return
	}
	lim.SetLimit(limit)
	lim.SetBurst(1)
}

func (l *Limiter) host(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.hosts[host] = lim
	}
	return lim
}

func hostOf(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return parsed.Host, nil
}
