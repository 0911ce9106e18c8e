package worker

import (
	"context"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces requests per host. The portal is a single host, so in
// practice one token bucket serves both the JSON client and the browser.
type Limiter struct {
	limiters     map[string]*rate.Limiter
	mu           sync.RWMutex
	defaultRate  rate.Limit
	defaultBurst int

	// jitter returns a duration in [min, max]; replaced in tests
	jitter func(min, max time.Duration) time.Duration
}

// NewLimiter creates a limiter. A non-positive rate disables pacing.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}

	return &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  limit,
		defaultBurst: burst,
		jitter:       uniformJitter,
	}
}

// Wait blocks until the host of rawURL has a free token
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host, err := extractHost(rawURL)
	if err != nil {
		return err
	}
	return l.getLimiter(host).Wait(ctx)
}

// Allow reports whether a request may go out now, consuming a token if so
func (l *Limiter) Allow(rawURL string) bool {
	host, err := extractHost(rawURL)
	if err != nil {
		return false
	}
	return l.getLimiter(host).Allow()
}

func (l *Limiter) getLimiter(host string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limiters[host]
	l.mu.RUnlock()

	if exists {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if limiter, exists := l.limiters[host]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	l.limiters[host] = limiter
	return limiter
}

// SetHostRate overrides the rate for one host
func (l *Limiter) SetHostRate(host string, requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if burst <= 0 {
		burst = l.defaultBurst
	}
	l.limiters[host] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// ApplyCrawlDelay slows the host of rawURL to one request per delay when
// that is stricter than its current rate. It reports whether the rate changed.
func (l *Limiter) ApplyCrawlDelay(rawURL string, delay time.Duration) (bool, error) {
	if delay <= 0 {
		return false, nil
	}
	host, err := extractHost(rawURL)
	if err != nil {
		return false, err
	}
	current := l.getLimiter(host)
	robotsRate := rate.Every(delay)
	if current.Limit() <= robotsRate {
		return false, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters[host] = rate.NewLimiter(robotsRate, 1)
	return true, nil
}

// WaitJitter waits for a token and then sleeps a random duration in
// [min, max]. It returns the slept duration.
func (l *Limiter) WaitJitter(ctx context.Context, rawURL string, min, max time.Duration) (time.Duration, error) {
	if err := l.Wait(ctx, rawURL); err != nil {
		return 0, err
	}

	delay := l.jitter(min, max)
	if delay <= 0 {
		return 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
	}
	return delay, nil
}

func extractHost(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return parsed.Host, nil
}

func uniformJitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + rand.N(max-min+1)
}
