package httputil

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostQueue spaces out scraping. Next gates the move to the next property and
// Wait gates each request to a given host, both at one request per spacing.
type HostQueue struct {
	spacing time.Duration
	global  *rate.Limiter

	mu    sync.Mutex
	hosts map[string]*rate.Limiter
}

func NewHostQueue(spacing time.Duration) *HostQueue {
	return &HostQueue{
		spacing: spacing,
		global:  newLimiter(spacing),
		hosts:   make(map[string]*rate.Limiter),
	}
}

func newLimiter(spacing time.Duration) *rate.Limiter {
	if spacing <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(spacing), 1)
}

// Next blocks until the next property may be dequeued.
func (q *HostQueue) Next(ctx context.Context) error {
	return q.global.Wait(ctx)
}

// Wait blocks until rawURL's host may be requested again.
func (q *HostQueue) Wait(ctx context.Context, rawURL string) error {
	host := HostOf(rawURL)

	q.mu.Lock()
	limiter, ok := q.hosts[host]
	if !ok {
		limiter = newLimiter(q.spacing)
		q.hosts[host] = limiter
	}
	q.mu.Unlock()

	return limiter.Wait(ctx)
}

// HostOf returns the lowercased host without a leading www.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
