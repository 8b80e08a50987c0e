package jikan

import (
	"context"
	"sync"
	"time"
)

const (
	defaultPerSecond    = 3
	defaultPerMinute    = 60
	defaultPollInterval = 100 * time.Millisecond
)

// RateLimiter admits outbound calls under two trailing windows: at most
// perSecond in the last second and perMinute in the last minute. One limiter
// is shared by every caller of the upstream API.
type RateLimiter struct {
	mu           sync.Mutex
	perSecond    int
	perMinute    int
	pollInterval time.Duration
	timestamps   []time.Time
	now          func() time.Time
}

type LimiterStats struct {
	PerSecond    int `json:"per_second"`
	PerMinute    int `json:"per_minute"`
	InLastSecond int `json:"in_last_second"`
	InLastMinute int `json:"in_last_minute"`
}

func NewRateLimiter(perSecond, perMinute int) *RateLimiter {
	if perSecond <= 0 {
		perSecond = defaultPerSecond
	}
	if perMinute <= 0 {
		perMinute = defaultPerMinute
	}
	return &RateLimiter{
		perSecond:    perSecond,
		perMinute:    perMinute,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// Acquire blocks until a slot is free and records it. It only returns an
// error when ctx ends first.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		if l.tryAcquire() {
			return nil
		}

		timer := time.NewTimer(l.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *RateLimiter) tryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	if l.countSince(now.Add(-time.Second)) >= l.perSecond || len(l.timestamps) >= l.perMinute {
		return false
	}

	l.timestamps = append(l.timestamps, now)
	return true
}

func (l *RateLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	return LimiterStats{
		PerSecond:    l.perSecond,
		PerMinute:    l.perMinute,
		InLastSecond: l.countSince(now.Add(-time.Second)),
		InLastMinute: len(l.timestamps),
	}
}

// prune drops entries outside the minute window. Callers hold mu.
func (l *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)

	keep := 0
	for keep < len(l.timestamps) && !l.timestamps[keep].After(cutoff) {
		keep++
	}
	if keep > 0 {
		l.timestamps = append(l.timestamps[:0], l.timestamps[keep:]...)
	}
}

func (l *RateLimiter) countSince(cutoff time.Time) int {
	count := 0
	for i := len(l.timestamps) - 1; i >= 0 && l.timestamps[i].After(cutoff); i-- {
		count++
	}
	return count
}
