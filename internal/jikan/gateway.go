package jikan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"anivault/internal/observability"
)

const (
	defaultCacheTTL     = time.Hour
	defaultTimeout      = 30 * time.Second
	defaultRetryBackoff = time.Second
	maxThrottleRetries  = 1
	maxResponseBytes    = 4 << 20
)

var (
	ErrUpstreamThrottled = errors.New("jikan: upstream throttled")
	ErrUpstreamFailure   = errors.New("jikan: upstream failure")
)

// UpstreamError is a failed upstream call: a non-2xx, non-429 status or a
// transport error (StatusCode 0).
type UpstreamError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("jikan: GET %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("jikan: GET %s: status %d", e.URL, e.StatusCode)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamFailure
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type GatewayConfig struct {
	Timeout      time.Duration
	CacheTTL     time.Duration
	RetryBackoff time.Duration
}

// Gateway is the read-through cache in front of the Jikan API. Cache hits
// never touch the rate limiter.
type Gateway struct {
	client  *http.Client
	cache   Cache
	limiter *RateLimiter
	logger  *observability.Logger
	ttl     time.Duration
	backoff time.Duration
	group   singleflight.Group
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewGateway(cache Cache, limiter *RateLimiter, logger *observability.Logger, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Gateway{
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   cache,
		limiter: limiter,
		logger:  logger,
		ttl:     cfg.CacheTTL,
		backoff: cfg.RetryBackoff,
		sleep:   sleepContext,
	}
}

func (g *Gateway) Limiter() *RateLimiter {
	return g.limiter
}

// Fetch returns the payload at url decoded into T, serving it from the cache
// when present. Fresh payloads are cached only after they decode.
func Fetch[T any](ctx context.Context, g *Gateway, url string) (T, error) {
	var out T

	if cached, ok := g.cached(ctx, url); ok {
		if err := json.Unmarshal(cached, &out); err == nil {
			return out, nil
		}
		g.logger.Warn("jikan_cache_decode_failed", map[string]any{"url": url})
		out = *new(T)
	}

	body, err := g.fetchShared(ctx, url)
	if err != nil {
		return out, err
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return *new(T), &UpstreamError{URL: url, StatusCode: http.StatusOK, Err: fmt.Errorf("decode response: %w", err)}
	}

	if err := g.cache.Set(ctx, url, body, g.ttl); err != nil {
		g.logger.Warn("jikan_cache_write_failed", map[string]any{"url": url, "error": err.Error()})
	}
	return out, nil
}

func (g *Gateway) cached(ctx context.Context, url string) ([]byte, bool) {
	body, ok, err := g.cache.Get(ctx, url)
	if err != nil {
		g.logger.Warn("jikan_cache_read_failed", map[string]any{"url": url, "error": err.Error()})
		return nil, false
	}
	return body, ok
}

// fetchShared collapses concurrent misses for the same URL into one upstream
// call. The shared call is detached from any single caller's cancellation and
// stays bounded by the client timeout; each caller still stops waiting when
// its own ctx ends.
func (g *Gateway) fetchShared(ctx context.Context, url string) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := g.group.DoChan(url, func() (any, error) {
		return g.fetchWithRetry(shared, url)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (g *Gateway) fetchWithRetry(ctx context.Context, url string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, status, err := g.get(ctx, url)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusTooManyRequests:
			if attempt >= maxThrottleRetries {
				g.logger.Warn("jikan_throttled", map[string]any{"url": url, "attempts": attempt + 1})
				return nil, ErrUpstreamThrottled
			}
			g.logger.Info("jikan_throttled_retrying", map[string]any{"url": url, "backoff_ms": g.backoff.Milliseconds()})
			if err := g.sleep(ctx, g.backoff); err != nil {
				return nil, err
			}
		case status < 200 || status >= 300:
			return nil, &UpstreamError{URL: url, StatusCode: status}
		default:
			return body, nil
		}
	}
}

func (g *Gateway) get(ctx context.Context, url string) ([]byte, int, error) {
	if err := g.limiter.Acquire(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build jikan request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, &UpstreamError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, 0, &UpstreamError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	g.logger.Debug("jikan_request", map[string]any{
		"url":         url,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return body, resp.StatusCode, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
