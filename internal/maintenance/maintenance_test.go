package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"anivault/internal/observability"
)

type stubSweeper struct {
	mu      sync.Mutex
	deleted int64
	err     error
	calls   []time.Time
}

func (s *stubSweeper) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, now)
	return s.deleted, s.err
}

func (s *stubSweeper) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func cleanupRequest(method, bearer string) *http.Request {
	req := httptest.NewRequest(method, "/internal/maintenance/cleanup", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req
}

func TestCleanupHandler_Authorization(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		method string
		bearer string
		want   int
	}{
		{name: "disabled without secret", secret: "", method: http.MethodPost, bearer: "x", want: http.StatusNotFound},
		{name: "missing bearer", secret: "cron", method: http.MethodPost, want: http.StatusUnauthorized},
		{name: "wrong bearer", secret: "cron", method: http.MethodPost, bearer: "nope", want: http.StatusUnauthorized},
		{name: "wrong method", secret: "cron", method: http.MethodDelete, bearer: "cron", want: http.StatusMethodNotAllowed},
		{name: "get accepted", secret: "cron", method: http.MethodGet, bearer: "cron", want: http.StatusOK},
		{name: "post accepted", secret: "cron", method: http.MethodPost, bearer: "cron", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweeper := &stubSweeper{}
			h := NewCleanupHandler(sweeper, observability.NopLogger(), tt.secret)

			rec := httptest.NewRecorder()
			h.Handle(rec, cleanupRequest(tt.method, tt.bearer))
			assert.Equal(t, tt.want, rec.Code)

			wantCalls := 0
			if tt.want == http.StatusOK {
				wantCalls = 1
			}
			assert.Equal(t, wantCalls, sweeper.count())
		})
	}
}

func TestCleanupHandler_ReportsDeletedCount(t *testing.T) {
	fixed := time.Date(2025, 11, 8, 12, 0, 0, 0, time.UTC)
	sweeper := &stubSweeper{deleted: 7}
	h := NewCleanupHandler(sweeper, observability.NopLogger(), "cron")
	h.now = func() time.Time { return fixed }

	rec := httptest.NewRecorder()
	h.Handle(rec, cleanupRequest(http.MethodPost, "cron"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","result":{"deleted_refresh_tokens":7}}`, rec.Body.String())
	assert.Equal(t, []time.Time{fixed}, sweeper.calls)
}

func TestCleanupHandler_SweepFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sweeper := &stubSweeper{err: errors.New("db down")}
	h := NewCleanupHandler(sweeper, observability.NewLoggerFromZap(zap.New(core)), "cron")

	rec := httptest.NewRecorder()
	h.Handle(rec, cleanupRequest(http.MethodPost, "cron"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("auth_cleanup_failed").Len())
}

func TestRunner_SweepsUntilCancelled(t *testing.T) {
	sweeper := &stubSweeper{deleted: 1}
	runner := NewRunner(sweeper, observability.NopLogger(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}

func TestRunner_LogsFailuresAndKeepsGoing(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sweeper := &stubSweeper{err: errors.New("db down")}
	runner := NewRunner(sweeper, observability.NewLoggerFromZap(zap.New(core)), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = runner.Run(ctx) }()

	require.Eventually(t, func() bool { return sweeper.count() >= 2 }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool {
		return logs.FilterMessage("refresh_token_sweep_failed").Len() >= 2
	}, time.Second, time.Millisecond)
}

func TestNewRunner_DefaultsInterval(t *testing.T) {
	assert.Equal(t, time.Hour, NewRunner(&stubSweeper{}, observability.NopLogger(), 0).interval)
}
