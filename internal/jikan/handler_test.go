package jikan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newHandlerMux(f *gatewayFixture) *http.ServeMux {
	h := NewHandler(NewClient(f.gateway, f.server.URL), f.gateway.Limiter())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /anime/{id}", h.AnimeByID)
	mux.HandleFunc("GET /anime/search", h.Search)
	mux.HandleFunc("GET /anime/season/now", h.SeasonNow)
	mux.HandleFunc("GET /anime/season/upcoming", h.SeasonUpcoming)
	mux.HandleFunc("GET /anime/season/{year}/{season}", h.Season)
	mux.HandleFunc("GET /anime/top", h.Top)
	mux.HandleFunc("GET /admin/jikan/limiter", h.LimiterStats)
	return mux
}

func get(mux http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_AnimeByID(t *testing.T) {
	f := newGatewayFixture(t, okHandler)
	mux := newHandlerMux(f)

	rec := get(mux, "/anime/1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Cowboy Bebop"`)

	assert.Equal(t, http.StatusBadRequest, get(mux, "/anime/abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(mux, "/anime/0").Code)
}

func TestHandler_MapsUpstreamErrors(t *testing.T) {
	tests := []struct {
		name     string
		upstream int
		want     int
	}{
		{name: "throttled", upstream: http.StatusTooManyRequests, want: http.StatusServiceUnavailable},
		{name: "not found", upstream: http.StatusNotFound, want: http.StatusNotFound},
		{name: "server error", upstream: http.StatusInternalServerError, want: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.upstream)
			})

			rec := get(newHandlerMux(f), "/anime/5")
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestHandler_ListRoutes(t *testing.T) {
	f := newGatewayFixture(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"pagination":{"last_visible_page":3,"has_next_page":true,"current_page":1},"data":[]}`))
	})
	mux := newHandlerMux(f)

	for _, path := range []string{
		"/anime/search?q=bebop",
		"/anime/season/now",
		"/anime/season/upcoming?page=2",
		"/anime/season/2024/spring",
		"/anime/top?limit=10",
	} {
		rec := get(mux, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"has_next_page":true`, path)
	}

	assert.Equal(t, http.StatusBadRequest, get(mux, "/anime/search").Code)
	assert.Equal(t, http.StatusBadRequest, get(mux, "/anime/season/2024/monsoon").Code)
	assert.Equal(t, http.StatusBadRequest, get(mux, "/anime/season/later/fall").Code)
}

func TestHandler_LimiterStats(t *testing.T) {
	f := newGatewayFixture(t, okHandler)
	mux := newHandlerMux(f)

	get(mux, "/anime/1")
	rec := get(mux, "/admin/jikan/limiter")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"per_second":100,"per_minute":1000,"in_last_second":1,"in_last_minute":1}`, rec.Body.String())
}

func TestWriteFetchError_Cancellation(t *testing.T) {
	t.Run("caller gone writes nothing", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodGet, "/anime/1", nil).WithContext(ctx)

		rec := httptest.NewRecorder()
		writeFetchError(rec, req, context.Canceled)
		assert.False(t, rec.Flushed)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("caller live maps to bad gateway", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/anime/1", nil)

		rec := httptest.NewRecorder()
		writeFetchError(rec, req, context.Canceled)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.NotEmpty(t, rec.Body.String())
	})

	t.Run("caller live deadline maps to gateway timeout", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/anime/1", nil)

		rec := httptest.NewRecorder()
		writeFetchError(rec, req, fmt.Errorf("fetch: %w", context.DeadlineExceeded))
		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	})

	t.Run("unexpected error is internal", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/anime/1", nil)

		rec := httptest.NewRecorder()
		writeFetchError(rec, req, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
