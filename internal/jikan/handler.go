package jikan

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"anivault/internal/observability"
)

const throttledRetryAfterSeconds = "1"

type Handler struct {
	client  *Client
	limiter *RateLimiter
}

func NewHandler(client *Client, limiter *RateLimiter) *Handler {
	return &Handler{client: client, limiter: limiter}
}

func (h *Handler) AnimeByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid anime id")
		return
	}

	resp, err := h.client.AnimeByID(r.Context(), id)
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}

	resp, err := h.client.Search(r.Context(), q.Get("q"), queryInt(q.Get("page")), queryInt(q.Get("limit")))
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SeasonNow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.client.SeasonNow(r.Context(), queryInt(q.Get("page")), queryInt(q.Get("limit")))
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) SeasonUpcoming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.client.SeasonUpcoming(r.Context(), queryInt(q.Get("page")), queryInt(q.Get("limit")))
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Season(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}

	resp, err := h.client.Season(r.Context(), year, r.PathValue("season"), queryInt(r.URL.Query().Get("page")))
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Top(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := h.client.Top(r.Context(), queryInt(q.Get("page")), queryInt(q.Get("limit")))
	if err != nil {
		writeFetchError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) LimiterStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.limiter.Stats())
}

func writeFetchError(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *UpstreamError

	if r.Context().Err() != nil {
		// client went away
		return
	}

	switch {
	case errors.Is(err, ErrInvalidParameter):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUpstreamThrottled):
		w.Header().Set("Retry-After", throttledRetryAfterSeconds)
		writeError(w, http.StatusServiceUnavailable, "anime service is busy, retry shortly")
	case errors.As(err, &upstream) && upstream.StatusCode == http.StatusNotFound:
		writeError(w, http.StatusNotFound, "anime not found")
	case errors.Is(err, ErrUpstreamFailure):
		writeError(w, http.StatusBadGateway, "anime service unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "anime service timed out")
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusBadGateway, "anime service unavailable")
	default:
		observability.CaptureError(r, err)
		writeError(w, http.StatusInternalServerError, "failed to fetch anime")
	}
}

func queryInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
