package app

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"anivault/internal/auth"
	"anivault/internal/jikan"
	"anivault/internal/maintenance"
	"anivault/internal/observability"
	"anivault/internal/token"
)

type healthCheck func(ctx context.Context) error

type routerDeps struct {
	logger       *observability.Logger
	signer       *token.Signer
	auth         *auth.Handler
	loginLimiter *auth.LoginRateLimiter
	anime        *jikan.Handler
	limiterRoles []auth.Role
	cleanup      *maintenance.CleanupHandler
	health       map[string]healthCheck
}

func newRouter(d routerDeps) http.Handler {
	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(d.signer, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", d.auth.Signup)
	mux.Handle("POST /auth/login", d.loginLimiter.Middleware(http.HandlerFunc(d.auth.Login)))
	mux.HandleFunc("POST /auth/refresh", d.auth.Refresh)
	mux.HandleFunc("POST /auth/logout", d.auth.Logout)
	mux.HandleFunc("POST /auth/verify-email", d.auth.SendVerification)
	mux.HandleFunc("POST /auth/verify-code", d.auth.VerifyCode)
	mux.Handle("GET /auth/me", protected(d.auth.Me))
	mux.Handle("PUT /auth/username", protected(d.auth.UpdateUsername))

	mux.HandleFunc("GET /anime/{id}", d.anime.AnimeByID)
	mux.HandleFunc("GET /anime/search", d.anime.Search)
	mux.HandleFunc("GET /anime/season/now", d.anime.SeasonNow)
	mux.HandleFunc("GET /anime/season/upcoming", d.anime.SeasonUpcoming)
	mux.HandleFunc("GET /anime/season/{year}/{season}", d.anime.Season)
	mux.HandleFunc("GET /anime/top", d.anime.Top)

	mux.Handle("GET /admin/jikan/limiter", auth.Middleware(d.signer,
		auth.RequireRole(http.HandlerFunc(d.anime.LimiterStats), d.limiterRoles...)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", d.cleanup.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", d.cleanup.Handle)
	mux.HandleFunc("GET /health", healthHandler(d.health))

	return observability.RecoverMiddleware(d.logger,
		observability.RequestLoggingMiddleware(d.logger,
			observability.SecurityHeadersMiddleware(mux)))
}

func healthHandler(checks map[string]healthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		overall := "ok"
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = "down"
				status = http.StatusServiceUnavailable
				overall = "degraded"
				continue
			}
			results[name] = "up"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": overall,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}
