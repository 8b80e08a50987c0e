package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"

	"anivault/internal/app"
)

var entry = newLazyRuntime(func(ctx context.Context) (http.Handler, error) {
	runtime, err := app.Build(ctx, app.Options{LoadDotEnv: false})
	if err != nil {
		return nil, err
	}
	return runtime.Handler, nil
})

// Handler is the serverless entrypoint. The periodic sweeper does not run
// here; the cron-triggered cleanup route covers it.
func Handler(w http.ResponseWriter, r *http.Request) {
	entry.ServeHTTP(w, r)
}

// lazyRuntime builds the application on first use. A failed build is not
// cached, so a warm instance recovers once its dependencies come back.
type lazyRuntime struct {
	mu      sync.Mutex
	build   func(ctx context.Context) (http.Handler, error)
	handler http.Handler
}

func newLazyRuntime(build func(ctx context.Context) (http.Handler, error)) *lazyRuntime {
	return &lazyRuntime{build: build}
}

func (l *lazyRuntime) get(ctx context.Context) (http.Handler, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handler != nil {
		return l.handler, nil
	}
	handler, err := l.build(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}
	l.handler = handler
	return handler, nil
}

func (l *lazyRuntime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	handler, err := l.get(r.Context())
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap failed:", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "application bootstrap failed"})
		return
	}

	handler.ServeHTTP(w, r)
}
