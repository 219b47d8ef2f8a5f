package metrics

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"time"
)

// ServerConfig describes the operator listener that serves /metrics.
type ServerConfig struct {
	Port int
	// Generation reports the index generation being served. Optional.
	Generation func() string
	// Ready is mounted at /health/ready on the same port. Optional.
	Ready http.Handler
}

// NewServeMux returns the operator routes: /metrics, an optional readiness
// check and a landing page naming the generation being served.
func NewServeMux(cfg ServerConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())
	if cfg.Ready != nil {
		mux.Handle("GET /health/ready", cfg.Ready)
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		generation := "none"
		if cfg.Generation != nil {
			if g := cfg.Generation(); g != "" {
				generation = g
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><h1>Blog Content Store</h1><p>Serving index generation <code>%s</code></p><ul><li><a href="/metrics">/metrics</a></li>`,
			html.EscapeString(generation))
		if cfg.Ready != nil {
			fmt.Fprint(w, `<li><a href="/health/ready">/health/ready</a></li>`)
		}
		fmt.Fprint(w, `</ul></body></html>`)
	})
	return mux
}

// StartServer serves NewServeMux(cfg) in the background and returns its
// shutdown func.
func StartServer(cfg ServerConfig) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewServeMux(cfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("metrics server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()

	return server.Shutdown
}
