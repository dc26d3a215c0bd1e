package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ServerMux routes /metrics to m and, when live is non-nil, /health/live to
// live so orchestrators can probe liveness on the scrape port. The root
// page lists whatever is mounted.
func ServerMux(m *Metrics, live http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	paths := []string{"/metrics"}
	mux.Handle("GET /metrics", m.Handler())
	if live != nil {
		mux.Handle("GET /health/live", live)
		paths = append(paths, "/health/live")
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		var links strings.Builder
		for _, p := range paths {
			fmt.Fprintf(&links, `<li><a href="%s">%s</a></li>`, p, p)
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, `<html><body><h1>Business Directory Metrics</h1><ul>%s</ul></body></html>`, links.String())
	})
	return mux
}

// StartServer serves ServerMux on port in the background.
func StartServer(port int, m *Metrics, live http.Handler) (shutdown func(context.Context) error) {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      ServerMux(m, live),
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
