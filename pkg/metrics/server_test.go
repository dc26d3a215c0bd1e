package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Body)
	return rec.Code, string(body)
}

func TestServerMuxServesOwnRegistry(t *testing.T) {
	m := New()
	m.QueriesTotal.WithLabelValues("search", "ok").Inc()
	mux := ServerMux(m, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"alive"}`)
	}))

	code, body := get(t, mux, "/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics: %d", code)
	}
	for _, want := range []string{`directory_queries_total{op="search",result="ok"} 1`, "go_goroutines", "process_"} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape is missing %q", want)
		}
	}

	if code, body := get(t, mux, "/health/live"); code != http.StatusOK || !strings.Contains(body, "alive") {
		t.Errorf("/health/live: %d %s", code, body)
	}
	if _, body := get(t, mux, "/"); !strings.Contains(body, `href="/health/live"`) {
		t.Errorf("index should link the live endpoint: %s", body)
	}
}

func TestServerMuxWithoutLiveness(t *testing.T) {
	mux := ServerMux(NewWithRegistry(prometheus.NewRegistry()), nil)
	if code, _ := get(t, mux, "/health/live"); code != http.StatusNotFound {
		t.Errorf("/health/live without a handler: %d", code)
	}
	if _, body := get(t, mux, "/"); strings.Contains(body, "/health/live") {
		t.Errorf("index lists an unmounted path: %s", body)
	}
}

func TestNewDoesNotTouchDefaultRegistry(t *testing.T) {
	// Two instances would collide on prometheus.DefaultRegisterer.
	New()
	New()
}
