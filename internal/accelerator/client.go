// Package accelerator drives a Meilisearch index through the official Go
// SDK: health, index settings, full document replacement and search. Every
// call passes through a circuit breaker so that a sick search engine
// degrades to the in-memory engine instead of slowing requests down.
package accelerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/resilience"
)

type Config struct {
	Host      string
	APIKey    string
	Index     string
	Timeout   time.Duration
	BatchSize int
	// TaskInterval and TaskTimeout bound how enqueued tasks are awaited.
	TaskInterval time.Duration
	TaskTimeout  time.Duration
	// Upload retries a batch whose enqueue failed on the server side.
	Upload  resilience.RetryConfig
	Breaker resilience.CircuitBreakerConfig
}

// serverSide reports whether err should count against the breaker. Request
// errors (4xx) say nothing about the engine's health.
func serverSide(err error) bool {
	var meiliErr *meilisearch.Error
	if errors.As(err, &meiliErr) {
		if meiliErr.StatusCode != 0 {
			return meiliErr.StatusCode >= 500 || meiliErr.StatusCode == http.StatusTooManyRequests
		}
		return !errors.Is(meiliErr.OriginError, context.Canceled)
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	cfg     Config
	meili   meilisearch.ServiceManager
	index   meilisearch.IndexManager
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Client. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Client {
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Index == "" {
		cfg.Index = "companies"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5000
	}
	if cfg.TaskInterval <= 0 {
		cfg.TaskInterval = 50 * time.Millisecond
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 2 * time.Minute
	}
	if cfg.Upload.MaxAttempts <= 0 {
		cfg.Upload = resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2,
		}
	}
	bcfg := cfg.Breaker
	bcfg.IsFailure = serverSide
	bcfg.OnStateChange = func(name string, _, to resilience.State) {
		if m != nil {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}

	opts := []meilisearch.Option{meilisearch.WithCustomClient(&http.Client{})}
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}
	sm := meilisearch.New(cfg.Host, opts...)

	c := &Client{
		cfg:     cfg,
		meili:   sm,
		index:   sm.Index(cfg.Index),
		breaker: resilience.NewCircuitBreaker("accelerator", bcfg),
		metrics: m,
		logger:  slog.Default().With("component", "accelerator", "host", cfg.Host, "index", cfg.Index),
	}
	if m != nil {
		m.CircuitBreakerState.WithLabelValues("accelerator").Set(0)
	}
	return c
}

// Available reports whether the breaker currently admits calls.
func (c *Client) Available() bool { return c.breaker.Allow() }

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// IndexName is the configured index uid.
func (c *Client) IndexName() string { return c.cfg.Index }

// Health asks the engine whether it is available.
func (c *Client) Health(ctx context.Context) error {
	return c.call(ctx, "health", c.cfg.Timeout, func(ctx context.Context) error {
		h, err := c.meili.HealthWithContext(ctx)
		if err != nil {
			return err
		}
		if h.Status != "available" {
			return fmt.Errorf("meilisearch status %q", h.Status)
		}
		return nil
	})
}

// call runs fn under the breaker with its own deadline and counts the
// outcome per operation.
func (c *Client) call(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	err := c.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, timeout, "accelerator."+op, fn)
	})
	if c.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.AcceleratorRequests.WithLabelValues(op, outcome).Inc()
	}
	return err
}
