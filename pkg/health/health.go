// Package health runs registered dependency checks in parallel and serves
// liveness and readiness endpoints. Optional dependencies (cache, broker,
// search accelerator) can only degrade readiness; required ones can fail it.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
	// StatusDisabled marks a dependency turned off by configuration.
	StatusDisabled Status = "disabled"
)

type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Latency  string         `json:"latency,omitempty"`
	Optional bool           `json:"optional,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	check    Check
	optional bool
}

type Checker struct {
	mu     sync.RWMutex
	checks map[string]registration
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]registration),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a required check.
func (c *Checker) Register(name string, check Check) {
	c.register(name, check, false)
}

// RegisterOptional adds a check whose failure only degrades the report.
func (c *Checker) RegisterOptional(name string, check Check) {
	c.register(name, check, true)
}

func (c *Checker) register(name string, check Check, optional bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = registration{check: check, optional: optional}
}

// Names lists registered checks, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.checks))
	for n := range c.checks {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Ping adapts an error-returning probe into a Check.
func Ping(fn func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := fn(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Disabled is a Check for a dependency that is not configured.
func Disabled(reason string) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDisabled, Message: reason}
	}
}

// Run executes every check concurrently. A down required component makes the
// report down; a down optional or degraded component makes it degraded.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]registration, len(c.checks))
	for name, reg := range c.checks {
		checks[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, reg := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			res := reg.check(ctx)
			res.Latency = time.Since(start).Round(time.Millisecond).String()
			res.Optional = reg.optional
			mu.Lock()
			report.Components[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	for name, comp := range report.Components {
		switch {
		case comp.Status == StatusDown && !comp.Optional:
			report.Status = StatusDown
		case comp.Status == StatusDown, comp.Status == StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		default:
			continue
		}
		c.logger.Debug("component unhealthy", "name", name, "status", comp.Status, "message", comp.Message)
	}
	return report
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 while the report is up or degraded and 503 when
// it is down.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
