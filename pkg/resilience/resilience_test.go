package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreakerLifecycle(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker("meili", CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Minute,
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+">"+to.String())
		},
	})
	clk := &clock{t: time.Unix(1000, 0)}
	cb.now = clk.now

	fail := func() error { return errBoom }
	ok := func() error { return nil }

	cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatal("one failure must not open the circuit")
	}
	cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("expected open after threshold")
	}
	if err := cb.Execute(ok); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if cb.Allow() {
		t.Error("Allow must be false while cooling down")
	}

	clk.advance(time.Minute)
	if !cb.Allow() {
		t.Error("Allow must be true once the reset timeout passed")
	}
	if err := cb.Execute(ok); err != nil {
		t.Fatalf("probe should run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %s", cb.State())
	}

	want := []string{"closed>open", "open>half-open", "half-open>closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	clk := &clock{t: time.Unix(0, 0)}
	cb.now = clk.now

	cb.Execute(func() error { return errBoom })
	clk.advance(time.Second)
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}
	if !errors.Is(cb.LastError(), errBoom) {
		t.Errorf("LastError = %v", cb.LastError())
	}
}

func TestCircuitBreakerIgnoresNonFailures(t *testing.T) {
	notFound := errors.New("404")
	cb := NewCircuitBreaker("x", CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})
	for i := 0; i < 3; i++ {
		cb.Execute(func() error { return notFound })
	}
	if cb.State() != StateClosed {
		t.Errorf("client errors must not trip the breaker")
	}
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 4, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("eventual success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), "op", cfg, func() error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), "op", cfg, func() error { calls++; return errBoom })
		if !errors.Is(err, errBoom) || calls != 4 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("permanent stops", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), "op", cfg, func() error { calls++; return Permanent(errBoom) })
		if err != errBoom || calls != 1 {
			t.Errorf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := RetryConfig{MaxAttempts: 3, InitialDelay: time.Hour}
		err := Retry(ctx, "op", slow, func() error { return errBoom })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
	if !IsPermanent(Permanent(errBoom)) || IsPermanent(errBoom) {
		t.Error("IsPermanent mismatch")
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}

	err = WithTimeout(context.Background(), time.Second, "fast", func(context.Context) error { return errBoom })
	if err != errBoom {
		t.Errorf("expected fn error, got %v", err)
	}
}
