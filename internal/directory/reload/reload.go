// Package reload coordinates forced index reloads across replicas. The
// replica that receives the admin request reloads itself and announces the
// reload on Kafka; every other replica invalidates when it sees the event.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
)

// Event announces a forced reload.
type Event struct {
	Reason      string    `json:"reason"`
	RequestedBy string    `json:"requested_by"`
	RequestID   string    `json:"request_id"`
	Origin      string    `json:"origin"`
	At          time.Time `json:"at"`
}

// Invalidator drops cached state. The store and the response cache both
// qualify through small adapters.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// InvalidatorFunc adapts a function to Invalidator.
type InvalidatorFunc func(ctx context.Context) error

func (f InvalidatorFunc) Invalidate(ctx context.Context) error { return f(ctx) }

// Publisher is the subset of *kafka.Producer used to announce reloads.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Coordinator performs local reloads and fans them out. A nil publisher
// keeps reloads local.
type Coordinator struct {
	origin    string
	targets   []Invalidator
	publisher Publisher
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator. origin identifies this replica so
// that it ignores its own announcements.
func NewCoordinator(origin string, publisher Publisher, targets ...Invalidator) *Coordinator {
	return &Coordinator{
		origin:    origin,
		targets:   targets,
		publisher: publisher,
		logger:    slog.Default().With("component", "reload", "origin", origin),
	}
}

// Result reports what a Reload did.
type Result struct {
	Event     Event  `json:"event"`
	Broadcast bool   `json:"broadcast"`
	Warning   string `json:"warning,omitempty"`
}

// Reload invalidates local state and publishes the event. A failed publish
// is reported in the result but does not fail the local reload.
func (c *Coordinator) Reload(ctx context.Context, ev Event) (Result, error) {
	ev.Origin = c.origin
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := c.apply(ctx); err != nil {
		return Result{Event: ev}, err
	}
	res := Result{Event: ev}
	if c.publisher == nil {
		return res, nil
	}
	if err := c.publisher.Publish(ctx, kafka.Event{Key: c.origin, Value: ev}); err != nil {
		c.logger.Warn("reload broadcast failed", "error", err)
		res.Warning = err.Error()
		return res, nil
	}
	res.Broadcast = true
	c.logger.Info("reload broadcast", "reason", ev.Reason, "request_id", ev.RequestID)
	return res, nil
}

// Handler returns the Kafka message handler for the reload topic.
func (c *Coordinator) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			c.logger.Error("dropping undecodable reload event", "error", err, "key", string(key))
			return nil
		}
		if ev.Origin == c.origin {
			return nil
		}
		c.logger.Info("reload requested by peer",
			"peer", ev.Origin,
			"reason", ev.Reason,
			"request_id", ev.RequestID,
		)
		return c.apply(ctx)
	}
}

func (c *Coordinator) apply(ctx context.Context) error {
	for _, t := range c.targets {
		if err := t.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidating: %w", err)
		}
	}
	return nil
}
