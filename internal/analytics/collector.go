package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/kafka"
)

// BatchPublisher is satisfied by *kafka.Producer.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Recorder consumes events in-process.
type Recorder interface {
	Record(ev QueryEvent)
}

type CollectorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// Collector buffers events without blocking request handlers. Events are
// handed to the local Recorder and, when a publisher is set, flushed to
// Kafka in batches on size or interval.
type Collector struct {
	publisher BatchPublisher
	local     Recorder
	events    chan QueryEvent
	batchSize int
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
	dropped atomic.Int64
	pending []kafka.Event
}

// NewCollector creates a Collector. publisher and local may each be nil.
func NewCollector(publisher BatchPublisher, local Recorder, cfg CollectorConfig) *Collector {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 10000
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return &Collector{
		publisher: publisher,
		local:     local,
		events:    make(chan QueryEvent, cfg.BufferSize),
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		logger:    slog.Default().With("component", "analytics-collector"),
		done:      make(chan struct{}),
		pending:   make([]kafka.Event, 0, cfg.BatchSize),
	}
}

// Start launches the background loop. It runs until ctx is cancelled or
// Close is called, flushing what is buffered before it exits.
func (c *Collector) Start(ctx context.Context) {
	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-c.events:
				if !ok {
					c.finalFlush()
					return
				}
				c.handle(ctx, ev)
			case <-ticker.C:
				c.flush(ctx)
			case <-ctx.Done():
				c.drain()
				c.finalFlush()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.events),
		"batch_size", c.batchSize,
		"kafka", c.publisher != nil,
	)
}

// Track enqueues ev. A full buffer drops the event rather than blocking.
func (c *Collector) Track(ev QueryEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.events <- ev:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics event dropped (buffer full)", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped is the number of events lost to a full buffer.
func (c *Collector) Dropped() int64 { return c.dropped.Load() }

// Close stops accepting events and waits for the loop to flush.
func (c *Collector) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *Collector) handle(ctx context.Context, ev QueryEvent) {
	if c.local != nil {
		c.local.Record(ev)
	}
	if c.publisher == nil {
		return
	}
	c.pending = append(c.pending, kafka.Event{Key: string(ev.Op), Value: ev})
	if len(c.pending) >= c.batchSize {
		c.flush(ctx)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.handle(context.Background(), ev)
		default:
			return
		}
	}
}

func (c *Collector) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.flush(ctx)
}

func (c *Collector) flush(ctx context.Context) {
	if c.publisher == nil || len(c.pending) == 0 {
		return
	}
	batch := c.pending
	c.pending = make([]kafka.Event, 0, c.batchSize)

	if err := c.publisher.PublishBatch(ctx, batch); err != nil {
		c.logger.Error("batch flush failed", "batch_size", len(batch), "error", err)
		// Requeue, keeping at most three batches.
		c.pending = append(batch, c.pending...)
		if limit := c.batchSize * 3; len(c.pending) > limit {
			dropped := len(c.pending) - limit
			c.pending = c.pending[dropped:]
			c.dropped.Add(int64(dropped))
			c.logger.Warn("pending overflow, oldest events dropped", "dropped", dropped)
		}
		return
	}
	c.logger.Debug("batch flushed", "events", len(batch))
}
