// Package analytics records search events. Every event feeds the in-process
// Aggregator; when a Publisher is configured the event is also queued for
// asynchronous publication to Kafka. A full queue drops the event rather
// than slowing the search path.
package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/devsearch/pkg/metrics"
)

const drainTimeout = 5 * time.Second

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Collector struct {
	agg       *Aggregator
	publisher Publisher
	metrics   *metrics.Metrics
	eventCh   chan SearchEvent
	logger    *slog.Logger
	stop      chan struct{}
	done      chan struct{}
	started   bool
	closeOnce sync.Once

	// closed is checked under mu by Track, so no event is queued once Close
	// has begun. eventCh itself is never closed.
	mu     sync.RWMutex
	closed bool
}

// NewCollector creates a collector. publisher and m may be nil; without a
// publisher events are only aggregated.
func NewCollector(agg *Aggregator, publisher Publisher, m *metrics.Metrics, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	return &Collector{
		agg:       agg,
		publisher: publisher,
		metrics:   m,
		eventCh:   make(chan SearchEvent, bufferSize),
		logger:    slog.Default().With("component", "analytics-collector"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (c *Collector) Aggregator() *Aggregator { return c.agg }

// Start launches the publish loop. It is a no-op without a publisher.
func (c *Collector) Start(ctx context.Context) {
	if c.publisher == nil {
		close(c.done)
		return
	}
	c.started = true
	go func() {
		defer close(c.done)
		for {
			select {
			case event := <-c.eventCh:
				c.publish(ctx, event)
			case <-c.stop:
				c.drainRemaining()
				return
			case <-ctx.Done():
				c.drainRemaining()
				return
			}
		}
	}()
	c.logger.Info("analytics collector started", "buffer_size", cap(c.eventCh))
}

func (c *Collector) Track(event SearchEvent) {
	if c.agg != nil {
		c.agg.RecordSearch(event)
	}
	if c.publisher == nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.eventCh <- event:
	default:
		if c.metrics != nil {
			c.metrics.AnalyticsDropped.Inc()
		}
		c.logger.Warn("analytics event dropped (buffer full)", "index", event.Index)
	}
}

// Close stops queueing events and waits for queued ones to be published.
// Track stays safe to call afterwards; late events are only aggregated.
func (c *Collector) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.stop)
	})
	if c.started {
		<-c.done
	}
}

func (c *Collector) publish(ctx context.Context, event SearchEvent) {
	if err := c.publisher.Publish(ctx, kafka.Event{
		Key:   event.Index,
		Value: event,
	}); err != nil {
		c.logger.Error("failed to publish analytics event", "index", event.Index, "error", err)
	}
}

func (c *Collector) drainRemaining() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case event := <-c.eventCh:
			c.publish(ctx, event)
		default:
			return
		}
	}
}
