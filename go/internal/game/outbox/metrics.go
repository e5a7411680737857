package outbox

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mcdev12/geoguess/go/internal/game/events"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordPublishAttempt(eventType string, attempt int, success bool)
	RecordDropped(eventType string)
	RecordQueueDepth(depth int)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool)            {}
func (n *NoOpMetricsCollector) RecordDropped(eventType string)                                              {}
func (n *NoOpMetricsCollector) RecordQueueDepth(depth int)                                                  {}

// Counters is an in-process MetricsCollector served on the stats endpoint.
type Counters struct {
	published atomic.Int64
	failed    atomic.Int64
	retried   atomic.Int64
	dropped   atomic.Int64
	depth     atomic.Int64
}

type CounterSnapshot struct {
	Published  int64 `json:"published"`
	Failed     int64 `json:"failed"`
	Retried    int64 `json:"retried"`
	Dropped    int64 `json:"dropped"`
	QueueDepth int64 `json:"queue_depth"`
}

func (c *Counters) RecordEventProcessed(_ string, success bool, _ time.Duration) {
	if success {
		c.published.Add(1)
		return
	}
	c.failed.Add(1)
}

func (c *Counters) RecordPublishAttempt(_ string, attempt int, success bool) {
	if attempt > 1 {
		c.retried.Add(1)
	}
}

func (c *Counters) RecordDropped(string) {
	c.dropped.Add(1)
}

func (c *Counters) RecordQueueDepth(depth int) {
	c.depth.Store(int64(depth))
}

func (c *Counters) Snapshot() CounterSnapshot {
	return CounterSnapshot{
		Published:  c.published.Load(),
		Failed:     c.failed.Load(),
		Retried:    c.retried.Load(),
		Dropped:    c.dropped.Load(),
		QueueDepth: c.depth.Load(),
	}
}

// MetricPublisher wraps an EventPublisher with metrics collection
type MetricPublisher struct {
	publisher EventPublisher
	metrics   MetricsCollector
}

func NewMetricPublisher(publisher EventPublisher, metrics MetricsCollector) *MetricPublisher {
	return &MetricPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (p *MetricPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, env)

	p.metrics.RecordEventProcessed(string(env.Type), err == nil, time.Since(start))
	return err
}
