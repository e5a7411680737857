// Package outbox ships session events to NATS JetStream so that every
// gateway instance can deliver them to its sockets.
package outbox

import (
	"context"
	"time"

	"github.com/mcdev12/geoguess/go/internal/game/events"
)

// EventPublisher delivers one envelope to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Config controls the publish queue.
type Config struct {
	QueueSize      int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      1000,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}
