package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/geoguess/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Broadcaster implements events.Broadcaster on top of an EventPublisher.
// Events are queued without blocking the session and published in order by a
// single worker. Sessions that lose events to a full queue get a RESYNC once
// the queue is empty again.
type Broadcaster struct {
	publisher EventPublisher
	metrics   MetricsCollector
	config    Config
	queue     chan *events.Envelope
	losses    *events.LossTracker
}

func NewBroadcaster(publisher EventPublisher, metrics MetricsCollector, config Config) *Broadcaster {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	return &Broadcaster{
		publisher: publisher,
		metrics:   metrics,
		config:    config,
		queue:     make(chan *events.Envelope, config.QueueSize),
		losses:    events.NewLossTracker(),
	}
}

func (b *Broadcaster) Publish(sessionID uuid.UUID, e events.Event) {
	b.enqueue(sessionID, "", e)
}

func (b *Broadcaster) PublishToPlayer(sessionID uuid.UUID, playerID string, e events.Event) {
	b.enqueue(sessionID, playerID, e)
}

func (b *Broadcaster) enqueue(sessionID uuid.UUID, playerID string, e events.Event) {
	env, err := events.NewEnvelope(sessionID, e)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to build envelope")
		return
	}
	env.PlayerID = playerID

	select {
	case b.queue <- env:
		b.metrics.RecordQueueDepth(len(b.queue))
	default:
		b.metrics.RecordDropped(string(e.Type))
		b.losses.Mark(sessionID)
		log.Warn().
			Str("session_id", sessionID.String()).
			Str("event_type", string(e.Type)).
			Msg("outbox queue full, dropping event")
	}
}

// Run publishes queued events until ctx is done, then drains what is left.
func (b *Broadcaster) Run(ctx context.Context) {
	log.Info().Int("queue_size", b.config.QueueSize).Msg("outbox broadcaster started")

	for {
		select {
		case <-ctx.Done():
			b.drain()
			log.Info().Msg("outbox broadcaster stopped")
			return
		case env := <-b.queue:
			b.publish(ctx, env)
			if len(b.queue) == 0 {
				b.resync(ctx)
			}
		case <-b.losses.Wake():
			if len(b.queue) == 0 {
				b.resync(ctx)
			}
		}
	}
}

func (b *Broadcaster) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.PublishTimeout)
	defer cancel()

	for {
		select {
		case env := <-b.queue:
			b.publish(ctx, env)
		default:
			b.resync(ctx)
			return
		}
	}
}

// resync tells every session that lost events to refetch its state.
func (b *Broadcaster) resync(ctx context.Context) {
	for id, dropped := range b.losses.Take() {
		env, err := events.NewEnvelope(id, events.Resync(dropped))
		if err != nil {
			continue
		}
		log.Warn().Str("session_id", id.String()).Int("dropped", dropped).Msg("events were dropped - asking clients to resync")
		b.publish(ctx, env)
	}
}

func (b *Broadcaster) publish(ctx context.Context, env *events.Envelope) {
	if err := b.publishWithRetry(ctx, env); err != nil {
		log.Error().
			Err(err).
			Str("event_id", env.ID).
			Str("session_id", env.SessionID).
			Str("event_type", string(env.Type)).
			Msg("failed to publish event")
	}
	b.metrics.RecordQueueDepth(len(b.queue))
}

func (b *Broadcaster) publishWithRetry(ctx context.Context, env *events.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= b.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.RetryDelay * time.Duration(attempt)):
			}
		}

		pubCtx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
		err := b.publisher.Publish(pubCtx, env)
		cancel()
		if err != nil {
			lastErr = err
			b.metrics.RecordPublishAttempt(string(env.Type), attempt+1, false)
			log.Warn().
				Err(err).
				Str("event_id", env.ID).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}

		b.metrics.RecordPublishAttempt(string(env.Type), attempt+1, true)
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", b.config.MaxRetries+1, lastErr)
}
