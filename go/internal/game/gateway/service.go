package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service bundles the socket side of the game: connection manager, upgrade
// handler and, when events travel through JetStream, the stream consumer.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	// UseJetStream makes the gateway deliver events read from the stream
	// instead of events published to it directly.
	UseJetStream bool
}

func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

func NewService(config Config, handler ActionHandler) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, handler)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
	}

	if config.UseJetStream {
		consumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// ConnectionManager is the local events.Broadcaster.
func (s *Service) ConnectionManager() *ConnectionManager {
	return s.connectionManager
}

// SetHandler wires the action handler after construction, for callers that
// need the broadcaster before they can build the handler.
func (s *Service) SetHandler(handler ActionHandler) {
	s.connectionManager.handler = handler
}

// Start runs the gateway until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting game gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("game gateway service shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("game gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes, plus the game state
// routes when the action handler can serve snapshots.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if provider, ok := s.connectionManager.handler.(StateProvider); ok {
		NewStateHandler(provider).RegisterStateRoutes(mux)
	}
	log.Info().Msg("game gateway routes registered")
}

func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
