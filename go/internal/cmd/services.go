package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/geoguess/go/clients/openmeteo"
	"github.com/mcdev12/geoguess/go/internal/game"
	"github.com/mcdev12/geoguess/go/internal/game/admin"
	"github.com/mcdev12/geoguess/go/internal/game/cards"
	"github.com/mcdev12/geoguess/go/internal/game/gateway"
	"github.com/mcdev12/geoguess/go/internal/game/lobby"
	"github.com/mcdev12/geoguess/go/internal/game/outbox"
	"github.com/mcdev12/geoguess/go/internal/game/record"
	"github.com/mcdev12/geoguess/go/internal/game/registry"
	"github.com/mcdev12/geoguess/go/internal/game/scheduler"
	"github.com/mcdev12/geoguess/go/internal/game/session"
	"github.com/mcdev12/geoguess/go/internal/game/target"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Game      *game.Service
	Gateway   *gateway.Service
	Admin     *admin.Service

	// set when events travel through JetStream
	Outbox       *outbox.Broadcaster
	OutboxStats  *outbox.Counters
	OutboxHealth *outbox.HealthChecker

	closers []func() error
}

func setupServices(cfg *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Collaborators → Session deps → Game service → Transports
	s := &Services{}

	catalog, err := setupCatalog(cfg)
	if err != nil {
		return nil, err
	}

	// The publisher creates the stream the gateway consumer reads from
	if cfg.NATSEnabled {
		jsConfig := outbox.DefaultJetStreamConfig()
		jsConfig.URL = cfg.NATSURL
		publisher, err := outbox.NewJetStreamPublisher(jsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.closers = append(s.closers, publisher.Close)

		s.OutboxStats = &outbox.Counters{}
		s.Outbox = outbox.NewBroadcaster(outbox.NewMetricPublisher(publisher, s.OutboxStats), s.OutboxStats, outbox.DefaultConfig())
		s.OutboxHealth = outbox.NewHealthChecker(s.OutboxStats, publisher.Conn())
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.UseJetStream = cfg.NATSEnabled
	gatewayConfig.JetStreamConfig.URL = cfg.NATSURL
	gatewayConfig.JetStreamConfig.ConsumerName = consumerName(cfg.InstanceID)
	gatewayService, err := gateway.NewService(gatewayConfig, nil)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Gateway = gatewayService
	s.closers = append(s.closers, gatewayService.Stop)

	s.Scheduler = scheduler.New(clockwork.NewRealClock())
	deps := session.Deps{
		Scheduler:   s.Scheduler,
		Broadcaster: gatewayService.ConnectionManager(),
		Catalog:     catalog,
		Targets:     target.NewGenerator(cfg.TargetSeed),
	}
	if s.Outbox != nil {
		deps.Broadcaster = s.Outbox
	}

	if cfg.HintsEnabled {
		hints := openmeteo.NewOpenMeteoClient(cfg.HintsURL)
		hints.SetTimeout(5 * time.Second)
		deps.Hints = hints
	}

	if cfg.DBEnabled {
		database, err := setupDatabase()
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, database.Close)

		recorder := record.NewRecorder(database)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := recorder.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		deps.Recorder = recorder
	}

	s.Registry = registry.New()
	s.Game = game.NewService(s.Registry, lobby.NewDirectory(), deps, cfg.Game)
	gatewayService.SetHandler(s.Game)
	s.Admin = admin.NewService(s.Game)

	log.Info().
		Bool("nats", cfg.NATSEnabled).
		Bool("database", cfg.DBEnabled).
		Bool("hints", cfg.HintsEnabled).
		Bool("card_phases", cfg.Game.CardPhases).
		Int("round_count", cfg.Game.RoundCount).
		Msg("services configured")
	return s, nil
}

func setupCatalog(cfg *Config) (*cards.Catalog, error) {
	if cfg.CatalogPath == "" {
		return cards.Default(cfg.TargetSeed)
	}
	data, err := os.ReadFile(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read card catalog: %w", err)
	}
	return cards.Load(data, cfg.TargetSeed)
}

// consumerName derives a durable JetStream consumer name, which may not
// contain dots or whitespace.
func consumerName(instanceID string) string {
	if instanceID == "" {
		return "game-gateway"
	}
	return "game-gateway-" + strings.NewReplacer(".", "-", " ", "-", "*", "-", ">", "-").Replace(instanceID)
}

// Close releases external connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Error().Err(err).Msg("failed to close service dependency")
		}
	}
	s.closers = nil
}
