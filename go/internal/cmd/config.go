package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/geoguess/go/internal/game/session"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port     string
	LogLevel string

	NATSEnabled bool
	NATSURL     string
	// InstanceID names this process's JetStream consumer.
	InstanceID string

	DBEnabled bool

	HintsEnabled bool
	HintsURL     string

	TargetSeed  int64
	CatalogPath string

	Game session.Config
}

// fileConfig is the optional YAML file named by CONFIG_PATH. Environment
// variables win over it.
type fileConfig struct {
	Game struct {
		RoundCount          *int           `yaml:"round_count"`
		RoundTimeSeconds    *int           `yaml:"round_time_seconds"`
		CardPhases          *bool          `yaml:"card_phases"`
		GraceDelay          *time.Duration `yaml:"grace_delay"`
		RoundCardTimeout    *time.Duration `yaml:"roundcard_timeout"`
		ActionCardTimeout   *time.Duration `yaml:"actioncard_timeout"`
		ResultDelay         *time.Duration `yaml:"result_delay"`
		RoundCardsPerPlayer *int           `yaml:"round_cards_per_player"`
		MinPersonalTime     *time.Duration `yaml:"min_personal_time"`
	} `yaml:"game"`
	Cards struct {
		Catalog string `yaml:"catalog"`
	} `yaml:"cards"`
}

func loadConfig() (*Config, error) {
	game := session.DefaultConfig()
	var catalogPath string

	if path := getEnv("CONFIG_PATH", ""); path != "" {
		fc, err := loadConfigFile(path)
		if err != nil {
			return nil, err
		}
		fc.apply(&game)
		catalogPath = fc.Cards.Catalog
	}

	game.RoundCount = getEnvAsInt("ROUND_COUNT", game.RoundCount)
	game.RoundTimeSeconds = getEnvAsInt("ROUND_TIME_SECONDS", game.RoundTimeSeconds)
	game.CardPhases = getEnvAsBool("CARD_PHASES", game.CardPhases)
	game.GraceDelay = getEnvAsDuration("GRACE_DELAY", game.GraceDelay)
	game.RoundCardTimeout = getEnvAsDuration("ROUNDCARD_TIMEOUT", game.RoundCardTimeout)
	game.ActionCardTimeout = getEnvAsDuration("ACTIONCARD_TIMEOUT", game.ActionCardTimeout)
	game.ResultDelay = getEnvAsDuration("RESULT_DELAY", game.ResultDelay)

	hostname, _ := os.Hostname()
	return &Config{
		Port:         getEnv("PORT", "8080"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		NATSEnabled:  getEnvAsBool("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		InstanceID:   getEnv("INSTANCE_ID", hostname),
		DBEnabled:    getEnvAsBool("DB_ENABLED", false),
		HintsEnabled: getEnvAsBool("HINTS_ENABLED", true),
		HintsURL:     getEnv("HINTS_URL", ""),
		TargetSeed:   int64(getEnvAsInt("TARGET_SEED", int(time.Now().UnixNano()))),
		CatalogPath:  getEnv("CARD_CATALOG_PATH", catalogPath),
		Game:         game,
	}, nil
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config fileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &config, nil
}

func (fc *fileConfig) apply(game *session.Config) {
	g := fc.Game
	if g.RoundCount != nil {
		game.RoundCount = *g.RoundCount
	}
	if g.RoundTimeSeconds != nil {
		game.RoundTimeSeconds = *g.RoundTimeSeconds
	}
	if g.CardPhases != nil {
		game.CardPhases = *g.CardPhases
	}
	if g.GraceDelay != nil {
		game.GraceDelay = *g.GraceDelay
	}
	if g.RoundCardTimeout != nil {
		game.RoundCardTimeout = *g.RoundCardTimeout
	}
	if g.ActionCardTimeout != nil {
		game.ActionCardTimeout = *g.ActionCardTimeout
	}
	if g.ResultDelay != nil {
		game.ResultDelay = *g.ResultDelay
	}
	if g.RoundCardsPerPlayer != nil {
		game.RoundCardsPerPlayer = *g.RoundCardsPerPlayer
	}
	if g.MinPersonalTime != nil {
		game.MinPersonalTime = *g.MinPersonalTime
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
