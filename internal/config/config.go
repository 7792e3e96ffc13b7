package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rawblock/muletrace-engine/internal/graph"
	"github.com/rawblock/muletrace-engine/internal/heuristics"
	"github.com/rawblock/muletrace-engine/internal/stream"
)

// Config aggregates engine configuration. Everything is sourced from
// environment variables with safe defaults; only credentials have no
// fallback.
type Config struct {
	Port         string
	ParseWorkers int

	FlushInterval time.Duration

	Caps        heuristics.Caps
	Suppression graph.SuppressionThresholds

	// Optional subsystems: empty values disable them.
	DatabaseURL string
	Graph       GraphStoreConfig
	Alerts      AlertConfig

	RateLimitPerMin int
	RateLimitBurst  int
}

// GraphStoreConfig describes connectivity to the investigator graph store
// (Neo4j or a Bolt-compatible endpoint such as Neptune).
type GraphStoreConfig struct {
	URI            string
	Database       string
	Username       string
	Password       string
	MaxConnections int
}

// AlertConfig registers an optional webhook sink for high-risk rings.
type AlertConfig struct {
	WebhookURL    string
	MinSeverity   string
	RiskThreshold float64
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:          valueOrDefault("PORT", "5440"),
		ParseWorkers:  intOrDefault("PARSE_WORKERS", 4),
		FlushInterval: stream.DefaultFlushInterval,
		Caps:          heuristics.DefaultCaps(),
		Suppression:   graph.DefaultSuppression,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		Graph: GraphStoreConfig{
			URI:            os.Getenv("GRAPH_URI"),
			Database:       os.Getenv("GRAPH_DATABASE"),
			Username:       os.Getenv("GRAPH_USERNAME"),
			Password:       os.Getenv("GRAPH_PASSWORD"),
			MaxConnections: intOrDefault("GRAPH_MAX_CONNECTIONS", 10),
		},
		Alerts: AlertConfig{
			WebhookURL:    os.Getenv("ALERT_WEBHOOK_URL"),
			MinSeverity:   valueOrDefault("ALERT_MIN_SEVERITY", "high"),
			RiskThreshold: floatOrDefault("ALERT_RISK_THRESHOLD", 85),
		},
		RateLimitPerMin: intOrDefault("RATE_LIMIT_PER_MIN", 30),
		RateLimitBurst:  intOrDefault("RATE_LIMIT_BURST", 10),
	}

	if v := os.Getenv("FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FLUSH_INTERVAL: %w", err)
		}
		cfg.FlushInterval = d
	}

	// Detector caps are policy constants, overridable per deployment.
	cfg.Caps.CycleMaxPaths = intOrDefault("CYCLE_MAX_PATHS", cfg.Caps.CycleMaxPaths)
	cfg.Caps.ChainMaxPaths = intOrDefault("CHAIN_MAX_PATHS", cfg.Caps.ChainMaxPaths)
	cfg.Caps.MaxNeighbors = intOrDefault("MAX_NEIGHBORS", cfg.Caps.MaxNeighbors)
	cfg.Caps.ChainMaxDepth = intOrDefault("CHAIN_MAX_DEPTH", cfg.Caps.ChainMaxDepth)
	cfg.Caps.FanMinUnique = intOrDefault("FAN_MIN_UNIQUE", cfg.Caps.FanMinUnique)
	if hours := floatOrDefault("FAN_WINDOW_HOURS", 0); hours > 0 {
		cfg.Caps.FanWindowMS = hours * 60 * 60 * 1000
	}

	cfg.Suppression.Degree = intOrDefault("SUPPRESS_DEGREE", cfg.Suppression.Degree)
	cfg.Suppression.Counterparties = intOrDefault("SUPPRESS_COUNTERPARTIES", cfg.Suppression.Counterparties)
	cfg.Suppression.ActiveDays = intOrDefault("SUPPRESS_ACTIVE_DAYS", cfg.Suppression.ActiveDays)

	if err := cfg.Caps.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intOrDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func floatOrDefault(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
