package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Server         ServerConfig         `yaml:"server"`
	Telemetry      TelemetryConfig      `yaml:"telemetry"`
	LeaderElection LeaderElectionConfig `yaml:"leader_election"`
	Game           GameConfig           `yaml:"game"`
	AI             AIConfig             `yaml:"ai"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	Driver   string `yaml:"driver"` // "sqlx" or "sql"
}

// DSN returns the Postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	Insecure       bool   `yaml:"insecure"`
}

// LeaderElectionConfig holds Kubernetes leader election settings.
type LeaderElectionConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LeaseName      string        `yaml:"lease_name"`
	LeaseNamespace string        `yaml:"lease_namespace"`
	LeaseDuration  time.Duration `yaml:"lease_duration"`
	RenewDeadline  time.Duration `yaml:"renew_deadline"`
	RetryPeriod    time.Duration `yaml:"retry_period"`
}

// GameConfig holds turn timing and registry settings.
type GameConfig struct {
	// PhaseTimeouts maps a turn phase name to its deadline. Phases absent
	// from the map fall back to DefaultTurnTimeout.
	PhaseTimeouts      map[string]time.Duration `yaml:"phase_timeouts"`
	DefaultTurnTimeout time.Duration            `yaml:"default_turn_timeout"`
	// MaxCachedGames bounds the in-memory registry of live games.
	MaxCachedGames int `yaml:"max_cached_games"`
}

// AIConfig holds autonomous player settings.
type AIConfig struct {
	// Difficulties maps a difficulty name to its tuning parameters.
	Difficulties       map[string]AIDifficulty `yaml:"difficulties"`
	DefaultDifficulty  string                  `yaml:"default_difficulty"`
	DefaultPersonality string                  `yaml:"default_personality"`
	// JitterLow and JitterHigh bound the random multiplier applied to
	// thinking time so concurrent AI players do not act in lockstep.
	JitterLow    float64 `yaml:"jitter_low"`
	JitterHigh   float64 `yaml:"jitter_high"`
	LogDecisions bool    `yaml:"log_decisions"`
}

// AIDifficulty holds per-difficulty tuning.
type AIDifficulty struct {
	ThinkingTime      time.Duration `yaml:"thinking_time"`
	MaxActionsPerTurn int           `yaml:"max_actions_per_turn"`
}

// Load reads a YAML configuration file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Defaults()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a Config with every section pre-filled.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
			Driver:  "sqlx",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "gamed",
			ServiceVersion: "0.1.0",
		},
		LeaderElection: LeaderElectionConfig{
			Enabled:        false,
			LeaseName:      "gamed-leader",
			LeaseNamespace: "default",
			LeaseDuration:  15 * time.Second,
			RenewDeadline:  10 * time.Second,
			RetryPeriod:    2 * time.Second,
		},
		Game: GameConfig{
			PhaseTimeouts: map[string]time.Duration{
				"initial_placement_1": 60 * time.Second,
				"initial_placement_2": 60 * time.Second,
				"roll":                30 * time.Second,
				"actions":             90 * time.Second,
				"discard":             30 * time.Second,
				"robber":              30 * time.Second,
			},
			DefaultTurnTimeout: 60 * time.Second,
			MaxCachedGames:     256,
		},
		AI: AIConfig{
			Difficulties: map[string]AIDifficulty{
				"easy":   {ThinkingTime: 3 * time.Second, MaxActionsPerTurn: 6},
				"medium": {ThinkingTime: 2 * time.Second, MaxActionsPerTurn: 10},
				"hard":   {ThinkingTime: time.Second, MaxActionsPerTurn: 16},
			},
			DefaultDifficulty:  "medium",
			DefaultPersonality: "balanced",
			JitterLow:          0.5,
			JitterHigh:         1.5,
		},
	}
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlx", "sql":
		// valid
	default:
		return fmt.Errorf("unsupported database driver %q: must be \"sqlx\" or \"sql\"", c.Database.Driver)
	}
	if c.Game.DefaultTurnTimeout <= 0 {
		return fmt.Errorf("game.default_turn_timeout must be positive")
	}
	if c.Game.MaxCachedGames <= 0 {
		return fmt.Errorf("game.max_cached_games must be positive")
	}
	if c.AI.JitterLow <= 0 || c.AI.JitterHigh < c.AI.JitterLow {
		return fmt.Errorf("ai jitter bounds invalid: low=%v high=%v", c.AI.JitterLow, c.AI.JitterHigh)
	}
	if _, ok := c.AI.Difficulties[c.AI.DefaultDifficulty]; !ok {
		return fmt.Errorf("ai.default_difficulty %q has no difficulty entry", c.AI.DefaultDifficulty)
	}
	return nil
}
