package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is the YAML file Load reads when it exists.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for the docs engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, tokens) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3450"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Scoring     ScoringConfig     `yaml:"scoring"`
	Penalties   PenaltyConfig     `yaml:"penalties"`
	Leaderboard LeaderboardConfig `yaml:"leaderboard"`
	MCP         MCPConfig         `yaml:"mcp"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"docs"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"structured_docs"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// RedisConfig holds the optional Redis connection used to mirror the leaderboard.
// An empty host disables the mirror.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// ScoringConfig holds the weights used by the score aggregator.
// All weights are multipliers applied to raw activity counts.
type ScoringConfig struct {
	DocumentBasePoints     float64 `yaml:"document_base_points" env:"SCORING_DOCUMENT_BASE_POINTS" env-default:"100"`
	PublishedBonus         float64 `yaml:"published_bonus" env:"SCORING_PUBLISHED_BONUS" env-default:"50"`
	CompletedBonus         float64 `yaml:"completed_bonus" env:"SCORING_COMPLETED_BONUS" env-default:"25"`
	ReviewWeight           float64 `yaml:"review_weight" env:"SCORING_REVIEW_WEIGHT" env-default:"1"`
	CommentWeight          float64 `yaml:"comment_weight" env:"SCORING_COMMENT_WEIGHT" env-default:"2"`
	ReactionGivenWeight    float64 `yaml:"reaction_given_weight" env:"SCORING_REACTION_GIVEN_WEIGHT" env-default:"0.5"`
	ReactionReceivedWeight float64 `yaml:"reaction_received_weight" env:"SCORING_REACTION_RECEIVED_WEIGHT" env-default:"1"`
	ViewWeight             float64 `yaml:"view_weight" env:"SCORING_VIEW_WEIGHT" env-default:"0.1"`
}

// PenaltyConfig controls the penalty sweep and its external collaborators.
type PenaltyConfig struct {
	// SweepInterval is how often the maintenance pipeline runs in serve mode.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"PENALTY_SWEEP_INTERVAL" env-default:"1h"`
	// RuleTimeout bounds a single rule evaluation against a single document.
	RuleTimeout time.Duration `yaml:"rule_timeout" env:"PENALTY_RULE_TIMEOUT" env-default:"10s"`
	// MaxRetries is the number of retries for transient collaborator errors.
	MaxRetries int `yaml:"max_retries" env:"PENALTY_MAX_RETRIES" env-default:"2"`
	// Concurrency is the number of documents evaluated in parallel during a sweep.
	Concurrency int `yaml:"concurrency" env:"PENALTY_CONCURRENCY" env-default:"4"`

	Collaborators CollaboratorConfig `yaml:"collaborators"`
}

// CollaboratorConfig holds the endpoints of the external condition checkers.
// An empty endpoint leaves the matching condition type unavailable; rules of that
// type are skipped during sweeps.
type CollaboratorConfig struct {
	JiraClosedURL    string `yaml:"jira_closed_url" env:"COLLABORATOR_JIRA_CLOSED_URL" env-default:""`
	BranchMergedURL  string `yaml:"branch_merged_url" env:"COLLABORATOR_BRANCH_MERGED_URL" env-default:""`
	LinkBrokenURL    string `yaml:"link_broken_url" env:"COLLABORATOR_LINK_BROKEN_URL" env-default:""`
	SchemaChangedURL string `yaml:"schema_changed_url" env:"COLLABORATOR_SCHEMA_CHANGED_URL" env-default:""`
	Token            string `yaml:"-" env:"COLLABORATOR_TOKEN"` // Secret - not in YAML
}

// LeaderboardConfig controls leaderboard recomputation and reads.
type LeaderboardConfig struct {
	RecomputeInterval time.Duration `yaml:"recompute_interval" env:"LEADERBOARD_RECOMPUTE_INTERVAL" env-default:"15m"`
	RedisKeyPrefix    string        `yaml:"redis_key_prefix" env:"LEADERBOARD_REDIS_KEY_PREFIX" env-default:"docs:leaderboard"`
	DefaultLimit      int           `yaml:"default_limit" env:"LEADERBOARD_DEFAULT_LIMIT" env-default:"50"`
}

// MCPConfig controls the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled" env:"MCP_ENABLED" env-default:"true"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// When config.yaml does not exist, configuration comes from environment variables
// and defaults only. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigPath, version)
}

// LoadFile is Load with an explicit YAML path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.Version = version
	cfg.Database.Host = containerHost(cfg.Database.Host)
	if cfg.Redis.Enabled() {
		cfg.Redis.Host = containerHost(cfg.Redis.Host)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if c.Penalties.SweepInterval <= 0 {
		return fmt.Errorf("penalties.sweep_interval must be positive")
	}
	if c.Penalties.RuleTimeout <= 0 {
		return fmt.Errorf("penalties.rule_timeout must be positive")
	}
	if c.Penalties.MaxRetries < 0 {
		return fmt.Errorf("penalties.max_retries must not be negative")
	}
	if c.Penalties.Concurrency < 1 {
		return fmt.Errorf("penalties.concurrency must be at least 1")
	}
	if c.Leaderboard.RecomputeInterval <= 0 {
		return fmt.Errorf("leaderboard.recompute_interval must be positive")
	}
	if c.Leaderboard.DefaultLimit < 1 {
		return fmt.Errorf("leaderboard.default_limit must be at least 1")
	}
	return c.Scoring.Validate()
}

// Validate rejects negative weights.
func (s *ScoringConfig) Validate() error {
	weights := map[string]float64{
		"document_base_points":     s.DocumentBasePoints,
		"published_bonus":          s.PublishedBonus,
		"completed_bonus":          s.CompletedBonus,
		"review_weight":            s.ReviewWeight,
		"comment_weight":           s.CommentWeight,
		"reaction_given_weight":    s.ReactionGivenWeight,
		"reaction_received_weight": s.ReactionReceivedWeight,
		"view_weight":              s.ViewWeight,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("scoring.%s must not be negative", name)
		}
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as required by the migration driver.
func (c *DatabaseConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Addr returns host:port for the Redis client.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Enabled reports whether a Redis host is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Host != ""
}

var (
	dockerOnce sync.Once
	inDocker   bool

	// dockerEnvFile exists in every Docker container.
	dockerEnvFile = "/.dockerenv"
)

// runningInDocker reports whether the process runs inside a Docker container.
// The result is cached after the first call.
func runningInDocker() bool {
	dockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvFile)
		inDocker = err == nil
	})
	return inDocker
}

// containerHost maps loopback hosts to host.docker.internal when running in a
// container, so a containerised engine reaches Postgres and Redis on the host.
func containerHost(host string) string {
	return rewriteLoopback(host, runningInDocker())
}

func rewriteLoopback(host string, docker bool) string {
	if !docker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1":
		return "host.docker.internal"
	}
	return host
}
