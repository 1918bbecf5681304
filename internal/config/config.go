package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// AppConfig is the full application configuration: engine calibration,
// safety gate, snapshot builder, storage and serving.
type AppConfig struct {
	Engine   EngineSection   `yaml:"engine"`
	Gate     GateSection     `yaml:"gate"`
	Snapshot SnapshotSection `yaml:"snapshot"`
	Database DatabaseSection `yaml:"database"`
	Cache    CacheSection    `yaml:"cache"`
	Stream   StreamSection   `yaml:"stream"`
	Server   ServerSection   `yaml:"server"`
}

// EngineSection configures aggregation. Weights must cover every registered
// pillar and sum to 1.0; an empty map selects the built-in calibration.
type EngineSection struct {
	Weights                  map[string]float64 `yaml:"weights"`
	MaxPlaceholders          int                `yaml:"max_placeholders"`
	PlaceholderConvictionCap float64            `yaml:"placeholder_conviction_cap"`
	BullishThreshold         float64            `yaml:"bullish_threshold"`
	BearishThreshold         float64            `yaml:"bearish_threshold"`
}

// GateSection configures the execution safety gate.
type GateSection struct {
	Enabled    bool     `yaml:"enabled"`
	DryRun     bool     `yaml:"dry_run"`
	MaxTickAge Duration `yaml:"max_tick_age"`
}

// SnapshotSection configures feed fetching.
type SnapshotSection struct {
	MaxRetries      int      `yaml:"max_retries"`
	RetryBackoff    Duration `yaml:"retry_backoff"`
	AttemptTimeout  Duration `yaml:"attempt_timeout"`
	FeedRPS         float64  `yaml:"feed_rps"`
	FeedBurst       int      `yaml:"feed_burst"`
	DefaultVIXLevel float64  `yaml:"default_vix_level"`
}

// DatabaseSection configures the PostgreSQL decision log.
type DatabaseSection struct {
	Enabled      bool     `yaml:"enabled"`
	DSN          string   `yaml:"dsn"`
	MaxOpenConns int      `yaml:"max_open_conns"`
	MaxIdleConns int      `yaml:"max_idle_conns"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// CacheSection configures the session-context cache.
type CacheSection struct {
	RedisAddr  string   `yaml:"redis_addr"`
	RedisDB    int      `yaml:"redis_db"`
	SessionTTL Duration `yaml:"session_ttl"`
}

// StreamSection configures the realtime tick feed.
type StreamSection struct {
	WebsocketURL string `yaml:"websocket_url"`
}

// ServerSection configures the HTTP API.
type ServerSection struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is supplied.
func Default() *AppConfig {
	return &AppConfig{
		Engine: EngineSection{
			MaxPlaceholders:          2,
			PlaceholderConvictionCap: 60,
			BullishThreshold:         65,
			BearishThreshold:         35,
		},
		Gate: GateSection{
			Enabled:    true,
			MaxTickAge: Duration(5 * time.Second),
		},
		Snapshot: SnapshotSection{
			MaxRetries:      3,
			RetryBackoff:    Duration(500 * time.Millisecond),
			AttemptTimeout:  Duration(5 * time.Second),
			FeedRPS:         5,
			FeedBurst:       5,
			DefaultVIXLevel: 20,
		},
		Database: DatabaseSection{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			QueryTimeout: Duration(30 * time.Second),
		},
		Cache: CacheSection{
			SessionTTL: Duration(60 * time.Second),
		},
		Server: ServerSection{
			Addr: ":8080",
		},
	}
}

// Load reads a YAML config file and applies environment overrides. The file
// is unmarshalled over the defaults, so absent keys keep their default values
// while explicit zeros are honored. A missing path returns the defaults
// unchanged.
func Load(configPath string) (*AppConfig, error) {
	config := Default()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *AppConfig) {
	if dsn := os.Getenv("PG_DSN"); dsn != "" {
		config.Database.DSN = dsn
		config.Database.Enabled = true
	}
	if enabled := os.Getenv("PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			config.Database.Enabled = val
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Cache.RedisAddr = addr
	}
	if url := os.Getenv("STREAM_WS_URL"); url != "" {
		config.Stream.WebsocketURL = url
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if dryRun := os.Getenv("GATE_DRY_RUN"); dryRun != "" {
		if val, err := strconv.ParseBool(dryRun); err == nil {
			config.Gate.DryRun = val
		}
	}
}

// Validate checks cross-field consistency.
func (c *AppConfig) Validate() error {
	if c.Engine.BearishThreshold >= c.Engine.BullishThreshold {
		return fmt.Errorf("bearish_threshold %.1f must be below bullish_threshold %.1f",
			c.Engine.BearishThreshold, c.Engine.BullishThreshold)
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required when database is enabled")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("max_idle_conns cannot exceed max_open_conns")
	}
	if c.Snapshot.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.Snapshot.FeedRPS <= 0 {
		return fmt.Errorf("feed_rps must be positive")
	}
	if c.Snapshot.FeedBurst < 1 {
		return fmt.Errorf("feed_burst must be at least 1")
	}
	if c.Gate.MaxTickAge <= 0 {
		return fmt.Errorf("max_tick_age must be positive")
	}
	return nil
}
