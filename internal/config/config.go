package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvRedisURL overrides redis.url when set.
const EnvRedisURL = "LANEBOARD_REDIS_URL"

// Config is the root configuration for a laneboard project.
type Config struct {
	Version       int       `yaml:"version"`
	Database      string    `yaml:"database"`
	BusyTimeoutMS int       `yaml:"busy_timeout_ms,omitempty"` // 0 = store default
	LogLevel      string    `yaml:"log_level,omitempty"`       // logrus level name
	HTTP          HTTP      `yaml:"http"`
	Redis         Redis     `yaml:"redis"`
	Fanout        Fanout    `yaml:"fanout"`
	Webhooks      []Webhook `yaml:"webhooks,omitempty"`
}

// HTTP configures the API server.
type HTTP struct {
	Listen string `yaml:"listen"`
}

// Redis configures the pub/sub fanout sink. An empty URL disables it.
type Redis struct {
	URL           string `yaml:"url"`
	ChannelPrefix string `yaml:"channel_prefix,omitempty"`
}

// Fanout configures delivery of change sets to sinks.
type Fanout struct {
	Workers   int `yaml:"workers,omitempty"`
	TimeoutMS int `yaml:"timeout_ms,omitempty"`
}

// Webhook is an HTTP endpoint that receives every change set as JSON.
type Webhook struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	TokenEnv string `yaml:"token_env,omitempty"` // env var holding a bearer token
}

// Token returns the bearer token for the webhook, or "" if none is set.
func (w Webhook) Token() string {
	if w.TokenEnv == "" {
		return ""
	}
	return os.Getenv(w.TokenEnv)
}

// BusyTimeout returns how long a writer waits for the board lock.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMS) * time.Millisecond
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// DeliveryTimeout bounds a single sink delivery. Zero means no bound.
func (f Fanout) DeliveryTimeout() time.Duration {
	return time.Duration(f.TimeoutMS) * time.Millisecond
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(os.Getenv(EnvRedisURL)); v != "" {
		cfg.Redis.URL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config for a local board.
func DefaultConfig() *Config {
	return &Config{
		Version:       1,
		Database:      ".laneboard/board.db",
		BusyTimeoutMS: 5000,
		LogLevel:      "info",
		HTTP:          HTTP{Listen: ":8080"},
		Redis:         Redis{ChannelPrefix: "laneboard"},
		Fanout:        Fanout{Workers: 4, TimeoutMS: 2000},
	}
}

func (c *Config) validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version %d", c.Version)
	}
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy_timeout_ms must not be negative, got %d", c.BusyTimeoutMS)
	}
	if c.LogLevel != "" {
		if _, err := log.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	if c.Fanout.Workers < 0 {
		return fmt.Errorf("fanout.workers must not be negative, got %d", c.Fanout.Workers)
	}
	if c.Fanout.TimeoutMS < 0 {
		return fmt.Errorf("fanout.timeout_ms must not be negative, got %d", c.Fanout.TimeoutMS)
	}
	seen := map[string]bool{}
	for i, w := range c.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("webhooks[%d]: name is required", i)
		}
		if seen[w.Name] {
			return fmt.Errorf("webhooks[%d]: duplicate name %q", i, w.Name)
		}
		seen[w.Name] = true
		if !strings.HasPrefix(w.URL, "http://") && !strings.HasPrefix(w.URL, "https://") {
			return fmt.Errorf("webhook %s: url must be http(s), got %q", w.Name, w.URL)
		}
	}
	return nil
}
