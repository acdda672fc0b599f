// Package config loads the service configuration from YAML with
// environment overrides for the secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Quotes QuotesConfig `yaml:"quotes"`
	Game   GameConfig   `yaml:"game"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the HTTP listener. Durations are expressed in
// seconds because YAML carries them as plain integers.
type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	ReadTimeoutSeconds    int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds   int    `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds    int    `yaml:"idle_timeout_seconds"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// RedisConfig configures the persistence substrate. The password comes
// from REDIS_PASSWORD, never from the file.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

// QuotesConfig configures the upstream price feed and its cache.
type QuotesConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	TTLSeconds     int    `yaml:"ttl_seconds"`
	RatePerSecond  int    `yaml:"rate_per_second"`
	RateBurst      int    `yaml:"rate_burst"`
}

// GameConfig configures gameplay-facing knobs.
type GameConfig struct {
	LeaderboardTopN  int `yaml:"leaderboard_top_n"`
	TaskQueueSize    int `yaml:"task_queue_size"`
	TaskAttempts     int `yaml:"task_attempts"`
	TaskBackoffMilli int `yaml:"task_backoff_ms"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                  "127.0.0.1",
			Port:                  8080,
			ReadTimeoutSeconds:    10,
			WriteTimeoutSeconds:   10,
			IdleTimeoutSeconds:    60,
			RequestTimeoutSeconds: 5,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Quotes: QuotesConfig{
			TimeoutSeconds: 3,
			TTLSeconds:     5,
			RatePerSecond:  5,
			RateBurst:      10,
		},
		Game: GameConfig{
			LeaderboardTopN:  10,
			TaskQueueSize:    256,
			TaskAttempts:     3,
			TaskBackoffMilli: 250,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults; an empty path returns the defaults
// unchanged. REDIS_PASSWORD overrides from the environment either way.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Quotes.TTLSeconds < 1 {
		return fmt.Errorf("quotes.ttl_seconds must be at least 1")
	}
	if c.Game.LeaderboardTopN < 1 {
		return fmt.Errorf("game.leaderboard_top_n must be at least 1")
	}
	return nil
}

func (c ServerConfig) ReadTimeout() time.Duration    { return seconds(c.ReadTimeoutSeconds) }
func (c ServerConfig) WriteTimeout() time.Duration   { return seconds(c.WriteTimeoutSeconds) }
func (c ServerConfig) IdleTimeout() time.Duration    { return seconds(c.IdleTimeoutSeconds) }
func (c ServerConfig) RequestTimeout() time.Duration { return seconds(c.RequestTimeoutSeconds) }

func (c QuotesConfig) Timeout() time.Duration { return seconds(c.TimeoutSeconds) }
func (c QuotesConfig) TTL() time.Duration     { return seconds(c.TTLSeconds) }

func (c GameConfig) TaskBackoff() time.Duration {
	return time.Duration(c.TaskBackoffMilli) * time.Millisecond
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
