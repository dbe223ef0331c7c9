package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Database struct {
		Path           string `yaml:"path"`
		WALMode        bool   `yaml:"wal_mode"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`
	Auth struct {
		// RequestsPerMinute and Burst size the per-user API rate limiter.
		RequestsPerMinute int `yaml:"requests_per_minute"`
		Burst             int `yaml:"burst"`
	} `yaml:"auth"`
	Broker struct {
		ChannelBufferSize int `yaml:"channel_buffer_size"`
	} `yaml:"broker"`
	SavedSearches SavedSearches `yaml:"saved_searches"`
	Locks         struct {
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
	} `yaml:"locks"`
	MCP struct {
		Enabled bool `yaml:"enabled"`
		HTTP    struct {
			Enabled bool   `yaml:"enabled"`
			Path    string `yaml:"path"`
		} `yaml:"http"`
	} `yaml:"mcp"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
}

type SavedSearches struct {
	Enabled           bool   `yaml:"enabled"`
	MinTrustLevel     int    `yaml:"min_trust_level"`
	MaxPerUser        int    `yaml:"max_per_user"`
	MaxTermLength     int    `yaml:"max_term_length"`
	RecencyWindow     string `yaml:"recency_window"`
	MaxResultsPerTerm int    `yaml:"max_results_per_term"`
	Schedule          string `yaml:"schedule"`
	RunOnStart        bool   `yaml:"run_on_start"`
	Concurrency       int    `yaml:"concurrency"`
	SystemUsername    string `yaml:"system_username"`
}

func Default() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.ReadTimeout = "30s"
	cfg.Server.WriteTimeout = "30s"
	cfg.Database.Path = "./quorum.db"
	cfg.Database.WALMode = true
	cfg.Database.MaxConnections = 10
	cfg.Auth.RequestsPerMinute = 1000
	cfg.Auth.Burst = 200
	cfg.Broker.ChannelBufferSize = 256
	cfg.SavedSearches.Enabled = true
	cfg.SavedSearches.MinTrustLevel = 1
	cfg.SavedSearches.MaxPerUser = 5
	cfg.SavedSearches.MaxTermLength = 100
	cfg.SavedSearches.RecencyWindow = "24h"
	cfg.SavedSearches.MaxResultsPerTerm = 10
	cfg.SavedSearches.Schedule = "@every 1h"
	cfg.SavedSearches.Concurrency = 4
	cfg.SavedSearches.SystemUsername = "system"
	cfg.Locks.TTL = "10m"
	cfg.MCP.Enabled = true
	cfg.MCP.HTTP.Enabled = true
	cfg.MCP.HTTP.Path = "/mcp"
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	return cfg
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	overrideFromEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Addr(cfg Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}

func ReadTimeout(cfg Config) time.Duration {
	return durationOr(cfg.Server.ReadTimeout, 30*time.Second)
}

func WriteTimeout(cfg Config) time.Duration {
	return durationOr(cfg.Server.WriteTimeout, 30*time.Second)
}

// RecencyWindow is how far back a saved search looks for new posts.
func RecencyWindow(cfg Config) time.Duration {
	return durationOr(cfg.SavedSearches.RecencyWindow, 24*time.Hour)
}

func LockTTL(cfg Config) time.Duration {
	return durationOr(cfg.Locks.TTL, 10*time.Minute)
}

func durationOr(v string, fallback time.Duration) time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(v))
	if d <= 0 {
		return fallback
	}
	return d
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("QUORUM_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("QUORUM_SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("QUORUM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("QUORUM_SAVED_SEARCHES_ENABLED"); v != "" {
		cfg.SavedSearches.Enabled = parseBool(v)
	}
	if v := os.Getenv("QUORUM_SAVED_SEARCHES_MIN_TRUST_LEVEL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.SavedSearches.MinTrustLevel = i
		}
	}
	if v := os.Getenv("QUORUM_SAVED_SEARCHES_SCHEDULE"); v != "" {
		cfg.SavedSearches.Schedule = v
	}
	if v := os.Getenv("QUORUM_REDIS_URL"); v != "" {
		cfg.Locks.RedisURL = v
	}
	if v := os.Getenv("QUORUM_MCP_ENABLED"); v != "" {
		cfg.MCP.Enabled = parseBool(v)
	}
	if v := os.Getenv("QUORUM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("QUORUM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}

func validate(cfg Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("invalid server.port")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if cfg.Broker.ChannelBufferSize <= 0 {
		return errors.New("broker.channel_buffer_size must be > 0")
	}
	ss := cfg.SavedSearches
	if ss.MinTrustLevel < 0 {
		return errors.New("saved_searches.min_trust_level must be >= 0")
	}
	if ss.MaxPerUser <= 0 {
		return errors.New("saved_searches.max_per_user must be > 0")
	}
	if ss.MaxTermLength <= 0 {
		return errors.New("saved_searches.max_term_length must be > 0")
	}
	if ss.MaxResultsPerTerm <= 0 {
		return errors.New("saved_searches.max_results_per_term must be > 0")
	}
	if ss.Concurrency <= 0 {
		return errors.New("saved_searches.concurrency must be > 0")
	}
	if d, err := time.ParseDuration(ss.RecencyWindow); err != nil || d <= 0 {
		return errors.New("saved_searches.recency_window must be a positive duration")
	}
	if ss.Enabled && strings.TrimSpace(ss.Schedule) == "" {
		return errors.New("saved_searches.schedule is required when saved searches are enabled")
	}
	if strings.TrimSpace(ss.SystemUsername) == "" {
		return errors.New("saved_searches.system_username is required")
	}
	if cfg.MCP.HTTP.Enabled && (strings.TrimSpace(cfg.MCP.HTTP.Path) == "" || cfg.MCP.HTTP.Path[0] != '/') {
		return errors.New("mcp.http.path must start with '/'")
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", cfg.Logging.Format)
	}
	return nil
}
