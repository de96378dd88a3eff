package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service. Zero values mean
// "unspecified" and are replaced by defaults via WithDefaults.
type Config struct {
	Addr              string `json:"addr" yaml:"addr" toml:"addr"`
	AllowedOrigins    string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	RateLimitRequests int    `json:"rate_limit_requests" yaml:"rate_limit_requests" toml:"rate_limit_requests"`
	RateLimitWindowS  int    `json:"rate_limit_window_seconds" yaml:"rate_limit_window_seconds" toml:"rate_limit_window_seconds"`
	MaxSourceLength   int    `json:"max_source_length" yaml:"max_source_length" toml:"max_source_length"`
	MaxQueueSize      int    `json:"max_queue_size" yaml:"max_queue_size" toml:"max_queue_size"`
	QueueTimeoutS     int    `json:"queue_timeout_seconds" yaml:"queue_timeout_seconds" toml:"queue_timeout_seconds"`
	StatsFile         string `json:"stats_file" yaml:"stats_file" toml:"stats_file"`
	CompilerBin       string `json:"compiler_bin" yaml:"compiler_bin" toml:"compiler_bin"`
	LogLevel          string `json:"log_level" yaml:"log_level" toml:"log_level"`
	Debug             bool   `json:"debug" yaml:"debug" toml:"debug"`
}

// Defaults for the configuration surface.
const (
	DefaultAddr              = ":3000"
	DefaultAllowedOrigins    = "http://localhost:3000,http://localhost:8080,http://127.0.0.1:3000"
	DefaultRateLimitRequests = 20
	DefaultRateLimitWindowS  = 60
	DefaultMaxSourceLength   = 50000
	DefaultMaxQueueSize      = 10
	DefaultQueueTimeoutS     = 120
	DefaultStatsFile         = "data/stats.yaml"
	DefaultCompilerBin       = "factompile"
	DefaultLogLevel          = "info"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// FromEnv overlays FACTOD_* environment variables onto cfg. Unset or
// malformed variables leave the field untouched.
func FromEnv(cfg Config) Config {
	if v := os.Getenv("FACTOD_ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("FACTOD_ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = v
	}
	if v, ok := envInt("FACTOD_RATE_LIMIT_REQUESTS"); ok {
		cfg.RateLimitRequests = v
	}
	if v, ok := envInt("FACTOD_RATE_LIMIT_WINDOW"); ok {
		cfg.RateLimitWindowS = v
	}
	if v, ok := envInt("FACTOD_MAX_SOURCE_LENGTH"); ok {
		cfg.MaxSourceLength = v
	}
	if v, ok := envInt("FACTOD_MAX_QUEUE_SIZE"); ok {
		cfg.MaxQueueSize = v
	}
	if v, ok := envInt("FACTOD_QUEUE_TIMEOUT"); ok {
		cfg.QueueTimeoutS = v
	}
	if v := os.Getenv("FACTOD_STATS_FILE"); v != "" {
		cfg.StatsFile = v
	}
	if v := os.Getenv("FACTOD_COMPILER_BIN"); v != "" {
		cfg.CompilerBin = v
	}
	if v := os.Getenv("FACTOD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FACTOD_DEBUG"); v != "" {
		cfg.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// WithDefaults fills unset fields with package defaults. A negative
// MaxQueueSize is preserved: it means no waiting is allowed.
func WithDefaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.AllowedOrigins == "" {
		cfg.AllowedOrigins = DefaultAllowedOrigins
	}
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = DefaultRateLimitRequests
	}
	if cfg.RateLimitWindowS <= 0 {
		cfg.RateLimitWindowS = DefaultRateLimitWindowS
	}
	if cfg.MaxSourceLength <= 0 {
		cfg.MaxSourceLength = DefaultMaxSourceLength
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = DefaultMaxQueueSize
	}
	if cfg.QueueTimeoutS <= 0 {
		cfg.QueueTimeoutS = DefaultQueueTimeoutS
	}
	if cfg.StatsFile == "" {
		cfg.StatsFile = DefaultStatsFile
	}
	if cfg.CompilerBin == "" {
		cfg.CompilerBin = DefaultCompilerBin
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	return cfg
}

// RateLimitWindow returns the rate-limit window as a duration.
func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowS) * time.Second
}

// QueueTimeout returns the queue timeout as a duration.
func (c Config) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutS) * time.Second
}

// Origins splits the allowed-origins list into trimmed entries.
func (c Config) Origins() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
