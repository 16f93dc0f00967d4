package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            int     `envconfig:"PORT" default:"8080"`
	LogLevel        string  `envconfig:"LOG_LEVEL" default:"info"`
	AnchorEpsilon   float64 `envconfig:"ANCHOR_EPSILON" default:"1e-9"`
	DefaultStrategy string  `envconfig:"DEFAULT_STRATEGY" default:"chopbox"`
	AllowedOrigins  string  `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	MetricsEnabled  bool    `envconfig:"METRICS_ENABLED" default:"true"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.AnchorEpsilon <= 0 {
		return nil, fmt.Errorf("ANCHOR_EPSILON must be positive, got %g", cfg.AnchorEpsilon)
	}
	return &cfg, nil
}

// SlogLevel maps LogLevel to a slog level. Unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Origins returns the allowed origins as a list.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// OriginPatterns returns the origins without scheme, as websocket.AcceptOptions
// expects them.
func (c *Config) OriginPatterns() []string {
	origins := c.Origins()
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}
