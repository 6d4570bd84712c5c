package config

import (
	"time"

	"github.com/devmarvs/tokenauth/entity"
)

// Config holds server and token authentication configuration.
type Config struct {
	Address           string        `json:"address"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	MaxHeaderBytes    int           `json:"max_header_bytes"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`

	// HeaderNames overrides parameter and header naming per principal type.
	HeaderNames entity.HeaderNames `json:"header_names"`

	Session  SessionConfig  `json:"session"`
	Database DatabaseConfig `json:"database"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	TracingEnabled bool   `json:"tracing_enabled"`
	TracerName     string `json:"tracer_name"`
}

// SessionConfig configures the signed-cookie session used as fallback authentication.
type SessionConfig struct {
	CookieName string   `json:"cookie_name"`
	Key        string   `json:"key"`
	OldKeys    []string `json:"old_keys"`
	Secure     bool     `json:"secure"`
}

// DatabaseConfig configures principal lookups. An empty DSN selects the in-memory adapter.
type DatabaseConfig struct {
	DSN          string        `json:"dsn"`
	TablePrefix  string        `json:"table_prefix"`
	QueryTimeout time.Duration `json:"query_timeout"`
	MaxOpenConns int           `json:"max_open_conns"`
}

// Default returns safe defaults.
func Default() Config {
	return Config{
		Address:           ":8080",
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,
		LogLevel:          "info",
		LogFormat:         "text",
		HeaderNames:       entity.HeaderNames{},
		Session: SessionConfig{
			CookieName: "tokenauth_session",
		},
		Database: DatabaseConfig{
			QueryTimeout: 2 * time.Second,
		},
		TracerName: "tokenauth",
	}
}
