package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv applies environment overrides with a prefix (e.g. TOKENAUTH_).
func LoadFromEnv(prefix string, base Config) Config {
	get := func(key string) string { return os.Getenv(prefix + key) }

	if value := get("ADDRESS"); value != "" {
		base.Address = value
	}
	durations := map[string]*time.Duration{
		"READ_TIMEOUT":        &base.ReadTimeout,
		"WRITE_TIMEOUT":       &base.WriteTimeout,
		"IDLE_TIMEOUT":        &base.IdleTimeout,
		"READ_HEADER_TIMEOUT": &base.ReadHeaderTimeout,
		"SHUTDOWN_TIMEOUT":    &base.ShutdownTimeout,
		"DATABASE_TIMEOUT":    &base.Database.QueryTimeout,
	}
	for key, target := range durations {
		if value := get(key); value != "" {
			if d, err := time.ParseDuration(value); err == nil {
				*target = d
			}
		}
	}
	if value := get("MAX_HEADER_BYTES"); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			base.MaxHeaderBytes = n
		}
	}
	if value := get("LOG_LEVEL"); value != "" {
		base.LogLevel = value
	}
	if value := get("LOG_FORMAT"); value != "" {
		base.LogFormat = value
	}
	if value := get("SESSION_COOKIE"); value != "" {
		base.Session.CookieName = value
	}
	if value := get("SESSION_KEY"); value != "" {
		base.Session.Key = value
	}
	if value := get("SESSION_OLD_KEYS"); value != "" {
		base.Session.OldKeys = splitList(value)
	}
	if value := get("DATABASE_DSN"); value != "" {
		base.Database.DSN = value
	}
	if value := get("DATABASE_TABLE_PREFIX"); value != "" {
		base.Database.TablePrefix = value
	}
	if value := get("METRICS_ENABLED"); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			base.MetricsEnabled = enabled
		}
	}
	if value := get("TRACING_ENABLED"); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			base.TracingEnabled = enabled
		}
	}

	return base
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
