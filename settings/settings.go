// Package settings holds the header name overrides consulted by every entity
// resolution.
//
// The current value lives behind an atomic pointer: readers load it without
// locking, writers serialize on a mutex, copy, apply their change, normalize
// and store a fresh value. A reader never sees a half-applied change.
package settings

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/devmarvs/tokenauth/config"
	"github.com/devmarvs/tokenauth/entity"
)

// Config is the token authentication configuration.
type Config struct {
	HeaderNames entity.HeaderNames
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	return Config{HeaderNames: c.HeaderNames.Clone()}
}

// Registry stores the current Config.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[Config]
	logger  *slog.Logger
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger logs dropped overrides to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates a registry seeded with cfg.
func New(cfg Config, options ...Option) *Registry {
	r := &Registry{}
	for _, opt := range options {
		opt(r)
	}
	r.store(cfg)
	return r
}

// FromConfig seeds a registry from the header_names section of the app config.
func FromConfig(cfg config.Config, options ...Option) *Registry {
	return New(Config{HeaderNames: cfg.HeaderNames}, options...)
}

// Configure passes a copy of the current Config to mutator and stores the result.
func (r *Registry) Configure(mutator func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.load().Clone()
	if mutator != nil {
		mutator(&next)
	}
	r.store(next)
}

// HeaderNames returns a copy of the current overrides.
func (r *Registry) HeaderNames() entity.HeaderNames {
	return r.load().HeaderNames.Clone()
}

// Snapshot returns a copy of the current Config.
func (r *Registry) Snapshot() Config {
	return r.load().Clone()
}

// Resolve derives the entity for principalType against the current overrides.
func (r *Registry) Resolve(principalType string) (entity.Entity, error) {
	return entity.Resolve(principalType, r.load().HeaderNames)
}

// Reset drops every override.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(Config{})
}

func (r *Registry) load() *Config {
	if r == nil {
		return &Config{}
	}
	cfg := r.current.Load()
	if cfg == nil {
		return &Config{}
	}
	return cfg
}

// store must be called with mu held (or before the registry is shared).
func (r *Registry) store(cfg Config) {
	names, issues := cfg.HeaderNames.Normalize()
	if r.logger != nil {
		for _, issue := range issues {
			r.logger.Warn("header name override ignored", slog.String("issue", issue))
		}
	}
	r.current.Store(&Config{HeaderNames: names})
}

var defaultRegistry = New(Config{})

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Configure mutates the process-wide registry.
func Configure(mutator func(*Config)) {
	defaultRegistry.Configure(mutator)
}

// HeaderNames returns the process-wide overrides.
func HeaderNames() entity.HeaderNames {
	return defaultRegistry.HeaderNames()
}
