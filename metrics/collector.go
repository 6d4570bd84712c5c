// Package metrics exports token authentication and request metrics to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/devmarvs/tokenauth"
)

// Config configures the collector.
type Config struct {
	// Namespace defaults to "tokenauth".
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	// Buckets defaults to prometheus.DefBuckets.
	Buckets []float64
	// Registry defaults to a fresh registry owned by the collector.
	Registry *prometheus.Registry
}

// Option configures the collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry registers the metrics on registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Collector holds the Prometheus metrics.
type Collector struct {
	registry *prometheus.Registry

	authAttempts    *prometheus.CounterVec
	authDuration    *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

// New creates a collector.
func New(options ...Option) *Collector {
	cfg := Config{Namespace: "tokenauth", Buckets: prometheus.DefBuckets}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	factory := promauto.With(cfg.Registry)
	return &Collector{
		registry: cfg.Registry,

		authAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "auth_attempts_total",
			Help:        "Token authentication attempts by principal type and outcome",
			ConstLabels: cfg.ConstLabels,
		}, []string{"principal_type", "outcome"}),

		authDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "auth_duration_seconds",
			Help:        "Token authentication duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"principal_type"}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "HTTP requests by method and status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"method"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "in_flight_requests",
			Help:        "HTTP requests being served",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

const startKeyPrefix = "tokenauth.metrics.start."

// Hooks returns auth hooks counting every attempt by outcome.
func (c *Collector) Hooks() tokenauth.AuthHooks {
	return tokenauth.AuthHooks{
		BeforeAuthenticate: func(ctx *tokenauth.Context, principalType string) {
			if ctx != nil {
				ctx.Set(startKeyPrefix+principalType, time.Now())
			}
		},
		AfterAuthenticate: func(ctx *tokenauth.Context, principalType string, _ *tokenauth.Principal, err error) {
			c.authAttempts.WithLabelValues(principalType, tokenauth.AuthOutcome(err)).Inc()
			if ctx == nil {
				return
			}
			if value, ok := ctx.Get(startKeyPrefix + principalType); ok {
				if start, ok := value.(time.Time); ok {
					c.authDuration.WithLabelValues(principalType).Observe(time.Since(start).Seconds())
				}
			}
		},
	}
}

// Start marks the start of a request.
func (c *Collector) Start() time.Time {
	c.inFlight.Inc()
	return time.Now()
}

// End records a completed request.
func (c *Collector) End(start time.Time, method string, status int) {
	c.inFlight.Dec()
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Handler exposes the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
