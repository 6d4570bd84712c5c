// Package health reports liveness and the readiness of the principal
// adapters token authentication depends on.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/devmarvs/tokenauth/adapter"
)

// Check runs a single probe.
type Check func(context.Context) error

// Result reports a single check.
type Result struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the body of a health response.
type Report struct {
	Status    string    `json:"status"`
	Checks    []Result  `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithTimeout bounds every check.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.timeout = timeout
	}
}

// Registry holds liveness and readiness checks.
type Registry struct {
	mu      sync.RWMutex
	live    map[string]Check
	ready   map[string]Check
	timeout time.Duration
}

// New creates an empty Registry.
func New(options ...Option) *Registry {
	r := &Registry{live: map[string]Check{}, ready: map[string]Check{}}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Add registers a liveness check.
func (r *Registry) Add(name string, check Check) {
	r.mu.Lock()
	r.live[name] = check
	r.mu.Unlock()
}

// AddReady registers a readiness check.
func (r *Registry) AddReady(name string, check Check) {
	r.mu.Lock()
	r.ready[name] = check
	r.mu.Unlock()
}

// AddAdapter registers a readiness check for a principal adapter. Adapters
// that cannot be pinged are always ready.
func (r *Registry) AddAdapter(a adapter.Adapter) {
	r.AddReady("adapter."+a.Name(), func(ctx context.Context) error {
		if pinger, ok := a.(adapter.Pinger); ok {
			return pinger.Ping(ctx)
		}
		return nil
	})
}

// Handler serves the liveness report.
func (r *Registry) Handler() http.Handler {
	return r.handler(func() map[string]Check { return r.live })
}

// ReadyHandler serves the readiness report.
func (r *Registry) ReadyHandler() http.Handler {
	return r.handler(func() map[string]Check { return r.ready })
}

func (r *Registry) handler(source func() map[string]Check) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		checks := make(map[string]Check, len(source()))
		for name, check := range source() {
			checks[name] = check
		}
		r.mu.RUnlock()

		report := r.run(req.Context(), checks)
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
}

func (r *Registry) run(ctx context.Context, checks map[string]Check) Report {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Status: "ok", Checks: make([]Result, 0, len(names))}
	for _, name := range names {
		result := r.probe(ctx, checks[name])
		result.Name = name
		if result.Status != "ok" {
			report.Status = "fail"
		}
		report.Checks = append(report.Checks, result)
	}
	report.CheckedAt = time.Now().UTC()
	return report
}

func (r *Registry) probe(ctx context.Context, check Check) Result {
	if check == nil {
		return Result{Status: "ok"}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	err := check(ctx)
	result := Result{Status: "ok", DurationMS: time.Since(start).Milliseconds()}
	if err != nil {
		result.Status = "fail"
		result.Error = err.Error()
	}
	return result
}
