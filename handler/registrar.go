// Package handler installs token authentication on controllers.
//
// A Registrar keeps one registration record per (controller, principal type)
// pair. Every record is served by the single Authenticate entry point, which
// runs in Soft mode (failure defers to the fallback authenticator) or Hard
// mode (failure is unauthorized). Registering a type on a controller binds a
// before-action filter named authenticate_<type>_from_token, with a trailing
// "!" for the Hard variant.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/adapter"
	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/entity"
	"github.com/devmarvs/tokenauth/logging"
	"github.com/devmarvs/tokenauth/settings"
	"github.com/devmarvs/tokenauth/token"
)

// DefaultPrincipalType is registered by RegisterDefault.
const DefaultPrincipalType = "User"

// ErrNotRegistered indicates the principal type is not registered on the
// controller or any of its ancestors.
var ErrNotRegistered = errors.New("handler: principal type not registered")

// Mode selects the failure behavior of Authenticate.
type Mode int

const (
	// Soft reports failure as a nil principal so a fallback may run.
	Soft Mode = iota
	// Hard reports failure as an unauthorized error.
	Hard
)

func (m Mode) String() string {
	if m == Hard {
		return "hard"
	}
	return "soft"
}

// Record is the registration of a principal type on a controller.
type Record struct {
	Controller       *Controller
	PrincipalType    string
	Entity           entity.Entity
	FallbackToDevise bool
	Filter           string
	FilterOptions    FilterOptions
	Model            any

	adapter  adapter.Adapter
	fallback tokenauth.Authenticator
}

// Mode returns the mode of the bound filter.
func (r Record) Mode() Mode {
	if r.FallbackToDevise {
		return Soft
	}
	return Hard
}

// Registrar installs token authentication filters.
type Registrar struct {
	settings *settings.Registry
	adapters []adapter.Adapter
	fallback tokenauth.Authenticator
	hooks    tokenauth.AuthHooks
	logger   *slog.Logger

	mu      sync.RWMutex
	records map[*Controller][]*Record
}

// Option configures a Registrar.
type Option func(*Registrar)

// WithSettings uses a settings registry instead of settings.Default().
func WithSettings(registry *settings.Registry) Option {
	return func(r *Registrar) {
		r.settings = registry
	}
}

// WithAdapters sets the persistence adapters principals are looked up with.
func WithAdapters(adapters ...adapter.Adapter) Option {
	return func(r *Registrar) {
		r.adapters = append(r.adapters, adapters...)
	}
}

// WithFallback sets the authenticator run when a Soft check fails.
func WithFallback(auth tokenauth.Authenticator) Option {
	return func(r *Registrar) {
		r.fallback = auth
	}
}

// WithAuthHooks sets hooks run around every authentication attempt.
func WithAuthHooks(hooks tokenauth.AuthHooks) Option {
	return func(r *Registrar) {
		r.hooks = hooks
	}
}

// WithLogger sets the registration logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registrar) {
		r.logger = logger
	}
}

// NewRegistrar creates a registrar.
func NewRegistrar(options ...Option) *Registrar {
	r := &Registrar{records: map[*Controller][]*Record{}}
	for _, opt := range options {
		opt(r)
	}
	if r.settings == nil {
		r.settings = settings.Default()
	}
	if r.logger == nil {
		r.logger = logging.Discard()
	}
	return r
}

// RegisterOption configures a single registration.
type RegisterOption func(*Record)

// FallbackToDevise selects the Soft filter (true, the default) or the Hard one.
func FallbackToDevise(enabled bool) RegisterOption {
	return func(rec *Record) {
		rec.FallbackToDevise = enabled
	}
}

// WithModel names the principal model; its adapter is selected by base class.
func WithModel(model any) RegisterOption {
	return func(rec *Record) {
		rec.Model = model
	}
}

// Fallback overrides the registrar fallback for this registration.
func Fallback(auth tokenauth.Authenticator) RegisterOption {
	return func(rec *Record) {
		rec.fallback = auth
	}
}

// Only limits the filter to the given actions.
func Only(actions ...string) RegisterOption {
	return func(rec *Record) {
		rec.FilterOptions.Only = append(rec.FilterOptions.Only, actions...)
	}
}

// Except excludes the given actions from the filter.
func Except(actions ...string) RegisterOption {
	return func(rec *Record) {
		rec.FilterOptions.Except = append(rec.FilterOptions.Except, actions...)
	}
}

// Register installs token authentication for principalType on c. A second
// registration of the same pair replaces the first.
func (r *Registrar) Register(c *Controller, principalType string, options ...RegisterOption) error {
	if c == nil {
		return errors.New("handler: nil controller")
	}
	ent, err := r.settings.Resolve(principalType)
	if err != nil {
		return err
	}

	rec := &Record{
		Controller:       c,
		PrincipalType:    ent.Name,
		Entity:           ent,
		FallbackToDevise: true,
	}
	for _, opt := range options {
		opt(rec)
	}
	if rec.Model != nil {
		a, err := adapter.Select(r.adapters, rec.Model)
		if err != nil {
			return err
		}
		rec.adapter = a
	}

	mode := rec.Mode()
	rec.Filter = ent.MethodName()
	if mode == Hard {
		rec.Filter = ent.BangMethodName()
	}

	r.mu.Lock()
	r.records[c] = replaceRecord(r.records[c], rec)
	r.mu.Unlock()

	c.removeOwn(ent.MethodName(), ent.BangMethodName())
	c.BeforeAction(rec.Filter, r.filter(c, ent.Name, mode), rec.FilterOptions)

	r.logger.Debug("token authentication registered",
		slog.String("controller", c.Name()),
		slog.String("principal_type", ent.Name),
		slog.String("filter", rec.Filter),
	)
	return nil
}

// RegisterDefault registers the User principal type.
//
// Deprecated: name the principal type with Register.
func (r *Registrar) RegisterDefault(c *Controller, options ...RegisterOption) error {
	r.logger.Warn("default token authentication registration is deprecated, register the principal type explicitly",
		slog.String("principal_type", DefaultPrincipalType),
	)
	return r.Register(c, DefaultPrincipalType, options...)
}

// Records returns the registrations visible to c, ancestors first. A
// registration on c shadows an ancestor's registration of the same type.
func (r *Registrar) Records(c *Controller) []Record {
	var lineage []*Controller
	for current := c; current != nil; current = current.parent {
		lineage = append([]*Controller{current}, lineage...)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Record
	index := map[string]int{}
	for _, current := range lineage {
		for _, rec := range r.records[current] {
			key := rec.Entity.NameUnderscore
			if i, ok := index[key]; ok {
				out[i] = *rec
				continue
			}
			index[key] = len(out)
			out = append(out, *rec)
		}
	}
	return out
}

// Lookup returns the registration of principalType nearest to c.
func (r *Registrar) Lookup(c *Controller, principalType string) (Record, bool) {
	rec := r.lookup(c, entity.Underscore(principalType))
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// RespondsTo reports whether a registration visible to c provides the named
// authentication method, in either variant.
func (r *Registrar) RespondsTo(c *Controller, method string) bool {
	for _, rec := range r.Records(c) {
		if method == rec.Entity.MethodName() || method == rec.Entity.BangMethodName() {
			return true
		}
	}
	return false
}

// Authenticate runs token authentication for principalType as registered on
// c or an ancestor. On success the principal is stored on ctx. In Soft mode a
// failed check returns a nil principal and nil error; in Hard mode it returns
// an unauthorized error. Lookup errors other than a missing principal are
// returned as internal errors in both modes.
func (r *Registrar) Authenticate(ctx *tokenauth.Context, c *Controller, principalType string, mode Mode) (*tokenauth.Principal, error) {
	rec := r.lookup(c, entity.Underscore(principalType))
	if rec == nil {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotRegistered, principalType, controllerName(c))
	}

	r.hooks.Before(ctx, rec.PrincipalType)
	principal, err := r.authenticate(ctx, rec)
	r.hooks.After(ctx, rec.PrincipalType, principal, err)

	if err == nil {
		tokenauth.SetPrincipal(ctx, principal)
		return principal, nil
	}

	outcome := tokenauth.AuthOutcome(err)
	if outcome == tokenauth.OutcomeError {
		ctx.Logger().Error("token authentication failed",
			slog.String("principal_type", rec.PrincipalType),
			slog.String("error", err.Error()),
		)
		return nil, apperr.Internal("authentication unavailable", err)
	}

	ctx.Logger().Debug("token authentication rejected",
		slog.String("principal_type", rec.PrincipalType),
		slog.String("outcome", outcome),
		slog.String("mode", mode.String()),
	)
	if mode == Hard {
		return nil, apperr.Unauthorized("unauthorized", err)
	}
	return nil, nil
}

func (r *Registrar) authenticate(ctx *tokenauth.Context, rec *Record) (*tokenauth.Principal, error) {
	ent, err := r.settings.Resolve(rec.PrincipalType)
	if err != nil {
		return nil, err
	}

	identifier, ok := ent.Identifier(ctx)
	if !ok {
		return nil, tokenauth.ErrCredentialsMissing
	}
	provided, ok := ent.Token(ctx)
	if !ok {
		return nil, tokenauth.ErrCredentialsMissing
	}

	a := rec.adapter
	if a == nil && len(r.adapters) > 0 {
		a = r.adapters[0]
	}
	if a == nil {
		return nil, adapter.ErrNoAdapter
	}

	found, err := a.FindByIdentifier(requestContext(ctx), ent, identifier)
	if err != nil {
		if errors.Is(err, adapter.ErrNotFound) {
			return nil, tokenauth.ErrPrincipalNotFound
		}
		return nil, err
	}
	if !token.Compare(found.AuthenticationToken(), provided) {
		return nil, tokenauth.ErrTokenMismatch
	}

	return &tokenauth.Principal{
		ID:         found.PrincipalID(),
		Type:       ent.Name,
		Identifier: identifier,
	}, nil
}

func (r *Registrar) filter(c *Controller, principalType string, mode Mode) tokenauth.Handler {
	return func(ctx *tokenauth.Context) error {
		principal, err := r.Authenticate(ctx, c, principalType, mode)
		if err != nil || principal != nil || mode == Hard {
			return err
		}

		fallback := r.fallback
		if rec := r.lookup(c, entity.Underscore(principalType)); rec != nil && rec.fallback != nil {
			fallback = rec.fallback
		}
		if fallback == nil {
			return nil
		}
		principal, err = fallback.Authenticate(ctx)
		if err != nil {
			return err
		}
		if principal != nil {
			tokenauth.SetPrincipal(ctx, principal)
		}
		return nil
	}
}

func (r *Registrar) lookup(c *Controller, key string) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for current := c; current != nil; current = current.parent {
		for _, rec := range r.records[current] {
			if rec.Entity.NameUnderscore == key {
				return rec
			}
		}
	}
	return nil
}

func replaceRecord(records []*Record, rec *Record) []*Record {
	for i, existing := range records {
		if existing.Entity.NameUnderscore == rec.Entity.NameUnderscore {
			records[i] = rec
			return records
		}
	}
	return append(records, rec)
}

func requestContext(ctx *tokenauth.Context) context.Context {
	if ctx == nil || ctx.Request == nil {
		return context.Background()
	}
	return ctx.Request.Context()
}

func controllerName(c *Controller) string {
	if c == nil {
		return "<nil>"
	}
	return c.Name()
}
