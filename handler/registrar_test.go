package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/adapter"
	"github.com/devmarvs/tokenauth/adapter/memory"
	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/entity"
	"github.com/devmarvs/tokenauth/logging"
	"github.com/devmarvs/tokenauth/settings"
	"github.com/devmarvs/tokenauth/token"
)

type fixture struct {
	settings  *settings.Registry
	store     *memory.Store
	registrar *Registrar
}

func newFixture(options ...Option) *fixture {
	f := &fixture{
		settings: settings.New(settings.Config{}),
		store:    memory.New(),
	}
	f.store.Put("User", memory.Document{ID: "1", Token: "user-token", Fields: map[string]string{"email": "alice@example.com"}})
	f.store.Put("SuperAdmin", memory.Document{ID: "9", Token: "admin-token", Fields: map[string]string{"email": "root@example.com", "uuid": "u-9"}})

	base := []Option{WithSettings(f.settings), WithAdapters(f.store)}
	f.registrar = NewRegistrar(append(base, options...)...)
	return f
}

func newRequestContext(params url.Values, headers map[string]string) *tokenauth.Context {
	target := "/"
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return tokenauth.NewContext(httptest.NewRecorder(), req, nil)
}

func userParams(email, tok string) url.Values {
	return url.Values{"user_email": {email}, "user_token": {tok}}
}

func TestRegistrationScoping(t *testing.T) {
	f := newFixture()
	application := NewController("ApplicationController", nil)
	api := NewController("ApiController", application)
	reports := NewController("ReportsController", api)
	admin := NewController("AdminController", application)

	if err := f.registrar.Register(api, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registrar.Register(admin, "SuperAdmin"); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		controller *Controller
		method     string
		want       bool
	}{
		{api, "authenticate_user_from_token", true},
		{api, "authenticate_user_from_token!", true},
		{reports, "authenticate_user_from_token", true},
		{reports, "authenticate_user_from_token!", true},
		{api, "authenticate_super_admin_from_token", false},
		{reports, "authenticate_super_admin_from_token!", false},
		{admin, "authenticate_super_admin_from_token", true},
		{admin, "authenticate_user_from_token", false},
		{application, "authenticate_user_from_token", false},
		{application, "authenticate_super_admin_from_token", false},
	}
	for _, tc := range cases {
		if got := f.registrar.RespondsTo(tc.controller, tc.method); got != tc.want {
			t.Fatalf("%s responds to %s = %v, want %v", tc.controller.Name(), tc.method, got, tc.want)
		}
	}

	if got := application.Filters("index"); len(got) != 0 {
		t.Fatalf("expected no filters on unrelated ancestor, got %v", got)
	}
	if got := admin.Filters("index"); !reflect.DeepEqual(got, []string{"authenticate_super_admin_from_token"}) {
		t.Fatalf("unexpected sibling filters %v", got)
	}
}

func TestSubclassRegistrationKeepsInherited(t *testing.T) {
	f := newFixture()
	parent := NewController("ApiController", nil)
	child := NewController("AdminApiController", parent)

	if err := f.registrar.Register(parent, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registrar.Register(child, "SuperAdmin", FallbackToDevise(false)); err != nil {
		t.Fatalf("register: %v", err)
	}

	want := []string{"authenticate_user_from_token", "authenticate_super_admin_from_token!"}
	if got := child.Filters("index"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := parent.Filters("index"); !reflect.DeepEqual(got, want[:1]) {
		t.Fatalf("expected parent filters unchanged, got %v", got)
	}

	records := f.registrar.Records(child)
	if len(records) != 2 || records[0].PrincipalType != "User" || records[1].PrincipalType != "SuperAdmin" {
		t.Fatalf("unexpected records %+v", records)
	}
	if !f.registrar.RespondsTo(child, "authenticate_user_from_token!") {
		t.Fatalf("expected child to respond to inherited methods")
	}
	if f.registrar.RespondsTo(parent, "authenticate_super_admin_from_token") {
		t.Fatalf("expected parent not to see child registration")
	}
}

func TestFallbackOptionBindsVariant(t *testing.T) {
	cases := []struct {
		name    string
		options []RegisterOption
		want    string
		mode    Mode
	}{
		{"default", nil, "authenticate_user_from_token", Soft},
		{"fallback enabled", []RegisterOption{FallbackToDevise(true)}, "authenticate_user_from_token", Soft},
		{"fallback disabled", []RegisterOption{FallbackToDevise(false)}, "authenticate_user_from_token!", Hard},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			c := NewController("ApiController", nil)
			if err := f.registrar.Register(c, "User", tc.options...); err != nil {
				t.Fatalf("register: %v", err)
			}
			if got := c.Filters("show"); !reflect.DeepEqual(got, []string{tc.want}) {
				t.Fatalf("expected %q, got %v", tc.want, got)
			}
			rec, ok := f.registrar.Lookup(c, "User")
			if !ok || rec.Filter != tc.want || rec.Mode() != tc.mode {
				t.Fatalf("unexpected record %+v", rec)
			}
		})
	}
}

func TestReRegistrationOverwrites(t *testing.T) {
	f := newFixture()
	c := NewController("ApiController", nil)

	if err := f.registrar.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.registrar.Register(c, "user", FallbackToDevise(false), Only("show")); err != nil {
		t.Fatalf("register: %v", err)
	}

	if got := c.Filters("show"); !reflect.DeepEqual(got, []string{"authenticate_user_from_token!"}) {
		t.Fatalf("expected only the bang filter, got %v", got)
	}
	if got := c.Filters("index"); len(got) != 0 {
		t.Fatalf("expected only option to apply, got %v", got)
	}
	records := f.registrar.Records(c)
	if len(records) != 1 || records[0].FallbackToDevise {
		t.Fatalf("expected a single overwritten record, got %+v", records)
	}
}

func TestOnlyAndExcept(t *testing.T) {
	f := newFixture()
	c := NewController("ApiController", nil)
	if err := f.registrar.Register(c, "User", Except("health")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := c.Filters("health"); len(got) != 0 {
		t.Fatalf("expected health to be excluded, got %v", got)
	}
	if got := c.Filters("index"); len(got) != 1 {
		t.Fatalf("expected index to be filtered, got %v", got)
	}
}

func TestRegisterRejectsUnsupportedName(t *testing.T) {
	f := newFixture()
	err := f.registrar.Register(NewController("ApiController", nil), "Ünicode")
	if !errors.Is(err, entity.ErrUnsupportedName) {
		t.Fatalf("expected ErrUnsupportedName, got %v", err)
	}
	if err := f.registrar.Register(nil, "User"); err == nil {
		t.Fatalf("expected error for nil controller")
	}
}

type tableUser struct{}

func (tableUser) TableName() string { return "users" }

func TestRegisterSelectsAdapterByModel(t *testing.T) {
	f := newFixture()
	c := NewController("ApiController", nil)

	type User struct{ memory.Document }
	if err := f.registrar.Register(c, "User", WithModel(User{})); err != nil {
		t.Fatalf("register: %v", err)
	}
	err := f.registrar.Register(c, "SuperAdmin", WithModel(tableUser{}))
	if !errors.Is(err, adapter.ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter, got %v", err)
	}
	if f.registrar.RespondsTo(c, "authenticate_super_admin_from_token") {
		t.Fatalf("failed registration must not install methods")
	}
}

func TestRegisterDefaultIsDeprecated(t *testing.T) {
	var buf bytes.Buffer
	f := newFixture(WithLogger(logging.NewLogger(logging.Options{Writer: &buf})))
	c := NewController("ApiController", nil)

	if err := f.registrar.RegisterDefault(c); err != nil {
		t.Fatalf("register default: %v", err)
	}
	if !f.registrar.RespondsTo(c, "authenticate_user_from_token") {
		t.Fatalf("expected User to be registered")
	}
	if !strings.Contains(buf.String(), "deprecated") || !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("expected deprecation warning, got %q", buf.String())
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	f := newFixture()
	c := NewController("ApiController", nil)
	if err := f.registrar.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := newRequestContext(userParams("alice@example.com", "user-token"), nil)
	principal, err := f.registrar.Authenticate(ctx, c, "User", Hard)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.ID != "1" || principal.Type != "User" || principal.Identifier != "alice@example.com" {
		t.Fatalf("unexpected principal %+v", principal)
	}
	if got, ok := tokenauth.PrincipalFor(ctx, "User"); !ok || got != principal {
		t.Fatalf("expected principal stored on context")
	}
	if got, ok := tokenauth.PrincipalFromContext(ctx); !ok || got != principal {
		t.Fatalf("expected request principal stored on context")
	}
}

func TestAuthenticateFromHeadersWithOverrides(t *testing.T) {
	f := newFixture()
	f.settings.Configure(func(cfg *settings.Config) {
		cfg.HeaderNames = entity.HeaderNames{
			"super_admin": {AuthenticationToken: "X-Admin-Auth-Token", IdentifierField: "uuid"},
		}
	})
	c := NewController("AdminController", nil)
	if err := f.registrar.Register(c, "SuperAdmin", FallbackToDevise(false)); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := newRequestContext(nil, map[string]string{
		"X-Admin-Auth-Token": "admin-token",
		"X-SuperAdmin-Uuid":  "u-9",
	})
	principal, err := f.registrar.Authenticate(ctx, c, "SuperAdmin", Hard)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.ID != "9" {
		t.Fatalf("unexpected principal %+v", principal)
	}
}

func TestAuthenticateReadsSettingsAtRequestTime(t *testing.T) {
	f := newFixture()
	c := NewController("AdminController", nil)
	if err := f.registrar.Register(c, "SuperAdmin"); err != nil {
		t.Fatalf("register: %v", err)
	}
	f.settings.Configure(func(cfg *settings.Config) {
		cfg.HeaderNames = entity.HeaderNames{"super_admin": {Email: "uuid"}}
	})

	ctx := newRequestContext(url.Values{"super_admin_uuid": {"u-9"}, "super_admin_token": {"admin-token"}}, nil)
	if principal, err := f.registrar.Authenticate(ctx, c, "SuperAdmin", Hard); err != nil || principal.ID != "9" {
		t.Fatalf("expected lookup by legacy email override, got %v %v", principal, err)
	}
}

func TestAuthenticateDigestToken(t *testing.T) {
	f := newFixture()
	digest, err := token.Digest("secret-token")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	f.store.Put("User", memory.Document{ID: "2", Token: digest, Fields: map[string]string{"email": "bob@example.com"}})

	c := NewController("ApiController", nil)
	if err := f.registrar.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := newRequestContext(userParams("bob@example.com", "secret-token"), nil)
	if principal, err := f.registrar.Authenticate(ctx, c, "User", Hard); err != nil || principal.ID != "2" {
		t.Fatalf("expected digest match, got %v %v", principal, err)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	cases := []struct {
		name    string
		params  url.Values
		outcome string
	}{
		{"missing token", url.Values{"user_email": {"alice@example.com"}}, tokenauth.OutcomeMissing},
		{"missing identifier", url.Values{"user_token": {"user-token"}}, tokenauth.OutcomeMissing},
		{"blank token", userParams("alice@example.com", "  "), tokenauth.OutcomeMissing},
		{"unknown identifier", userParams("nobody@example.com", "user-token"), tokenauth.OutcomeNotFound},
		{"wrong token", userParams("alice@example.com", "guess"), tokenauth.OutcomeMismatch},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var outcomes []string
			hooks := tokenauth.AuthHooks{
				AfterAuthenticate: func(ctx *tokenauth.Context, principalType string, principal *tokenauth.Principal, err error) {
					outcomes = append(outcomes, principalType+":"+tokenauth.AuthOutcome(err))
				},
			}
			f := newFixture(WithAuthHooks(hooks))
			c := NewController("ApiController", nil)
			if err := f.registrar.Register(c, "User"); err != nil {
				t.Fatalf("register: %v", err)
			}

			principal, err := f.registrar.Authenticate(newRequestContext(tc.params, nil), c, "User", Soft)
			if err != nil || principal != nil {
				t.Fatalf("expected soft failure, got %v %v", principal, err)
			}

			ctx := newRequestContext(tc.params, nil)
			_, err = f.registrar.Authenticate(ctx, c, "User", Hard)
			if !apperr.IsUnauthorized(err) {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if _, ok := tokenauth.PrincipalFromContext(ctx); ok {
				t.Fatalf("expected no principal on failure")
			}

			want := []string{"User:" + tc.outcome, "User:" + tc.outcome}
			if !reflect.DeepEqual(outcomes, want) {
				t.Fatalf("expected hook outcomes %v, got %v", want, outcomes)
			}
		})
	}
}

func TestAuthenticateNotRegistered(t *testing.T) {
	f := newFixture()
	c := NewController("ApiController", nil)
	if err := f.registrar.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, err := f.registrar.Authenticate(newRequestContext(nil, nil), c, "SuperAdmin", Soft)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

type failingAdapter struct{}

func (failingAdapter) Name() string                  { return "failing" }
func (failingAdapter) ModelsBaseClass() reflect.Type { return reflect.TypeOf(struct{}{}) }
func (failingAdapter) FindByIdentifier(context.Context, entity.Entity, string) (adapter.Record, error) {
	return nil, errors.New("database unavailable")
}

func TestAuthenticateInternalErrorsPropagate(t *testing.T) {
	registrar := NewRegistrar(WithSettings(settings.New(settings.Config{})), WithAdapters(failingAdapter{}))
	c := NewController("ApiController", nil)
	if err := registrar.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := newRequestContext(userParams("alice@example.com", "user-token"), nil)
	_, err := registrar.Authenticate(ctx, c, "User", Soft)
	appErr := apperr.As(err)
	if appErr == nil || appErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected internal error, got %v", err)
	}

	noAdapters := NewRegistrar(WithSettings(settings.New(settings.Config{})))
	if err := noAdapters.Register(c, "User"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err = noAdapters.Authenticate(ctx, c, "User", Hard)
	if !errors.Is(err, adapter.ErrNoAdapter) {
		t.Fatalf("expected ErrNoAdapter cause, got %v", err)
	}
}

func TestFilterChain(t *testing.T) {
	reached := func(ctx *tokenauth.Context) error {
		ctx.Set("reached", true)
		return nil
	}

	t.Run("soft failure without fallback continues", func(t *testing.T) {
		f := newFixture()
		c := NewController("ApiController", nil)
		c.Action("index", reached)
		if err := f.registrar.Register(c, "User"); err != nil {
			t.Fatalf("register: %v", err)
		}

		ctx := newRequestContext(nil, nil)
		if err := c.Handler("index")(ctx); err != nil {
			t.Fatalf("expected action to run, got %v", err)
		}
		if _, ok := ctx.Get("reached"); !ok {
			t.Fatalf("expected action to be reached")
		}
	})

	t.Run("soft failure runs fallback", func(t *testing.T) {
		session := &tokenauth.Principal{ID: "s-1", Type: "User"}
		calls := 0
		f := newFixture(WithFallback(tokenauth.AuthenticatorFunc(func(*tokenauth.Context) (*tokenauth.Principal, error) {
			calls++
			return session, nil
		})))
		c := NewController("ApiController", nil)
		c.Action("index", reached)
		if err := f.registrar.Register(c, "User"); err != nil {
			t.Fatalf("register: %v", err)
		}

		ctx := newRequestContext(userParams("alice@example.com", "wrong"), nil)
		if err := c.Handler("index")(ctx); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if calls != 1 {
			t.Fatalf("expected fallback to run once, ran %d", calls)
		}
		if got, ok := tokenauth.PrincipalFor(ctx, "User"); !ok || got != session {
			t.Fatalf("expected fallback principal, got %+v", got)
		}
	})

	t.Run("token success skips fallback", func(t *testing.T) {
		f := newFixture(WithFallback(tokenauth.AuthenticatorFunc(func(*tokenauth.Context) (*tokenauth.Principal, error) {
			t.Fatalf("fallback must not run")
			return nil, nil
		})))
		c := NewController("ApiController", nil)
		c.Action("index", reached)
		if err := f.registrar.Register(c, "User"); err != nil {
			t.Fatalf("register: %v", err)
		}
		if err := c.Handler("index")(newRequestContext(userParams("alice@example.com", "user-token"), nil)); err != nil {
			t.Fatalf("handler: %v", err)
		}
	})

	t.Run("fallback rejection halts", func(t *testing.T) {
		f := newFixture()
		c := NewController("AdminController", nil)
		c.Action("index", reached)
		reject := tokenauth.AuthenticatorFunc(func(*tokenauth.Context) (*tokenauth.Principal, error) {
			return nil, apperr.Unauthorized("sign in required", nil)
		})
		if err := f.registrar.Register(c, "SuperAdmin", Fallback(reject)); err != nil {
			t.Fatalf("register: %v", err)
		}

		ctx := newRequestContext(nil, nil)
		if err := c.Handler("index")(ctx); !apperr.IsUnauthorized(err) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
		if _, ok := ctx.Get("reached"); ok {
			t.Fatalf("expected action not to run")
		}
	})

	t.Run("hard failure halts", func(t *testing.T) {
		f := newFixture()
		c := NewController("ApiController", nil)
		c.Action("index", reached)
		if err := f.registrar.Register(c, "User", FallbackToDevise(false)); err != nil {
			t.Fatalf("register: %v", err)
		}

		ctx := newRequestContext(nil, nil)
		if err := c.Handler("index")(ctx); !apperr.IsUnauthorized(err) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
		if _, ok := ctx.Get("reached"); ok {
			t.Fatalf("expected action not to run")
		}
	})
}
