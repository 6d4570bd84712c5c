// Package testutil holds HTTP and filter-chain helpers for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/logging"
)

// Do executes a request against a handler.
func Do(t *testing.T, handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// MustStatus asserts the response status code.
func MustStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
}

// MustHeader asserts a response header value.
func MustHeader(t *testing.T, rec *httptest.ResponseRecorder, key, value string) {
	t.Helper()
	if got := rec.Header().Get(key); got != value {
		t.Fatalf("expected header %s=%q, got %q", key, value, got)
	}
}

// DecodeJSON decodes a JSON response into dst.
func DecodeJSON(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode json: %v", err)
	}
}

// TokenRequest builds a GET request carrying credentials as query params
// and headers.
func TokenRequest(target string, params url.Values, headers map[string]string) *http.Request {
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

// NewContext builds a request context outside of an App. A nil req becomes
// GET /.
func NewContext(t *testing.T, req *http.Request) (*tokenauth.Context, *httptest.ResponseRecorder) {
	t.Helper()
	if req == nil {
		req = httptest.NewRequest(http.MethodGet, "/", nil)
	}
	rec := httptest.NewRecorder()
	app := tokenauth.New(tokenauth.WithLogger(logging.Discard()))
	return tokenauth.NewContext(rec, req, app), rec
}

// FilterRunner runs a before-action chain.
type FilterRunner interface {
	RunFilters(ctx *tokenauth.Context, action string) error
}

// RunFilters runs the before-action chain of runner for action against req.
func RunFilters(t *testing.T, runner FilterRunner, action string, req *http.Request) (*tokenauth.Context, error) {
	t.Helper()
	ctx, _ := NewContext(t, req)
	return ctx, runner.RunFilters(ctx, action)
}

// RunMiddleware executes middleware with a handler and request.
func RunMiddleware(t *testing.T, middleware []tokenauth.Middleware, handler tokenauth.Handler, req *http.Request) (*httptest.ResponseRecorder, error) {
	t.Helper()
	ctx, rec := NewContext(t, req)

	h := handler
	if h == nil {
		h = func(*tokenauth.Context) error { return nil }
	}
	for i := len(middleware) - 1; i >= 0; i-- {
		h = middleware[i](h)
	}
	return rec, h(ctx)
}
