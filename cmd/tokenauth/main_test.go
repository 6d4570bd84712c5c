package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/devmarvs/tokenauth/config"
	"github.com/devmarvs/tokenauth/entity"
	"github.com/devmarvs/tokenauth/logging"
	"github.com/devmarvs/tokenauth/settings"
	"github.com/devmarvs/tokenauth/testutil"
	"github.com/devmarvs/tokenauth/token"
)

const testSessionKey = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--env-prefix", "TOKENAUTH_CLI_TEST_"))
	err := cmd.Execute()
	return out.String(), err
}

func TestResolveGolden(t *testing.T) {
	out, err := execute(t, "", "resolve", "SuperAdmin", "--config", "testdata/config.json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	testutil.AssertGolden(t, "testdata/resolve_super_admin.golden", []byte(out))
}

func TestResolveManyAndInvalid(t *testing.T) {
	out, err := execute(t, "", "resolve", "User", "super_user")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.Contains(out, `"token_header_name": "X-User-Token"`) || !strings.Contains(out, `"identifier_header_name": "X-SuperUser-Email"`) {
		t.Fatalf("unexpected output:\n%s", out)
	}

	if _, err := execute(t, "", "resolve", "Ünicode"); err == nil {
		t.Fatalf("expected unsupported name error")
	}
	if _, err := execute(t, "", "resolve"); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestConfigValidation(t *testing.T) {
	_, err := execute(t, "", "resolve", "User", "--config", "testdata/config.json", "--secrets", "testdata/short_key.json")
	if err == nil || !strings.Contains(err.Error(), "session.key") {
		t.Fatalf("expected session key validation error, got %v", err)
	}
	if _, err := execute(t, "", "resolve", "User", "--config", "testdata/missing.json"); err == nil {
		t.Fatalf("expected missing config error")
	}
}

func TestTokenGenerate(t *testing.T) {
	out, err := execute(t, "", "token", "generate", "-n", "3")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	lines := strings.Fields(out)
	if len(lines) != 3 {
		t.Fatalf("expected 3 tokens, got %q", out)
	}
	for _, line := range lines {
		if len(line) != token.FriendlyLength {
			t.Fatalf("unexpected token %q", line)
		}
	}

	out, err = execute(t, "", "token", "generate", "--digest")
	if err != nil {
		t.Fatalf("generate digest: %v", err)
	}
	parts := strings.Split(strings.TrimSpace(out), "\t")
	if len(parts) != 2 || !token.Compare(parts[1], parts[0]) {
		t.Fatalf("expected token and matching digest, got %q", out)
	}

	if _, err := execute(t, "", "token", "generate", "-n", "0"); err == nil {
		t.Fatalf("expected count error")
	}
}

func TestTokenDigest(t *testing.T) {
	out, err := execute(t, "", "token", "digest", "s3cret")
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !token.Compare(strings.TrimSpace(out), "s3cret") {
		t.Fatalf("digest does not match, got %q", out)
	}

	out, err = execute(t, "from-stdin\n", "token", "digest")
	if err != nil {
		t.Fatalf("digest stdin: %v", err)
	}
	if !token.Compare(strings.TrimSpace(out), "from-stdin") {
		t.Fatalf("stdin digest does not match, got %q", out)
	}

	if _, err := execute(t, "", "token", "digest"); err == nil {
		t.Fatalf("expected empty token error")
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *server {
	t.Helper()
	cfg := config.Default()
	cfg.Session.Key = testSessionKey
	cfg.MetricsEnabled = true
	if mutate != nil {
		mutate(&cfg)
	}

	seed, err := os.Open("testdata/seed.json")
	if err != nil {
		t.Fatalf("open seed: %v", err)
	}
	defer seed.Close()

	srv, err := buildServer(cfg, logging.Discard(), seed)
	if err != nil {
		t.Fatalf("build server: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func TestServeAPIProfile(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.MustStatus(t, rec, http.StatusOK)
	rec = testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/ready", nil))
	testutil.MustStatus(t, rec, http.StatusOK)

	rec = testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/api/profile", nil))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)
	testutil.MustHeader(t, rec, "WWW-Authenticate", `Token realm="Application"`)

	params := url.Values{"user_email": {"alice@example.com"}, "user_token": {"user-token"}}
	rec = testutil.Do(t, srv.app, testutil.TokenRequest("/api/profile", params, nil))
	testutil.MustStatus(t, rec, http.StatusOK)
	var body map[string]string
	testutil.DecodeJSON(t, rec, &body)
	if body["id"] != "1" || body["type"] != "User" || body["identifier"] != "alice@example.com" {
		t.Fatalf("unexpected profile %v", body)
	}

	headers := map[string]string{"X-User-Email": "alice@example.com", "X-User-Token": "wrong"}
	rec = testutil.Do(t, srv.app, testutil.TokenRequest("/api/profile", nil, headers))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)

	rec = testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.MustStatus(t, rec, http.StatusOK)
	for _, want := range []string{
		`tokenauth_auth_attempts_total{outcome="authenticated",principal_type="User"} 1`,
		`tokenauth_auth_attempts_total{outcome="mismatch",principal_type="User"} 1`,
		`tokenauth_auth_attempts_total{outcome="missing",principal_type="User"} 1`,
	} {
		if !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("expected %q in metrics:\n%s", want, rec.Body.String())
		}
	}
}

func TestServeAdminSession(t *testing.T) {
	srv := newTestServer(t, nil)

	rec := testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)

	rec = testutil.Do(t, srv.app, httptest.NewRequest(http.MethodPost, "/admin/session", nil))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)

	headers := map[string]string{"X-SuperAdmin-Email": "root@example.com", "X-SuperAdmin-Token": "admin-token"}
	req := testutil.TokenRequest("/admin/session", nil, headers)
	req.Method = http.MethodPost
	rec = testutil.Do(t, srv.app, req)
	testutil.MustStatus(t, rec, http.StatusCreated)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected session cookie, got %v", cookies)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = testutil.Do(t, srv.app, req)
	testutil.MustStatus(t, rec, http.StatusOK)
	var body map[string]string
	testutil.DecodeJSON(t, rec, &body)
	if body["id"] != "9" || body["type"] != "SuperAdmin" {
		t.Fatalf("unexpected dashboard %v", body)
	}

	req = httptest.NewRequest(http.MethodDelete, "/admin/session", nil)
	req.AddCookie(cookies[0])
	rec = testutil.Do(t, srv.app, req)
	testutil.MustStatus(t, rec, http.StatusNoContent)
	expired := rec.Result().Cookies()
	if len(expired) != 1 || expired[0].MaxAge >= 0 {
		t.Fatalf("expected expired cookie, got %v", expired)
	}

	// The token still works without a session.
	rec = testutil.Do(t, srv.app, testutil.TokenRequest("/admin/dashboard", nil, headers))
	testutil.MustStatus(t, rec, http.StatusOK)
}

func TestServeHeaderOverrides(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.HeaderNames = entity.HeaderNames{"User": {AuthenticationToken: "X-Api-Key"}}
	})

	headers := map[string]string{"X-User-Email": "alice@example.com", "X-Api-Key": "user-token"}
	rec := testutil.Do(t, srv.app, testutil.TokenRequest("/api/profile", nil, headers))
	testutil.MustStatus(t, rec, http.StatusOK)

	headers = map[string]string{"X-User-Email": "alice@example.com", "X-User-Token": "user-token"}
	rec = testutil.Do(t, srv.app, testutil.TokenRequest("/api/profile", nil, headers))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)

	srv.settings.Configure(func(cfg *settings.Config) {
		cfg.HeaderNames = entity.HeaderNames{}
	})
	rec = testutil.Do(t, srv.app, testutil.TokenRequest("/api/profile", nil, headers))
	testutil.MustStatus(t, rec, http.StatusOK)
}

func TestServeWithoutSessions(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) {
		cfg.Session.Key = ""
		cfg.MetricsEnabled = false
	})

	rec := testutil.Do(t, srv.app, httptest.NewRequest(http.MethodPost, "/admin/session", nil))
	testutil.MustStatus(t, rec, http.StatusUnauthorized)

	headers := map[string]string{"X-SuperAdmin-Email": "root@example.com", "X-SuperAdmin-Token": "admin-token"}
	req := testutil.TokenRequest("/admin/session", nil, headers)
	req.Method = http.MethodPost
	rec = testutil.Do(t, srv.app, req)
	testutil.MustStatus(t, rec, http.StatusNotFound)

	rec = testutil.Do(t, srv.app, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.MustStatus(t, rec, http.StatusNotFound)
}

func TestBuildServerRejectsBadSeed(t *testing.T) {
	_, err := buildServer(config.Default(), logging.Discard(), strings.NewReader(`{"User": [{"name": "x"}]}`))
	if err == nil {
		t.Fatalf("expected seed decode error")
	}
}
