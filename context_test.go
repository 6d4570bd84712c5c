package tokenauth

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/entity"
)

func TestParamPrecedence(t *testing.T) {
	app := newTestApp()
	var got []string
	app.POST("/users/{user_token}", func(ctx *Context) error {
		got = []string{ctx.Param("user_token"), ctx.Param("user_email"), ctx.Param("page")}
		return ctx.NoContent(http.StatusNoContent)
	})

	form := url.Values{"user_token": {"from-form"}, "user_email": {"form@example.com"}}
	req := httptest.NewRequest(http.MethodPost, "/users/from-route?user_email=query@example.com&page=2", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	app.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"from-route", "form@example.com", "2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("param %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestContextSatisfiesEntityRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?super_user_token=", nil)
	req.Header.Set("X-SuperUser-Token", "HeAd3rs_ToKeN")
	ctx := NewContext(httptest.NewRecorder(), req, nil)

	ent := entity.MustResolve("SuperUser", nil)
	tok, ok := ent.Token(ctx)
	if !ok || tok != "HeAd3rs_ToKeN" {
		t.Fatalf("expected header token, got %q %v", tok, ok)
	}
}

func TestContextValues(t *testing.T) {
	ctx := NewContext(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), nil)
	if _, ok := ctx.Get("missing"); ok {
		t.Fatalf("expected missing value")
	}
	ctx.Set("key", 42)
	if value, ok := ctx.Get("key"); !ok || value.(int) != 42 {
		t.Fatalf("expected stored value, got %v", value)
	}
	ctx.Logger().Info("logging without an app must not panic")
}

func TestBindJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"name":"alice"}`, 0},
		{"unknown field", `{"name":"alice","admin":true}`, http.StatusBadRequest},
		{"trailing data", `{"name":"alice"}{}`, http.StatusBadRequest},
		{"malformed", `{`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			ctx := NewContext(httptest.NewRecorder(), req, nil)

			var dst payload
			err := ctx.BindJSON(&dst)
			if tc.status == 0 {
				if err != nil || dst.Name != "alice" {
					t.Fatalf("expected bind, got %v %+v", err, dst)
				}
				return
			}
			if appErr := apperr.As(err); appErr == nil || appErr.Status != tc.status {
				t.Fatalf("expected status %d, got %v", tc.status, err)
			}
		})
	}
}
