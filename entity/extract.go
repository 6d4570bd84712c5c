package entity

import (
	"net/http"
	"strings"
)

// Request exposes the parameter and header lookups credentials are read from.
// Implementations must not mutate the underlying request.
type Request interface {
	Param(key string) string
	Header(key string) string
}

// Token returns the credential token. Params take precedence over headers and
// a blank value counts as absent.
func (e Entity) Token(r Request) (string, bool) {
	return fromParamsOrHeaders(r, e.TokenParamName, e.TokenHeaderName)
}

// Identifier returns the identifier value with the same precedence as Token.
func (e Entity) Identifier(r Request) (string, bool) {
	return fromParamsOrHeaders(r, e.IdentifierParamName, e.IdentifierHeaderName)
}

func fromParamsOrHeaders(r Request, param, header string) (string, bool) {
	if r == nil {
		return "", false
	}
	if value := r.Param(param); !blank(value) {
		return value, true
	}
	if value := r.Header(header); !blank(value) {
		return value, true
	}
	return "", false
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// HTTPRequest reads params from the query string and, when the form has
// already been parsed, from the request body.
type HTTPRequest struct {
	Request *http.Request
}

// FromHTTP wraps an *http.Request.
func FromHTTP(r *http.Request) HTTPRequest {
	return HTTPRequest{Request: r}
}

// Param returns the first value for key.
func (h HTTPRequest) Param(key string) string {
	if h.Request == nil {
		return ""
	}
	if h.Request.PostForm != nil {
		if value := h.Request.PostForm.Get(key); value != "" {
			return value
		}
	}
	if h.Request.URL == nil {
		return ""
	}
	return h.Request.URL.Query().Get(key)
}

// Header returns the header value for key.
func (h HTTPRequest) Header(key string) string {
	if h.Request == nil {
		return ""
	}
	return h.Request.Header.Get(key)
}

// Values is a map-backed Request, convenient for non-HTTP callers and tests.
type Values struct {
	Params  map[string]string
	Headers map[string]string
}

// Param returns the param for key.
func (v Values) Param(key string) string {
	return v.Params[key]
}

// Header returns the header for key, matched exactly as given.
func (v Values) Header(key string) string {
	return v.Headers[key]
}
