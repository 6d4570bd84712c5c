package tokenauth

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/devmarvs/tokenauth/apperr"
	"github.com/devmarvs/tokenauth/logging"
)

// Context holds request-specific data.
//
// It satisfies entity.Request: Param merges route params, the parsed request
// body and the query string, and Header reads request headers.
type Context struct {
	ResponseWriter http.ResponseWriter
	Request        *http.Request

	app    *App
	values map[string]any
}

// NewContext constructs a Context. app may be nil outside of an App.
func NewContext(w http.ResponseWriter, r *http.Request, app *App) *Context {
	return &Context{
		ResponseWriter: w,
		Request:        r,
		app:            app,
		values:         make(map[string]any),
	}
}

// URLParam returns a route param.
func (c *Context) URLParam(name string) string {
	if rctx := chi.RouteContext(c.Request.Context()); rctx != nil {
		return rctx.URLParam(name)
	}
	return ""
}

// Query returns a query param.
func (c *Context) Query(name string) string {
	return c.Request.URL.Query().Get(name)
}

// Param returns a request param from the route, the form body or the query
// string, in that order.
func (c *Context) Param(name string) string {
	if value := c.URLParam(name); value != "" {
		return value
	}
	if c.Request.PostForm == nil && isForm(c.Request) {
		_ = c.Request.ParseForm()
	}
	if c.Request.PostForm != nil {
		if value := c.Request.PostForm.Get(name); value != "" {
			return value
		}
	}
	return c.Query(name)
}

// Header returns a request header.
func (c *Context) Header(name string) string {
	return c.Request.Header.Get(name)
}

// Set stores a value in the context.
func (c *Context) Set(key string, value any) {
	c.values[key] = value
}

// Get retrieves a stored value.
func (c *Context) Get(key string) (any, bool) {
	value, ok := c.values[key]
	return value, ok
}

// Logger returns the app logger scoped to the request.
func (c *Context) Logger() Logger {
	base := logging.Discard()
	if c.app != nil && c.app.logger != nil {
		base = c.app.logger
	}
	return Logger{logger: base, requestID: RequestIDFromHeader(c.Request)}
}

// JSON responds with JSON.
func (c *Context) JSON(status int, payload any) error {
	c.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.ResponseWriter.WriteHeader(status)
	return json.NewEncoder(c.ResponseWriter).Encode(payload)
}

// Text responds with plain text.
func (c *Context) Text(status int, message string) error {
	c.ResponseWriter.Header().Set("Content-Type", "text/plain; charset=utf-8")
	c.ResponseWriter.WriteHeader(status)
	_, err := io.WriteString(c.ResponseWriter, message)
	return err
}

// NoContent responds with a status and no body.
func (c *Context) NoContent(status int) error {
	c.ResponseWriter.WriteHeader(status)
	return nil
}

// BindJSON binds the request body to a struct.
func (c *Context) BindJSON(dst any) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperr.New("payload_too_large", http.StatusRequestEntityTooLarge, "request body too large", err)
		}
		return apperr.BadRequest("invalid JSON", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return apperr.BadRequest("unexpected JSON payload", err)
	}
	return nil
}

// RequestID returns the request id header.
func (c *Context) RequestID() string {
	return RequestIDFromHeader(c.Request)
}

func isForm(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	contentType := strings.ToLower(r.Header.Get("Content-Type"))
	return strings.HasPrefix(contentType, "application/x-www-form-urlencoded")
}

// Logger wraps slog.Logger with request context.
type Logger struct {
	logger    *slog.Logger
	requestID string
}

// Info logs an info message.
func (l Logger) Info(msg string, attrs ...slog.Attr) {
	l.logger.Info(msg, l.appendRequestID(attrs)...)
}

// Warn logs a warning message.
func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	l.logger.Warn(msg, l.appendRequestID(attrs)...)
}

// Error logs an error message.
func (l Logger) Error(msg string, attrs ...slog.Attr) {
	l.logger.Error(msg, l.appendRequestID(attrs)...)
}

// Debug logs a debug message.
func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.logger.Debug(msg, l.appendRequestID(attrs)...)
}

func (l Logger) appendRequestID(attrs []slog.Attr) []any {
	out := make([]any, 0, len(attrs)+1)
	for _, attr := range attrs {
		out = append(out, attr)
	}
	if l.requestID != "" {
		out = append(out, slog.String("request_id", l.requestID))
	}
	return out
}
