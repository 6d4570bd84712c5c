package middleware

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/apperr"
)

// RequestID ensures a request id header is present.
func RequestID() tokenauth.Middleware {
	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			requestID := ctx.RequestID()
			if requestID == "" {
				requestID = tokenauth.NewRequestID()
				if requestID != "" {
					ctx.Request.Header.Set(tokenauth.RequestIDHeader, requestID)
				}
			}
			if requestID != "" {
				ctx.ResponseWriter.Header().Set(tokenauth.RequestIDHeader, requestID)
			}
			return next(ctx)
		}
	}
}

// Recover converts panics into internal errors.
func Recover() tokenauth.Middleware {
	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = apperr.Internal("panic", fmt.Errorf("%v", rec))
				}
			}()
			return next(ctx)
		}
	}
}

// LoggerOptions configures access logging.
type LoggerOptions struct {
	Fields    []LogField
	Message   string
	SkipPaths []string
	// ErrorLevel logs failed requests at error level instead of info.
	ErrorLevel bool
}

// DefaultLoggerOptions returns default logging options.
func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		Fields:  DefaultLogFields(),
		Message: "request completed",
	}
}

// Logger logs request/response details.
func Logger() tokenauth.Middleware {
	return LoggerWithOptions(DefaultLoggerOptions())
}

// LoggerWithOptions logs requests using the provided options.
func LoggerWithOptions(options LoggerOptions) tokenauth.Middleware {
	if len(options.Fields) == 0 {
		options.Fields = DefaultLogFields()
	}
	if options.Message == "" {
		options.Message = "request completed"
	}

	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			if shouldSkipPath(ctx.Request.URL.Path, options.SkipPaths) {
				return next(ctx)
			}

			start := time.Now()
			recorder := newResponseRecorder(ctx.ResponseWriter)
			ctx.ResponseWriter = recorder

			err := next(ctx)

			status := statusOf(recorder, err)
			if recorder.status == 0 {
				recorder.status = status
			}

			duration := time.Since(start)
			attrs := make([]slog.Attr, 0, len(options.Fields))
			for _, field := range options.Fields {
				attrs = append(attrs, field(ctx, recorder, duration))
			}

			if options.ErrorLevel && (err != nil || status >= http.StatusInternalServerError) {
				ctx.Logger().Error(options.Message, attrs...)
				return err
			}
			ctx.Logger().Info(options.Message, attrs...)
			return err
		}
	}
}

func statusOf(recorder *responseRecorder, err error) int {
	status := recorder.Status()
	if err != nil {
		if appErr := apperr.As(err); appErr != nil {
			return appErr.Status
		}
		if recorder.status == 0 {
			return http.StatusInternalServerError
		}
	}
	return status
}

func shouldSkipPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}

// responseRecorder captures status and response size.
type responseRecorder struct {
	writer http.ResponseWriter
	status int
	bytes  int
}

func newResponseRecorder(w http.ResponseWriter) *responseRecorder {
	if existing, ok := w.(*responseRecorder); ok {
		return existing
	}
	return &responseRecorder{writer: w}
}

func (r *responseRecorder) Header() http.Header {
	return r.writer.Header()
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.writer.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.writer.Write(p)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *responseRecorder) Bytes() int {
	return r.bytes
}

func (r *responseRecorder) Flush() {
	if flusher, ok := r.writer.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.writer.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	return hijacker.Hijack()
}

func (r *responseRecorder) Unwrap() http.ResponseWriter {
	return r.writer
}
