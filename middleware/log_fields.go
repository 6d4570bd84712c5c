package middleware

import (
	"log/slog"
	"time"

	"github.com/devmarvs/tokenauth"
)

// LogField builds a structured log attribute.
type LogField func(*tokenauth.Context, *responseRecorder, time.Duration) slog.Attr

// DefaultLogFields returns the standard access log fields.
func DefaultLogFields() []LogField {
	return []LogField{
		LogMethod(),
		LogPath(),
		LogStatus(),
		LogDuration(),
		LogBytes(),
		LogPrincipal(),
	}
}

// LogMethod logs the HTTP method.
func LogMethod() LogField {
	return func(ctx *tokenauth.Context, _ *responseRecorder, _ time.Duration) slog.Attr {
		return slog.String("method", ctx.Request.Method)
	}
}

// LogPath logs the request path. The query string is left out since it may
// carry credentials.
func LogPath() LogField {
	return func(ctx *tokenauth.Context, _ *responseRecorder, _ time.Duration) slog.Attr {
		return slog.String("path", ctx.Request.URL.Path)
	}
}

// LogStatus logs the response status.
func LogStatus() LogField {
	return func(_ *tokenauth.Context, recorder *responseRecorder, _ time.Duration) slog.Attr {
		return slog.Int("status", recorder.Status())
	}
}

// LogDuration logs request latency.
func LogDuration() LogField {
	return func(_ *tokenauth.Context, _ *responseRecorder, duration time.Duration) slog.Attr {
		return slog.Duration("duration", duration)
	}
}

// LogBytes logs response size in bytes.
func LogBytes() LogField {
	return func(_ *tokenauth.Context, recorder *responseRecorder, _ time.Duration) slog.Attr {
		return slog.Int("bytes", recorder.Bytes())
	}
}

// LogPrincipal logs the authenticated principal's type and id.
func LogPrincipal() LogField {
	return func(ctx *tokenauth.Context, _ *responseRecorder, _ time.Duration) slog.Attr {
		principal, ok := tokenauth.PrincipalFromContext(ctx)
		if !ok {
			return slog.Group("principal")
		}
		return slog.Group("principal",
			slog.String("type", principal.Type),
			slog.String("id", principal.ID),
		)
	}
}
