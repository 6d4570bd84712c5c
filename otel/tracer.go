// Package otel traces requests and token authentication attempts with
// OpenTelemetry.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/devmarvs/tokenauth"
)

const spanKeyPrefix = "tokenauth.otel.span."

// Tracer adapts OpenTelemetry tracing to middleware.Trace and to auth hooks.
type Tracer struct {
	tracer trace.Tracer
}

// Option configures a Tracer.
type Option func(*options)

type options struct {
	provider trace.TracerProvider
}

// WithTracerProvider uses provider instead of the global one.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// NewTracer creates a tracer adapter.
func NewTracer(name string, opts ...Option) *Tracer {
	if name == "" {
		name = "tokenauth"
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.provider == nil {
		o.provider = otel.GetTracerProvider()
	}
	return &Tracer{tracer: o.provider.Tracer(name)}
}

// Start starts a span for the request.
func (t *Tracer) Start(ctx *tokenauth.Context) (context.Context, func(status int, err error)) {
	if t == nil || ctx == nil || ctx.Request == nil {
		return context.Background(), nil
	}

	req := ctx.Request
	spanCtx, span := t.tracer.Start(req.Context(), req.Method+" "+req.URL.Path, trace.WithSpanKind(trace.SpanKindServer))

	attrs := []attribute.KeyValue{
		attribute.String("http.method", req.Method),
		attribute.String("http.target", req.URL.Path),
	}
	if req.Host != "" {
		attrs = append(attrs, attribute.String("http.host", req.Host))
	}
	if req.UserAgent() != "" {
		attrs = append(attrs, attribute.String("http.user_agent", req.UserAgent()))
	}
	span.SetAttributes(attrs...)

	return spanCtx, func(status int, err error) {
		span.SetAttributes(attribute.Int("http.status_code", status))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// Hooks returns auth hooks wrapping every authentication attempt in a span.
// The token itself is never recorded.
func (t *Tracer) Hooks() tokenauth.AuthHooks {
	return tokenauth.AuthHooks{
		BeforeAuthenticate: func(ctx *tokenauth.Context, principalType string) {
			if t == nil || ctx == nil || ctx.Request == nil {
				return
			}
			_, span := t.tracer.Start(ctx.Request.Context(), "tokenauth.authenticate",
				trace.WithAttributes(attribute.String("tokenauth.principal_type", principalType)),
			)
			ctx.Set(spanKeyPrefix+principalType, span)
		},
		AfterAuthenticate: func(ctx *tokenauth.Context, principalType string, principal *tokenauth.Principal, err error) {
			if ctx == nil {
				return
			}
			value, ok := ctx.Get(spanKeyPrefix + principalType)
			if !ok {
				return
			}
			span, ok := value.(trace.Span)
			if !ok {
				return
			}

			outcome := tokenauth.AuthOutcome(err)
			span.SetAttributes(attribute.String("tokenauth.outcome", outcome))
			if principal != nil {
				span.SetAttributes(attribute.String("tokenauth.principal_id", principal.ID))
			}
			if outcome == tokenauth.OutcomeError {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()
		},
	}
}
