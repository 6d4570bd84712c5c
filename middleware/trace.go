package middleware

import (
	"context"

	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/metrics"
)

// Tracer starts spans for incoming requests.
type Tracer interface {
	Start(*tokenauth.Context) (context.Context, func(status int, err error))
}

// TraceOptions configures tracing middleware.
type TraceOptions struct {
	Tracer    Tracer
	SkipPaths []string
}

// DefaultTraceOptions returns default tracing options.
func DefaultTraceOptions(tracer Tracer) TraceOptions {
	return TraceOptions{
		Tracer:    tracer,
		SkipPaths: []string{"/metrics", "/health"},
	}
}

// Trace records request spans using the provided tracer.
func Trace(tracer Tracer) tokenauth.Middleware {
	return TraceWithOptions(TraceOptions{Tracer: tracer})
}

// TraceWithOptions records request spans with options.
func TraceWithOptions(options TraceOptions) tokenauth.Middleware {
	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			if options.Tracer == nil || shouldSkipPath(ctx.Request.URL.Path, options.SkipPaths) {
				return next(ctx)
			}

			recorder := newResponseRecorder(ctx.ResponseWriter)
			ctx.ResponseWriter = recorder

			traceCtx, finish := options.Tracer.Start(ctx)
			if traceCtx != nil {
				ctx.Request = ctx.Request.WithContext(traceCtx)
			}

			err := next(ctx)
			if finish != nil {
				finish(statusOf(recorder, err), err)
			}
			return err
		}
	}
}

// Metrics records request counts and latency on the collector.
func Metrics(collector *metrics.Collector) tokenauth.Middleware {
	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			if collector == nil {
				return next(ctx)
			}

			start := collector.Start()
			recorder := newResponseRecorder(ctx.ResponseWriter)
			ctx.ResponseWriter = recorder

			err := next(ctx)
			collector.End(start, ctx.Request.Method, statusOf(recorder, err))
			return err
		}
	}
}
