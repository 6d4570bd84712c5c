package middleware

import (
	"github.com/devmarvs/tokenauth"
	"github.com/devmarvs/tokenauth/apperr"
)

type authConfig struct {
	unauthorizedMessage string
}

// AuthOption customizes auth middleware behavior.
type AuthOption func(*authConfig)

// AuthUnauthorizedMessage sets the unauthorized message.
func AuthUnauthorizedMessage(message string) AuthOption {
	return func(cfg *authConfig) {
		cfg.unauthorizedMessage = message
	}
}

// RequireAuth authenticates the request with auth and stores the principal.
func RequireAuth(auth tokenauth.Authenticator, options ...AuthOption) tokenauth.Middleware {
	cfg := newAuthConfig(options)

	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			if auth == nil {
				return apperr.Internal("authenticator not configured", nil)
			}

			principal, err := auth.Authenticate(ctx)
			if err != nil || principal == nil {
				return apperr.Unauthorized(cfg.unauthorizedMessage, err)
			}

			tokenauth.SetPrincipal(ctx, principal)
			return next(ctx)
		}
	}
}

// RequirePrincipal rejects requests with no authenticated principal of one
// of the given types. With no types, any principal is accepted.
func RequirePrincipal(principalTypes []string, options ...AuthOption) tokenauth.Middleware {
	cfg := newAuthConfig(options)

	return func(next tokenauth.Handler) tokenauth.Handler {
		return func(ctx *tokenauth.Context) error {
			if len(principalTypes) == 0 {
				if _, ok := tokenauth.PrincipalFromContext(ctx); ok {
					return next(ctx)
				}
				return apperr.Unauthorized(cfg.unauthorizedMessage, tokenauth.ErrCredentialsMissing)
			}

			for _, principalType := range principalTypes {
				if _, ok := tokenauth.PrincipalFor(ctx, principalType); ok {
					return next(ctx)
				}
			}
			return apperr.Unauthorized(cfg.unauthorizedMessage, tokenauth.ErrCredentialsMissing)
		}
	}
}

func newAuthConfig(options []AuthOption) authConfig {
	cfg := authConfig{unauthorizedMessage: "unauthorized"}
	for _, opt := range options {
		opt(&cfg)
	}
	return cfg
}
