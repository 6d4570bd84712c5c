package tokenauth

import (
	"errors"

	"github.com/devmarvs/tokenauth/entity"
)

var (
	// ErrCredentialsMissing indicates the token or identifier was absent from the request.
	ErrCredentialsMissing = errors.New("token credentials missing")
	// ErrPrincipalNotFound indicates no principal matched the identifier.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrTokenMismatch indicates the token did not match the stored one.
	ErrTokenMismatch = errors.New("token mismatch")
)

// Outcome labels for authentication attempts.
const (
	OutcomeAuthenticated = "authenticated"
	OutcomeMissing       = "missing"
	OutcomeNotFound      = "not_found"
	OutcomeMismatch      = "mismatch"
	OutcomeError         = "error"
)

// AuthOutcome maps the error of an authentication attempt to an outcome label.
func AuthOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeAuthenticated
	case errors.Is(err, ErrCredentialsMissing):
		return OutcomeMissing
	case errors.Is(err, ErrPrincipalNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrTokenMismatch):
		return OutcomeMismatch
	default:
		return OutcomeError
	}
}

// Principal represents an authenticated actor.
type Principal struct {
	ID         string
	Type       string
	Identifier string
}

// Authenticator validates a request and returns a principal.
type Authenticator interface {
	Authenticate(*Context) (*Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(*Context) (*Principal, error)

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx *Context) (*Principal, error) {
	return f(ctx)
}

const principalKey = "tokenauth.principal"

// PrincipalFromContext extracts the principal from context storage.
func PrincipalFromContext(ctx *Context) (*Principal, bool) {
	return principalAt(ctx, principalKey)
}

// PrincipalFor returns the current principal of the given type.
func PrincipalFor(ctx *Context, principalType string) (*Principal, bool) {
	return principalAt(ctx, typedPrincipalKey(principalType))
}

// SetPrincipal stores the principal in context storage, both as the request
// principal and as the current principal of its type.
func SetPrincipal(ctx *Context, principal *Principal) {
	ctx.Set(principalKey, principal)
	if principal != nil && principal.Type != "" {
		ctx.Set(typedPrincipalKey(principal.Type), principal)
	}
}

func principalAt(ctx *Context, key string) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	value, ok := ctx.Get(key)
	if !ok {
		return nil, false
	}
	principal, ok := value.(*Principal)
	return principal, ok && principal != nil
}

func typedPrincipalKey(principalType string) string {
	return principalKey + "." + entity.Underscore(principalType)
}
