package tokenauth

// AuthHooks provides hook points around each token authentication attempt.
type AuthHooks struct {
	BeforeAuthenticate func(ctx *Context, principalType string)
	AfterAuthenticate  func(ctx *Context, principalType string, principal *Principal, err error)
}

// ChainAuthHooks runs every hook in order.
func ChainAuthHooks(hooks ...AuthHooks) AuthHooks {
	return AuthHooks{
		BeforeAuthenticate: func(ctx *Context, principalType string) {
			for _, h := range hooks {
				h.Before(ctx, principalType)
			}
		},
		AfterAuthenticate: func(ctx *Context, principalType string, principal *Principal, err error) {
			for _, h := range hooks {
				h.After(ctx, principalType, principal, err)
			}
		},
	}
}

// Before calls BeforeAuthenticate if set.
func (h AuthHooks) Before(ctx *Context, principalType string) {
	if h.BeforeAuthenticate != nil {
		h.BeforeAuthenticate(ctx, principalType)
	}
}

// After calls AfterAuthenticate if set.
func (h AuthHooks) After(ctx *Context, principalType string, principal *Principal, err error) {
	if h.AfterAuthenticate != nil {
		h.AfterAuthenticate(ctx, principalType, principal, err)
	}
}
