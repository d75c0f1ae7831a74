package engine

import (
	"context"

	"github.com/garnizeh/jobsync/pkg/gateway"
	"github.com/garnizeh/jobsync/pkg/models"
)

// Signup creates an account and signs in.
func (e *Engine) Signup(ctx context.Context, email, password string) (models.AuthResponse, error) {
	return e.client.Signup(ctx, email, password)
}

// Login signs in. Any cached state from a previous user is left as is; use a
// fresh engine per user.
func (e *Engine) Login(ctx context.Context, email, password string) (models.AuthResponse, error) {
	return e.client.Login(ctx, email, password)
}

func (e *Engine) Logout(ctx context.Context) error {
	return e.client.Logout(ctx)
}

func (e *Engine) Me(ctx context.Context) (models.Profile, error) {
	return e.client.Me(ctx)
}

// Session returns the current access and refresh tokens.
func (e *Engine) Session() (token, refreshToken string) {
	return e.client.Token(), e.client.RefreshToken()
}

// SessionClaims decodes the current access token. It returns
// gateway.ErrNotSignedIn when there is no session.
func (e *Engine) SessionClaims() (gateway.Claims, error) {
	return e.client.TokenClaims()
}

// OnSession registers fn to run whenever the session changes, including
// silent refreshes.
func (e *Engine) OnSession(fn func(token, refreshToken string)) {
	e.client.OnSession(fn)
}
