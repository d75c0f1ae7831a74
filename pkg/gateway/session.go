package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/jobsync/pkg/models"
)

// ErrNotSignedIn is returned by calls that need a session when none is set.
var ErrNotSignedIn = errors.New("not signed in")

// refreshSkew is how close to expiry an access token is refreshed before use.
const refreshSkew = 30 * time.Second

// SetSession installs the tokens used for authenticated calls.
func (c *Client) SetSession(token, refreshToken string) {
	c.sessMu.Lock()
	c.token, c.refresh = token, refreshToken
	fn := c.onSession
	c.sessMu.Unlock()
	if fn != nil {
		fn(token, refreshToken)
	}
}

// OnSession registers fn to be called whenever the tokens change, including
// after an automatic refresh and after logout (with empty tokens).
func (c *Client) OnSession(fn func(token, refreshToken string)) {
	c.sessMu.Lock()
	c.onSession = fn
	c.sessMu.Unlock()
}

func (c *Client) Token() string {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.token
}

func (c *Client) RefreshToken() string {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.refresh
}

// Claims is what the client reads from an access token. The signature is not
// checked here; the server verifies it on every request.
type Claims struct {
	UserID    int64
	Email     string
	ExpiresAt time.Time
}

// TokenClaims decodes the claims of the current access token.
func (c *Client) TokenClaims() (Claims, error) {
	tok := c.Token()
	if tok == "" {
		return Claims{}, ErrNotSignedIn
	}
	return ParseClaims(tok)
}

// ParseClaims decodes token without verifying its signature.
func ParseClaims(token string) (Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	var out Claims
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		out.UserID, _ = strconv.ParseInt(sub, 10, 64)
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	return out, nil
}

// refreshIfExpiring renews the session ahead of a call when the access token
// is about to expire. Failures are left for the 401 path to handle.
func (c *Client) refreshIfExpiring(ctx context.Context) {
	tok := c.Token()
	if tok == "" || c.RefreshToken() == "" {
		return
	}
	claims, err := ParseClaims(tok)
	if err != nil || claims.ExpiresAt.IsZero() {
		return
	}
	if time.Until(claims.ExpiresAt) > refreshSkew {
		return
	}
	if err := c.refreshSession(ctx, tok); err != nil {
		logger.Debug("gateway: proactive refresh failed", "err", err)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshSession exchanges the refresh token for a new session unless
// another caller already replaced stale.
func (c *Client) refreshSession(ctx context.Context, stale string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	if c.Token() != stale {
		return nil
	}
	rt := c.RefreshToken()
	if rt == "" {
		return ErrNotSignedIn
	}
	var out models.AuthResponse
	err := c.do(ctx, call{method: http.MethodPost, path: "/auth/refresh", body: refreshRequest{RefreshToken: rt}, anonymous: true}, &out)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}
	if out.RefreshToken == "" {
		out.RefreshToken = rt
	}
	c.SetSession(out.Token, out.RefreshToken)
	logger.Info("gateway: session refreshed", "user_id", out.UserID)
	return nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Signup creates an account and starts a session for it.
func (c *Client) Signup(ctx context.Context, email, password string) (models.AuthResponse, error) {
	return c.authenticate(ctx, "/auth/signup", email, password)
}

// Login starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (models.AuthResponse, error) {
	return c.authenticate(ctx, "/auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (models.AuthResponse, error) {
	var out models.AuthResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: path, body: credentials{Email: email, Password: password}, anonymous: true}, &out); err != nil {
		return models.AuthResponse{}, err
	}
	c.SetSession(out.Token, out.RefreshToken)
	return out, nil
}

// Logout revokes the refresh token on the server and clears the session. The
// local session is cleared even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	rt := c.RefreshToken()
	defer c.SetSession("", "")
	if rt == "" {
		return nil
	}
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/logout", body: refreshRequest{RefreshToken: rt}, anonymous: true}, nil)
}

// Me returns the profile of the signed-in user.
func (c *Client) Me(ctx context.Context) (models.Profile, error) {
	if c.Token() == "" {
		return models.Profile{}, ErrNotSignedIn
	}
	var out models.Profile
	err := c.do(ctx, call{method: http.MethodGet, path: "/me"}, &out)
	return out, err
}
