package apitest

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/jobsync/pkg/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (b *Backend) signup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(req.Email, "@") {
		writeValidation(w, r, &models.ValidationError{Field: "email", Message: "must be a well-formed email address"})
		return
	}
	if len(req.Password) < 8 {
		writeValidation(w, r, &models.ValidationError{Field: "password", Message: "size must be between 8 and 72"})
		return
	}

	// Hash password
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", "Error hashing password", nil)
		return
	}

	b.mu.Lock()
	if _, exists := b.users[req.Email]; exists {
		b.mu.Unlock()
		writeError(w, r, http.StatusConflict, "conflict", "Email already registered", nil)
		return
	}
	u := &user{id: b.id(), email: req.Email, hash: hash}
	b.users[req.Email] = u
	b.mu.Unlock()

	b.issue(w, r, u, http.StatusCreated)
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	u := b.users[strings.ToLower(strings.TrimSpace(req.Email))]
	b.mu.Unlock()

	if u == nil || bcrypt.CompareHashAndPassword(u.hash, []byte(req.Password)) != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid email or password", nil)
		return
	}
	b.issue(w, r, u, http.StatusOK)
}

func (b *Backend) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	uid, ok := b.refresh[req.RefreshToken]
	if ok {
		// refresh tokens are single use
		delete(b.refresh, req.RefreshToken)
	}
	var u *user
	for _, candidate := range b.users {
		if candidate.id == uid {
			u = candidate
		}
	}
	b.mu.Unlock()

	if !ok || u == nil {
		writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid refresh token", nil)
		return
	}
	b.issue(w, r, u, http.StatusOK)
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	b.mu.Lock()
	delete(b.refresh, req.RefreshToken)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) me(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, u := range b.users {
		if u.id == uid {
			writeJSON(w, http.StatusOK, models.Profile{UserID: u.id, Email: u.email})
			return
		}
	}
	writeError(w, r, http.StatusNotFound, "not_found", "User not found", nil)
}

func (b *Backend) issue(w http.ResponseWriter, r *http.Request, u *user, status int) {
	tokenStr, err := b.Token(u.id, u.email, b.opts.TokenDuration)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "server_error", "Error signing token", nil)
		return
	}
	rt := uuid.NewString()
	b.mu.Lock()
	b.refresh[rt] = u.id
	b.mu.Unlock()

	writeJSON(w, status, models.AuthResponse{UserID: u.id, Email: u.email, Token: tokenStr, RefreshToken: rt})
}

// Token signs an access token for a user id. A negative ttl yields an
// already expired token. Expiry follows the wall clock, not Options.Now,
// since verification does too.
func (b *Backend) Token(userID int64, email string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatInt(userID, 10),
		"email": email,
		"exp":   time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(b.opts.JWTSecret))
}
