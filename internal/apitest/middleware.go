package apitest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ctxKey string

const ctxUserID ctxKey = "user_id"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the apitest package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// RequestIDMiddleware echoes the caller's X-Request-Id, or issues one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", w.Header().Get("X-Request-Id")),
		)
		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err))
				writeError(w, r, http.StatusInternalServerError, "server_error", "Unexpected error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Missing Authorization header", nil)
				return
			}

			tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || tokenString == "" {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid Authorization header", nil)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}

				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
				return
			}

			sub, err := token.Claims.GetSubject()
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
				return
			}
			id, err := strconv.ParseInt(sub, 10, 64)
			if err != nil || id <= 0 {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserID).(int64)
	return id
}

// FaultKind selects how an injected fault behaves.
type FaultKind int

const (
	// Reject answers with the given status and message without processing.
	Reject FaultKind = iota
	// Drop closes the connection without any response.
	Drop
	// LoseResponse processes the request and then answers 504.
	LoseResponse
	// Truncate processes the request and answers with its status but only
	// the first half of its body.
	Truncate
)

type fault struct {
	kind    FaultKind
	status  int
	message string
}

var routeVar = regexp.MustCompile(`\{(\w+):[^}]+\}`)

// routeKey turns "/api/tasks/{id:[0-9]+}" into "PATCH /tasks/{id}".
func routeKey(method, template string) string {
	template = strings.TrimPrefix(template, "/api")
	return method + " " + routeVar.ReplaceAllString(template, "{$1}")
}

// Fail makes the next request to route, e.g. "PATCH /tasks/{id}/status",
// fail with status and message.
func (b *Backend) Fail(route string, status int, message string) {
	b.inject(route, fault{kind: Reject, status: status, message: message})
}

// Inject queues a one-shot fault of kind for route.
func (b *Backend) Inject(route string, kind FaultKind) {
	b.inject(route, fault{kind: kind, status: http.StatusGatewayTimeout, message: "Gateway Timeout"})
}

func (b *Backend) inject(route string, f fault) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[route] = append(b.faults[route], f)
}

func (b *Backend) takeFault(key string) (fault, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests++
	q := b.faults[key]
	if len(q) == 0 {
		return fault{}, false
	}
	b.faults[key] = q[1:]
	return q[0], true
}

func (b *Backend) faultMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				key = routeKey(r.Method, tpl)
			}
		}
		f, ok := b.takeFault(key)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		logger.Debug("injecting fault", "route", key, "kind", int(f.kind))
		switch f.kind {
		case Drop:
			hj, ok := w.(http.Hijacker)
			if !ok {
				writeError(w, r, http.StatusBadGateway, "bad_gateway", "Bad Gateway", nil)
				return
			}
			conn, _, err := hj.Hijack()
			if err == nil {
				_ = conn.Close()
			}
		case LoseResponse:
			next.ServeHTTP(httptest.NewRecorder(), r)
			writeError(w, r, f.status, "gateway_timeout", f.message, nil)
		case Truncate:
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, r)
			body := rec.Body.Bytes()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.Code)
			_, _ = w.Write(body[:len(body)/2])
		default:
			writeError(w, r, f.status, "request_failed", f.message, nil)
		}
	})
}
