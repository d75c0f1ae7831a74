package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/garnizeh/jobsync/internal/config"
	"github.com/garnizeh/jobsync/pkg/gateway"
	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate ...func(*config.GatewayConfig)) *gateway.Client {
	t.Helper()
	cfg := config.GatewayConfig{
		BaseURL:                 srv.URL + "/api",
		Timeout:                 2 * time.Second,
		Retries:                 0,
		Backoff:                 time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            time.Minute,
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	c, err := gateway.NewClient(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signed(t *testing.T, sub int64, ttl time.Duration) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   strconv.FormatInt(sub, 10),
		"email": "ada@example.com",
		"exp":   time.Now().Add(ttl).Unix(),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestClient_ListApplications_SendsBearerAndRequestID(t *testing.T) {
	token := signed(t, 7, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/applications" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			writeJSON(w, 401, map[string]string{"message": "Unauthorized"})
			return
		}
		if _, err := uuid.Parse(r.Header.Get(gateway.RequestIDHeader)); err != nil {
			writeJSON(w, 400, map[string]string{"message": "missing request id"})
			return
		}
		if r.URL.Query().Get("stage") != "APPLIED" {
			writeJSON(w, 400, map[string]string{"message": "bad stage"})
			return
		}
		writeJSON(w, 200, []models.Application{{ID: 1, Company: "Acme", Role: "Engineer", Stage: models.StageApplied}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.SetSession(token, "")
	stage := models.StageApplied
	apps, err := c.ListApplications(context.Background(), &stage)
	if err != nil {
		t.Fatalf("ListApplications failed: %v", err)
	}
	if len(apps) != 1 || apps[0].Company != "Acme" {
		t.Fatalf("unexpected apps: %#v", apps)
	}
}

func TestClient_RefreshesOnceOn401(t *testing.T) {
	oldTok, newTok := signed(t, 7, time.Hour), signed(t, 7, 2*time.Hour)
	var refreshes, calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			refreshes.Add(1)
			var body struct {
				RefreshToken string `json:"refreshToken"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body.RefreshToken != "rt-1" {
				writeJSON(w, 401, map[string]string{"message": "Invalid refresh token"})
				return
			}
			writeJSON(w, 200, models.AuthResponse{UserID: 7, Email: "ada@example.com", Token: newTok, RefreshToken: "rt-2"})
		case "/api/me":
			calls.Add(1)
			if r.Header.Get("Authorization") != "Bearer "+newTok {
				writeJSON(w, 401, map[string]string{"message": "Token expired"})
				return
			}
			writeJSON(w, 200, models.Profile{UserID: 7, Email: "ada@example.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	var saved []string
	c.OnSession(func(token, rt string) { saved = append(saved, rt) })
	c.SetSession(oldTok, "rt-1")

	me, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if me.UserID != 7 || refreshes.Load() != 1 || calls.Load() != 2 {
		t.Fatalf("unexpected result me=%+v refreshes=%d calls=%d", me, refreshes.Load(), calls.Load())
	}
	if c.Token() != newTok || c.RefreshToken() != "rt-2" {
		t.Fatalf("session not replaced")
	}
	if len(saved) != 2 || saved[1] != "rt-2" {
		t.Fatalf("OnSession not notified: %v", saved)
	}

	// a second 401 after a failed refresh is returned as-is
	c.SetSession(oldTok, "bogus")
	_, err = c.Me(context.Background())
	var rerr *repository.RemoteError
	if !errors.As(err, &rerr) || rerr.Status != 401 || rerr.Message != "Token expired" {
		t.Fatalf("expected 401 remote error, got %v", err)
	}
}

func TestClient_ProactiveRefreshBeforeExpiry(t *testing.T) {
	expiring, fresh := signed(t, 7, 5*time.Second), signed(t, 7, time.Hour)
	var refreshes atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/refresh":
			refreshes.Add(1)
			writeJSON(w, 200, models.AuthResponse{UserID: 7, Token: fresh})
		case "/api/audit-events":
			if r.Header.Get("Authorization") != "Bearer "+fresh {
				writeJSON(w, 401, map[string]string{"message": "stale token"})
				return
			}
			if r.URL.Query().Get("page") != "1" || r.URL.Query().Get("size") != "10" {
				writeJSON(w, 400, map[string]string{"message": "bad paging"})
				return
			}
			writeJSON(w, 200, []models.AuditEvent{{ID: 1, Type: models.AuditTaskCreated, Payload: "{}"}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.SetSession(expiring, "rt-1")
	events, err := c.ListAuditEvents(context.Background(), 1, 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("ListAuditEvents: %v %+v", err, events)
	}
	if refreshes.Load() != 1 {
		t.Fatalf("expected one proactive refresh, got %d", refreshes.Load())
	}
	// the refresh token is kept when the server does not rotate it
	if c.RefreshToken() != "rt-1" {
		t.Fatalf("refresh token lost: %q", c.RefreshToken())
	}
}

func TestClient_ErrorResponseIsParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(gateway.RequestIDHeader, "req-123")
		writeJSON(w, 400, map[string]any{
			"timestamp": time.Now(),
			"status":    400,
			"error":     "validation_error",
			"message":   "Validation failed",
			"path":      "/api/applications",
			"details":   []map[string]string{{"field": "company", "message": "must not be blank"}},
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.CreateApplication(context.Background(), models.ApplicationInput{Company: "Acme", Role: "Engineer"})
	var rerr *repository.RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RemoteError, got %T %v", err, err)
	}
	if rerr.Message != "Validation failed" || rerr.Code != "validation_error" || rerr.RequestID != "req-123" {
		t.Fatalf("unexpected error fields %+v", rerr)
	}
	if len(rerr.Details) != 1 || rerr.Details[0].Field != "company" {
		t.Fatalf("details not parsed: %+v", rerr.Details)
	}
	if repository.Classify(err) != repository.KindRejected {
		t.Fatalf("expected rejected, got %s", repository.Classify(err))
	}
}

func TestClient_PlainTextErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Stage change not allowed", http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.TransitionStage(context.Background(), 1, models.StageOffer)
	if err == nil || err.Error() != "Stage change not allowed" {
		t.Fatalf("expected verbatim plain-text message, got %v", err)
	}
}

func TestClient_LongErrorBodyIsCutOnRuneBoundary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "x"+strings.Repeat("é", 300), http.StatusConflict)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.TransitionStage(context.Background(), 1, models.StageOffer)
	if err == nil {
		t.Fatalf("expected error")
	}
	msg := err.Error()
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8: %q", msg[len(msg)-4:])
	}
	if len(msg) > 512 || len(msg) < 510 {
		t.Fatalf("unexpected message length %d", len(msg))
	}
}

func TestClient_TruncatedSuccessIsAmbiguous(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":1,"company":"Acme","stage":"APPL`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.TransitionStage(context.Background(), 1, models.StageApplied)
	var rerr *repository.RemoteError
	if !errors.As(err, &rerr) || rerr.Code != "invalid_response" || rerr.Status != http.StatusOK {
		t.Fatalf("expected invalid_response, got %T %v", err, err)
	}
	if repository.Classify(err) != repository.KindNetwork {
		t.Fatalf("an unreadable 2xx must not classify as rejected, got %s", repository.Classify(err))
	}
}

func TestClient_GetRetriesButWritesDoNot(t *testing.T) {
	var gets, posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, 200, []models.Task{})
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *config.GatewayConfig) { cfg.Retries = 2 })
	if _, err := c.ListTasks(context.Background(), 1); err != nil {
		t.Fatalf("ListTasks should succeed on third attempt: %v", err)
	}
	if gets.Load() != 3 {
		t.Fatalf("expected 3 GETs, got %d", gets.Load())
	}

	_, err := c.CreateTask(context.Background(), 1, models.TaskInput{Title: "Call back"})
	if repository.Classify(err) != repository.KindNetwork {
		t.Fatalf("502 should classify as network, got %v", err)
	}
	if posts.Load() != 1 {
		t.Fatalf("mutation was retried: %d", posts.Load())
	}
}

func TestClient_CircuitOpensAfterFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, func(cfg *config.GatewayConfig) { cfg.CircuitFailureThreshold = 2 })
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := c.DeleteTask(ctx, 1); err == nil {
			t.Fatalf("expected failure")
		}
	}
	err := c.DeleteTask(ctx, 1)
	if !errors.Is(err, gateway.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if repository.Classify(err) != repository.KindNetwork {
		t.Fatalf("open circuit should classify as network")
	}
	if hits.Load() != 2 {
		t.Fatalf("open circuit still hit the server: %d", hits.Load())
	}
}

func TestClient_TransportErrorIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.ListApplications(context.Background(), nil)
	var nerr *repository.NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NetworkError, got %T %v", err, err)
	}
}

func TestClient_DashboardContractValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/dashboard/summary":
			// overdueTasks missing
			writeJSON(w, 200, map[string]any{"stageCounts": map[string]int{"SAVED": 1}})
		case "/api/dashboard/activity":
			if r.URL.Query().Get("days") != "30" {
				writeJSON(w, 400, map[string]string{"message": "bad days"})
				return
			}
			writeJSON(w, 200, models.Activity{Days: 30, Items: []models.ActivityPoint{{Date: "2026-03-04", StageTransitions: 1}}})
		case "/api/dashboard/next-actions":
			writeJSON(w, 200, map[string]any{"dueSoonTasks": []any{}, "staleApplications": []any{map[string]any{"id": 1, "company": "Acme", "role": "Eng", "stage": "LOST"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	_, err := c.Summary(ctx)
	var rerr *repository.RemoteError
	if !errors.As(err, &rerr) || rerr.Code != "invalid_response" {
		t.Fatalf("expected contract violation, got %v", err)
	}
	if _, err := c.NextActions(ctx, 7); err == nil {
		t.Fatalf("expected unknown stage to violate the contract")
	}
	act, err := c.Activity(ctx, 30)
	if err != nil || act.Days != 30 || len(act.Items) != 1 {
		t.Fatalf("Activity: %v %+v", err, act)
	}
}

func TestClient_LogoutClearsSessionEvenOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, map[string]string{"error": "server_error", "message": "Unexpected error"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	c.SetSession("tok", "rt")
	if err := c.Logout(context.Background()); err == nil {
		t.Fatalf("expected server error")
	}
	if c.Token() != "" || c.RefreshToken() != "" {
		t.Fatalf("session not cleared")
	}
	if _, err := c.Me(context.Background()); !errors.Is(err, gateway.ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}
}

func TestParseClaims(t *testing.T) {
	tok := signed(t, 42, time.Hour)
	claims, err := gateway.ParseClaims(tok)
	if err != nil {
		t.Fatalf("ParseClaims: %v", err)
	}
	if claims.UserID != 42 || claims.Email != "ada@example.com" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if time.Until(claims.ExpiresAt) < 50*time.Minute {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt)
	}
	if _, err := gateway.ParseClaims("not-a-jwt"); err == nil {
		t.Fatalf("expected error for garbage token")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "UP"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.Health(context.Background()); err == nil {
		t.Fatalf("expected closed client to fail")
	}
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	if _, err := gateway.NewClient(config.GatewayConfig{BaseURL: "ftp://x"}, nil); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
	if _, err := gateway.NewClient(config.GatewayConfig{BaseURL: "::"}, nil); err == nil {
		t.Fatalf("expected error for unparsable url")
	}
}
