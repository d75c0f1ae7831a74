// Package apitest is an in-memory implementation of the job-tracker REST API
// for end-to-end tests of the gateway and engine. State lives in maps guarded
// by one mutex; nothing is persisted.
package apitest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/jobsync/pkg/models"
)

type Options struct {
	// JWTSecret signs access tokens. A fixed test secret is used when empty.
	JWTSecret string
	// TokenDuration is the lifetime of access tokens.
	TokenDuration time.Duration
	// EnforceTransitions rejects stage changes outside the transition table.
	// The real service only rejects a move to the current stage.
	EnforceTransitions bool
	// Now is the server clock.
	Now func() time.Time
}

type user struct {
	id    int64
	email string
	hash  []byte
}

type auditRow struct {
	userID int64
	event  models.AuditEvent
}

// Backend holds the API state and its router.
type Backend struct {
	opts   Options
	router *mux.Router

	mu       sync.Mutex
	users    map[string]*user
	refresh  map[string]int64
	apps     map[int64]models.Application
	owners   map[int64]int64
	tasks    map[int64]models.Task
	events   []models.StageEvent
	audit    []auditRow
	faults   map[string][]fault
	requests int64
	nextID   int64
}

func New(opts Options) *Backend {
	if opts.JWTSecret == "" {
		opts.JWTSecret = "apitest-secret"
	}
	if opts.TokenDuration <= 0 {
		opts.TokenDuration = time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	b := &Backend{
		opts:    opts,
		users:   make(map[string]*user),
		refresh: make(map[string]int64),
		apps:    make(map[int64]models.Application),
		owners:  make(map[int64]int64),
		tasks:   make(map[int64]models.Task),
		faults:  make(map[string][]fault),
	}
	b.router = b.routes()
	return b
}

// Handler returns the API router. Routes are mounted under /api.
func (b *Backend) Handler() http.Handler { return b.router }

// Start serves the API on a local test server. The caller closes it.
func (b *Backend) Start() *httptest.Server {
	return httptest.NewServer(b.router)
}

// Requests returns how many requests reached a handler.
func (b *Backend) Requests() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

func (b *Backend) now() time.Time { return b.opts.Now() }

func (b *Backend) id() int64 {
	b.nextID++
	return b.nextID
}

func (b *Backend) routes() *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(b.faultMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Open endpoints
	api.HandleFunc("/health", b.health).Methods("GET")
	api.HandleFunc("/metrics", b.metrics).Methods("GET")
	api.HandleFunc("/auth/signup", b.signup).Methods("POST")
	api.HandleFunc("/auth/login", b.login).Methods("POST")
	api.HandleFunc("/auth/refresh", b.refreshToken).Methods("POST")
	api.HandleFunc("/auth/logout", b.logout).Methods("POST")

	// Protected routes
	p := api.NewRoute().Subrouter()
	p.Use(JWTAuthMiddlewareWithSecret(b.opts.JWTSecret))

	p.HandleFunc("/me", b.me).Methods("GET")

	p.HandleFunc("/applications", b.listApplications).Methods("GET")
	p.HandleFunc("/applications", b.createApplication).Methods("POST")
	p.HandleFunc("/applications/stale", b.listStale).Methods("GET")
	p.HandleFunc("/applications/{id:[0-9]+}", b.updateApplication).Methods("PUT")
	p.HandleFunc("/applications/{id:[0-9]+}", b.deleteApplication).Methods("DELETE")
	p.HandleFunc("/applications/{id:[0-9]+}/stage", b.transitionStage).Methods("PATCH")
	p.HandleFunc("/applications/{id:[0-9]+}/stage-events", b.listStageEvents).Methods("GET")
	p.HandleFunc("/applications/{id:[0-9]+}/tasks", b.listTasks).Methods("GET")
	p.HandleFunc("/applications/{id:[0-9]+}/tasks", b.createTask).Methods("POST")

	p.HandleFunc("/tasks/{id:[0-9]+}", b.updateTask).Methods("PUT")
	p.HandleFunc("/tasks/{id:[0-9]+}", b.deleteTask).Methods("DELETE")
	p.HandleFunc("/tasks/{id:[0-9]+}/status", b.updateTaskStatus).Methods("PATCH")

	p.HandleFunc("/dashboard/summary", b.summary).Methods("GET")
	p.HandleFunc("/dashboard/next-actions", b.nextActions).Methods("GET")
	p.HandleFunc("/dashboard/activity", b.activity).Methods("GET")

	p.HandleFunc("/audit-events", b.listAudit).Methods("GET")

	return r
}
