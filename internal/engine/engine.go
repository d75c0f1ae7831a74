// Package engine wires the gateway, the entity store, the dashboard and the
// mutation coordinator into one object per signed-in user.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/jobsync/internal/config"
	"github.com/garnizeh/jobsync/internal/dashboard"
	"github.com/garnizeh/jobsync/internal/lifecycle"
	"github.com/garnizeh/jobsync/internal/mutation"
	"github.com/garnizeh/jobsync/internal/store"
	"github.com/garnizeh/jobsync/pkg/gateway"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the engine package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

type Options struct {
	// Now is the local clock used for optimistic timestamps and bucketing.
	Now func() time.Time
}

type Engine struct {
	cfg    config.Config
	client *gateway.Client
	store  *store.Store
	dash   *dashboard.Dashboard
	coord  *mutation.Coordinator
	now    func() time.Time
}

// Open validates cfg, dials nothing, and builds an engine on a default
// gateway client. The session from cfg is installed when present.
func Open(cfg *config.Config, opts Options) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client, err := gateway.NewDefaultClient(cfg.Gateway)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}
	if cfg.Token != "" || cfg.RefreshToken != "" {
		client.SetSession(cfg.Token, cfg.RefreshToken)
	}
	return New(cfg, client, opts), nil
}

// New builds an engine on an existing client. cfg must already be validated.
func New(cfg *config.Config, client *gateway.Client, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	policy := lifecycle.Strict
	if !cfg.Engine.StrictTransitions {
		policy = lifecycle.Permissive
	}

	st := store.New(client)
	dash := dashboard.New(client, dashboard.Options{
		NextActionsDays: cfg.Engine.NextActionsDays,
		ActivityDays:    cfg.Engine.ActivityDays,
		StaleDays:       cfg.Engine.StaleDays,
		Now:             opts.Now,
	})
	coord := mutation.New(st, client, dash, mutation.Options{
		Policy:        policy,
		Now:           opts.Now,
		AuditPageSize: cfg.Engine.AuditPageSize,
		Workers:       cfg.Engine.RefreshWorkers,
		Attempts:      cfg.Engine.RefreshAttempts,
		Backoff:       cfg.Engine.RefreshBackoff,
	})
	logger.Debug("engine ready", "base_url", cfg.Gateway.BaseURL, "policy", policy.String())

	return &Engine{
		cfg:    *cfg,
		client: client,
		store:  st,
		dash:   dash,
		coord:  coord,
		now:    opts.Now,
	}
}

// Start runs the background refresh workers until Close.
func (e *Engine) Start(ctx context.Context) { e.coord.Start(ctx) }

// Close stops the workers and releases the gateway's connections.
func (e *Engine) Close() error {
	e.coord.Stop()
	return e.client.Close()
}

// Drain waits for every queued background refresh to finish.
func (e *Engine) Drain(ctx context.Context) error { return e.coord.Drain(ctx) }

func (e *Engine) Store() *store.Store             { return e.store }
func (e *Engine) Dashboard() *dashboard.Dashboard { return e.dash }
func (e *Engine) Client() *gateway.Client         { return e.client }
func (e *Engine) Policy() lifecycle.Policy        { return e.coord.Policy() }

// Subscribe registers fn for store change notifications.
func (e *Engine) Subscribe(fn func(store.Change)) (cancel func()) {
	return e.store.Subscribe(fn)
}

// Ping checks that the API is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.client.Health(ctx)
}

// LoadAll fetches applications, the dashboard, stale applications and the
// first audit page in parallel. The first error is returned; collections
// that did load are kept.
func (e *Engine) LoadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := e.store.LoadApplications(gctx, e.store.StageFilter())
		return err
	})
	g.Go(func() error {
		_, err := e.dash.Refresh(gctx)
		return err
	})
	g.Go(func() error {
		_, err := e.dash.RefreshStale(gctx)
		return err
	})
	g.Go(func() error {
		_, err := e.store.LoadAudit(gctx, 0, e.cfg.Engine.AuditPageSize)
		return err
	})
	return g.Wait()
}
