// Package mutation applies user edits to the store optimistically and then
// reconciles them with the server.
//
// Every operation follows the same steps: validate, snapshot the affected
// entity, apply the change locally, call the server, then either adopt the
// server's record or settle the failure. A server rejection restores the
// snapshot exactly. A network failure leaves the optimistic state in place,
// queues a reload and returns an error that matches ErrReconciling.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/garnizeh/jobsync/internal/dashboard"
	"github.com/garnizeh/jobsync/internal/jobs"
	"github.com/garnizeh/jobsync/internal/lifecycle"
	"github.com/garnizeh/jobsync/internal/store"
	"github.com/garnizeh/jobsync/pkg/repository"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// ErrReconciling marks a change whose outcome on the server is unknown. The
// local state is kept and a reload has been queued.
var ErrReconciling = errors.New("change kept locally, reconciling with server")

// ReconcileError wraps the network failure behind an ErrReconciling result.
type ReconcileError struct {
	Op  string
	Err error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("%s: %v (reconciling with server)", e.Op, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

func (e *ReconcileError) Is(target error) bool { return target == ErrReconciling }

// Remote is the write side of the API.
type Remote interface {
	repository.ApplicationRepo
	repository.TaskRepo
}

type Options struct {
	Policy        lifecycle.Policy
	Now           func() time.Time
	AuditPageSize int
	Workers       int
	Attempts      int
	Backoff       time.Duration
}

type Coordinator struct {
	store     *store.Store
	remote    Remote
	dash      *dashboard.Dashboard
	policy    lifecycle.Policy
	now       func() time.Time
	auditSize int
	pool      *jobs.WorkerPool
	tempID    atomic.Int64
}

// New builds a coordinator writing to st and remote. dash may be nil when no
// dashboard is kept.
func New(st *store.Store, remote Remote, dash *dashboard.Dashboard, opts Options) *Coordinator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.AuditPageSize <= 0 {
		opts.AuditPageSize = 25
	}
	c := &Coordinator{
		store:     st,
		remote:    remote,
		dash:      dash,
		policy:    opts.Policy,
		now:       opts.Now,
		auditSize: opts.AuditPageSize,
	}
	c.pool = jobs.NewWorkerPool(c.handlers(), logger, jobs.Options{
		Workers:     opts.Workers,
		MaxAttempts: opts.Attempts,
		Backoff:     opts.Backoff,
	})
	return c
}

// Start runs the background refresh workers.
func (c *Coordinator) Start(ctx context.Context) { c.pool.Start(ctx) }

// Stop halts the background workers and drops pending refreshes.
func (c *Coordinator) Stop() { c.pool.Stop() }

// Drain waits until all queued refreshes have run.
func (c *Coordinator) Drain(ctx context.Context) error { return c.pool.Drain(ctx) }

// Policy returns the stage transition policy in force.
func (c *Coordinator) Policy() lifecycle.Policy { return c.policy }

// nextTempID returns a fresh negative id for a placeholder record.
func (c *Coordinator) nextTempID() int64 {
	return -c.tempID.Add(1)
}

// settle handles a failed remote call. Rejections run rollback and return err
// unchanged so the server message reaches the caller verbatim.
func (c *Coordinator) settle(op string, err error, rollback func(), reconcile ...refresh) error {
	switch repository.Classify(err) {
	case repository.KindNetwork:
		logger.Warn("outcome unknown, keeping local change", "op", op, "err", err)
		c.enqueue(reconcile...)
		return &ReconcileError{Op: op, Err: err}
	default:
		rollback()
		logger.Info("change rejected, rolled back", "op", op, "err", err)
		return err
	}
}
