package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"log/slog"

	"go.uber.org/goleak"

	"github.com/garnizeh/jobsync/internal/jobs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEnqueueAndProcess(t *testing.T) {
	ctx := context.Background()
	handled := make(chan string, 1)
	handlers := map[string]jobs.Handler{
		"test": func(ctx context.Context, j *jobs.Job) error {
			handled <- string(j.Payload)
			return nil
		},
	}
	pool := jobs.NewWorkerPool(handlers, slog.Default(), jobs.Options{Workers: 1})
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue("test", "", map[string]string{"foo": "bar"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case got := <-handled:
		if got != `{"foo":"bar"}` {
			t.Fatalf("unexpected payload %s", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
}

func TestEnqueue_CoalescesPendingJobs(t *testing.T) {
	var runs atomic.Int32
	handlers := map[string]jobs.Handler{
		"reload": func(ctx context.Context, j *jobs.Job) error {
			runs.Add(1)
			return nil
		},
	}
	pool := jobs.NewWorkerPool(handlers, nil, jobs.Options{Workers: 1})

	// not started yet, so the first job is still pending
	ok, err := pool.Enqueue("reload", "applications", nil)
	if err != nil || !ok {
		t.Fatalf("first enqueue: ok=%v err=%v", ok, err)
	}
	ok, err = pool.Enqueue("reload", "applications", nil)
	if err != nil || ok {
		t.Fatalf("duplicate enqueue should be absorbed: ok=%v err=%v", ok, err)
	}
	if ok, _ := pool.Enqueue("reload", "audit", nil); !ok {
		t.Fatalf("different key should be accepted")
	}

	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Drain(dctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Fatalf("expected 2 runs, got %d", got)
	}
}

func TestRetryThenDeadLetter(t *testing.T) {
	var runs atomic.Int32
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			runs.Add(1)
			return errors.New("boom")
		},
	}
	pool := jobs.NewWorkerPool(handlers, nil, jobs.Options{Workers: 2, MaxAttempts: 3, Backoff: time.Millisecond})
	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	if _, err := pool.Enqueue("flaky", "k", nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Drain(dctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	dead := pool.DeadLetters()
	if len(dead) != 1 || dead[0].LastError != "boom" || dead[0].Status != "failed" {
		t.Fatalf("unexpected dead letters: %+v", dead)
	}
}

func TestRetrySucceeds(t *testing.T) {
	var runs atomic.Int32
	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			if runs.Add(1) == 1 {
				return errors.New("transient")
			}
			return nil
		},
	}
	pool := jobs.NewWorkerPool(handlers, nil, jobs.Options{Workers: 1, Backoff: time.Millisecond})
	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	_, _ = pool.Enqueue("flaky", "", nil)
	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Drain(dctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if runs.Load() != 2 || len(pool.DeadLetters()) != 0 {
		t.Fatalf("runs=%d dead=%d", runs.Load(), len(pool.DeadLetters()))
	}
}

func TestUnknownTypeGoesToDeadLetter(t *testing.T) {
	pool := jobs.NewWorkerPool(map[string]jobs.Handler{}, nil, jobs.Options{Workers: 1})
	ctx := context.Background()
	pool.Start(ctx)
	defer pool.Stop()

	_, _ = pool.Enqueue("nope", "", nil)
	dctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Drain(dctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if dead := pool.DeadLetters(); len(dead) != 1 || dead[0].LastError != "no handler" {
		t.Fatalf("unexpected dead letters: %+v", dead)
	}
}

func TestStop_CancelsScheduledRetriesAndRejectsNewJobs(t *testing.T) {
	ran := make(chan struct{}, 1)
	handlers := map[string]jobs.Handler{
		"slow": func(ctx context.Context, j *jobs.Job) error {
			ran <- struct{}{}
			return errors.New("again")
		},
	}
	// the retry is parked for an hour and must not outlive Stop
	pool := jobs.NewWorkerPool(handlers, nil, jobs.Options{Workers: 1, Backoff: time.Hour})
	pool.Start(context.Background())
	_, _ = pool.Enqueue("slow", "", nil)

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}
	pool.Stop()
	pool.Stop()

	if _, err := pool.Enqueue("slow", "", nil); !errors.Is(err, jobs.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if err := pool.Drain(context.Background()); err != nil {
		t.Fatalf("drain after stop: %v", err)
	}
}

func TestBackoffDuration(t *testing.T) {
	base := 100 * time.Millisecond
	if got := jobs.BackoffDuration(0, base); got != base {
		t.Fatalf("attempt 0: %v", got)
	}
	if got := jobs.BackoffDuration(2, base); got != 400*time.Millisecond {
		t.Fatalf("attempt 2: %v", got)
	}
	if got := jobs.BackoffDuration(30, base); got != 5*time.Minute {
		t.Fatalf("cap: %v", got)
	}
}
