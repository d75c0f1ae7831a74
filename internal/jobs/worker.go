package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type WorkerPool struct {
	queue       *queue
	handlers    map[string]Handler
	logger      *slog.Logger
	workerCount int
	maxAttempts int
	backoff     time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

// Options tunes a WorkerPool. Zero values select defaults.
type Options struct {
	Workers     int
	MaxAttempts int
	Backoff     time.Duration
	QueueSize   int
}

func NewWorkerPool(handlers map[string]Handler, logger *slog.Logger, opts Options) *WorkerPool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		queue:       newQueue(opts.QueueSize),
		handlers:    handlers,
		logger:      logger,
		workerCount: opts.Workers,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		stop:        make(chan struct{}),
	}
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them. Pending retries are
// cancelled. It is safe to call more than once.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.queue.stop()
		close(p.stop)
	})
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Debug("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Debug("context canceled, worker exiting", "id", id)
			return
		case job := <-p.queue.ch:
			p.run(ctx, job)
		}
	}
}

func (p *WorkerPool) run(ctx context.Context, job *Job) {
	p.queue.take(job)
	h, ok := p.handlers[job.Type]
	if !ok {
		job.LastError = "no handler"
		p.queue.moveToDeadLetter(job)
		p.logger.Warn("job without handler", "type", job.Type, "id", job.ID)
		return
	}
	err := h(ctx, job)
	if err == nil {
		p.queue.done(job)
		return
	}
	job.Attempts++
	job.LastError = err.Error()
	if job.Attempts >= job.MaxAttempts {
		p.queue.moveToDeadLetter(job)
		p.logger.Error("job failed", "type", job.Type, "key", job.Key, "attempts", job.Attempts, "err", err)
		return
	}
	backoff := BackoffDuration(job.Attempts-1, p.backoff)
	p.logger.Debug("job retry scheduled", "type", job.Type, "key", job.Key, "in", backoff, "err", err)
	p.queue.retryAfter(job, backoff)
}

// Enqueue queues a job of type typ. A job with the same type and key that is
// still waiting to run absorbs the new one, in which case Enqueue returns
// false and no error.
func (p *WorkerPool) Enqueue(typ, key string, payload any) (bool, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	j := &Job{Type: typ, Key: key, Payload: b, MaxAttempts: p.maxAttempts}
	return p.queue.push(j)
}

// Drain blocks until every accepted job has finished, failed or been
// dropped, or until ctx is done.
func (p *WorkerPool) Drain(ctx context.Context) error {
	t := time.NewTicker(5 * time.Millisecond)
	defer t.Stop()
	for {
		if p.queue.idle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// DeadLetters returns a copy of the jobs that exhausted their attempts.
func (p *WorkerPool) DeadLetters() []Job {
	return p.queue.deadLetters()
}
