package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Job represents a background refresh job
type Job struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Key         string          `json:"key,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextTryAt   *time.Time      `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     time.Time       `json:"created"`
}

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *Job) error

var (
	// ErrStopped is returned by Enqueue after Stop.
	ErrStopped = errors.New("worker pool stopped")
	// ErrQueueFull is returned when the pending buffer is exhausted.
	ErrQueueFull = errors.New("job queue full")
)

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt <= 0 {
		return base
	}
	// base * 2^attempt, capped
	max := 5 * time.Minute
	if attempt > 16 {
		return max
	}
	d := base * time.Duration(1<<uint(attempt))
	if d > max {
		return max
	}
	return d
}

// dedupeKey identifies jobs that can be coalesced while still queued.
func (j *Job) dedupeKey() string {
	return j.Type + "\x00" + j.Key
}
