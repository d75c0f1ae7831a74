package jobs

import (
	"sync"
	"time"
)

// queue is the in-memory job store backing a WorkerPool. Jobs with the same
// type and key are coalesced while they wait to be picked up.
type queue struct {
	mu          sync.Mutex
	ch          chan *Job
	pending     map[string]bool
	timers      map[*time.Timer]struct{}
	dead        []Job
	nextID      int64
	outstanding int
	stopped     bool
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = 256
	}
	return &queue{
		ch:      make(chan *Job, size),
		pending: make(map[string]bool),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// push enqueues j and reports whether it was accepted as a new job.
func (q *queue) push(j *Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false, ErrStopped
	}
	key := j.dedupeKey()
	if q.pending[key] {
		return false, nil
	}
	q.nextID++
	j.ID = q.nextID
	j.Status = "queued"
	j.Created = time.Now()
	select {
	case q.ch <- j:
	default:
		return false, ErrQueueFull
	}
	q.pending[key] = true
	q.outstanding++
	return true, nil
}

// take marks j as running so a new job with the same key can be queued.
func (q *queue) take(j *Job) {
	q.mu.Lock()
	delete(q.pending, j.dedupeKey())
	j.Status = "running"
	q.mu.Unlock()
}

// retryAfter puts j back on the queue once d has elapsed.
func (q *queue) retryAfter(j *Job, d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		q.outstanding--
		return
	}
	t := time.Now().Add(d)
	j.NextTryAt = &t
	j.Status = "retry"

	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.timers[timer]; !ok {
			return
		}
		delete(q.timers, timer)
		select {
		case q.ch <- j:
		default:
			q.dead = append(q.dead, *j)
			q.outstanding--
		}
	})
	q.timers[timer] = struct{}{}
}

func (q *queue) done(j *Job) {
	q.mu.Lock()
	j.Status = "done"
	q.outstanding--
	q.mu.Unlock()
}

func (q *queue) moveToDeadLetter(j *Job) {
	q.mu.Lock()
	j.Status = "failed"
	q.dead = append(q.dead, *j)
	q.outstanding--
	q.mu.Unlock()
}

func (q *queue) idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding == 0
}

// stop cancels scheduled retries and rejects new jobs.
func (q *queue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for t := range q.timers {
		if t.Stop() {
			q.outstanding--
		}
		delete(q.timers, t)
	}
}

func (q *queue) deadLetters() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead...)
}
