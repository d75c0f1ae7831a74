// Package dashboard aggregates the server-side summary, next actions and
// activity feeds and derives the histogram shown on the dashboard.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

// ErrSuperseded is returned by a refresh whose result lost to a newer one.
var ErrSuperseded = errors.New("dashboard refresh superseded")

// Remote is what the dashboard reads from.
type Remote interface {
	repository.DashboardRepo
	ListStale(ctx context.Context, days int) ([]models.Application, error)
}

// Snapshot is one consistent set of dashboard payloads.
type Snapshot struct {
	Summary     models.Summary
	NextActions models.NextActions
	Activity    models.Activity
	FetchedAt   time.Time
}

type Options struct {
	NextActionsDays int
	ActivityDays    int
	StaleDays       int
	Now             func() time.Time
}

type Dashboard struct {
	remote Remote
	now    func() time.Time

	mu           sync.Mutex
	gen          uint64
	snap         Snapshot
	loaded       bool
	loading      bool
	err          error
	nextDays     int
	activityDays int

	staleGen  uint64
	staleDays int
	stale     []models.Application
	staleErr  error
}

func New(remote Remote, opts Options) *Dashboard {
	if opts.NextActionsDays <= 0 {
		opts.NextActionsDays = 7
	}
	if opts.ActivityDays != 30 {
		opts.ActivityDays = 7
	}
	if opts.StaleDays <= 0 {
		opts.StaleDays = 14
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Dashboard{
		remote:       remote,
		now:          opts.Now,
		nextDays:     opts.NextActionsDays,
		activityDays: opts.ActivityDays,
		staleDays:    opts.StaleDays,
		stale:        []models.Application{},
	}
}

// SetWindows changes the next-actions and activity windows used by the next
// Refresh. The activity window must be 7 or 30 days.
func (d *Dashboard) SetWindows(nextActionsDays, activityDays int) error {
	if nextActionsDays < 1 {
		return &models.ValidationError{Field: "days", Message: "Next actions window must be at least 1 day."}
	}
	if activityDays != 7 && activityDays != 30 {
		return &models.ValidationError{Field: "days", Message: "Activity window must be 7 or 30 days."}
	}
	d.mu.Lock()
	d.nextDays = nextActionsDays
	d.activityDays = activityDays
	d.mu.Unlock()
	return nil
}

// Windows returns the next-actions and activity windows in days.
func (d *Dashboard) Windows() (nextActionsDays, activityDays int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextDays, d.activityDays
}

// Refresh fetches the three dashboard payloads in parallel. Either all of
// them replace the current snapshot or none does.
func (d *Dashboard) Refresh(ctx context.Context) (Snapshot, error) {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.loading = true
	nextDays, activityDays := d.nextDays, d.activityDays
	d.mu.Unlock()

	var (
		summary  models.Summary
		next     models.NextActions
		activity models.Activity
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = d.remote.Summary(gctx)
		if err != nil {
			return fmt.Errorf("dashboard summary: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		next, err = d.remote.NextActions(gctx, nextDays)
		if err != nil {
			return fmt.Errorf("dashboard next actions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		activity, err = d.remote.Activity(gctx, activityDays)
		if err != nil {
			return fmt.Errorf("dashboard activity: %w", err)
		}
		return nil
	})
	err := g.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{}, ErrSuperseded
	}
	d.loading = false
	d.err = err
	if err != nil {
		return Snapshot{}, err
	}
	if summary.StageCounts == nil {
		summary.StageCounts = map[models.Stage]int64{}
	}
	d.snap = Snapshot{Summary: summary, NextActions: next, Activity: activity, FetchedAt: d.now()}
	d.loaded = true
	return d.snap, nil
}

// Snapshot returns the last committed snapshot and whether one exists.
func (d *Dashboard) Snapshot() (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap, d.loaded
}

// Loading reports whether a refresh is in flight and the last refresh error.
func (d *Dashboard) Loading() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loading, d.err
}

// DecrementStage lowers the count of stage by one, never below zero. It is
// applied after a confirmed delete so the totals drop before the next Refresh.
func (d *Dashboard) DecrementStage(stage models.Stage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		return
	}
	counts := maps.Clone(d.snap.Summary.StageCounts)
	if counts[stage] > 0 {
		counts[stage]--
	}
	d.snap.Summary.StageCounts = counts
}

// Total is the sum of all stage counts.
func (d *Dashboard) Total() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int64
	for _, c := range d.snap.Summary.StageCounts {
		n += c
	}
	return n
}

// StageCount returns the count for one stage, 0 when absent.
func (d *Dashboard) StageCount(stage models.Stage) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap.Summary.StageCounts[stage]
}

// Bars returns the histogram of the current snapshot ending today.
func (d *Dashboard) Bars() []Bar {
	d.mu.Lock()
	activity, days := d.snap.Activity, d.activityDays
	d.mu.Unlock()
	return Histogram(activity, days, d.now())
}
