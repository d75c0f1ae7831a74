package dashboard

import (
	"context"
	"fmt"
	"slices"

	"github.com/garnizeh/jobsync/pkg/models"
)

// StaleDays returns the current staleness threshold.
func (d *Dashboard) StaleDays() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staleDays
}

// Stale returns the applications untouched for longer than StaleDays, as of
// the last stale refresh.
func (d *Dashboard) Stale() []models.Application {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stale
}

// SetStaleDays changes the threshold and reloads the stale list.
func (d *Dashboard) SetStaleDays(ctx context.Context, days int) ([]models.Application, error) {
	if days < 1 {
		return nil, &models.ValidationError{Field: "days", Message: "Stale threshold must be at least 1 day."}
	}
	d.mu.Lock()
	d.staleDays = days
	d.mu.Unlock()
	return d.RefreshStale(ctx)
}

// RefreshStale reloads the stale list with the current threshold.
func (d *Dashboard) RefreshStale(ctx context.Context) ([]models.Application, error) {
	d.mu.Lock()
	d.staleGen++
	gen, days := d.staleGen, d.staleDays
	d.mu.Unlock()

	apps, err := d.remote.ListStale(ctx, days)
	if err != nil {
		err = fmt.Errorf("stale applications: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.staleGen != gen {
		if err != nil {
			return nil, err
		}
		return nil, ErrSuperseded
	}
	d.staleErr = err
	if err != nil {
		return nil, err
	}
	d.stale = slices.Clone(apps)
	if d.stale == nil {
		d.stale = []models.Application{}
	}
	return d.stale, nil
}
