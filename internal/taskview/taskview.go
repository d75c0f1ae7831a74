// Package taskview derives filtered, time-bucketed and ordered task lists.
// Everything here is a pure function of its inputs.
package taskview

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
)

type Filter string

const (
	All      Filter = "ALL"
	DueToday Filter = "DUE_TODAY"
	DueWeek  Filter = "DUE_WEEK"
	Overdue  Filter = "OVERDUE"
	Done     Filter = "DONE"
)

// Filters lists every filter in display order.
func Filters() []Filter {
	return []Filter{All, DueToday, DueWeek, Overdue, Done}
}

// ParseFilter accepts "due-today", "DUE_TODAY", "overdue", ...
func ParseFilter(s string) (Filter, error) {
	f := Filter(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if slices.Contains(Filters(), f) {
		return f, nil
	}
	return "", &models.ValidationError{Field: "filter", Message: fmt.Sprintf("unknown task filter %q", s)}
}

// StartOfDay returns midnight of t's day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfWeek returns midnight of the Monday on or before t.
func StartOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7 // Sunday -> 6
	return StartOfDay(t).AddDate(0, 0, -offset)
}

// Match reports whether task belongs to filter at time now.
func Match(task models.Task, filter Filter, now time.Time) bool {
	if filter == All {
		return true
	}
	if filter == Done {
		return task.Status == models.TaskDone
	}
	if task.Status != models.TaskOpen || task.DueAt == nil {
		return false
	}

	due := *task.DueAt
	today := StartOfDay(now)
	switch filter {
	case DueToday:
		return !due.Before(today) && due.Before(today.AddDate(0, 0, 1))
	case DueWeek:
		// past-due tasks belong to OVERDUE only, so the window starts today
		// rather than on Monday
		end := StartOfWeek(now).AddDate(0, 0, 7)
		return !due.Before(today) && due.Before(end)
	case Overdue:
		return due.Before(today)
	}
	return false
}

// Apply returns the tasks matching filter, keeping their relative order.
func Apply(tasks []models.Task, filter Filter, now time.Time) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if Match(t, filter, now) {
			out = append(out, t)
		}
	}
	return out
}

// Buckets applies every filter at once.
func Buckets(tasks []models.Task, now time.Time) map[Filter][]models.Task {
	out := make(map[Filter][]models.Task, len(Filters()))
	for _, f := range Filters() {
		out[f] = Apply(tasks, f, now)
	}
	return out
}

// Compare orders OPEN before DONE, then by ascending due date with undated
// tasks last, then by ascending id. Distinct ids never compare equal.
func Compare(a, b models.Task) int {
	if a.Status != b.Status {
		if a.Status == models.TaskOpen {
			return -1
		}
		if b.Status == models.TaskOpen {
			return 1
		}
		return strings.Compare(string(a.Status), string(b.Status))
	}
	switch {
	case a.DueAt == nil && b.DueAt != nil:
		return 1
	case a.DueAt != nil && b.DueAt == nil:
		return -1
	case a.DueAt != nil && b.DueAt != nil:
		if c := a.DueAt.Compare(*b.DueAt); c != 0 {
			return c
		}
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Sort returns a sorted copy of tasks.
func Sort(tasks []models.Task) []models.Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, Compare)
	return out
}
