package store

import (
	"slices"

	"github.com/garnizeh/jobsync/internal/taskview"
	"github.com/garnizeh/jobsync/pkg/models"
)

// Writers below are used by the mutation coordinator. Each one builds a new
// slice and swaps it in.

// ApplyApplications replaces every application matching pred with
// fn(application) and returns how many were replaced. It never removes.
func (s *Store) ApplyApplications(pred func(models.Application) bool, fn func(models.Application) models.Application) int {
	s.mu.Lock()
	n := 0
	next := slices.Clone(s.apps)
	for i := range next {
		if pred(next[i]) {
			next[i] = fn(next[i])
			n++
		}
	}
	if n > 0 {
		s.apps = next
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify(Change{Collection: Applications, Reason: "apply"})
	}
	return n
}

// InsertApplication inserts app at position at, clamped to the list bounds.
func (s *Store) InsertApplication(app models.Application, at int) {
	s.mu.Lock()
	at = max(0, min(at, len(s.apps)))
	s.apps = slices.Insert(slices.Clone(s.apps), at, app)
	s.mu.Unlock()
	s.notify(Change{Collection: Applications, Reason: "insert"})
}

// RemoveApplication removes the application with id and returns it with the
// index it occupied.
func (s *Store) RemoveApplication(id int64) (models.Application, int, bool) {
	s.mu.Lock()
	i := indexApp(s.apps, id)
	if i < 0 {
		s.mu.Unlock()
		return models.Application{}, -1, false
	}
	removed := s.apps[i]
	s.apps = slices.Delete(slices.Clone(s.apps), i, i+1)
	s.mu.Unlock()
	s.notify(Change{Collection: Applications, Reason: "remove"})
	return removed, i, true
}

// RestoreApplication puts a snapshot back: it replaces the application with
// the same id, or re-inserts it at index when it is no longer listed.
func (s *Store) RestoreApplication(app models.Application, index int) {
	s.mu.Lock()
	next := slices.Clone(s.apps)
	if i := indexApp(next, app.ID); i >= 0 {
		next[i] = app
	} else {
		index = max(0, min(index, len(next)))
		next = slices.Insert(next, index, app)
	}
	s.apps = next
	s.mu.Unlock()
	s.notify(Change{Collection: Applications, Reason: "restore"})
}

// ApplyTasks replaces every task of the open application matching pred and
// keeps the list sorted.
func (s *Store) ApplyTasks(pred func(models.Task) bool, fn func(models.Task) models.Task) int {
	s.mu.Lock()
	n := 0
	next := slices.Clone(s.tasks)
	for i := range next {
		if pred(next[i]) {
			next[i] = fn(next[i])
			n++
		}
	}
	if n > 0 {
		s.tasks = taskview.Sort(next)
	}
	s.mu.Unlock()
	if n > 0 {
		s.notify(Change{Collection: Tasks, Reason: "apply"})
	}
	return n
}

// InsertTask adds t to the list when it belongs to the open application,
// replacing a task with the same id. It reports whether the list changed.
func (s *Store) InsertTask(t models.Task) bool {
	s.mu.Lock()
	if t.ApplicationID != s.openApp {
		s.mu.Unlock()
		return false
	}
	s.tasks = taskview.Sort(upsertTask(s.tasks, t))
	s.mu.Unlock()
	s.notify(Change{Collection: Tasks, Reason: "insert"})
	return true
}

// RemoveTask removes the task with id and returns it.
func (s *Store) RemoveTask(id int64) (models.Task, bool) {
	s.mu.Lock()
	i := indexTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return models.Task{}, false
	}
	removed := s.tasks[i]
	s.tasks = slices.Delete(slices.Clone(s.tasks), i, i+1)
	s.mu.Unlock()
	s.notify(Change{Collection: Tasks, Reason: "remove"})
	return removed, true
}

// RestoreTask puts a task snapshot back into the sorted list.
func (s *Store) RestoreTask(t models.Task) {
	s.mu.Lock()
	if t.ApplicationID != s.openApp {
		s.mu.Unlock()
		return
	}
	s.tasks = taskview.Sort(upsertTask(s.tasks, t))
	s.mu.Unlock()
	s.notify(Change{Collection: Tasks, Reason: "restore"})
}

// ReplaceTask swaps the task with id oldID for t, as when a placeholder is
// confirmed by the server.
func (s *Store) ReplaceTask(oldID int64, t models.Task) bool {
	s.mu.Lock()
	i := indexTask(s.tasks, oldID)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	next := slices.Delete(slices.Clone(s.tasks), i, i+1)
	s.tasks = taskview.Sort(upsertTask(next, t))
	s.mu.Unlock()
	s.notify(Change{Collection: Tasks, Reason: "replace"})
	return true
}

func upsertTask(tasks []models.Task, t models.Task) []models.Task {
	next := slices.Clone(tasks)
	if i := indexTask(next, t.ID); i >= 0 {
		next[i] = t
		return next
	}
	return append(next, t)
}

func indexApp(apps []models.Application, id int64) int {
	return slices.IndexFunc(apps, func(a models.Application) bool { return a.ID == id })
}

func indexTask(tasks []models.Task, id int64) int {
	return slices.IndexFunc(tasks, func(t models.Task) bool { return t.ID == id })
}
