package apitest

import (
	"net/http"
	"sort"
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
)

type statusRequest struct {
	Status string `json:"status"`
}

// ownedTask must be called with b.mu held.
func (b *Backend) ownedTask(r *http.Request, id int64) (models.Task, bool) {
	t, ok := b.tasks[id]
	if !ok || b.owners[t.ApplicationID] != userID(r) {
		return models.Task{}, false
	}
	return t, true
}

// sortByDue orders tasks by due date ascending, undated last.
func sortByDue(tasks []models.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		a, c := tasks[i].DueAt, tasks[j].DueAt
		switch {
		case a == nil && c == nil:
			return tasks[i].ID < tasks[j].ID
		case a == nil:
			return false
		case c == nil:
			return true
		case !a.Equal(*c):
			return a.Before(*c)
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func (b *Backend) listTasks(w http.ResponseWriter, r *http.Request) {
	appID := pathID(r)
	b.mu.Lock()
	if _, ok := b.ownedApp(r, appID); !ok {
		b.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}
	out := make([]models.Task, 0)
	for _, t := range b.tasks {
		if t.ApplicationID == appID {
			out = append(out, t)
		}
	}
	b.mu.Unlock()

	sortByDue(out)
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createTask(w http.ResponseWriter, r *http.Request) {
	var in models.TaskInput
	if !decode(w, r, &in) {
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	appID := pathID(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	app, ok := b.ownedApp(r, appID)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}

	now := b.now()
	t := in.Apply(models.Task{
		ID:            b.id(),
		ApplicationID: appID,
		Status:        models.TaskOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	b.tasks[t.ID] = t
	b.touch(app, now)
	b.record(userID(r), models.AuditTaskCreated, "task", t.ID, map[string]any{
		"applicationId": appID,
		"title":         t.Title,
	})

	writeJSON(w, http.StatusCreated, t)
}

func (b *Backend) updateTask(w http.ResponseWriter, r *http.Request) {
	var in models.TaskInput
	if !decode(w, r, &in) {
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.ownedTask(r, pathID(r))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Task not found", nil)
		return
	}
	now := b.now()
	t = in.Apply(t)
	t.UpdatedAt = now
	b.tasks[t.ID] = t
	b.touch(b.apps[t.ApplicationID], now)

	writeJSON(w, http.StatusOK, t)
}

func (b *Backend) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := models.ParseTaskStatus(req.Status)
	if err != nil {
		writeValidation(w, r, err)
		return
	}

	uid := userID(r)
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.ownedTask(r, pathID(r))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Task not found", nil)
		return
	}
	now := b.now()
	completing := t.Status != models.TaskDone && status == models.TaskDone
	t = t.WithStatus(status, now)
	b.tasks[t.ID] = t
	b.touch(b.apps[t.ApplicationID], now)
	if completing {
		b.record(uid, models.AuditTaskComplete, "task", t.ID, map[string]any{
			"applicationId": t.ApplicationID,
		})
	}

	writeJSON(w, http.StatusOK, t)
}

func (b *Backend) deleteTask(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	t, ok := b.ownedTask(r, pathID(r))
	if ok {
		delete(b.tasks, t.ID)
	}
	b.mu.Unlock()

	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Task not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// touch bumps an application's lastTouchAt. Caller holds b.mu.
func (b *Backend) touch(app models.Application, now time.Time) {
	if app.ID == 0 {
		return
	}
	app.LastTouchAt = &now
	app.UpdatedAt = now
	b.apps[app.ID] = app
}
