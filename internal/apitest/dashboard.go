package apitest

import (
	"net/http"
	"sort"
	"time"

	"github.com/garnizeh/jobsync/pkg/models"
)

const dateLayout = "2006-01-02"

func (b *Backend) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "UP",
		"time":   b.now().Format(time.RFC3339),
	})
}

func (b *Backend) metrics(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	m := models.Metrics{
		Timestamp:    b.now(),
		Users:        int64(len(b.users)),
		Applications: int64(len(b.apps)),
		Tasks:        int64(len(b.tasks)),
		StageEvents:  int64(len(b.events)),
		AuditEvents:  int64(len(b.audit)),
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, m)
}

// tasksOf must be called with b.mu held.
func (b *Backend) tasksOf(uid int64) []models.Task {
	out := make([]models.Task, 0)
	for _, t := range b.tasks {
		if b.owners[t.ApplicationID] == uid {
			out = append(out, t)
		}
	}
	return out
}

func (b *Backend) summary(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	b.mu.Lock()
	apps := b.appsOf(uid)
	tasks := b.tasksOf(uid)
	now := b.now()
	b.mu.Unlock()

	counts := make(map[models.Stage]int64, len(models.Stages()))
	for _, st := range models.Stages() {
		counts[st] = 0
	}
	for _, app := range apps {
		counts[app.Stage]++
	}
	var overdue int64
	for _, t := range tasks {
		if t.Status == models.TaskOpen && t.DueAt != nil && t.DueAt.Before(now) {
			overdue++
		}
	}
	writeJSON(w, http.StatusOK, models.Summary{StageCounts: counts, OverdueTasks: overdue})
}

func (b *Backend) nextActions(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 7, 1, 365)
	if !ok {
		return
	}
	uid := userID(r)
	b.mu.Lock()
	apps := b.appsOf(uid)
	tasks := b.tasksOf(uid)
	now := b.now()
	b.mu.Unlock()

	horizon := now.AddDate(0, 0, days)
	due := make([]models.Task, 0)
	for _, t := range tasks {
		if t.Status != models.TaskOpen || t.DueAt == nil {
			continue
		}
		if !t.DueAt.Before(now) && !t.DueAt.After(horizon) {
			due = append(due, t)
		}
	}
	sortByDue(due)

	cutoff := now.AddDate(0, 0, -days)
	stale := make([]models.Application, 0)
	for _, app := range apps {
		if !app.Stage.IsTerminal() && touched(app).Before(cutoff) {
			stale = append(stale, app)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return touched(stale[i]).Before(touched(stale[j])) })

	writeJSON(w, http.StatusOK, models.NextActions{DueSoonTasks: due, StaleApplications: stale})
}

func (b *Backend) activity(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 7, 1, 365)
	if !ok {
		return
	}
	uid := userID(r)
	b.mu.Lock()
	tasks := b.tasksOf(uid)
	var events []models.StageEvent
	for _, ev := range b.events {
		if b.owners[ev.ApplicationID] == uid {
			events = append(events, ev)
		}
	}
	today := b.now().UTC()
	b.mu.Unlock()

	byDate := make(map[string]*models.ActivityPoint, days)
	items := make([]models.ActivityPoint, days)
	for i := range days {
		d := today.AddDate(0, 0, i-(days-1)).Format(dateLayout)
		items[i] = models.ActivityPoint{Date: d}
		byDate[d] = &items[i]
	}
	for _, ev := range events {
		if p := byDate[ev.CreatedAt.UTC().Format(dateLayout)]; p != nil {
			p.StageTransitions++
		}
	}
	for _, t := range tasks {
		if t.CompletedAt == nil {
			continue
		}
		if p := byDate[t.CompletedAt.UTC().Format(dateLayout)]; p != nil {
			p.TaskCompletions++
		}
	}

	writeJSON(w, http.StatusOK, models.Activity{Days: days, Items: items})
}

func (b *Backend) listAudit(w http.ResponseWriter, r *http.Request) {
	page, ok := queryInt(w, r, "page", 0, 0, 0)
	if !ok {
		return
	}
	size, ok := queryInt(w, r, "size", 25, 1, 100)
	if !ok {
		return
	}
	uid := userID(r)
	b.mu.Lock()
	mine := make([]models.AuditEvent, 0)
	// newest first
	for i := len(b.audit) - 1; i >= 0; i-- {
		if b.audit[i].userID == uid {
			mine = append(mine, b.audit[i].event)
		}
	}
	b.mu.Unlock()

	start := page * size
	if start >= len(mine) {
		writeJSON(w, http.StatusOK, []models.AuditEvent{})
		return
	}
	writeJSON(w, http.StatusOK, mine[start:min(start+size, len(mine))])
}
