package apitest

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/garnizeh/jobsync/internal/lifecycle"
	"github.com/garnizeh/jobsync/pkg/models"
)

type stageRequest struct {
	Stage string  `json:"stage"`
	Note  *string `json:"note"`
}

// ownedApp must be called with b.mu held.
func (b *Backend) ownedApp(r *http.Request, id int64) (models.Application, bool) {
	app, ok := b.apps[id]
	if !ok || b.owners[id] != userID(r) {
		return models.Application{}, false
	}
	return app, true
}

func (b *Backend) appsOf(uid int64) []models.Application {
	out := make([]models.Application, 0)
	for id, app := range b.apps {
		if b.owners[id] == uid {
			out = append(out, app)
		}
	}
	return out
}

func (b *Backend) listApplications(w http.ResponseWriter, r *http.Request) {
	var stage *models.Stage
	if raw := r.URL.Query().Get("stage"); raw != "" {
		st, err := models.ParseStage(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_parameter", "Invalid value for stage", nil)
			return
		}
		stage = &st
	}

	b.mu.Lock()
	all := b.appsOf(userID(r))
	b.mu.Unlock()

	out := make([]models.Application, 0, len(all))
	for _, app := range all {
		if stage == nil || app.Stage == *stage {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := touched(out[i]), touched(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID > out[j].ID
	})
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createApplication(w http.ResponseWriter, r *http.Request) {
	var in models.ApplicationInput
	if !decode(w, r, &in) {
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	b.mu.Lock()
	now := b.now()
	app := in.Apply(models.Application{
		ID:          b.id(),
		Stage:       models.StageSaved,
		LastTouchAt: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	b.apps[app.ID] = app
	b.owners[app.ID] = userID(r)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, app)
}

func (b *Backend) updateApplication(w http.ResponseWriter, r *http.Request) {
	var in models.ApplicationInput
	if !decode(w, r, &in) {
		return
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		writeValidation(w, r, err)
		return
	}

	b.mu.Lock()
	app, ok := b.ownedApp(r, pathID(r))
	if !ok {
		b.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}
	now := b.now()
	app = in.Apply(app)
	app.LastTouchAt = &now
	app.UpdatedAt = now
	b.apps[app.ID] = app
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, app)
}

func (b *Backend) deleteApplication(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	b.mu.Lock()
	if _, ok := b.ownedApp(r, id); !ok {
		b.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}
	delete(b.apps, id)
	delete(b.owners, id)
	for tid, t := range b.tasks {
		if t.ApplicationID == id {
			delete(b.tasks, tid)
		}
	}
	kept := b.events[:0]
	for _, ev := range b.events {
		if ev.ApplicationID != id {
			kept = append(kept, ev)
		}
	}
	b.events = kept
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) transitionStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if !decode(w, r, &req) {
		return
	}
	to, err := models.ParseStage(req.Stage)
	if err != nil {
		writeValidation(w, r, err)
		return
	}

	uid := userID(r)
	b.mu.Lock()
	defer b.mu.Unlock()

	app, ok := b.ownedApp(r, pathID(r))
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}
	if app.Stage == to {
		writeError(w, r, http.StatusBadRequest, "invalid_parameter", "Stage is already set", nil)
		return
	}
	if b.opts.EnforceTransitions && !lifecycle.CanTransition(app.Stage, to) {
		writeError(w, r, http.StatusConflict, "invalid_transition",
			"Cannot move from "+string(app.Stage)+" to "+string(to), nil)
		return
	}

	now := b.now()
	from := app.Stage
	actor := "user:" + strconv.FormatInt(uid, 10)
	app.Stage = to
	app.StageChangedAt = &now
	app.LastTouchAt = &now
	app.UpdatedAt = now
	b.apps[app.ID] = app

	b.events = append(b.events, models.StageEvent{
		ID:            b.id(),
		ApplicationID: app.ID,
		FromStage:     &from,
		ToStage:       &to,
		Note:          req.Note,
		Actor:         &actor,
		CreatedAt:     now,
	})
	b.record(uid, models.AuditStageChanged, "application", app.ID, map[string]string{
		"fromStage": string(from),
		"toStage":   string(to),
		"actor":     actor,
	})

	writeJSON(w, http.StatusOK, app)
}

func (b *Backend) listStale(w http.ResponseWriter, r *http.Request) {
	days, ok := queryInt(w, r, "days", 14, 1, 0)
	if !ok {
		return
	}
	b.mu.Lock()
	all := b.appsOf(userID(r))
	cutoff := b.now().AddDate(0, 0, -days)
	b.mu.Unlock()

	out := make([]models.Application, 0)
	for _, app := range all {
		if touched(app).Before(cutoff) {
			out = append(out, app)
		}
	}
	sort.Slice(out, func(i, j int) bool { return touched(out[i]).Before(touched(out[j])) })
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) listStageEvents(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	b.mu.Lock()
	if _, ok := b.ownedApp(r, id); !ok {
		b.mu.Unlock()
		writeError(w, r, http.StatusNotFound, "not_found", "Application not found", nil)
		return
	}
	out := make([]models.StageEvent, 0)
	for _, ev := range b.events {
		if ev.ApplicationID == id {
			out = append(out, ev)
		}
	}
	b.mu.Unlock()

	// newest first
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	writeJSON(w, http.StatusOK, out)
}

// record appends an audit event. Caller holds b.mu.
func (b *Backend) record(uid int64, typ, entity string, entityID int64, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte("{}")
	}
	eid := entityID
	b.audit = append(b.audit, auditRow{userID: uid, event: models.AuditEvent{
		ID:         b.id(),
		Type:       typ,
		EntityType: entity,
		EntityID:   &eid,
		Payload:    string(raw),
		CreatedAt:  b.now(),
	}})
}

func touched(app models.Application) (t time.Time) {
	if app.LastTouchAt != nil {
		return *app.LastTouchAt
	}
	return app.CreatedAt
}
