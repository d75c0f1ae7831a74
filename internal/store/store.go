// Package store holds the single in-memory copy of the signed-in user's
// applications, tasks, stage history and audit feed.
//
// Every write replaces a whole slice under the store mutex, so the slices
// handed to readers are never modified afterwards and must be treated as
// read-only.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/garnizeh/jobsync/internal/taskview"
	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
)

var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger replaces the package logger.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// ErrSuperseded is returned by a load whose result was discarded because a
// newer load of the same collection started before it finished.
var ErrSuperseded = errors.New("load superseded by a newer request")

// Collection names one of the store's lists.
type Collection int

const (
	Applications Collection = iota
	Tasks
	StageEvents
	Audit
	numCollections
)

func (c Collection) String() string {
	switch c {
	case Applications:
		return "applications"
	case Tasks:
		return "tasks"
	case StageEvents:
		return "stage_events"
	case Audit:
		return "audit"
	}
	return fmt.Sprintf("collection(%d)", int(c))
}

// Ticket identifies one load. Results carrying an outdated ticket are dropped.
type Ticket struct {
	coll Collection
	gen  uint64
}

// State is the loading status of a collection.
type State struct {
	Loading bool
	Err     error
}

// Change is delivered to subscribers after every write.
type Change struct {
	Collection Collection
	Reason     string
}

// Remote is the subset of the API the store loads from.
type Remote interface {
	repository.ApplicationRepo
	repository.TaskRepo
	repository.StageEventRepo
	repository.AuditRepo
}

type Store struct {
	remote Remote

	mu          sync.Mutex
	apps        []models.Application
	tasks       []models.Task
	events      []models.StageEvent
	audit       []models.AuditEvent
	stageFilter *models.Stage
	openApp     int64
	selected    int64
	gens        [numCollections]uint64
	states      [numCollections]State

	subs    map[int]func(Change)
	nextSub int
}

func New(remote Remote) *Store {
	return &Store{
		remote: remote,
		apps:   []models.Application{},
		tasks:  []models.Task{},
		events: []models.StageEvent{},
		audit:  []models.AuditEvent{},
		subs:   make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called after every change. fn runs on the
// writer's goroutine without the store lock held.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// BeginLoad starts a load of c, invalidating any load already in flight.
func (s *Store) BeginLoad(c Collection) Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(c)
}

func (s *Store) beginLocked(c Collection) Ticket {
	s.gens[c]++
	s.states[c] = State{Loading: true}
	return Ticket{coll: c, gen: s.gens[c]}
}

// finishLocked records the outcome of t and reports whether it may be
// committed.
func (s *Store) finishLocked(t Ticket, err error) bool {
	if s.gens[t.coll] != t.gen {
		logger.Debug("discarding stale load", "collection", t.coll.String())
		return false
	}
	s.states[t.coll] = State{Err: err}
	return err == nil
}

// State returns the loading status of c.
func (s *Store) State(c Collection) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[c]
}

func (s *Store) Applications() []models.Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps
}

func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks
}

func (s *Store) StageEvents() []models.StageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events
}

func (s *Store) AuditEvents() []models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audit
}

// StageFilter returns the filter of the last applications load, nil for all.
func (s *Store) StageFilter() *models.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stageFilter
}

// OpenApplication returns the id whose tasks and history are loaded, 0 if none.
func (s *Store) OpenApplication() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openApp
}

// Application looks up an application and its position in the list.
func (s *Store) Application(id int64) (models.Application, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexApp(s.apps, id)
	if i < 0 {
		return models.Application{}, -1, false
	}
	return s.apps[i], i, true
}

// Task looks up a task of the open application and its position.
func (s *Store) Task(id int64) (models.Task, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexTask(s.tasks, id)
	if i < 0 {
		return models.Task{}, -1, false
	}
	return s.tasks[i], i, true
}

// LoadApplications replaces the application list with the server's, filtered
// by stage when stage is non-nil. The filter is remembered for Reload.
func (s *Store) LoadApplications(ctx context.Context, stage *models.Stage) ([]models.Application, error) {
	s.mu.Lock()
	if stage != nil {
		st := *stage
		s.stageFilter = &st
	} else {
		s.stageFilter = nil
	}
	t := s.beginLocked(Applications)
	s.mu.Unlock()

	apps, err := s.remote.ListApplications(ctx, stage)
	if err != nil {
		err = fmt.Errorf("load applications: %w", err)
	}
	s.mu.Lock()
	ok := s.finishLocked(t, err)
	if ok {
		s.apps = slices.Clone(apps)
		if s.apps == nil {
			s.apps = []models.Application{}
		}
		apps = s.apps
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSuperseded
	}
	s.notify(Change{Collection: Applications, Reason: "load"})
	return apps, nil
}

// ReloadApplications repeats the last applications load with the same filter.
func (s *Store) ReloadApplications(ctx context.Context) ([]models.Application, error) {
	return s.LoadApplications(ctx, s.StageFilter())
}

// open switches the open application. Loads in flight for the previous one
// are invalidated and its tasks and history cleared.
func (s *Store) openLocked(id int64) {
	if s.openApp == id {
		return
	}
	s.openApp = id
	s.gens[Tasks]++
	s.gens[StageEvents]++
	s.states[Tasks] = State{}
	s.states[StageEvents] = State{}
	s.tasks = []models.Task{}
	s.events = []models.StageEvent{}
}

// LoadTasksFor opens the application and replaces its task list with the
// server's, sorted.
func (s *Store) LoadTasksFor(ctx context.Context, applicationID int64) ([]models.Task, error) {
	s.mu.Lock()
	s.openLocked(applicationID)
	t := s.beginLocked(Tasks)
	s.mu.Unlock()
	return s.loadTasks(ctx, t, applicationID)
}

// ReloadTasks refreshes the task list only if applicationID is still the open
// application and no other task load is running. Otherwise it returns
// ErrSuperseded without touching the store.
func (s *Store) ReloadTasks(ctx context.Context, applicationID int64) ([]models.Task, error) {
	s.mu.Lock()
	if s.openApp != applicationID || s.states[Tasks].Loading {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	t := s.beginLocked(Tasks)
	s.mu.Unlock()
	return s.loadTasks(ctx, t, applicationID)
}

func (s *Store) loadTasks(ctx context.Context, t Ticket, applicationID int64) ([]models.Task, error) {
	tasks, err := s.remote.ListTasks(ctx, applicationID)
	if err != nil {
		err = fmt.Errorf("load tasks for application %d: %w", applicationID, err)
	}
	s.mu.Lock()
	ok := s.finishLocked(t, err)
	if ok {
		s.tasks = taskview.Sort(tasks)
		if s.tasks == nil {
			s.tasks = []models.Task{}
		}
		tasks = s.tasks
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSuperseded
	}
	s.notify(Change{Collection: Tasks, Reason: "load"})
	return tasks, nil
}

// LoadStageEvents opens the application and replaces its stage history.
func (s *Store) LoadStageEvents(ctx context.Context, applicationID int64) ([]models.StageEvent, error) {
	s.mu.Lock()
	s.openLocked(applicationID)
	t := s.beginLocked(StageEvents)
	s.mu.Unlock()
	return s.loadStageEvents(ctx, t, applicationID)
}

// ReloadStageEvents is ReloadTasks for the stage history.
func (s *Store) ReloadStageEvents(ctx context.Context, applicationID int64) ([]models.StageEvent, error) {
	s.mu.Lock()
	if s.openApp != applicationID || s.states[StageEvents].Loading {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	t := s.beginLocked(StageEvents)
	s.mu.Unlock()
	return s.loadStageEvents(ctx, t, applicationID)
}

func (s *Store) loadStageEvents(ctx context.Context, t Ticket, applicationID int64) ([]models.StageEvent, error) {
	events, err := s.remote.ListStageEvents(ctx, applicationID)
	if err != nil {
		err = fmt.Errorf("load stage history for application %d: %w", applicationID, err)
	}
	s.mu.Lock()
	ok := s.finishLocked(t, err)
	if ok {
		s.events = slices.Clone(events)
		if s.events == nil {
			s.events = []models.StageEvent{}
		}
		events = s.events
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSuperseded
	}
	s.notify(Change{Collection: StageEvents, Reason: "load"})
	return events, nil
}

// LoadAudit replaces the audit feed with one page of events, newest first.
func (s *Store) LoadAudit(ctx context.Context, page, size int) ([]models.AuditEvent, error) {
	t := s.BeginLoad(Audit)

	events, err := s.remote.ListAuditEvents(ctx, page, size)
	if err != nil {
		err = fmt.Errorf("load audit page %d: %w", page, err)
	}
	s.mu.Lock()
	ok := s.finishLocked(t, err)
	if ok {
		s.audit = slices.Clone(events)
		if s.audit == nil {
			s.audit = []models.AuditEvent{}
		}
		events = s.audit
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSuperseded
	}
	s.notify(Change{Collection: Audit, Reason: "load"})
	return events, nil
}

// SelectAudit marks an audit event as selected.
func (s *Store) SelectAudit(id int64) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

// SelectedAudit returns the selected audit event, or the first one when the
// selection is not in the current page.
func (s *Store) SelectedAudit() (models.AuditEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.audit {
		if e.ID == s.selected {
			return e, true
		}
	}
	if len(s.audit) > 0 {
		return s.audit[0], true
	}
	return models.AuditEvent{}, false
}
