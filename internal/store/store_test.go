package store_test

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garnizeh/jobsync/internal/store"
	"github.com/garnizeh/jobsync/pkg/models"
	"github.com/garnizeh/jobsync/pkg/repository"
	"github.com/garnizeh/jobsync/pkg/repository/mock"
)

var now = time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC)

func seeded() *mock.Mocks {
	m := mock.NewMocks()
	m.Now = func() time.Time { return now }
	m.SeedApplication(models.Application{ID: 1, Company: "Acme", Role: "Engineer", Stage: models.StageSaved, CreatedAt: now, UpdatedAt: now})
	m.SeedApplication(models.Application{ID: 2, Company: "Globex", Role: "SRE", Stage: models.StageApplied, CreatedAt: now, UpdatedAt: now})
	due := now.Add(24 * time.Hour)
	m.SeedTask(models.Task{ID: 10, ApplicationID: 1, Title: "Send CV", Status: models.TaskOpen})
	m.SeedTask(models.Task{ID: 11, ApplicationID: 1, Title: "Prep call", Status: models.TaskOpen, DueAt: &due})
	m.SeedTask(models.Task{ID: 12, ApplicationID: 2, Title: "Thank-you note", Status: models.TaskOpen})
	return m
}

func TestLoadApplications_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())

	first, err := s.LoadApplications(ctx, nil)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	second, err := s.LoadApplications(ctx, nil)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("loads differ:\n%+v\n%+v", first, second)
	}
	if len(s.Applications()) != 2 {
		t.Fatalf("expected 2 applications, got %d", len(s.Applications()))
	}
}

func TestLoadApplications_ReplacesWholeList(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := s.Applications()

	m.Apps = m.Apps[:1]
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := s.Applications(); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected only application 1 after reload, got %+v", got)
	}
	// slices handed out earlier are never modified
	if len(before) != 2 {
		t.Fatalf("previous snapshot was mutated: %+v", before)
	}
}

func TestLoadApplications_RemembersFilter(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	applied := models.StageApplied
	apps, err := s.LoadApplications(ctx, &applied)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(apps) != 1 || apps[0].ID != 2 {
		t.Fatalf("unexpected filtered list %+v", apps)
	}
	if f := s.StageFilter(); f == nil || *f != models.StageApplied {
		t.Fatalf("filter not remembered: %v", f)
	}
	apps, err = s.ReloadApplications(ctx)
	if err != nil || len(apps) != 1 {
		t.Fatalf("reload with filter: %v %+v", err, apps)
	}
}

func TestLoadApplications_ErrorKeepsList(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.Fail("ListApplications", &repository.NetworkError{Op: "GET /applications", Err: errors.New("connection refused")})
	if _, err := s.LoadApplications(ctx, nil); err == nil {
		t.Fatalf("expected error")
	}
	st := s.State(store.Applications)
	if st.Loading || st.Err == nil {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(s.Applications()) != 2 {
		t.Fatalf("failed load must not clear the list")
	}
}

func TestStaleLoadIsDiscarded(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)

	var started atomic.Bool
	release := make(chan struct{})
	m.Hook = func(method string) {
		if method == "ListApplications" && started.CompareAndSwap(false, true) {
			<-release
		}
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.LoadApplications(ctx, nil)
		done <- err
	}()
	for !started.Load() {
		time.Sleep(time.Millisecond)
	}

	// a newer load starts and finishes while the first one is blocked
	m.Apps = m.Apps[1:]
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("second load: %v", err)
	}
	m.Apps = append([]models.Application{{ID: 99, Company: "Late", Role: "Old"}}, m.Apps...)
	close(release)

	if err := <-done; !errors.Is(err, store.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if got := s.Applications(); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("late result leaked into the store: %+v", got)
	}
}

func TestLoadTasksFor_SortsAndScopes(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	tasks, err := s.LoadTasksFor(ctx, 1)
	if err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != 11 || tasks[1].ID != 10 {
		t.Fatalf("expected dated task first, got %+v", tasks)
	}
	if s.OpenApplication() != 1 {
		t.Fatalf("open application not set")
	}

	if _, err := s.LoadTasksFor(ctx, 2); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := s.Tasks(); len(got) != 1 || got[0].ID != 12 {
		t.Fatalf("tasks not replaced on switch: %+v", got)
	}
	// tasks of another application are ignored
	if s.InsertTask(models.Task{ID: 50, ApplicationID: 1, Title: "x", Status: models.TaskOpen}) {
		t.Fatalf("inserted a task for a closed application")
	}
}

func TestApplyAndRestoreApplication(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap, idx, ok := s.Application(1)
	if !ok || idx != 0 {
		t.Fatalf("lookup: %v %d", ok, idx)
	}

	n := s.ApplyApplications(
		func(a models.Application) bool { return a.ID == 1 },
		func(a models.Application) models.Application { a.Stage = models.StageApplied; return a },
	)
	if n != 1 {
		t.Fatalf("expected 1 replacement, got %d", n)
	}
	if a, _, _ := s.Application(1); a.Stage != models.StageApplied {
		t.Fatalf("apply did not change stage")
	}

	s.RestoreApplication(snap, idx)
	if a, _, _ := s.Application(1); !reflect.DeepEqual(a, snap) {
		t.Fatalf("restore is not exact:\n%+v\n%+v", a, snap)
	}
}

func TestRemoveAndRestoreKeepsPosition(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := s.Applications()

	removed, idx, ok := s.RemoveApplication(1)
	if !ok || idx != 0 || len(s.Applications()) != 1 {
		t.Fatalf("remove failed")
	}
	s.RestoreApplication(removed, idx)
	if !reflect.DeepEqual(before, s.Applications()) {
		t.Fatalf("restore changed order:\n%+v\n%+v", before, s.Applications())
	}
}

func TestTaskWritersKeepSortOrder(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	if _, err := s.LoadTasksFor(ctx, 1); err != nil {
		t.Fatalf("load tasks: %v", err)
	}
	s.ApplyTasks(
		func(t models.Task) bool { return t.ID == 11 },
		func(t models.Task) models.Task { return t.WithStatus(models.TaskDone, now) },
	)
	if got := s.Tasks(); got[0].ID != 10 || got[1].ID != 11 {
		t.Fatalf("done task should sort last: %+v", got)
	}

	if !s.InsertTask(models.Task{ID: -1, ApplicationID: 1, Title: "Placeholder", Status: models.TaskOpen}) {
		t.Fatalf("insert failed")
	}
	if !s.ReplaceTask(-1, models.Task{ID: 13, ApplicationID: 1, Title: "Placeholder", Status: models.TaskOpen}) {
		t.Fatalf("replace failed")
	}
	if _, _, ok := s.Task(-1); ok {
		t.Fatalf("placeholder still present")
	}
	removed, ok := s.RemoveTask(13)
	if !ok {
		t.Fatalf("remove failed")
	}
	s.RestoreTask(removed)
	if _, _, ok := s.Task(13); !ok {
		t.Fatalf("restore failed")
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	s := store.New(seeded())
	var got []store.Change
	cancel := s.Subscribe(func(c store.Change) { got = append(got, c) })

	if _, err := s.LoadApplications(ctx, nil); err != nil {
		t.Fatalf("load: %v", err)
	}
	s.RemoveApplication(2)
	cancel()
	s.RemoveApplication(1)

	if len(got) != 2 || got[0].Collection != store.Applications || got[1].Reason != "remove" {
		t.Fatalf("unexpected changes %+v", got)
	}
}

func TestAuditSelectionDefaultsToFirst(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	m.Audit = []models.AuditEvent{
		{ID: 3, Type: models.AuditStageChanged, EntityType: "application", Payload: "{}", CreatedAt: now},
		{ID: 2, Type: models.AuditTaskCreated, EntityType: "task", Payload: "{}", CreatedAt: now},
	}
	s := store.New(m)
	if _, err := s.LoadAudit(ctx, 0, 25); err != nil {
		t.Fatalf("load audit: %v", err)
	}
	if e, ok := s.SelectedAudit(); !ok || e.ID != 3 {
		t.Fatalf("expected first event selected, got %+v", e)
	}
	s.SelectAudit(2)
	if e, _ := s.SelectedAudit(); e.ID != 2 {
		t.Fatalf("expected event 2, got %d", e.ID)
	}
}

func TestLoadStageEvents(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	if _, err := m.TransitionStage(ctx, 1, models.StageApplied); err != nil {
		t.Fatalf("seed transition: %v", err)
	}
	s := store.New(m)
	events, err := s.LoadStageEvents(ctx, 1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 1 || *events[0].ToStage != models.StageApplied {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestReloadTasks_SkipsWhenAnotherApplicationIsOpen(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)
	if _, err := s.LoadTasksFor(ctx, 2); err != nil {
		t.Fatalf("load: %v", err)
	}
	calls := m.Calls("ListTasks")

	if _, err := s.ReloadTasks(ctx, 1); !errors.Is(err, store.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if _, err := s.ReloadStageEvents(ctx, 1); !errors.Is(err, store.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if s.OpenApplication() != 2 {
		t.Fatalf("reload switched the open application to %d", s.OpenApplication())
	}
	if m.Calls("ListTasks") != calls || m.Calls("ListStageEvents") != 0 {
		t.Fatalf("reload of a closed application reached the server")
	}
	if tasks := s.Tasks(); len(tasks) != 1 || tasks[0].ApplicationID != 2 {
		t.Fatalf("tasks of the open application were replaced: %+v", tasks)
	}
}

func TestReloadTasks_DoesNotSupersedeLoadInFlight(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)

	var reloadErr error
	var once atomic.Bool
	m.Hook = func(method string) {
		if method == "ListTasks" && once.CompareAndSwap(false, true) {
			_, reloadErr = s.ReloadTasks(ctx, 1)
		}
	}
	tasks, err := s.LoadTasksFor(ctx, 1)
	if err != nil {
		t.Fatalf("load was superseded by a background reload: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %+v", tasks)
	}
	if !errors.Is(reloadErr, store.ErrSuperseded) {
		t.Fatalf("expected reload to step aside, got %v", reloadErr)
	}
}

func TestReloadTasks_RefreshesOpenApplication(t *testing.T) {
	ctx := context.Background()
	m := seeded()
	s := store.New(m)
	if _, err := s.LoadTasksFor(ctx, 1); err != nil {
		t.Fatalf("load: %v", err)
	}
	m.SeedTask(models.Task{ID: 13, ApplicationID: 1, Title: "Negotiate", Status: models.TaskOpen})

	tasks, err := s.ReloadTasks(ctx, 1)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(tasks) != 3 || len(s.Tasks()) != 3 {
		t.Fatalf("expected 3 tasks after reload, got %+v", tasks)
	}
}
