package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/garnizeh/jobsync/internal/apitest"
	"github.com/garnizeh/jobsync/pkg/gateway"
	"github.com/garnizeh/jobsync/pkg/models"
)

type cli struct {
	t       *testing.T
	baseURL string
	session string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	for _, k := range []string{"JOBSYNC_TOKEN", "JOBSYNC_REFRESH_TOKEN", "JOBSYNC_BASE_URL", "JOBSYNC_CONFIG"} {
		t.Setenv(k, "")
	}
	t.Setenv("JOBSYNC_LOG_LEVEL", "error")
	srv := apitest.New(apitest.Options{}).Start()
	t.Cleanup(srv.Close)
	return &cli{t: t, baseURL: srv.URL + "/api", session: filepath.Join(t.TempDir(), "session.yaml")}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--base-url", c.baseURL, "--session", c.session}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (c *cli) must(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	if err != nil {
		c.t.Fatalf("jobtrack %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decodeJSON[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestCLI_SessionIsPersisted(t *testing.T) {
	c := newCLI(t)

	out := c.must("signup", "--email", "ada@example.com", "--password", "correct-horse")
	if !strings.Contains(out, "Signed up as ada@example.com") {
		t.Fatalf("unexpected signup output: %q", out)
	}
	if _, err := os.Stat(c.session); err != nil {
		t.Fatalf("expected session file: %v", err)
	}

	out = c.must("whoami")
	if !strings.Contains(out, "ada@example.com") || !strings.Contains(out, "session expires") {
		t.Fatalf("unexpected whoami output: %q", out)
	}

	c.must("logout")
	if _, err := os.Stat(c.session); !os.IsNotExist(err) {
		t.Fatalf("expected session file removed, got %v", err)
	}
	if _, err := c.run("whoami"); !errors.Is(err, gateway.ErrNotSignedIn) {
		t.Fatalf("expected ErrNotSignedIn, got %v", err)
	}

	c.must("login", "--email", "ada@example.com", "--password", "correct-horse")
	c.must("whoami")
}

func TestCLI_ApplicationsAndTasks(t *testing.T) {
	c := newCLI(t)
	c.must("signup", "--email", "ada@example.com", "--password", "correct-horse")

	app := decodeJSON[models.Application](t, c.must("--json", "apps", "create", "--company", "Acme", "--role", "Engineer"))
	if app.ID <= 0 || app.Stage != models.StageSaved {
		t.Fatalf("unexpected app: %+v", app)
	}
	id := strconv.FormatInt(app.ID, 10)

	if _, err := c.run("apps", "move", id, "offer"); err == nil {
		t.Fatalf("expected SAVED -> OFFER to be refused")
	}
	out := c.must("apps", "move", id, "applied")
	if !strings.Contains(out, "is now APPLIED") {
		t.Fatalf("unexpected move output: %q", out)
	}

	c.must("apps", "update", id, "--location", "Remote")
	apps := decodeJSON[[]models.Application](t, c.must("--json", "apps", "list", "--stage", "applied"))
	if len(apps) != 1 || apps[0].Location == nil || *apps[0].Location != "Remote" || apps[0].Company != "Acme" {
		t.Fatalf("unexpected list: %+v", apps)
	}

	history := decodeJSON[[]models.StageEvent](t, c.must("--json", "apps", "history", id))
	if len(history) != 1 || *history[0].ToStage != models.StageApplied {
		t.Fatalf("unexpected history: %+v", history)
	}

	due := time.Now().Add(48 * time.Hour).Format("2006-01-02")
	task := decodeJSON[models.Task](t, c.must("--json", "tasks", "add", id, "--title", "Follow up", "--due", due))
	tid := strconv.FormatInt(task.ID, 10)

	out = c.must("tasks", "done", id, tid)
	if !strings.Contains(out, "is DONE") {
		t.Fatalf("unexpected done output: %q", out)
	}
	done := decodeJSON[[]models.Task](t, c.must("--json", "tasks", "list", id, "--filter", "done"))
	if len(done) != 1 || done[0].ID != task.ID {
		t.Fatalf("unexpected done list: %+v", done)
	}
	c.must("tasks", "reopen", id, tid)
	c.must("tasks", "delete", id, tid)
	if left := decodeJSON[[]models.Task](t, c.must("--json", "tasks", "list", id)); len(left) != 0 {
		t.Fatalf("expected no tasks, got %+v", left)
	}

	out = c.must("dashboard", "--activity", "30")
	if !strings.Contains(out, "APPLIED") || !strings.Contains(out, "last 30 days") {
		t.Fatalf("unexpected dashboard output: %q", out)
	}
	if _, err := c.run("dashboard", "--activity", "14"); err == nil {
		t.Fatalf("expected a 14 day activity window to be refused")
	}

	out = c.must("audit")
	if !strings.Contains(out, models.AuditTaskComplete) || !strings.Contains(out, models.AuditStageChanged) {
		t.Fatalf("unexpected audit output: %q", out)
	}

	c.must("apps", "delete", id)
	if apps := decodeJSON[[]models.Application](t, c.must("--json", "apps", "list")); len(apps) != 0 {
		t.Fatalf("expected no applications, got %+v", apps)
	}
}

func TestParseDue(t *testing.T) {
	d, err := parseDue("2026-03-05")
	if err != nil || d.Hour() != 12 || d.Day() != 5 {
		t.Fatalf("date: %v %v", d, err)
	}
	if d, err := parseDue(""); err != nil || d != nil {
		t.Fatalf("empty: %v %v", d, err)
	}
	if _, err := parseDue("next tuesday"); err == nil {
		t.Fatalf("expected error for free text")
	}
}
