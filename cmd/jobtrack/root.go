package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/garnizeh/jobsync/internal/config"
	"github.com/garnizeh/jobsync/internal/engine"
	"github.com/garnizeh/jobsync/internal/mutation"
	"github.com/garnizeh/jobsync/internal/store"
	"github.com/garnizeh/jobsync/pkg/gateway"
)

// App carries the global flags and the engine of one invocation.
type App struct {
	ConfigPath  string
	SessionPath string
	BaseURL     string
	JSON        bool

	cfg *config.Config
	eng *engine.Engine
}

func newRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "jobtrack",
		Short:        "Track job applications and follow-up tasks",
		Version:      fmt.Sprintf("%s (built %s)", version, buildTime),
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  jobtrack login --email ada@example.com
  jobtrack apps create --company Acme --role Engineer
  jobtrack apps move 12 applied
  jobtrack tasks add 12 --title "Follow up" --due 2026-03-05
  jobtrack dashboard --activity 30
`),
	}

	cmd.PersistentFlags().StringVar(&app.ConfigPath, "config", os.Getenv("JOBSYNC_CONFIG"), "Path to config YAML file")
	cmd.PersistentFlags().StringVar(&app.SessionPath, "session", os.Getenv("JOBSYNC_SESSION"), "Path to the session file (default: user config dir)")
	cmd.PersistentFlags().StringVar(&app.BaseURL, "base-url", "", "API base URL (overrides config)")
	cmd.PersistentFlags().BoolVar(&app.JSON, "json", false, "Print JSON instead of tables")

	cmd.AddCommand(newSignupCmd(app))
	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newAppsCmd(app))
	cmd.AddCommand(newTasksCmd(app))
	cmd.AddCommand(newDashboardCmd(app))
	cmd.AddCommand(newAuditCmd(app))

	return cmd
}

// session is the on-disk form of the current sign-in.
type session struct {
	Token        string `yaml:"token"`
	RefreshToken string `yaml:"refresh_token"`
}

func (app *App) sessionPath() (string, error) {
	if app.SessionPath != "" {
		return app.SessionPath, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "jobsync", "session.yaml"), nil
}

func (app *App) loadSession() (session, error) {
	var s session
	path, err := app.sessionPath()
	if err != nil {
		return s, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, fmt.Errorf("read session %s: %w", path, err)
	}
	return s, nil
}

func (app *App) saveSession(s session) error {
	path, err := app.sessionPath()
	if err != nil {
		return err
	}
	if s.Token == "" && s.RefreshToken == "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// open loads configuration and the saved session and starts an engine.
func (app *App) open(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(app.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if app.BaseURL != "" {
		cfg.Gateway.BaseURL = app.BaseURL
	}
	if cfg.Token == "" && cfg.RefreshToken == "" {
		s, err := app.loadSession()
		if err != nil {
			return err
		}
		cfg.Token, cfg.RefreshToken = s.Token, s.RefreshToken
	}

	logger := newLogger(cfg.Log, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	gateway.SetLogger(logger)
	store.SetLogger(logger)
	mutation.SetLogger(logger)
	engine.SetLogger(logger)

	eng, err := engine.Open(cfg, engine.Options{})
	if err != nil {
		return err
	}
	eng.OnSession(func(token, refreshToken string) {
		if err := app.saveSession(session{Token: token, RefreshToken: refreshToken}); err != nil {
			logger.Warn("could not save session", "err", err)
		}
	})
	eng.Start(cmd.Context())

	app.cfg = cfg
	app.eng = eng
	return nil
}

// close waits briefly for background refreshes and shuts the engine down.
func (app *App) close() {
	if app.eng == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.eng.Drain(ctx); err != nil {
		slog.Debug("background refreshes still pending", "err", err)
	}
	_ = app.eng.Close()
	app.eng = nil
}

// run opens the engine, runs fn and closes the engine.
func (app *App) run(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	if err := app.open(cmd); err != nil {
		return userError(err)
	}
	defer app.close()
	if err := fn(cmd.Context(), app.eng); err != nil {
		return userError(err)
	}
	return nil
}

// userError adds a hint to errors the user can act on. Cobra prints the
// result.
func userError(err error) error {
	if errors.Is(err, gateway.ErrNotSignedIn) {
		return fmt.Errorf("%w: run `jobtrack login` first", err)
	}
	return err
}

// warnReconciling reports a change kept locally while the outcome is
// unknown. It returns nil for such errors and err otherwise.
func warnReconciling(cmd *cobra.Command, err error) error {
	if errors.Is(err, mutation.ErrReconciling) {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", err.Error())
		return nil
	}
	return err
}
