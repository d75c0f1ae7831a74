package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`

	// Session credentials are usually supplied through the environment.
	Token        string `yaml:"token"`
	RefreshToken string `yaml:"refresh_token"`
}

type GatewayConfig struct {
	BaseURL                 string        `yaml:"base_url"`
	Timeout                 time.Duration `yaml:"timeout"`
	Retries                 int           `yaml:"retries"`
	Backoff                 time.Duration `yaml:"backoff"`
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset"`
}

type EngineConfig struct {
	StrictTransitions bool          `yaml:"strict_transitions"`
	StaleDays         int           `yaml:"stale_days"`
	NextActionsDays   int           `yaml:"next_actions_days"`
	ActivityDays      int           `yaml:"activity_days"`
	AuditPageSize     int           `yaml:"audit_page_size"`
	RefreshWorkers    int           `yaml:"refresh_workers"`
	RefreshAttempts   int           `yaml:"refresh_attempts"`
	RefreshBackoff    time.Duration `yaml:"refresh_backoff"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultGateway returns the gateway settings used when none are configured.
func DefaultGateway() GatewayConfig {
	return GatewayConfig{
		BaseURL:                 "http://localhost:8080/api",
		Timeout:                 15 * time.Second,
		Retries:                 2,
		Backoff:                 300 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

// DefaultEngine returns the engine settings used when none are configured.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		StrictTransitions: true,
		StaleDays:         14,
		NextActionsDays:   7,
		ActivityDays:      7,
		AuditPageSize:     25,
		RefreshWorkers:    2,
		RefreshAttempts:   3,
		RefreshBackoff:    time.Second,
	}
}

func LoadConfig(path string) (*Config, error) {
	gw := DefaultGateway()
	gw.BaseURL = getEnv("JOBSYNC_BASE_URL", gw.BaseURL)

	cfg := &Config{
		Gateway:      gw,
		Engine:       DefaultEngine(),
		Log:          LogConfig{Level: getEnv("JOBSYNC_LOG_LEVEL", "info"), Format: "json"},
		Token:        os.Getenv("JOBSYNC_TOKEN"),
		RefreshToken: os.Getenv("JOBSYNC_REFRESH_TOKEN"),
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		if err := dec.Decode(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate checks the configuration and fills zero values with defaults.
func (c *Config) Validate() error {
	def := DefaultGateway()
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = def.BaseURL
	}
	u, err := url.ParseRequestURI(c.Gateway.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway.base_url must be an absolute http(s) URL, got %q", c.Gateway.BaseURL)
	}
	if u.Scheme == "http" && !isDevelopment() && !isLocalHost(u.Hostname()) {
		return fmt.Errorf("gateway.base_url uses plain http for remote host %q; set JOBSYNC_ENV=development to allow it", u.Hostname())
	}
	if c.Gateway.Timeout <= 0 {
		c.Gateway.Timeout = def.Timeout
	}
	if c.Gateway.Retries < 0 {
		return fmt.Errorf("gateway.retries must be >= 0")
	}
	if c.Gateway.Backoff <= 0 {
		c.Gateway.Backoff = def.Backoff
	}
	if c.Gateway.CircuitFailureThreshold <= 0 {
		c.Gateway.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if c.Gateway.CircuitReset <= 0 {
		c.Gateway.CircuitReset = def.CircuitReset
	}

	eng := DefaultEngine()
	if c.Engine.StaleDays == 0 {
		c.Engine.StaleDays = eng.StaleDays
	}
	if c.Engine.StaleDays < 1 {
		return fmt.Errorf("engine.stale_days must be >= 1")
	}
	if c.Engine.NextActionsDays == 0 {
		c.Engine.NextActionsDays = eng.NextActionsDays
	}
	if c.Engine.NextActionsDays < 1 {
		return fmt.Errorf("engine.next_actions_days must be >= 1")
	}
	if c.Engine.ActivityDays == 0 {
		c.Engine.ActivityDays = eng.ActivityDays
	}
	if c.Engine.ActivityDays != 7 && c.Engine.ActivityDays != 30 {
		return fmt.Errorf("engine.activity_days must be 7 or 30, got %d", c.Engine.ActivityDays)
	}
	if c.Engine.AuditPageSize <= 0 {
		c.Engine.AuditPageSize = eng.AuditPageSize
	}
	if c.Engine.RefreshWorkers <= 0 {
		c.Engine.RefreshWorkers = eng.RefreshWorkers
	}
	if c.Engine.RefreshAttempts <= 0 {
		c.Engine.RefreshAttempts = eng.RefreshAttempts
	}
	if c.Engine.RefreshBackoff <= 0 {
		c.Engine.RefreshBackoff = eng.RefreshBackoff
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format %q is not one of json, text", c.Log.Format)
	}

	return nil
}

func isDevelopment() bool {
	return strings.EqualFold(os.Getenv("JOBSYNC_ENV"), "development")
}

func isLocalHost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return def
}
