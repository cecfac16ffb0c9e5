// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names accepted in ROLLOUTHUB_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// MinSigningSecretLen is the minimum byte length of the session signing
// secret. Shorter secrets are rejected outright.
const MinSigningSecretLen = 64

// Config holds the application configuration loaded from environment
// variables. It is constructed once at startup and passed by reference;
// no component reads process environment directly.
type Config struct {
	Environment   string
	ListenAddr    string
	DBPath        string
	GitHubToken   string
	SigningSecret string
	SessionTTL    time.Duration
	AdminHandles  []string
	AllowedOrgs   []string

	DispatchOwner     string
	DispatchRepo      string
	DispatchEventType string

	AllowedOrigin string

	RateWindow        time.Duration
	IdentityRateLimit int
	GlobalRateLimit   int

	ReadinessConcurrency int
	ExternalTimeout      time.Duration
}

// IsProduction reports whether the service runs in production mode.
// Production refuses to start without an explicit signing secret and never
// includes internal error detail in responses.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Load reads configuration from environment variables and returns a
// validated Config. Required: ROLLOUTHUB_GITHUB_TOKEN and
// ROLLOUTHUB_DISPATCH_TARGET (owner/repo). ROLLOUTHUB_SIGNING_SECRET is
// required in production and must be at least 64 bytes; in development it
// may be absent, in which case the composition root generates one.
// Optional variables with defaults: ROLLOUTHUB_SESSION_TTL (24h),
// ROLLOUTHUB_LISTEN_ADDR (127.0.0.1:8080), ROLLOUTHUB_DB_PATH
// (rollouthub.db), ROLLOUTHUB_RATE_WINDOW (15m),
// ROLLOUTHUB_IDENTITY_RATE_LIMIT (50), ROLLOUTHUB_GLOBAL_RATE_LIMIT (200),
// ROLLOUTHUB_READINESS_CONCURRENCY (5), ROLLOUTHUB_EXTERNAL_TIMEOUT (30s),
// ROLLOUTHUB_DISPATCH_EVENT_TYPE (standards-rollout).
func Load() (*Config, error) {
	cfg := &Config{
		Environment:          EnvDevelopment,
		ListenAddr:           "127.0.0.1:8080",
		DBPath:               "rollouthub.db",
		SessionTTL:           24 * time.Hour,
		DispatchEventType:    "standards-rollout",
		RateWindow:           15 * time.Minute,
		IdentityRateLimit:    50,
		GlobalRateLimit:      200,
		ReadinessConcurrency: 5,
		ExternalTimeout:      30 * time.Second,
	}

	if v, ok := os.LookupEnv("ROLLOUTHUB_ENV"); ok {
		if v != EnvDevelopment && v != EnvProduction {
			return nil, fmt.Errorf("ROLLOUTHUB_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, v)
		}
		cfg.Environment = v
	}

	cfg.GitHubToken = os.Getenv("ROLLOUTHUB_GITHUB_TOKEN")
	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("ROLLOUTHUB_GITHUB_TOKEN is required")
	}

	cfg.SigningSecret = os.Getenv("ROLLOUTHUB_SIGNING_SECRET")
	if cfg.SigningSecret != "" && len(cfg.SigningSecret) < MinSigningSecretLen {
		return nil, fmt.Errorf("ROLLOUTHUB_SIGNING_SECRET must be at least %d bytes, got %d", MinSigningSecretLen, len(cfg.SigningSecret))
	}
	if cfg.SigningSecret == "" && cfg.IsProduction() {
		// Auto-generated secrets are a development convenience only: in a
		// multi-instance deployment each instance would mint incompatible
		// tokens.
		return nil, fmt.Errorf("ROLLOUTHUB_SIGNING_SECRET is required in production")
	}

	target := os.Getenv("ROLLOUTHUB_DISPATCH_TARGET")
	if target == "" {
		return nil, fmt.Errorf("ROLLOUTHUB_DISPATCH_TARGET is required (owner/repo)")
	}
	parts := strings.SplitN(target, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("ROLLOUTHUB_DISPATCH_TARGET %q is invalid: expected owner/repo", target)
	}
	cfg.DispatchOwner, cfg.DispatchRepo = parts[0], parts[1]

	if v, ok := os.LookupEnv("ROLLOUTHUB_DISPATCH_EVENT_TYPE"); ok && v != "" {
		cfg.DispatchEventType = v
	}
	if v, ok := os.LookupEnv("ROLLOUTHUB_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("ROLLOUTHUB_DB_PATH"); ok {
		cfg.DBPath = v
	}
	cfg.AllowedOrigin = os.Getenv("ROLLOUTHUB_ALLOWED_ORIGIN")

	cfg.AdminHandles = splitList(os.Getenv("ROLLOUTHUB_ADMIN_HANDLES"))
	cfg.AllowedOrgs = splitList(os.Getenv("ROLLOUTHUB_ALLOWED_ORGS"))

	var err error
	if cfg.SessionTTL, err = durationEnv("ROLLOUTHUB_SESSION_TTL", cfg.SessionTTL); err != nil {
		return nil, err
	}
	if cfg.RateWindow, err = durationEnv("ROLLOUTHUB_RATE_WINDOW", cfg.RateWindow); err != nil {
		return nil, err
	}
	if cfg.ExternalTimeout, err = durationEnv("ROLLOUTHUB_EXTERNAL_TIMEOUT", cfg.ExternalTimeout); err != nil {
		return nil, err
	}
	if cfg.IdentityRateLimit, err = intEnv("ROLLOUTHUB_IDENTITY_RATE_LIMIT", cfg.IdentityRateLimit); err != nil {
		return nil, err
	}
	if cfg.GlobalRateLimit, err = intEnv("ROLLOUTHUB_GLOBAL_RATE_LIMIT", cfg.GlobalRateLimit); err != nil {
		return nil, err
	}
	if cfg.ReadinessConcurrency, err = intEnv("ROLLOUTHUB_READINESS_CONCURRENCY", cfg.ReadinessConcurrency); err != nil {
		return nil, err
	}

	return cfg, nil
}

// durationEnv parses an optional duration variable, returning def when unset.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}

// intEnv parses an optional positive integer variable, returning def when unset.
func intEnv(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, parsed)
	}
	return parsed, nil
}

// splitList splits a comma-separated value into trimmed non-empty entries.
// Always returns a non-nil slice.
func splitList(raw string) []string {
	out := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
