package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

type Config struct {
	Mode Mode

	Port string

	GCPProjectID string
	GCPLocation  string
	GeminiAPIKey string
	ModelName    string
	LLMTimeout   time.Duration

	StorageBackend string // "memory" or "firestore"
	UseMockLLM     bool   // true = use mock even on GCP
	PersonasFile   string // optional YAML persona library

	ReplyLanguage string
	ThinkMin      time.Duration
	ThinkMax      time.Duration
	TurnPolicy    string // "serial" or "concurrent"

	LogLevel slog.Level
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads all env vars and builds the config.
func Load() (*Config, error) {
	var mode Mode
	switch getEnv("GROUPCHAT_MODE", "local") {
	case "gcp":
		mode = ModeGCP
	default:
		mode = ModeLocal
	}

	cfg := &Config{
		Mode: mode,

		Port: getEnv("GROUPCHAT_PORT", getEnv("PORT", "8080")),

		GCPProjectID: getEnv("GROUPCHAT_GCP_PROJECT", ""),
		GCPLocation:  getEnv("GROUPCHAT_GCP_LOCATION", "us-central1"),
		GeminiAPIKey: getEnv("GROUPCHAT_GEMINI_API_KEY", os.Getenv("GEMINI_API_KEY")),
		ModelName:    getEnv("GROUPCHAT_MODEL_NAME", "gemini-2.5-flash"),

		StorageBackend: getEnv("GROUPCHAT_STORAGE_BACKEND", "memory"),
		PersonasFile:   getEnv("GROUPCHAT_PERSONAS_FILE", ""),

		ReplyLanguage: getEnv("GROUPCHAT_REPLY_LANGUAGE", "Simplified Chinese (简体中文)"),
		TurnPolicy:    getEnv("GROUPCHAT_TURN_POLICY", "serial"),

		LogLevel: parseLevel(getEnv("GROUPCHAT_LOG_LEVEL", "info")),
	}
	cfg.UseMockLLM = getBoolEnv("GROUPCHAT_USE_MOCK_LLM", mode == ModeLocal && cfg.GeminiAPIKey == "")

	var errs []error
	var err error
	if cfg.ThinkMin, err = getDurationEnv("GROUPCHAT_THINK_MIN", 1000*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.ThinkMax, err = getDurationEnv("GROUPCHAT_THINK_MAX", 2500*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.LLMTimeout, err = getDurationEnv("GROUPCHAT_LLM_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations of settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Mode == ModeGCP && c.GCPProjectID == "" {
		errs = append(errs, errors.New("GROUPCHAT_GCP_PROJECT must be set in gcp mode"))
	}
	if c.StorageBackend != "memory" && c.StorageBackend != "firestore" {
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.StorageBackend))
	}
	if c.StorageBackend == "firestore" && c.GCPProjectID == "" {
		errs = append(errs, errors.New("GROUPCHAT_GCP_PROJECT is required for the firestore backend"))
	}
	if !c.UseMockLLM && c.GeminiAPIKey == "" && c.GCPProjectID == "" {
		errs = append(errs, errors.New("set GROUPCHAT_GEMINI_API_KEY or GROUPCHAT_GCP_PROJECT, or enable GROUPCHAT_USE_MOCK_LLM"))
	}
	if c.ThinkMin < 0 || c.ThinkMax < c.ThinkMin {
		errs = append(errs, fmt.Errorf("invalid thinking range %s..%s", c.ThinkMin, c.ThinkMax))
	}
	if c.TurnPolicy != "serial" && c.TurnPolicy != "concurrent" {
		errs = append(errs, fmt.Errorf("unknown turn policy %q", c.TurnPolicy))
	}
	return errors.Join(errs...)
}
