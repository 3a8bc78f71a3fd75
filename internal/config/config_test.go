package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GROUPCHAT_MODE", "GROUPCHAT_PORT", "PORT", "GROUPCHAT_GCP_PROJECT",
		"GROUPCHAT_GEMINI_API_KEY", "GEMINI_API_KEY", "GROUPCHAT_STORAGE_BACKEND",
		"GROUPCHAT_USE_MOCK_LLM", "GROUPCHAT_THINK_MIN", "GROUPCHAT_THINK_MAX",
		"GROUPCHAT_TURN_POLICY", "GROUPCHAT_LOG_LEVEL", "GROUPCHAT_LLM_TIMEOUT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_LocalDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ModeLocal, cfg.Mode)
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "memory", cfg.StorageBackend)
	require.True(t, cfg.UseMockLLM)
	require.Equal(t, time.Second, cfg.ThinkMin)
	require.Equal(t, 2500*time.Millisecond, cfg.ThinkMax)
	require.Equal(t, "serial", cfg.TurnPolicy)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_APIKeyDisablesMock(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret")
	t.Setenv("GROUPCHAT_LOG_LEVEL", "debug")
	t.Setenv("GROUPCHAT_TURN_POLICY", "concurrent")

	cfg, err := Load()
	require.NoError(t, err)
	require.False(t, cfg.UseMockLLM)
	require.Equal(t, "secret", cfg.GeminiAPIKey)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "concurrent", cfg.TurnPolicy)
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROUPCHAT_THINK_MIN", "soon")
	t.Setenv("GROUPCHAT_THINK_MAX", "later")

	_, err := Load()
	require.ErrorContains(t, err, "GROUPCHAT_THINK_MIN")
	require.ErrorContains(t, err, "GROUPCHAT_THINK_MAX")
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Mode:           ModeGCP,
		StorageBackend: "firestore",
		ThinkMin:       2 * time.Second,
		ThinkMax:       time.Second,
		TurnPolicy:     "parallel",
	}
	err := cfg.Validate()
	require.ErrorContains(t, err, "gcp mode")
	require.ErrorContains(t, err, "firestore backend")
	require.ErrorContains(t, err, "GROUPCHAT_GEMINI_API_KEY")
	require.ErrorContains(t, err, "thinking range")
	require.ErrorContains(t, err, `unknown turn policy "parallel"`)

	ok := &Config{Mode: ModeLocal, StorageBackend: "memory", UseMockLLM: true, TurnPolicy: "serial"}
	require.NoError(t, ok.Validate())
}

func TestGetBoolEnv(t *testing.T) {
	t.Setenv("FLAG", "true")
	require.True(t, getBoolEnv("FLAG", false))
	t.Setenv("FLAG", "no")
	require.False(t, getBoolEnv("FLAG", true))
	t.Setenv("FLAG", "")
	require.True(t, getBoolEnv("FLAG", true))
}
