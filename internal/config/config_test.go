package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "contractor-leads-bot-agent", cfg.LiveKit.AgentIdentity)
	assert.Equal(t, 20*time.Second, cfg.Session.GreetingTimeout)
	assert.Equal(t, 15*time.Second, cfg.Session.AwayTimeout)
	assert.Equal(t, 5*time.Second, cfg.Session.RPCTimeout)
	assert.Equal(t, "api", cfg.Profile.Source)
	assert.Equal(t, "energy", cfg.Engine.VAD)
	assert.Equal(t, "sqlite", cfg.Backend.Driver)
	assert.Equal(t, 4, cfg.Worker.MaxJobs)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FileAndEnvRefs(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("ACME_SECRET", "s3cret")

	path := filepath.Join(dir, "inputright.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://backend:8000
  secret: ${ACME_SECRET}
session:
  greeting_timeout: 5s
profile:
  source: template
  business_name: Acme Plumbing
`), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8000", cfg.API.BaseURL)
	assert.Equal(t, "s3cret", cfg.API.Secret)
	assert.Equal(t, 5*time.Second, cfg.Session.GreetingTimeout)
	assert.Equal(t, "template", cfg.Profile.Source)
	assert.Equal(t, "Acme Plumbing", cfg.Profile.BusinessName)
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("INTERNAL_API_URL", "http://legacy/api")
	t.Setenv("INTERNAL_API_KEY", "legacy-secret")
	t.Setenv("INPUTRIGHT_API_SECRET", "prefixed-secret")
	t.Setenv("LIVEKIT_URL", "wss://lk.example.com")
	t.Setenv("INPUTRIGHT_SESSION_AWAY_TIMEOUT", "30s")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GROQ_API_KEY", "gsk-groq")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://legacy/api", cfg.API.BaseURL)
	assert.Equal(t, "prefixed-secret", cfg.API.Secret, "prefixed name wins over legacy")
	assert.Equal(t, "wss://lk.example.com", cfg.LiveKit.URL)
	assert.Equal(t, 30*time.Second, cfg.Session.AwayTimeout)

	llm := cfg.Engine.LLMPluginConfig()
	assert.Equal(t, "gsk-groq", llm["api_key"])
	assert.Equal(t, GroqBaseURL, llm["base_url"])
	speech := cfg.Engine.SpeechPluginConfig()
	assert.Equal(t, "sk-openai", speech["api_key"])
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("WEBHOOK_URL=https://hooks.example.com/lead\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("WEBHOOK_URL") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.com/lead", cfg.Webhook.URL)
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateAgent(t *testing.T) {
	cfg := &Config{Profile: ProfileConfig{Source: "api"}}
	err := cfg.ValidateAgent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "livekit.url")
	assert.Contains(t, err.Error(), "api.base_url")

	cfg.LiveKit = LiveKitConfig{URL: "wss://x", APIKey: "k", APISecret: "s"}
	cfg.Profile.Source = "template"
	assert.NoError(t, cfg.ValidateAgent())
}

func TestSetupLogging_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "agent.log")
	closer := SetupLogging(LoggingConfig{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	slog.Debug("Session started", slog.String("room", "acme_1"))
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"room":"acme_1"`)
}
