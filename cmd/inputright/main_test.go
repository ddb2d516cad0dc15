package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffo777/input-right/internal/config"
	"github.com/jeffo777/input-right/internal/form"
	"github.com/jeffo777/input-right/internal/profile"
	"github.com/jeffo777/input-right/internal/session"
	"github.com/jeffo777/input-right/pkg/job"
)

func TestNewResolver(t *testing.T) {
	cfg := &config.Config{}
	cfg.Profile = config.ProfileConfig{Source: "template", BusinessName: "Acme Plumbing", KnowledgeBase: "We fix pipes."}

	r, err := newResolver(cfg)
	require.NoError(t, err)

	p, err := r.Resolve(context.Background(), "acme_1234")
	require.NoError(t, err)
	assert.Equal(t, "acme", p.TenantID)
	assert.Equal(t, "Acme Plumbing", p.BusinessName)
	assert.Contains(t, p.AgentInstructions(), form.ToolName)

	_, err = r.Resolve(context.Background(), "_nobody")
	assert.ErrorIs(t, err, profile.ErrNotFound)

	cfg.Profile.Source = "carrier-pigeon"
	_, err = newResolver(cfg)
	assert.Error(t, err)
}

func TestNewEngine(t *testing.T) {
	cfg := &config.Config{Engine: config.EngineConfig{LLM: "fake", STT: "fake", TTS: "fake", VAD: "energy"}}
	room, err := job.NewRoom(context.Background(), job.RoomConfig{
		URL:       "wss://example.livekit.cloud",
		APIKey:    "key",
		APISecret: "secret",
		RoomName:  "acme_1",
		Identity:  "contractor-leads-bot-agent",
	})
	require.NoError(t, err)

	tool := form.New(room, &session.State{}, 0, nil)
	p := profile.Profile{TenantID: "acme", BusinessName: "Acme Plumbing"}

	engine, err := newEngine(cfg, room, p, tool)
	require.NoError(t, err)
	defer engine.Close()

	history := engine.History()
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Content, "Acme Plumbing")

	cfg.Engine.LLM = "nope"
	_, err = newEngine(cfg, room, p, tool)
	assert.Error(t, err)
}

func TestPluginList(t *testing.T) {
	var out bytes.Buffer
	pluginListCmd.SetOut(&out)
	require.NoError(t, pluginListCmd.RunE(pluginListCmd, []string{"vad"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Contains(t, out.String(), "energy")
	assert.Contains(t, out.String(), "fake")
}
