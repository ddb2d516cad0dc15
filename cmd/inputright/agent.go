package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeffo777/input-right/internal/config"
	"github.com/jeffo777/input-right/internal/form"
	"github.com/jeffo777/input-right/internal/lead"
	"github.com/jeffo777/input-right/internal/profile"
	"github.com/jeffo777/input-right/internal/session"
	"github.com/jeffo777/input-right/pkg/agent"
	"github.com/jeffo777/input-right/pkg/job"
	"github.com/jeffo777/input-right/pkg/plugin"
	"github.com/jeffo777/input-right/pkg/turn"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Agent session commands",
}

var agentRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one receptionist session in a room",
	Long: `Join the given room as the receptionist agent and run the session until
the caller leaves. The tenant is taken from the part of the room name
before the first underscore.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := cfg.ValidateAgent(); err != nil {
			return err
		}

		roomName, _ := cmd.Flags().GetString("room")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		j, err := job.New(ctx, job.Config{RoomName: roomName, Timeout: job.DefaultJobTimeout})
		if err != nil {
			return fmt.Errorf("failed to create job: %w", err)
		}
		defer j.Shutdown("command exited")

		resolver, err := newResolver(cfg)
		if err != nil {
			return err
		}
		return runSession(cfg, resolver, j, slog.Default())
	},
}

// newResolver builds the profile source named by profile.source.
func newResolver(cfg *config.Config) (profile.Resolver, error) {
	var next profile.Resolver
	switch cfg.Profile.Source {
	case "api", "":
		next = profile.NewHTTPResolver(cfg.API.BaseURL, cfg.API.Secret, cfg.API.Timeout)
	case "template":
		r, err := profile.NewTemplateResolver(cfg.Profile.BusinessName, cfg.Profile.KnowledgeBase, cfg.Profile.TemplateFile)
		if err != nil {
			return nil, err
		}
		next = r
	default:
		return nil, fmt.Errorf("unknown profile source %q", cfg.Profile.Source)
	}
	return profile.NewCachingResolver(next, cfg.Profile.CacheTTL), nil
}

// runSession runs one caller session for j. A room whose tenant cannot be
// resolved is left without a word.
func runSession(cfg *config.Config, resolver profile.Resolver, j *job.Job, logger *slog.Logger) error {
	ctx := j.Context.Ctx
	logger = logger.With(j.LogAttrs()...)

	p, err := resolver.Resolve(ctx, j.RoomName)
	if err != nil {
		if errors.Is(err, profile.ErrNotFound) {
			logger.Warn("No tenant for room, shutting down", slog.String("error", err.Error()))
		} else {
			logger.Error("Failed to resolve tenant profile, shutting down", slog.String("error", err.Error()))
		}
		return nil
	}
	logger = logger.With(slog.String("tenant_id", p.TenantID))

	room, err := job.NewRoom(ctx, job.RoomConfig{
		URL:       cfg.LiveKit.URL,
		APIKey:    cfg.LiveKit.APIKey,
		APISecret: cfg.LiveKit.APISecret,
		RoomName:  j.RoomName,
		Identity:  cfg.LiveKit.AgentIdentity,
		Name:      p.BusinessName,
	})
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	j.Context.OnShutdown(func(string) { room.Leave() })

	state := &session.State{}
	tool := form.New(room, state, cfg.Session.RPCTimeout, logger)

	engine, err := newEngine(cfg, room, p, tool)
	if err != nil {
		return err
	}

	pipeline := lead.NewPipeline(lead.NewSink(
		cfg.API.BaseURL, cfg.API.Secret, cfg.API.Timeout,
		cfg.Webhook.URL, cfg.Webhook.Timeout,
	), logger)

	coord, err := session.New(session.Config{
		Room:            room,
		Engine:          session.EngineFromAgent(engine),
		Leads:           pipeline,
		Profile:         p,
		State:           state,
		Logger:          logger,
		OnEnd:           j.Shutdown,
		GreetingTimeout: cfg.Session.GreetingTimeout,
		SubmitTimeout:   cfg.Session.SubmitTimeout,
	})
	if err != nil {
		return err
	}

	reason, err := coord.Run(ctx)
	m := engine.Metrics()
	logger.Info("Session finished",
		slog.String("reason", reason),
		slog.String("first_word_latency_ms", m.FirstWordLatency.String()),
		slog.String("session_duration_ms", m.SessionDuration.String()),
		slog.String("tool_calls", m.ToolCalls.String()))
	return err
}

// newEngine builds the conversation engine from the configured plugins,
// wired to the room's audio bridge.
func newEngine(cfg *config.Config, room *job.Room, p profile.Profile, tool *form.Tool) (*agent.Agent, error) {
	speech := cfg.Engine.SpeechPluginConfig()

	sttProvider, err := plugin.NewSTT(cfg.Engine.STT, speech)
	if err != nil {
		return nil, fmt.Errorf("stt plugin: %w", err)
	}
	ttsProvider, err := plugin.NewTTS(cfg.Engine.TTS, speech)
	if err != nil {
		return nil, fmt.Errorf("tts plugin: %w", err)
	}
	llmProvider, err := plugin.NewLLM(cfg.Engine.LLM, cfg.Engine.LLMPluginConfig())
	if err != nil {
		return nil, fmt.Errorf("llm plugin: %w", err)
	}
	vadProvider, err := plugin.NewVAD(cfg.Engine.VAD, map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("vad plugin: %w", err)
	}

	return agent.New(agent.Config{
		STT:          sttProvider,
		TTS:          ttsProvider,
		LLM:          llmProvider,
		VAD:          vadProvider,
		Turn:         turn.NewDetector(turn.DetectorConfig{RemoteURL: cfg.Turn.RemoteURL, Threshold: cfg.Turn.Threshold}),
		MicIn:        room.MicIn(),
		TTSOut:       room.SpeakerOut(),
		Flush:        room.FlushAudio,
		Instructions: p.AgentInstructions(),
		Tools:        []agent.Tool{tool.AgentTool()},
		Voice:        cfg.Engine.Voice,
		Language:     cfg.Engine.Language,
		AwayTimeout:  cfg.Session.AwayTimeout,
	})
}

func init() {
	agentRunCmd.Flags().String("room", "", "Room to join, named <tenant>_<suffix>")
	agentRunCmd.Flags().String("livekit-url", "", "LiveKit server WebSocket URL")
	agentRunCmd.Flags().String("profile-source", "", "Profile source: api or template")
	agentRunCmd.MarkFlagRequired("room")
	bindFlag(agentRunCmd, "livekit.url", "livekit-url")
	bindFlag(agentRunCmd, "profile.source", "profile-source")

	agentCmd.AddCommand(agentRunCmd)
}
