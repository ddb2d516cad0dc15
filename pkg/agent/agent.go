// Package agent implements the conversation engine: it listens to the caller
// through VAD and STT, answers through the LLM with registered tools, and
// speaks through TTS. The engine tracks its own state (Idle, Listening,
// Thinking, Speaking) and publishes the caller's state (listening, speaking,
// away) to subscribers.
package agent

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/ai/stt"
	"github.com/jeffo777/input-right/pkg/ai/tts"
	"github.com/jeffo777/input-right/pkg/ai/vad"
	"github.com/jeffo777/input-right/pkg/internal/fanout"
	"github.com/jeffo777/input-right/pkg/rtc"
	"github.com/jeffo777/input-right/pkg/turn"
	"github.com/jeffo777/input-right/pkg/voice"
)

var (
	ErrClosed         = errors.New("agent is closed")
	ErrAlreadyStarted = errors.New("agent is already started")
	ErrNotResponding  = errors.New("agent has stopped responding")
)

const (
	DefaultAwayTimeout   = 15 * time.Second
	DefaultEndpointDelay = 3 * time.Second

	// prerollFrames is how much audio before the VAD trigger reaches STT.
	prerollFrames = 30
)

// AgentState represents what the engine itself is doing.
type AgentState int32

const (
	StateIdle AgentState = iota
	StateListening
	StateThinking
	StateSpeaking
)

func (s AgentState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Agent coordinates STT, TTS, LLM and VAD into a speak / listen / reply /
// interrupt capability.
type Agent struct {
	stt  stt.STT
	tts  tts.TTS
	llm  llm.LLM
	vad  vad.VAD
	turn turn.Detector

	micIn  <-chan rtc.AudioFrame
	ttsOut chan<- rtc.AudioFrame
	flush  func()

	voice         string
	language      string
	sampleRate    int
	awayTimeout   time.Duration
	endpointDelay time.Duration

	state   atomic.Int32
	gate    *voice.Gate
	metrics *AgentMetrics

	// history, tools and user state
	mu        sync.Mutex
	history   []llm.Message
	tools     map[string]Tool
	toolOrder []string
	userState UserState
	hub       *fanout.Hub[UserStateChanged]

	// speech queue
	speechMu      sync.Mutex
	queue         []*SpeechHandle
	current       *SpeechHandle
	speechReady   chan struct{}
	agentSpeaking atomic.Bool

	streamMu sync.Mutex
	stream   stt.STTStream

	replyMu    sync.Mutex // serializes LLM turns
	turnMu     sync.Mutex
	turnCancel context.CancelFunc
	quiet      bool // set by StopResponding, guarded by turnMu

	transcripts chan string
	kicks       chan struct{}

	started      atomic.Bool
	shutdown     chan struct{}
	shutdownOnce sync.Once

	sessionStart      time.Time
	firstWordTimeOnce sync.Once
}

// AgentMetrics holds performance metrics for the agent.
type AgentMetrics struct {
	FirstWordLatency *expvar.Float
	SessionDuration  *expvar.Float
	StateTransitions *expvar.Map
	ToolCalls        *expvar.Map
}

// Config holds configuration for creating an Agent.
type Config struct {
	STT stt.STT
	TTS tts.TTS
	LLM llm.LLM
	VAD vad.VAD

	// Turn is optional. When set, a transcript the detector considers
	// unfinished waits up to EndpointDelay for more speech.
	Turn turn.Detector

	MicIn  <-chan rtc.AudioFrame
	TTSOut chan<- rtc.AudioFrame

	// Flush is called on interrupt to drop audio already handed to TTSOut.
	Flush func()

	Instructions string
	Tools        []Tool

	Voice      string
	Language   string
	SampleRate int // of MicIn frames, default 48000

	AwayTimeout   time.Duration
	EndpointDelay time.Duration
}

// New creates a new Agent with the given configuration.
func New(cfg Config) (*Agent, error) {
	if cfg.STT == nil {
		return nil, fmt.Errorf("STT is required")
	}
	if cfg.TTS == nil {
		return nil, fmt.Errorf("TTS is required")
	}
	if cfg.LLM == nil {
		return nil, fmt.Errorf("LLM is required")
	}
	if cfg.VAD == nil {
		return nil, fmt.Errorf("VAD is required")
	}
	if cfg.MicIn == nil {
		return nil, fmt.Errorf("MicIn channel is required")
	}
	if cfg.TTSOut == nil {
		return nil, fmt.Errorf("TTSOut channel is required")
	}
	if cfg.AwayTimeout <= 0 {
		cfg.AwayTimeout = DefaultAwayTimeout
	}
	if cfg.EndpointDelay <= 0 {
		cfg.EndpointDelay = DefaultEndpointDelay
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 48000
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}

	a := &Agent{
		stt:           cfg.STT,
		tts:           cfg.TTS,
		llm:           cfg.LLM,
		vad:           cfg.VAD,
		turn:          cfg.Turn,
		micIn:         cfg.MicIn,
		ttsOut:        cfg.TTSOut,
		flush:         cfg.Flush,
		voice:         cfg.Voice,
		language:      cfg.Language,
		sampleRate:    cfg.SampleRate,
		awayTimeout:   cfg.AwayTimeout,
		endpointDelay: cfg.EndpointDelay,
		gate:          voice.NewGate(),
		metrics:       newAgentMetrics(),
		tools:         make(map[string]Tool),
		userState:     UserListening,
		hub:           newStateHub(),
		speechReady:   make(chan struct{}, 1),
		transcripts:   make(chan string, 8),
		kicks:         make(chan struct{}, 1),
		shutdown:      make(chan struct{}),
	}
	if cfg.Instructions != "" {
		a.history = append(a.history, llm.Message{Role: llm.RoleSystem, Content: cfg.Instructions})
	}
	for _, t := range cfg.Tools {
		if err := a.RegisterTool(t); err != nil {
			return nil, err
		}
	}

	a.setState(StateIdle)
	return a, nil
}

// Start runs the engine until ctx is cancelled or Close is called.
func (a *Agent) Start(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	select {
	case <-a.shutdown:
		return ErrClosed
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.sessionStart = time.Now()
	defer a.updateSessionDuration()

	vadIn := make(chan rtc.AudioFrame, 100)
	vadEvents, err := a.vad.Detect(runCtx, vadIn)
	if err != nil {
		return fmt.Errorf("failed to start VAD: %w", err)
	}

	go a.fanOut(runCtx, vadIn)
	go a.playLoop(runCtx)

	return a.run(runCtx, vadEvents)
}

// Close shuts down the agent. It is idempotent.
func (a *Agent) Close() error {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
		a.interrupt(true)
		a.cancelTurn()
		a.stopListening()
		a.hub.Close()
	})
	return nil
}

// GetState returns the current state of the agent.
func (a *Agent) GetState() AgentState {
	return AgentState(a.state.Load())
}

// UserState returns the current caller state.
func (a *Agent) UserState() UserState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userState
}

// Subscribe returns a handle on user state changes.
func (a *Agent) Subscribe() *Subscription {
	return a.hub.Subscribe()
}

// Metrics returns the agent's metrics.
func (a *Agent) Metrics() *AgentMetrics {
	return a.metrics
}

// History returns a copy of the chat history.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}

func (a *Agent) setUserState(s UserState) {
	a.mu.Lock()
	old := a.userState
	if old == s {
		a.mu.Unlock()
		return
	}
	a.userState = s
	a.mu.Unlock()

	slog.Debug("User state changed", slog.String("old", string(old)), slog.String("new", string(s)))
	a.hub.Publish(UserStateChanged{Old: old, New: s, At: time.Now()})
}

// setState atomically updates the agent's state and records metrics.
func (a *Agent) setState(newState AgentState) {
	oldState := AgentState(a.state.Swap(int32(newState)))
	a.metrics.StateTransitions.Add(oldState.String()+"_to_"+newState.String(), 1)
}

// kick wakes the run loop so it restarts the away timer.
func (a *Agent) kick() {
	select {
	case a.kicks <- struct{}{}:
	default:
	}
}

// run is the main loop. It owns VAD handling, turn completion and the away
// timer; replies and playback run on their own goroutines.
func (a *Agent) run(ctx context.Context, vadEvents <-chan vad.VADEvent) error {
	away := time.NewTimer(a.awayTimeout)
	defer away.Stop()
	resetAway := func() {
		if !away.Stop() {
			select {
			case <-away.C:
			default:
			}
		}
		away.Reset(a.awayTimeout)
	}

	var (
		pending  []string
		endpoint *time.Timer
		endC     <-chan time.Time
	)
	stopEndpoint := func() {
		if endpoint != nil {
			endpoint.Stop()
			endpoint, endC = nil, nil
		}
	}
	defer stopEndpoint()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.shutdown:
			return nil

		case ev, ok := <-vadEvents:
			if !ok {
				vadEvents = nil
				continue
			}
			a.handleVADEvent(ctx, ev)
			if ev.Type == vad.VADEventSpeechStart {
				stopEndpoint()
			}
			resetAway()

		case text := <-a.transcripts:
			pending = append(pending, text)
			joined := strings.Join(pending, " ")
			if a.turnFinished(ctx, joined) {
				stopEndpoint()
				pending = nil
				a.startReply(ctx, joined)
			} else if endpoint == nil {
				endpoint = time.NewTimer(a.endpointDelay)
				endC = endpoint.C
			}
			resetAway()

		case <-endC:
			endpoint, endC = nil, nil
			if len(pending) > 0 {
				a.startReply(ctx, strings.Join(pending, " "))
				pending = nil
			}

		case <-a.kicks:
			resetAway()

		case <-away.C:
			if !a.agentSpeaking.Load() && a.UserState() == UserListening {
				a.setUserState(UserAway)
			} else {
				away.Reset(a.awayTimeout)
			}
		}
	}
}

// handleVADEvent processes voice activity detection events.
func (a *Agent) handleVADEvent(ctx context.Context, event vad.VADEvent) {
	switch event.Type {
	case vad.VADEventSpeechStart:
		a.setUserState(UserSpeaking)
		a.interrupt(false)
		a.cancelTurn()
		if !a.responding() {
			return
		}
		a.setState(StateListening)
		if err := a.startListening(ctx); err != nil {
			slog.Error("Failed to start listening", slog.String("error", err.Error()))
		}
	case vad.VADEventSpeechEnd:
		a.setUserState(UserListening)
		a.stopListening()
		if a.GetState() == StateListening {
			a.setState(StateIdle)
		}
	case vad.VADEventError:
		slog.Warn("VAD error", slog.Any("error", event.Error))
	}
}

func (a *Agent) turnFinished(ctx context.Context, text string) bool {
	if a.turn == nil {
		return true
	}
	chatCtx := turn.ChatContext{
		Messages: append(a.History(), llm.Message{Role: llm.RoleUser, Content: text}),
		Language: a.language,
	}
	tctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return turn.EndOfTurn(tctx, a.turn, chatCtx)
}

// startListening opens a fresh STT stream for the utterance that just began.
func (a *Agent) startListening(ctx context.Context) error {
	stream, err := a.stt.NewStream(ctx, stt.StreamConfig{
		SampleRate:  a.sampleRate,
		NumChannels: 1,
		Lang:        a.language,
	})
	if err != nil {
		return fmt.Errorf("failed to create STT stream: %w", err)
	}

	a.streamMu.Lock()
	old := a.stream
	a.stream = stream
	a.streamMu.Unlock()
	if old != nil {
		go old.CloseSend()
	}

	go a.collect(ctx, stream)
	return nil
}

// stopListening ends the current utterance; its final transcript arrives on
// the transcripts channel.
func (a *Agent) stopListening() {
	a.streamMu.Lock()
	stream := a.stream
	a.stream = nil
	a.streamMu.Unlock()
	if stream != nil {
		go func() {
			if err := stream.CloseSend(); err != nil {
				slog.Warn("Failed to close STT stream", slog.String("error", err.Error()))
			}
		}()
	}
}

func (a *Agent) collect(ctx context.Context, stream stt.STTStream) {
	for ev := range stream.Events() {
		switch ev.Type {
		case stt.SpeechEventFinal:
			text := strings.TrimSpace(ev.Text)
			if text == "" {
				continue
			}
			select {
			case a.transcripts <- text:
			case <-ctx.Done():
				return
			case <-a.shutdown:
				return
			}
		case stt.SpeechEventError:
			slog.Warn("STT error", slog.Any("error", ev.Error))
		}
	}
}

// fanOut copies admitted microphone frames to VAD and the active STT stream.
// A short preroll buffer covers the audio VAD needed before it triggered.
func (a *Agent) fanOut(ctx context.Context, vadIn chan<- rtc.AudioFrame) {
	defer close(vadIn)

	preroll := make([]rtc.AudioFrame, 0, prerollFrames)
	var fed stt.STTStream
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.shutdown:
			return
		case frame, ok := <-a.micIn:
			if !ok {
				return
			}
			if !a.gate.Admit() {
				continue
			}

			select {
			case vadIn <- frame:
			default:
			}

			a.streamMu.Lock()
			stream := a.stream
			a.streamMu.Unlock()

			if stream == nil {
				if len(preroll) == prerollFrames {
					preroll = append(preroll[:0], preroll[1:]...)
				}
				preroll = append(preroll, frame)
				continue
			}
			if stream != fed {
				for _, f := range preroll {
					_ = stream.Push(f)
				}
				preroll = preroll[:0]
				fed = stream
			}
			// push fails once the stream is closed; the next one is picked up above
			_ = stream.Push(frame)
		}
	}
}

// updateSessionDuration updates the session duration metric.
func (a *Agent) updateSessionDuration() {
	a.metrics.SessionDuration.Set(float64(time.Since(a.sessionStart).Milliseconds()))
}

func newAgentMetrics() *AgentMetrics {
	// not published globally so several agents can coexist in one process
	stateTransitions := &expvar.Map{}
	stateTransitions.Init()
	toolCalls := &expvar.Map{}
	toolCalls.Init()

	return &AgentMetrics{
		FirstWordLatency: &expvar.Float{},
		SessionDuration:  &expvar.Float{},
		StateTransitions: stateTransitions,
		ToolCalls:        toolCalls,
	}
}
