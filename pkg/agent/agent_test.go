package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"

	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/ai/llm/fake"
	sttfake "github.com/jeffo777/input-right/pkg/ai/stt/fake"
	ttsfake "github.com/jeffo777/input-right/pkg/ai/tts/fake"
	vadfake "github.com/jeffo777/input-right/pkg/ai/vad/fake"
	"github.com/jeffo777/input-right/pkg/rtc"
	turnfake "github.com/jeffo777/input-right/pkg/turn/fake"
)

func TestAgent_New(t *testing.T) {
	valid := func() Config {
		return Config{
			STT:    sttfake.NewFakeSTT("test"),
			TTS:    ttsfake.NewFakeTTS(),
			LLM:    fake.NewFakeLLM(),
			VAD:    vadfake.NewFakeVAD(),
			MicIn:  make(<-chan rtc.AudioFrame),
			TTSOut: make(chan<- rtc.AudioFrame),
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing STT", mutate: func(c *Config) { c.STT = nil }, expectError: true},
		{name: "missing TTS", mutate: func(c *Config) { c.TTS = nil }, expectError: true},
		{name: "missing LLM", mutate: func(c *Config) { c.LLM = nil }, expectError: true},
		{name: "missing VAD", mutate: func(c *Config) { c.VAD = nil }, expectError: true},
		{name: "missing MicIn", mutate: func(c *Config) { c.MicIn = nil }, expectError: true},
		{name: "missing TTSOut", mutate: func(c *Config) { c.TTSOut = nil }, expectError: true},
		{
			name: "duplicate tools",
			mutate: func(c *Config) {
				c.Tools = []Tool{echoTool("lookup"), echoTool("lookup")}
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			cfg := valid()
			tt.mutate(&cfg)

			agent, err := New(cfg)
			if tt.expectError {
				is.True(err != nil)
				is.True(agent == nil)
				return
			}
			is.NoErr(err)
			is.Equal(agent.GetState(), StateIdle)
			is.Equal(agent.UserState(), UserListening)
			is.Equal(agent.awayTimeout, DefaultAwayTimeout)
			agent.Close()
		})
	}
}

func echoTool(name string) Tool {
	return Tool{
		Definition: llm.ToolDefinition{
			Name:        name,
			Description: "echo the input",
			Parameters:  []llm.ToolParameter{{Name: "text", Type: llm.ParamString, Required: true}},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			return string(args), nil
		},
	}
}

type harness struct {
	agent  *Agent
	stt    *sttfake.FakeSTT
	tts    *ttsfake.FakeTTS
	llm    *fake.FakeLLM
	vad    *vadfake.FakeVAD
	micIn  chan rtc.AudioFrame
	ttsOut chan rtc.AudioFrame
	flushs atomic.Int32

	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	h := &harness{
		stt:    sttfake.NewFakeSTT("I need a plumber"),
		tts:    ttsfake.NewFakeTTS(),
		llm:    fake.NewFakeLLM("Sure, I can help with that."),
		vad:    vadfake.NewFakeVAD(),
		micIn:  make(chan rtc.AudioFrame, 100),
		ttsOut: make(chan rtc.AudioFrame, 100),
		done:   make(chan error, 1),
	}
	h.tts.FrameDelay = time.Millisecond

	cfg := Config{
		STT:          h.stt,
		TTS:          h.tts,
		LLM:          h.llm,
		VAD:          h.vad,
		MicIn:        h.micIn,
		TTSOut:       h.ttsOut,
		Flush:        func() { h.flushs.Add(1) },
		Instructions: "You are a receptionist.",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	agent, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	h.agent = agent

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- agent.Start(ctx) }()

	// drain agent audio like a speaker would
	go func() {
		for {
			select {
			case <-h.ttsOut:
			case <-ctx.Done():
				return
			}
		}
	}()

	// the VAD is attached once it has seen a frame
	h.micIn <- rtc.FrameFromSamples(make([]int16, 480), 48000, 1)
	waitFor(t, func() bool { return h.vad.FrameCount() > 0 })

	t.Cleanup(func() {
		agent.Close()
		cancel()
		<-h.done
	})
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, s *SpeechHandle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("speech %q did not finish: %v", s.Text, err)
	}
}

func TestAgent_SayInOrder(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	first := h.agent.Say("Thank you for calling.", false)
	second := h.agent.Say("How can I help?", true)
	waitDone(t, first)
	waitDone(t, second)

	is.True(!first.Interrupted())
	is.True(!second.Interrupted())
	is.Equal(h.tts.Spoken(), []string{"Thank you for calling.", "How can I help?"})
	is.Equal(h.agent.GetState(), StateIdle)
	is.True(!h.agent.gate.Held())
}

func TestAgent_InterruptDropsQueue(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.tts.FrameDelay = 20 * time.Millisecond

	playing := h.agent.Say("one two three four five six seven eight", true)
	queued := h.agent.Say("never spoken", true)
	waitFor(t, func() bool { return h.agent.GetState() == StateSpeaking })

	h.agent.Interrupt()
	waitDone(t, playing)
	waitDone(t, queued)

	is.True(playing.Interrupted())
	is.True(queued.Interrupted())
	is.Equal(h.flushs.Load(), int32(1))
	is.Equal(h.tts.Spoken(), []string{"one two three four five six seven eight"})
}

func TestAgent_UninterruptibleSpeechIgnoresCaller(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.tts.FrameDelay = 20 * time.Millisecond

	greeting := h.agent.Say("Thank you for calling Acme Plumbing", false)
	waitFor(t, func() bool { return h.agent.gate.Held() })

	for i := 0; i < 5; i++ {
		h.micIn <- rtc.FrameFromSamples(make([]int16, 480), 48000, 1)
	}
	waitFor(t, func() bool { return h.agent.gate.Dropped() >= 5 })

	// VAD speech during the greeting does not cut it
	h.vad.SpeechStart()
	waitDone(t, greeting)
	is.True(!greeting.Interrupted())
	is.Equal(h.flushs.Load(), int32(0))
}

func TestAgent_CallerSpeechInterruptsReply(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	h.tts.FrameDelay = 20 * time.Millisecond

	reply := h.agent.Say("a long answer that the caller talks over", true)
	waitFor(t, func() bool { return h.agent.GetState() == StateSpeaking })

	h.vad.SpeechStart()
	waitDone(t, reply)
	is.True(reply.Interrupted())
	waitFor(t, func() bool { return h.agent.UserState() == UserSpeaking })
}

func TestAgent_UserTurnWithTool(t *testing.T) {
	is := is.New(t)

	var (
		mu   sync.Mutex
		args []string
	)
	formTool := Tool{
		Definition: llm.ToolDefinition{
			Name:        "present_verification_form",
			Description: "show the form",
			Parameters: []llm.ToolParameter{
				{Name: "name", Type: llm.ParamString, Required: true},
			},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			args = append(args, string(raw))
			return "The verification form was successfully displayed to the user.", nil
		},
	}

	h := newHarness(t, func(c *Config) { c.Tools = []Tool{formTool} })
	h.llm.Script(
		fake.Step{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "present_verification_form", Arguments: `{"name":"Jane"}`}}},
		fake.Step{Text: "Please check the form on your screen."},
	)

	h.vad.SpeechStart()
	h.micIn <- rtc.FrameFromSamples(make([]int16, 480), 48000, 1)
	h.vad.SpeechEnd()

	waitFor(t, func() bool { return len(h.tts.Spoken()) == 1 })
	is.Equal(h.tts.Spoken()[0], "Please check the form on your screen.")

	mu.Lock()
	is.Equal(args, []string{`{"name":"Jane"}`})
	mu.Unlock()

	reqs := h.llm.Requests()
	is.Equal(len(reqs), 2)
	is.Equal(len(reqs[0].Tools), 1)
	is.Equal(reqs[0].Messages[0].Role, llm.RoleSystem)
	is.Equal(reqs[0].Messages[1], llm.Message{Role: llm.RoleUser, Content: "I need a plumber"})

	history := h.agent.History()
	// system, user, assistant tool call, tool result, assistant text
	is.Equal(len(history), 5)
	is.Equal(history[3].Role, llm.RoleTool)
	is.Equal(history[3].ToolCallID, "call_1")
	is.Equal(history[4].Content, "Please check the form on your screen.")
}

func TestAgent_ToolErrorsReachModel(t *testing.T) {
	is := is.New(t)
	failing := Tool{
		Definition: llm.ToolDefinition{Name: "present_verification_form", Description: "show the form"},
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			return "", errors.New("no caller is connected")
		},
	}
	panicking := Tool{
		Definition: llm.ToolDefinition{Name: "explode", Description: "panics"},
		Handler: func(ctx context.Context, raw json.RawMessage) (string, error) {
			panic("boom")
		},
	}

	h := newHarness(t, func(c *Config) { c.Tools = []Tool{failing, panicking} })
	h.llm.Script(
		fake.Step{ToolCalls: []llm.ToolCall{
			{ID: "a", Name: "present_verification_form"},
			{ID: "b", Name: "explode"},
			{ID: "c", Name: "missing"},
		}},
		fake.Step{Text: "Sorry, something went wrong."},
	)

	is.NoErr(h.agent.GenerateReply(context.Background(), ""))

	history := h.agent.History()
	var results []string
	for _, m := range history {
		if m.Role == llm.RoleTool {
			results = append(results, m.Content)
		}
	}
	is.Equal(len(results), 3)
	is.Equal(results[0], "error: no caller is connected")
	is.Equal(results[1], "error: the tool failed unexpectedly")
	is.Equal(results[2], `error: unknown tool "missing"`)
}

func TestAgent_ToolRoundsBounded(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) { c.Tools = []Tool{echoTool("lookup")} })

	steps := make([]fake.Step, MaxToolRounds)
	for i := range steps {
		steps[i] = fake.Step{ToolCalls: []llm.ToolCall{{Name: "lookup", Arguments: `{"text":"x"}`}}}
	}
	h.llm.Script(steps...)

	err := h.agent.GenerateReply(context.Background(), "")
	is.True(errors.Is(err, ErrToolRounds))
	is.Equal(len(h.llm.Requests()), MaxToolRounds)
}

func TestAgent_GenerateReplyInstructions(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	is.NoErr(h.agent.GenerateReply(context.Background(), "Tell the caller the form is ready."))
	waitFor(t, func() bool { return len(h.tts.Spoken()) == 1 })

	reqs := h.llm.Requests()
	is.Equal(len(reqs), 1)
	last := reqs[0].Messages[len(reqs[0].Messages)-1]
	is.Equal(last, llm.Message{Role: llm.RoleSystem, Content: "Tell the caller the form is ready."})

	for _, m := range h.agent.History() {
		is.True(m.Content != "Tell the caller the form is ready.")
	}
}

func TestAgent_UnfinishedTurnWaits(t *testing.T) {
	is := is.New(t)
	detector := turnfake.NewFakeTurnDetectorWithValues(0.5, 0.1)
	h := newHarness(t, func(c *Config) {
		c.Turn = detector
		c.EndpointDelay = 100 * time.Millisecond
	})

	start := time.Now()
	h.vad.SpeechStart()
	h.vad.SpeechEnd()

	waitFor(t, func() bool { return len(h.llm.Requests()) == 1 })
	is.True(time.Since(start) >= 100*time.Millisecond)
	is.Equal(detector.Calls(), 1)
}

func TestAgent_AwayState(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) { c.AwayTimeout = 50 * time.Millisecond })
	sub := h.agent.Subscribe()
	defer sub.Close()

	select {
	case ev := <-sub.C:
		is.Equal(ev.Old, UserListening)
		is.Equal(ev.New, UserAway)
	case <-time.After(2 * time.Second):
		t.Fatal("no away event")
	}

	// speaking brings the caller back
	h.vad.SpeechStart()
	select {
	case ev := <-sub.C:
		is.Equal(ev.Old, UserAway)
		is.Equal(ev.New, UserSpeaking)
	case <-time.After(2 * time.Second):
		t.Fatal("no speaking event")
	}
}

func TestAgent_NotAwayWhileAgentSpeaks(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, func(c *Config) { c.AwayTimeout = 100 * time.Millisecond })
	h.tts.FrameDelay = 20 * time.Millisecond

	sub := h.agent.Subscribe()
	defer sub.Close()

	speech := h.agent.Say("one two three four five", true)
	waitFor(t, func() bool { return h.agent.GetState() == StateSpeaking })

	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected state change while speaking: %+v", ev)
	case <-speech.Done():
	}
	is.True(!speech.Interrupted())
}

func TestAgent_Close(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	sub := h.agent.Subscribe()

	is.NoErr(h.agent.Close())
	is.NoErr(h.agent.Close())

	select {
	case err := <-h.done:
		is.NoErr(err)
		h.done <- err
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Close")
	}

	_, ok := <-sub.C
	is.True(!ok)

	late := h.agent.Say("too late", true)
	waitDone(t, late)
	is.True(late.Interrupted())
	is.True(errors.Is(h.agent.GenerateReply(context.Background(), "x"), ErrClosed))
}

func TestAgent_StopResponding(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)

	h.agent.StopResponding()
	h.agent.StopResponding()

	h.vad.SpeechStart()
	h.micIn <- rtc.FrameFromSamples(make([]int16, 480), 48000, 1)
	h.vad.SpeechEnd()
	waitFor(t, func() bool { return h.agent.UserState() == UserListening })
	time.Sleep(100 * time.Millisecond)

	is.Equal(h.stt.Streams(), 0)       // caller speech not transcribed
	is.Equal(len(h.llm.Requests()), 0) // caller turn never reached the model
	is.True(errors.Is(h.agent.GenerateReply(context.Background(), "x"), ErrNotResponding))

	// queued speech still plays
	bye := h.agent.Say("Goodbye.", false)
	waitDone(t, bye)
	is.True(!bye.Interrupted())
	is.Equal(h.tts.Spoken(), []string{"Goodbye."})
}

func TestAgent_StartTwice(t *testing.T) {
	is := is.New(t)
	h := newHarness(t, nil)
	is.True(errors.Is(h.agent.Start(context.Background()), ErrAlreadyStarted))
}
