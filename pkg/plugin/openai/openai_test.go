package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeffo777/input-right/pkg/ai"
	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/ai/stt"
	"github.com/jeffo777/input-right/pkg/ai/tts"
	"github.com/jeffo777/input-right/pkg/rtc"
)

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewLLM(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewWhisperSTT(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := NewTTS(Config{}); err == nil {
		t.Error("expected error for missing API key")
	}
}

func TestLLMChatWithTools(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{
						"id": "call_abc",
						"type": "function",
						"function": {"name": "present_verification_form", "arguments": "{\"name\":\"Jane\"}"}
					}]
				}
			}],
			"usage": {"total_tokens": 42}
		}`)
	}))
	defer srv.Close()

	model, err := NewLLM(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "llama-3.1-8b-instant"})
	if err != nil {
		t.Fatalf("NewLLM() error = %v", err)
	}

	resp, err := model.Chat(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be helpful"},
			{Role: llm.RoleUser, Content: "my name is Jane"},
		},
		Tools: []llm.ToolDefinition{{
			Name:        "present_verification_form",
			Description: "show the form",
			Parameters:  []llm.ToolParameter{{Name: "name", Type: llm.ParamString, Required: true}},
		}},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	if got["model"] != "llama-3.1-8b-instant" {
		t.Errorf("model = %v", got["model"])
	}
	tools, _ := got["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("sent %d tools, want 1", len(tools))
	}

	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(resp.Message.ToolCalls))
	}
	call := resp.Message.ToolCalls[0]
	if call.ID != "call_abc" || call.Name != "present_verification_form" || call.Arguments != `{"name":"Jane"}` {
		t.Errorf("tool call = %+v", call)
	}
	if resp.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d", resp.TokensUsed)
	}
}

func TestLLMErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		recoverable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"bad key", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"message":"nope","type":"test"}}`)
			}))
			defer srv.Close()

			model, _ := NewLLM(Config{APIKey: "k", BaseURL: srv.URL})
			_, err := model.Chat(context.Background(), llm.ChatRequest{})
			if err == nil {
				t.Fatal("expected error")
			}
			if ai.IsRecoverable(err) != tt.recoverable {
				t.Errorf("IsRecoverable(%v) = %v, want %v", err, ai.IsRecoverable(err), tt.recoverable)
			}
		})
	}
}

func TestToOpenAIMessagesCarriesToolResults(t *testing.T) {
	msgs := toOpenAIMessages([]llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "f", Arguments: "{}"}}},
		{Role: llm.RoleTool, ToolCallID: "c1", Name: "f", Content: "done"},
	})
	if len(msgs[0].ToolCalls) != 1 || msgs[0].ToolCalls[0].Function.Name != "f" {
		t.Errorf("assistant tool calls = %+v", msgs[0].ToolCalls)
	}
	if msgs[1].ToolCallID != "c1" || msgs[1].Role != "tool" {
		t.Errorf("tool message = %+v", msgs[1])
	}
}

func TestWhisperStreamTranscribes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			head := make([]byte, 4)
			file.Read(head)
			if string(head) != "RIFF" {
				t.Errorf("upload is not a WAV payload")
			}
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"I have a leaky pipe","language":"en"}`)
	}))
	defer srv.Close()

	whisper, _ := NewWhisperSTT(Config{APIKey: "k", BaseURL: srv.URL})
	stream, err := whisper.NewStream(context.Background(), stt.StreamConfig{SampleRate: 16000, NumChannels: 1})
	if err != nil {
		t.Fatalf("NewStream() error = %v", err)
	}

	for i := 0; i < 20; i++ {
		if err := stream.Push(rtc.FrameFromSamples(make([]int16, 160), 16000, 1)); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("CloseSend() error = %v", err)
	}
	if err := stream.Push(rtc.FrameFromSamples(make([]int16, 160), 16000, 1)); err == nil {
		t.Error("expected error pushing after CloseSend")
	}

	select {
	case ev := <-stream.Events():
		if ev.Type != stt.SpeechEventFinal || ev.Text != "I have a leaky pipe" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for transcript")
	}
}

func TestWhisperStreamSkipsShortAudio(t *testing.T) {
	whisper, _ := NewWhisperSTT(Config{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	stream, _ := whisper.NewStream(context.Background(), stt.StreamConfig{})
	stream.Push(rtc.FrameFromSamples(make([]int16, 160), 16000, 1))
	stream.CloseSend()

	ev, ok := <-stream.Events()
	if !ok || ev.Type != stt.SpeechEventFinal || ev.Text != "" {
		t.Errorf("expected empty final event, got %+v (ok=%v)", ev, ok)
	}
}

func TestStreamPCMFrames(t *testing.T) {
	// two and a half frames of 24kHz mono PCM
	raw := bytes.Repeat([]byte{1, 0}, 480*2+240)
	out := make(chan rtc.AudioFrame, 10)

	if err := streamPCM(context.Background(), bytes.NewReader(raw), out); err != nil {
		t.Fatalf("streamPCM() error = %v", err)
	}
	close(out)

	var frames []rtc.AudioFrame
	for f := range out {
		frames = append(frames, f)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for _, f := range frames {
		if len(f.Data) != 960 || f.SampleRate != pcmSampleRate {
			t.Errorf("frame has %d bytes at %dHz", len(f.Data), f.SampleRate)
		}
	}
}

func TestTTSSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "pcm" {
			t.Errorf("response_format = %v", body["response_format"])
		}
		w.Write(make([]byte, 960*4))
	}))
	defer srv.Close()

	speech, _ := NewTTS(Config{APIKey: "k", BaseURL: srv.URL})
	frames, err := speech.Synthesize(context.Background(), tts.SynthesizeRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	count := 0
	for range frames {
		count++
	}
	if count != 4 {
		t.Errorf("got %d frames, want 4", count)
	}
}

func TestClassifyWithoutResponse(t *testing.T) {
	err := classify(errors.New("dial tcp: refused"), "request failed")
	if !ai.IsRecoverable(err) {
		t.Errorf("transport error should be recoverable: %v", err)
	}
}
