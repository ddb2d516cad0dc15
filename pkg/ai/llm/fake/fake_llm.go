package fake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jeffo777/input-right/pkg/ai/llm"
)

// Step is one scripted reply. Exactly one of Text, ToolCalls or Err is
// normally set.
type Step struct {
	Text      string
	ToolCalls []llm.ToolCall
	Err       error
}

// FakeLLM replays scripted steps, then cycles through canned responses.
type FakeLLM struct {
	mu        sync.Mutex
	responses []string
	script    []Step
	callCount int
	requests  []llm.ChatRequest
}

// NewFakeLLM creates a fake with canned text responses.
func NewFakeLLM(responses ...string) *FakeLLM {
	if len(responses) == 0 {
		responses = []string{
			"This is a fake response from the fake LLM provider.",
			"I'm a fake AI assistant. How can I help you?",
		}
	}
	return &FakeLLM{responses: responses}
}

// Script queues steps consumed in order before canned responses are used.
func (f *FakeLLM) Script(steps ...Step) *FakeLLM {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, steps...)
	return f
}

// Requests returns a copy of every request received.
func (f *FakeLLM) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.ChatRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// Chat returns the next scripted step or canned response.
func (f *FakeLLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return llm.ChatResponse{}, err
	}

	f.mu.Lock()
	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	f.requests = append(f.requests, req)

	var step *Step
	if len(f.script) > 0 {
		s := f.script[0]
		f.script = f.script[1:]
		step = &s
	}
	response := f.responses[f.callCount%len(f.responses)]
	f.callCount++
	f.mu.Unlock()

	if step != nil {
		if step.Err != nil {
			return llm.ChatResponse{}, step.Err
		}
		if len(step.ToolCalls) > 0 {
			calls := make([]llm.ToolCall, len(step.ToolCalls))
			for i, c := range step.ToolCalls {
				if c.ID == "" {
					c.ID = fmt.Sprintf("call_%d", i)
				}
				calls[i] = c
			}
			return llm.ChatResponse{
				Message:      llm.Message{Role: llm.RoleAssistant, ToolCalls: calls},
				TokensUsed:   50,
				FinishReason: "tool_calls",
			}, nil
		}
		response = step.Text
	}

	return llm.ChatResponse{
		Message:      llm.Message{Role: llm.RoleAssistant, Content: response},
		TokensUsed:   len(strings.Fields(response)) + 10,
		FinishReason: "stop",
	}, nil
}

// Capabilities returns the fake LLM capabilities.
func (f *FakeLLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsTools:      true,
		MaxTokens:          4096,
		SupportedModels:    []string{"fake-model"},
		SupportsSystemRole: true,
	}
}
