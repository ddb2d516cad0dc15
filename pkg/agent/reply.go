package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jeffo777/input-right/pkg/ai"
	"github.com/jeffo777/input-right/pkg/ai/llm"
)

// MaxToolRounds bounds how many times one reply may loop through tool calls.
const MaxToolRounds = 5

var (
	ErrDuplicateTool = errors.New("tool already registered")
	ErrToolRounds    = errors.New("too many tool call rounds")
)

// ToolHandler runs a tool. args is the JSON object the model produced. The
// returned text (or error text) is handed back to the model.
type ToolHandler func(ctx context.Context, args json.RawMessage) (string, error)

// Tool is a declared tool schema plus its handler.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    ToolHandler
}

// RegisterTool makes a tool available to the model from the next turn on.
func (a *Agent) RegisterTool(t Tool) error {
	if err := t.Definition.Validate(); err != nil {
		return err
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", t.Definition.Name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tools[t.Definition.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Definition.Name)
	}
	a.tools[t.Definition.Name] = t
	a.toolOrder = append(a.toolOrder, t.Definition.Name)
	return nil
}

// GenerateReply runs one LLM turn with instructions as an extra system
// message and speaks the result. The instructions are not kept in history.
func (a *Agent) GenerateReply(ctx context.Context, instructions string) error {
	select {
	case <-a.shutdown:
		return ErrClosed
	default:
	}
	if !a.responding() {
		return ErrNotResponding
	}
	return a.respond(ctx, instructions, "")
}

// startReply answers a finished user turn in the background. A new user
// utterance cancels it.
func (a *Agent) startReply(ctx context.Context, text string) {
	turnCtx, cancel := context.WithCancel(ctx)

	a.turnMu.Lock()
	if a.quiet {
		a.turnMu.Unlock()
		cancel()
		slog.Debug("Dropping caller turn, agent has stopped responding")
		return
	}
	if a.turnCancel != nil {
		a.turnCancel()
	}
	a.turnCancel = cancel
	a.turnMu.Unlock()

	go func() {
		defer cancel()
		err := a.respond(turnCtx, "", text)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrNotResponding) {
			slog.Error("Failed to generate reply", slog.String("error", err.Error()))
		}
	}()
}

// StopResponding stops the engine from answering the caller. The reply in
// progress is cancelled and caller speech is no longer transcribed. Queued
// speech keeps playing and Say still works.
func (a *Agent) StopResponding() {
	a.turnMu.Lock()
	a.quiet = true
	if a.turnCancel != nil {
		a.turnCancel()
		a.turnCancel = nil
	}
	a.turnMu.Unlock()
	a.stopListening()
}

func (a *Agent) responding() bool {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()
	return !a.quiet
}

func (a *Agent) cancelTurn() {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()
	if a.turnCancel != nil {
		a.turnCancel()
		a.turnCancel = nil
	}
}

// respond appends userText (if any) and loops the model through tool calls
// until it produces text, which is queued as interruptible speech.
func (a *Agent) respond(ctx context.Context, instructions, userText string) error {
	a.replyMu.Lock()
	defer a.replyMu.Unlock()

	if userText != "" {
		a.appendHistory(llm.Message{Role: llm.RoleUser, Content: userText})
	}

	prev := a.GetState()
	a.setState(StateThinking)
	defer func() {
		if a.GetState() == StateThinking {
			a.setState(prev)
		}
	}()

	for round := 0; round < MaxToolRounds; round++ {
		req := llm.ChatRequest{Messages: a.History(), Tools: a.toolDefinitions()}
		if instructions != "" {
			req.Messages = append(req.Messages, llm.Message{Role: llm.RoleSystem, Content: instructions})
		}

		var resp llm.ChatResponse
		err := ai.Retry(ctx, ai.DefaultRetryConfig, func(ctx context.Context) error {
			var err error
			resp, err = a.llm.Chat(ctx, req)
			return err
		})
		if err != nil {
			return fmt.Errorf("LLM chat failed: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !a.responding() {
			return ErrNotResponding
		}

		msg := resp.Message
		msg.Role = llm.RoleAssistant
		a.appendHistory(msg)

		if len(msg.ToolCalls) == 0 {
			if msg.Content != "" {
				a.Say(msg.Content, true)
			}
			return nil
		}

		for _, call := range msg.ToolCalls {
			if !a.responding() {
				return ErrNotResponding
			}
			result := a.callTool(ctx, call)
			a.appendHistory(llm.Message{
				Role:       llm.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return ErrToolRounds
}

func (a *Agent) callTool(ctx context.Context, call llm.ToolCall) (result string) {
	a.mu.Lock()
	t, ok := a.tools[call.Name]
	a.mu.Unlock()
	if !ok {
		slog.Warn("Model called unknown tool", slog.String("tool", call.Name))
		return fmt.Sprintf("error: unknown tool %q", call.Name)
	}
	a.metrics.ToolCalls.Add(call.Name, 1)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool handler panicked", slog.String("tool", call.Name), slog.Any("panic", r))
			result = "error: the tool failed unexpectedly"
		}
	}()

	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	out, err := t.Handler(ctx, args)
	if err != nil {
		slog.Warn("Tool returned an error",
			slog.String("tool", call.Name),
			slog.String("error", err.Error()))
		return "error: " + err.Error()
	}
	return out
}

func (a *Agent) toolDefinitions() []llm.ToolDefinition {
	a.mu.Lock()
	defer a.mu.Unlock()
	defs := make([]llm.ToolDefinition, 0, len(a.toolOrder))
	for _, name := range a.toolOrder {
		defs = append(defs, a.tools[name].Definition)
	}
	return defs
}

func (a *Agent) appendHistory(msg llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, msg)
}
