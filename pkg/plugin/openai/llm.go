package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/llm"
	openai "github.com/sashabaranov/go-openai"
)

const defaultChatModel = openai.GPT4oMini

// LLM implements llm.LLM on the chat completions endpoint.
type LLM struct {
	client *openai.Client
	model  string
}

// NewLLM creates a chat provider.
func NewLLM(cfg Config) (*LLM, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = defaultChatModel
	}
	return &LLM{client: client, model: model}, nil
}

// Chat performs one chat completion, passing declared tools through.
func (o *LLM) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	start := time.Now()

	completionReq := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Tools:       toOpenAITools(req.Tools),
	}

	resp, err := o.client.CreateChatCompletion(ctx, completionReq)
	if err != nil {
		slog.Error("chat completion failed", slog.String("model", o.model), slog.String("error", err.Error()))
		return llm.ChatResponse{}, classify(err, "chat completion request failed")
	}
	if len(resp.Choices) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("no chat completion choices returned")
	}

	choice := resp.Choices[0]
	result := llm.ChatResponse{
		Message: llm.Message{
			Role:    llm.RoleAssistant,
			Content: choice.Message.Content,
		},
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		result.Message.ToolCalls = append(result.Message.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	slog.Debug("chat completion done",
		slog.String("model", o.model),
		slog.Int("tokens", resp.Usage.TotalTokens),
		slog.Int("tool_calls", len(result.Message.ToolCalls)),
		slog.Duration("duration", time.Since(start)))

	return result, nil
}

func toOpenAIMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, msg := range msgs {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = m
	}
	return out
}

func toOpenAITools(defs []llm.ToolDefinition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.Tool, len(defs))
	for i, def := range defs {
		tools[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.JSONSchema(),
			},
		}
	}
	return tools
}

// Capabilities returns the provider's capabilities.
func (o *LLM) Capabilities() llm.LLMCapabilities {
	return llm.LLMCapabilities{
		SupportsTools:      true,
		MaxTokens:          128000,
		SupportedModels:    []string{o.model},
		SupportsSystemRole: true,
	}
}
