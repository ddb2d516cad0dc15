// Package turn decides whether a caller has finished their turn, so the
// engine does not answer a sentence the caller is still in the middle of.
package turn

import (
	"context"

	"github.com/jeffo777/input-right/pkg/ai/llm"
)

// Detector predicts end of utterance (EOU) from recent conversation.
type Detector interface {
	// UnlikelyThreshold returns the probability below which the turn is
	// considered unfinished for the language.
	UnlikelyThreshold(language string) (float64, error)

	SupportsLanguage(language string) bool

	// PredictEndOfTurn returns the probability (0-1) that the user has
	// finished speaking given the chat context.
	PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error)
}

// ChatContext is the conversation history needed for turn detection.
type ChatContext struct {
	Messages []llm.Message
	Language string
}

// lastUserText returns the most recent user message content.
func (c ChatContext) lastUserText() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == llm.RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// EndOfTurn reports whether the detector considers the turn finished. A
// detector error counts as finished so the caller is never left waiting.
func EndOfTurn(ctx context.Context, d Detector, chatCtx ChatContext) bool {
	threshold, err := d.UnlikelyThreshold(chatCtx.Language)
	if err != nil {
		return true
	}
	p, err := d.PredictEndOfTurn(ctx, chatCtx)
	if err != nil {
		return true
	}
	return p >= threshold
}
