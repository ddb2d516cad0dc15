// Package form implements the verification form tool: the model calls it
// once it has the caller's details, and it shows them on the caller's screen.
package form

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jeffo777/input-right/internal/lead"
	"github.com/jeffo777/input-right/pkg/agent"
	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/job"
)

const (
	// ToolName is the name the model calls the tool by.
	ToolName = "present_verification_form"

	// DisplayMethod is the caller-side remote call that renders the form.
	DisplayMethod = "display_lead_form"

	// DefaultTimeout bounds the display call.
	DefaultTimeout = 5 * time.Second

	// Displayed is the tool result after the form was shown.
	Displayed = "The verification form was successfully displayed to the user."
)

var (
	ErrNoParticipant  = errors.New("could not find the user to display the form")
	ErrDeliveryFailed = errors.New("there was a technical problem displaying the form to the user")
	ErrSessionEnded   = errors.New("the call has ended, the form cannot be displayed")
)

// Room is the part of the room the tool needs.
type Room interface {
	RemoteParticipants() []job.Participant
	PerformRPC(ctx context.Context, destination, method, payload string, timeout time.Duration) (string, error)
}

// State records that a form is on the caller's screen.
type State interface {
	MarkFormDisplayed(d lead.Draft)
	Terminated() bool
}

// Tool sends drafts to the caller's display form.
type Tool struct {
	room    Room
	state   State
	timeout time.Duration
	logger  *slog.Logger
}

// New creates the tool. A zero timeout uses DefaultTimeout.
func New(room Room, state State, timeout time.Duration, logger *slog.Logger) *Tool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tool{room: room, state: state, timeout: timeout, logger: logger}
}

// Definition is the schema registered with the engine.
func Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name: ToolName,
		Description: "Show the caller a form with their details so they can check and submit them. " +
			"Call this once you have the caller's name, a summary of their inquiry and their email address.",
		Parameters: []llm.ToolParameter{
			{Name: "name", Type: llm.ParamString, Description: "The caller's full name", Required: true},
			{Name: "inquiry", Type: llm.ParamString, Description: "A short summary of what the caller needs", Required: true},
			{Name: "email", Type: llm.ParamString, Description: "The caller's email address", Required: true},
			{Name: "phone", Type: llm.ParamString, Description: "The caller's phone number, if given"},
		},
	}
}

// AgentTool adapts the tool for registration with the conversation engine.
func (t *Tool) AgentTool() agent.Tool {
	return agent.Tool{
		Definition: Definition(),
		Handler: func(ctx context.Context, args json.RawMessage) (string, error) {
			var d lead.Draft
			if err := json.Unmarshal(args, &d); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			return t.Present(ctx, d.Normalize())
		},
	}
}

// Present sends the draft to the caller and marks the form as displayed.
// Calling it again replaces the form the caller sees. Once the session has
// ended nothing is sent.
func (t *Tool) Present(ctx context.Context, d lead.Draft) (string, error) {
	if t.state.Terminated() {
		t.logger.Warn("Form requested after the session ended")
		return "", ErrSessionEnded
	}

	var missing []string
	if d.Name == "" {
		missing = append(missing, "name")
	}
	if d.Inquiry == "" {
		missing = append(missing, "inquiry")
	}
	if d.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}

	caller, ok := t.caller()
	if !ok {
		t.logger.Warn("No caller in room to show the form to")
		return "", ErrNoParticipant
	}

	payload, err := d.Payload()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	t.logger.Info("Displaying verification form", slog.String("participant", caller))
	if _, err := t.room.PerformRPC(ctx, caller, DisplayMethod, payload, t.timeout); err != nil {
		t.logger.Error("Failed to display verification form",
			slog.String("participant", caller),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	t.state.MarkFormDisplayed(d)
	return Displayed, nil
}

// caller picks the first non-agent participant. Participants arrive sorted
// by identity, so the choice is stable when more than one is present.
func (t *Tool) caller() (string, bool) {
	for _, p := range t.room.RemoteParticipants() {
		if !p.Agent {
			return p.Identity, true
		}
	}
	return "", false
}
