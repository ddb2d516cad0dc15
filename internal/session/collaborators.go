package session

import (
	"context"

	"github.com/jeffo777/input-right/internal/lead"
	"github.com/jeffo777/input-right/pkg/agent"
	"github.com/jeffo777/input-right/pkg/job"
)

// Room is the transport the coordinator drives.
type Room interface {
	// Events must be usable before Join.
	Events() (<-chan job.Event, func())
	Join(ctx context.Context) error
	Leave()
	Identity() string
	RegisterRPC(method string, handler job.RPCHandler) error
}

// Speech is a queued utterance.
type Speech interface {
	Done() <-chan struct{}
}

// Engine is the conversation engine as seen by the coordinator.
type Engine interface {
	Start(ctx context.Context) error
	Say(text string, allowInterruptions bool) Speech
	Interrupt()
	// StopResponding ends caller turns and tool calls. Queued speech still plays.
	StopResponding()
	UserStates() (<-chan agent.UserStateChanged, func())
	Close() error
}

// Submitter stores a confirmed lead.
type Submitter interface {
	Submit(ctx context.Context, tenantID string, d lead.Draft) (lead.Record, error)
}

type agentEngine struct {
	*agent.Agent
}

// EngineFromAgent adapts the conversation engine.
func EngineFromAgent(a *agent.Agent) Engine {
	return agentEngine{a}
}

func (e agentEngine) Say(text string, allowInterruptions bool) Speech {
	return e.Agent.Say(text, allowInterruptions)
}

func (e agentEngine) UserStates() (<-chan agent.UserStateChanged, func()) {
	sub := e.Agent.Subscribe()
	return sub.C, sub.Close
}
