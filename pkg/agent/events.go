package agent

import (
	"log/slog"
	"time"

	"github.com/jeffo777/input-right/pkg/internal/fanout"
)

// UserState is the engine's view of the caller.
type UserState string

const (
	UserListening UserState = "listening"
	UserSpeaking  UserState = "speaking"
	UserAway      UserState = "away"
)

// UserStateChanged is delivered to subscribers on every user state change.
type UserStateChanged struct {
	Old UserState
	New UserState
	At  time.Time
}

// Subscription is a cancellable handle on user state changes. C is closed
// after Close or when the agent closes.
type Subscription = fanout.Subscription[UserStateChanged]

func newStateHub() *fanout.Hub[UserStateChanged] {
	return fanout.New(16, func(ev UserStateChanged) {
		slog.Warn("User state subscriber is full, dropping event",
			slog.String("state", string(ev.New)))
	})
}
