// Package session runs one caller session: it greets the caller once their
// audio arrives, ends the call when they leave or go quiet, and processes
// the verification form the caller submits.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffo777/input-right/internal/profile"
	"github.com/jeffo777/input-right/pkg/agent"
	"github.com/jeffo777/input-right/pkg/job"
)

const (
	// SubmitMethod is the inbound remote call carrying the confirmed form.
	SubmitMethod = "submit_lead_form"

	// SubmitAccepted is the reply to an accepted submission.
	SubmitAccepted = "SUCCESS"

	DefaultGreetingTimeout = 20 * time.Second
	DefaultSubmitTimeout   = 30 * time.Second
	DefaultDrainTimeout    = 5 * time.Second
)

// Spoken texts.
const (
	greetingFormat       = "Thank you for calling %s. How can I help you today?"
	confirmationText     = "Thank you. Your information has been sent. Was there anything else I can help you with today?"
	sinkApologyText      = "I'm sorry, there was an error saving your information. Please try again in a moment."
	configApologyText    = "I'm sorry, there is a configuration error and I can't save your information."
	malformedApologyText = "I'm sorry, a technical error occurred. Please try again."
)

// Reasons passed to OnEnd.
const (
	ReasonGreetingTimeout = "greeting timeout"
	ReasonCallerLeft      = "caller disconnected"
	ReasonCallerAway      = "caller away"
	ReasonRoomClosed      = "room disconnected"
	ReasonEngineStopped   = "conversation engine stopped"
	ReasonCancelled       = "context cancelled"
	ReasonJoinFailed      = "join failed"
	ReasonPanic           = "internal error"
)

var (
	ErrNoFormDisplayed = errors.New("no form is awaiting submission")
	ErrSessionEnded    = errors.New("session has ended")
	ErrAlreadyRunning  = errors.New("session already started")
)

// Config wires a coordinator.
type Config struct {
	Room     Room
	Engine   Engine
	Leads    Submitter
	Profile  profile.Profile
	State    *State // shared with the form tool; created when nil
	Logger   *slog.Logger
	OnEnd    func(reason string)

	GreetingTimeout time.Duration
	SubmitTimeout   time.Duration
	DrainTimeout    time.Duration // how long teardown waits on scheduled speech
}

// Coordinator owns one session from join to teardown.
type Coordinator struct {
	room    Room
	engine  Engine
	leads   Submitter
	profile profile.Profile
	state   *State
	logger  *slog.Logger
	onEnd   func(string)

	greetingTimeout time.Duration
	submitTimeout   time.Duration
	drainTimeout    time.Duration

	phase   atomic.Int32
	started atomic.Bool

	notices chan notice
	done    chan struct{}

	submitMu    sync.Mutex // orders submissions.Add against teardown
	submissions sync.WaitGroup
	lastSpeech  Speech
	endOnce     sync.Once
}

// notice is a message from a background task to the control loop.
type notice struct {
	say         string
	interruptOK bool
}

// New validates cfg and returns an idle coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Room == nil {
		return nil, fmt.Errorf("room is required")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if cfg.Leads == nil {
		return nil, fmt.Errorf("lead submitter is required")
	}
	if cfg.Profile.TenantID == "" {
		return nil, fmt.Errorf("tenant profile is required")
	}
	if cfg.State == nil {
		cfg.State = &State{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OnEnd == nil {
		cfg.OnEnd = func(string) {}
	}
	if cfg.GreetingTimeout <= 0 {
		cfg.GreetingTimeout = DefaultGreetingTimeout
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}

	return &Coordinator{
		room:            cfg.Room,
		engine:          cfg.Engine,
		leads:           cfg.Leads,
		profile:         cfg.Profile,
		state:           cfg.State,
		logger:          cfg.Logger,
		onEnd:           cfg.OnEnd,
		greetingTimeout: cfg.GreetingTimeout,
		submitTimeout:   cfg.SubmitTimeout,
		drainTimeout:    cfg.DrainTimeout,
		notices:         make(chan notice, 8),
		done:            make(chan struct{}),
	}, nil
}

// State returns the shared session state.
func (c *Coordinator) State() *State { return c.state }

// Phase returns the current lifecycle phase.
func (c *Coordinator) Phase() Phase { return Phase(c.phase.Load()) }

// Done is closed once the session is Closed.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) setPhase(p Phase) {
	old := Phase(c.phase.Swap(int32(p)))
	if old != p {
		c.logger.Debug("Session phase changed",
			slog.String("from", old.String()),
			slog.String("to", p.String()))
	}
}

// Run joins the room and drives the session until it is Closed. It returns
// the reason the session ended, or an error when it never got going.
func (c *Coordinator) Run(ctx context.Context) (reason string, err error) {
	if !c.started.CompareAndSwap(false, true) {
		return "", ErrAlreadyRunning
	}

	// Observers go in before Join so no early event is lost.
	events, stopEvents := c.room.Events()
	defer stopEvents()
	userStates, stopStates := c.engine.UserStates()
	defer stopStates()
	if err := c.room.RegisterRPC(SubmitMethod, c.handleSubmit); err != nil {
		c.end(ReasonJoinFailed, nil)
		return ReasonJoinFailed, fmt.Errorf("register %s: %w", SubmitMethod, err)
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()

	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("Session loop panicked", slog.Any("panic", p))
			reason, err = ReasonPanic, fmt.Errorf("session panic: %v", p)
			c.end(ReasonPanic, stopEngine)
		}
	}()

	if err := c.room.Join(ctx); err != nil {
		c.logger.Error("Failed to join room", slog.String("error", err.Error()))
		c.end(ReasonJoinFailed, stopEngine)
		return ReasonJoinFailed, err
	}
	c.setPhase(PhaseAwaitingAudio)

	engineDone := make(chan error, 1)
	go func() {
		engineDone <- c.engine.Start(engineCtx)
	}()

	greeting := time.NewTimer(c.greetingTimeout)
	defer greeting.Stop()

	reason = c.loop(ctx, events, userStates, engineDone, greeting)
	c.end(reason, stopEngine)
	return reason, nil
}

func (c *Coordinator) loop(ctx context.Context, events <-chan job.Event, userStates <-chan agent.UserStateChanged, engineDone <-chan error, greeting *time.Timer) string {
	self := c.room.Identity()
	for {
		select {
		case <-ctx.Done():
			return ReasonCancelled

		case <-greeting.C:
			if c.Phase() == PhaseAwaitingAudio {
				c.logger.Info("No caller audio before greeting timeout",
					slog.Duration("timeout", c.greetingTimeout))
				return ReasonGreetingTimeout
			}

		case ev, ok := <-events:
			if !ok {
				return ReasonRoomClosed
			}
			if r := c.handleRoomEvent(ev, self, greeting); r != "" {
				return r
			}

		case change, ok := <-userStates:
			if !ok {
				userStates = nil
				continue
			}
			if change.New != agent.UserAway || c.Phase() != PhaseActive {
				continue
			}
			if c.state.FormDisplayed() {
				c.logger.Info("Caller away while form is displayed, keeping session open")
				continue
			}
			return ReasonCallerAway

		case n := <-c.notices:
			if c.Phase() == PhaseActive || c.Phase() == PhaseAwaitingAudio {
				c.lastSpeech = c.engine.Say(n.say, n.interruptOK)
			}

		case err := <-engineDone:
			if err != nil && !errors.Is(err, context.Canceled) {
				c.logger.Error("Conversation engine failed", slog.String("error", err.Error()))
			}
			return ReasonEngineStopped
		}
	}
}

func (c *Coordinator) handleRoomEvent(ev job.Event, self string, greeting *time.Timer) string {
	switch ev.Type {
	case job.EventTrackSubscribed:
		if ev.Track != job.TrackAudio || ev.Participant.Identity == self || ev.Participant.Agent {
			return ""
		}
		if c.Phase() != PhaseAwaitingAudio {
			return ""
		}
		greeting.Stop()
		if c.state.MarkGreetingSent() {
			c.logger.Info("Caller audio subscribed, greeting",
				slog.String("participant", ev.Participant.Identity))
			c.lastSpeech = c.engine.Say(fmt.Sprintf(greetingFormat, c.profile.BusinessName), true)
		}
		c.setPhase(PhaseActive)

	case job.EventParticipantDisconnected:
		if ev.Participant.Identity == self || ev.Participant.Agent {
			return ""
		}
		c.logger.Info("Caller disconnected", slog.String("participant", ev.Participant.Identity))
		return ReasonCallerLeft

	case job.EventDisconnected:
		return ReasonRoomClosed
	}
	return ""
}

// end tears the session down once. The engine stops answering as soon as
// the session is terminated; scheduled speech gets a bounded chance to play,
// then the engine is closed before in-flight submissions are awaited, and
// finally the room is left and the host is told.
func (c *Coordinator) end(reason string, stopEngine context.CancelFunc) {
	c.endOnce.Do(func() {
		c.submitMu.Lock()
		c.state.Terminate()
		c.submitMu.Unlock()
		c.engine.StopResponding()
		c.setPhase(PhaseEnding)
		c.logger.Info("Ending session", slog.String("reason", reason))

		if c.lastSpeech != nil {
			wait(c.lastSpeech.Done(), c.drainTimeout)
		}

		if err := c.engine.Close(); err != nil {
			c.logger.Warn("Failed to close conversation engine", slog.String("error", err.Error()))
		}
		if stopEngine != nil {
			stopEngine()
		}

		submitted := make(chan struct{})
		go func() {
			c.submissions.Wait()
			close(submitted)
		}()
		if !wait(submitted, c.submitTimeout) {
			c.logger.Warn("Lead submission still running at teardown")
		}
		c.room.Leave()

		c.setPhase(PhaseClosed)
		close(c.done)
		c.onEnd(reason)
	})
}

func wait(ch <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ch:
		return true
	case <-t.C:
		return false
	}
}
