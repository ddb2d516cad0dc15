package session

import (
	"sync"

	"github.com/jeffo777/input-right/internal/lead"
)

// Phase is the coordinator's lifecycle position.
type Phase int32

const (
	PhaseConnecting Phase = iota
	PhaseAwaitingAudio
	PhaseActive
	PhaseEnding
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseAwaitingAudio:
		return "awaiting_audio"
	case PhaseActive:
		return "active"
	case PhaseEnding:
		return "ending"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// State is the cross-task session state. Once Terminate succeeds nothing
// else changes.
type State struct {
	mu            sync.Mutex
	formDisplayed bool
	greetingSent  bool
	terminated    bool
	draft         lead.Draft
}

// MarkFormDisplayed records that the caller is looking at d.
func (s *State) MarkFormDisplayed(d lead.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return
	}
	s.formDisplayed = true
	s.draft = d
}

// TakeForm clears the displayed form and returns the draft it showed. It
// reports false when no form was displayed, so only one submission per
// display gets through.
func (s *State) TakeForm() (lead.Draft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated || !s.formDisplayed {
		return lead.Draft{}, false
	}
	d := s.draft
	s.formDisplayed = false
	s.draft = lead.Draft{}
	return d, true
}

// FormDisplayed reports whether a form is on the caller's screen.
func (s *State) FormDisplayed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.formDisplayed
}

// MarkGreetingSent reports true the first time only.
func (s *State) MarkGreetingSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated || s.greetingSent {
		return false
	}
	s.greetingSent = true
	return true
}

// GreetingSent reports whether the greeting was spoken.
func (s *State) GreetingSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.greetingSent
}

// Terminate sets terminated. Only the first call returns true.
func (s *State) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	return true
}

// Terminated reports whether teardown has begun.
func (s *State) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}
