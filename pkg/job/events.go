package job

import (
	"log/slog"
	"time"

	"github.com/jeffo777/input-right/pkg/internal/fanout"
)

// EventType represents the type of room event.
type EventType string

const (
	EventParticipantConnected    EventType = "participant_connected"
	EventParticipantDisconnected EventType = "participant_disconnected"
	EventTrackSubscribed         EventType = "track_subscribed"
	EventTrackUnsubscribed       EventType = "track_unsubscribed"
	EventDisconnected            EventType = "disconnected"
)

// TrackKind distinguishes audio from video tracks.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Participant identifies a remote participant.
type Participant struct {
	Identity string
	Agent    bool // joined as an agent rather than a caller
}

// Event is a room event delivered to subscribers.
type Event struct {
	Type        EventType
	Timestamp   time.Time
	Participant Participant
	Track       TrackKind // set for track events
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType EventType) Event {
	return Event{Type: eventType, Timestamp: time.Now()}
}

// WithParticipant adds participant information to the event.
func (e Event) WithParticipant(p Participant) Event {
	e.Participant = p
	return e
}

// WithTrack adds the track kind to the event.
func (e Event) WithTrack(kind TrackKind) Event {
	e.Track = kind
	return e
}

// Subscription is a cancellable handle on a room's event stream. C is
// closed after Close or when the room leaves.
type Subscription = fanout.Subscription[Event]

// DefaultEventBuffer is the per-subscriber buffer when none is configured.
const DefaultEventBuffer = 64

// newEventHub fans events out to subscribers without ever blocking the sender.
func newEventHub(buffer int) *fanout.Hub[Event] {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return fanout.New(buffer, func(ev Event) {
		slog.Warn("Events channel is full, dropping event",
			slog.String("event_type", string(ev.Type)))
	})
}
