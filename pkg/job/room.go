package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"

	"github.com/jeffo777/input-right/pkg/internal/fanout"
	"github.com/jeffo777/input-right/pkg/rtc"
)

var (
	ErrNotConnected     = errors.New("room is not connected")
	ErrAlreadyConnected = errors.New("room is already connected")
)

// RPCRequest is an inbound remote call from a participant.
type RPCRequest struct {
	CallerIdentity  string
	Payload         string
	ResponseTimeout time.Duration
}

// RPCHandler answers an inbound remote call. The context expires at the
// caller's response deadline.
type RPCHandler func(ctx context.Context, req RPCRequest) (string, error)

// RoomConfig contains configuration for connecting to a room. Either Token
// or APIKey and APISecret must be set.
type RoomConfig struct {
	URL       string
	Token     string
	APIKey    string
	APISecret string
	RoomName  string
	Identity  string
	Name      string

	EventBufferSize int
	SampleRate      int // rate of the published and delivered audio, default 48000
}

// Room wraps a LiveKit room connection. It turns SDK callbacks into
// subscription events, exposes remote calls, and bridges caller audio in
// and agent audio out as rtc frames.
type Room struct {
	cfg RoomConfig
	hub *fanout.Hub[Event]

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	room         *lksdk.Room
	connected    bool
	left         bool
	participants map[string]Participant
	rpcHandlers  map[string]RPCHandler

	micIn      chan rtc.AudioFrame
	speakerOut chan rtc.AudioFrame
	localTrack *lkmedia.PCMLocalTrack
	remote     []*lkmedia.PCMRemoteTrack
}

// NewRoom validates the configuration. It does not connect.
func NewRoom(ctx context.Context, config RoomConfig) (*Room, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("URL is required")
	}
	if config.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if config.Token == "" && (config.APIKey == "" || config.APISecret == "") {
		return nil, fmt.Errorf("token or API key and secret are required")
	}
	if config.Token == "" && config.Identity == "" {
		return nil, fmt.Errorf("identity is required when connecting with API key")
	}
	if config.SampleRate <= 0 {
		config.SampleRate = 48000
	}

	roomCtx, cancel := context.WithCancel(ctx)
	return &Room{
		cfg:          config,
		hub:          newEventHub(config.EventBufferSize),
		ctx:          roomCtx,
		cancel:       cancel,
		participants: make(map[string]Participant),
		rpcHandlers:  make(map[string]RPCHandler),
		micIn:        make(chan rtc.AudioFrame, 100),
		speakerOut:   make(chan rtc.AudioFrame),
	}, nil
}

// Subscribe returns a handle on room events. Subscribe before Join so no
// event is missed.
func (r *Room) Subscribe() *Subscription {
	return r.hub.Subscribe()
}

// Events subscribes and returns the event channel with its cancel func.
func (r *Room) Events() (<-chan Event, func()) {
	s := r.hub.Subscribe()
	return s.C, s.Close
}

// Identity returns the local participant identity.
func (r *Room) Identity() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.room != nil && r.room.LocalParticipant != nil {
		return r.room.LocalParticipant.Identity()
	}
	return r.cfg.Identity
}

// MicIn delivers caller audio as 10ms mono frames.
func (r *Room) MicIn() <-chan rtc.AudioFrame { return r.micIn }

// SpeakerOut accepts agent audio. Sends block at playback pace.
func (r *Room) SpeakerOut() chan<- rtc.AudioFrame { return r.speakerOut }

// Join connects to the room, registers pending remote call handlers and
// publishes the agent's audio track.
func (r *Room) Join(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if r.connected || r.left {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	r.mu.Unlock()

	callback := &lksdk.RoomCallback{
		OnParticipantConnected:    r.onParticipantConnected,
		OnParticipantDisconnected: r.onParticipantDisconnected,
		OnDisconnected:            r.onDisconnected,
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackSubscribed:   r.onTrackSubscribed,
			OnTrackUnsubscribed: r.onTrackUnsubscribed,
		},
	}

	var (
		room *lksdk.Room
		err  error
	)
	if r.cfg.Token != "" {
		room, err = lksdk.ConnectToRoomWithToken(r.cfg.URL, r.cfg.Token, callback, lksdk.WithAutoSubscribe(true))
	} else {
		room, err = lksdk.ConnectToRoom(r.cfg.URL, lksdk.ConnectInfo{
			APIKey:              r.cfg.APIKey,
			APISecret:           r.cfg.APISecret,
			RoomName:            r.cfg.RoomName,
			ParticipantIdentity: r.cfg.Identity,
			ParticipantName:     r.cfg.Name,
			ParticipantKind:     lksdk.ParticipantAgent,
		}, callback, lksdk.WithAutoSubscribe(true))
	}
	if err != nil {
		return fmt.Errorf("failed to connect to room: %w", err)
	}

	track, err := lkmedia.NewPCMLocalTrack(r.cfg.SampleRate, 1, nil)
	if err != nil {
		room.Disconnect()
		return fmt.Errorf("failed to create audio track: %w", err)
	}
	if _, err := room.LocalParticipant.PublishTrack(track, &lksdk.TrackPublicationOptions{
		Name:   "agent-voice",
		Source: livekit.TrackSource_MICROPHONE,
	}); err != nil {
		track.Close()
		room.Disconnect()
		return fmt.Errorf("failed to publish audio track: %w", err)
	}

	r.mu.Lock()
	r.room = room
	r.connected = true
	r.localTrack = track
	handlers := make(map[string]RPCHandler, len(r.rpcHandlers))
	for m, h := range r.rpcHandlers {
		handlers[m] = h
	}
	for _, rp := range room.GetRemoteParticipants() {
		r.participants[rp.Identity()] = participantOf(rp)
	}
	r.mu.Unlock()

	for method, h := range handlers {
		if err := room.RegisterRpcMethod(method, r.wrapHandler(method, h)); err != nil {
			slog.Error("Failed to register RPC method", slog.String("method", method), slog.String("error", err.Error()))
		}
	}

	go r.pumpSpeaker(track)

	slog.Info("Connected to LiveKit room",
		slog.String("room_name", r.cfg.RoomName),
		slog.String("identity", room.LocalParticipant.Identity()))

	return nil
}

// Leave disconnects and ends all subscriptions. It is idempotent.
func (r *Room) Leave() {
	r.mu.Lock()
	if r.left {
		r.mu.Unlock()
		return
	}
	r.left = true
	r.connected = false
	room, track, remote := r.room, r.localTrack, r.remote
	r.remote = nil
	r.mu.Unlock()

	r.cancel()
	for _, rt := range remote {
		rt.Close()
	}
	if track != nil {
		track.Close()
	}
	if room != nil {
		room.Disconnect()
		slog.Info("Disconnected from LiveKit room", slog.String("room_name", r.cfg.RoomName))
	}
	r.hub.Close()
}

// IsConnected returns true if the room is currently connected.
func (r *Room) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

// RemoteParticipants returns the remote participants sorted by identity.
func (r *Room) RemoteParticipants() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// PerformRPC calls method on the destination participant and waits for the
// reply or the timeout.
func (r *Room) PerformRPC(ctx context.Context, destination, method, payload string, timeout time.Duration) (string, error) {
	r.mu.RLock()
	room := r.room
	connected := r.connected
	r.mu.RUnlock()
	if !connected || room == nil {
		return "", ErrNotConnected
	}

	type result struct {
		resp *string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := room.LocalParticipant.PerformRpc(lksdk.PerformRpcParams{
			DestinationIdentity: destination,
			Method:              method,
			Payload:             payload,
			ResponseTimeout:     &timeout,
		})
		done <- result{resp, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return "", res.err
		}
		if res.resp == nil {
			return "", nil
		}
		return *res.resp, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// RegisterRPC installs an inbound remote call handler. Handlers registered
// before Join are installed when the room connects.
func (r *Room) RegisterRPC(method string, handler RPCHandler) error {
	r.mu.Lock()
	r.rpcHandlers[method] = handler
	room := r.room
	r.mu.Unlock()

	if room == nil {
		return nil
	}
	return room.RegisterRpcMethod(method, r.wrapHandler(method, handler))
}

// FlushAudio drops agent audio queued on the published track.
func (r *Room) FlushAudio() {
	r.mu.RLock()
	track := r.localTrack
	r.mu.RUnlock()
	if track != nil {
		track.ClearQueue()
	}
}

func (r *Room) wrapHandler(method string, h RPCHandler) lksdk.RpcHandlerFunc {
	return func(data lksdk.RpcInvocationData) (resp string, err error) {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("RPC handler panicked", slog.String("method", method), slog.Any("panic", p))
				resp, err = "", fmt.Errorf("internal error")
			}
		}()

		ctx, cancel := context.WithTimeout(r.ctx, data.ResponseTimeout)
		defer cancel()
		return h(ctx, RPCRequest{
			CallerIdentity:  data.CallerIdentity,
			Payload:         data.Payload,
			ResponseTimeout: data.ResponseTimeout,
		})
	}
}

// pumpSpeaker writes agent frames to the published track, staying at most
// playoutLead ahead of real time so an interrupt drops little audio.
func (r *Room) pumpSpeaker(track *lkmedia.PCMLocalTrack) {
	const playoutLead = 200 * time.Millisecond
	var (
		start   time.Time
		written time.Duration
	)
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame := <-r.speakerOut:
			if frame.SampleRate != r.cfg.SampleRate || frame.NumChannels != 1 {
				frame = frame.Convert(r.cfg.SampleRate)
			}
			now := time.Now()
			if start.IsZero() || now.Sub(start) > written {
				start, written = now, 0
			}
			if err := track.WriteSample(frame.Samples()); err != nil {
				slog.Warn("Failed to write agent audio", slog.String("error", err.Error()))
				continue
			}
			written += frame.Duration()
			if ahead := written - time.Since(start); ahead > playoutLead {
				select {
				case <-time.After(ahead - playoutLead):
				case <-r.ctx.Done():
					return
				}
			}
		}
	}
}

func participantOf(rp *lksdk.RemoteParticipant) Participant {
	return Participant{Identity: rp.Identity(), Agent: rp.Kind() == lksdk.ParticipantAgent}
}

func (r *Room) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	p := participantOf(rp)
	r.mu.Lock()
	r.participants[p.Identity] = p
	r.mu.Unlock()

	r.hub.Publish(NewEvent(EventParticipantConnected).WithParticipant(p))
	slog.Info("Participant connected", slog.String("identity", p.Identity), slog.Bool("agent", p.Agent))
}

func (r *Room) onParticipantDisconnected(rp *lksdk.RemoteParticipant) {
	p := participantOf(rp)
	r.mu.Lock()
	delete(r.participants, p.Identity)
	r.mu.Unlock()

	r.hub.Publish(NewEvent(EventParticipantDisconnected).WithParticipant(p))
	slog.Info("Participant disconnected", slog.String("identity", p.Identity))
}

func (r *Room) onDisconnected() {
	r.mu.Lock()
	r.connected = false
	r.mu.Unlock()
	r.hub.Publish(NewEvent(EventDisconnected))
}

func (r *Room) onTrackSubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	p := participantOf(rp)
	if pub.Kind() != lksdk.TrackKindAudio {
		r.hub.Publish(NewEvent(EventTrackSubscribed).WithParticipant(p).WithTrack(TrackVideo))
		return
	}

	writer := newMicWriter(r.ctx, r.micIn, r.cfg.SampleRate, p.Identity)
	remote, err := lkmedia.NewPCMRemoteTrack(track, writer)
	if err != nil {
		slog.Error("Failed to decode caller audio",
			slog.String("participant", p.Identity),
			slog.String("error", err.Error()))
	} else {
		r.mu.Lock()
		r.remote = append(r.remote, remote)
		r.mu.Unlock()
	}

	r.hub.Publish(NewEvent(EventTrackSubscribed).WithParticipant(p).WithTrack(TrackAudio))
	slog.Info("Track subscribed",
		slog.String("participant", p.Identity),
		slog.String("track_sid", pub.SID()),
		slog.String("codec", track.Codec().MimeType))
}

func (r *Room) onTrackUnsubscribed(track *webrtc.TrackRemote, pub *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	kind := TrackVideo
	if pub.Kind() == lksdk.TrackKindAudio {
		kind = TrackAudio
	}
	r.hub.Publish(NewEvent(EventTrackUnsubscribed).WithParticipant(participantOf(rp)).WithTrack(kind))
}
