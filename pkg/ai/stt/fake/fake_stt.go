package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/stt"
	"github.com/jeffo777/input-right/pkg/rtc"
)

// DefaultTranscript is used when no transcript is provided.
const DefaultTranscript = "This is a fake transcript from the fake STT provider."

// FakeSTT hands out transcripts in order, one per stream. The last
// transcript repeats once the list is exhausted.
type FakeSTT struct {
	mu          sync.Mutex
	transcripts []string
	streams     int
}

// NewFakeSTT creates a fake provider with the given transcripts.
func NewFakeSTT(transcripts ...string) *FakeSTT {
	if len(transcripts) == 0 {
		transcripts = []string{DefaultTranscript}
	}
	return &FakeSTT{transcripts: transcripts}
}

// Streams reports how many streams were opened.
func (f *FakeSTT) Streams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams
}

// NewStream creates a new fake STT stream.
func (f *FakeSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	f.mu.Lock()
	idx := f.streams
	if idx >= len(f.transcripts) {
		idx = len(f.transcripts) - 1
	}
	f.streams++
	transcript := f.transcripts[idx]
	f.mu.Unlock()

	return &FakeSTTStream{
		transcript: transcript,
		events:     make(chan stt.SpeechEvent, 1),
		ctx:        ctx,
	}, nil
}

// Capabilities returns the fake STT capabilities.
func (f *FakeSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		SupportedLanguages: []string{"en-US"},
		SampleRates:        []int{16000, 48000},
	}
}

// FakeSTTStream counts pushed frames and emits its transcript on CloseSend.
type FakeSTTStream struct {
	mu         sync.Mutex
	transcript string
	events     chan stt.SpeechEvent
	ctx        context.Context
	frames     int
	closed     bool
}

// Push records a frame.
func (s *FakeSTTStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	s.frames++
	return nil
}

// Frames reports how many frames were pushed.
func (s *FakeSTTStream) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Events returns the events channel.
func (s *FakeSTTStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend emits the final transcript and closes the events channel.
func (s *FakeSTTStream) CloseSend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.events <- stt.SpeechEvent{
		Type:      stt.SpeechEventFinal,
		Text:      s.transcript,
		IsFinal:   true,
		Language:  "en-US",
		Timestamp: time.Now().UnixMilli(),
	}
	close(s.events)
	return nil
}
