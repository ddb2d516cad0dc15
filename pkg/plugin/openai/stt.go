package openai

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/stt"
	"github.com/jeffo777/input-right/pkg/audio/wav"
	"github.com/jeffo777/input-right/pkg/rtc"
	openai "github.com/sashabaranov/go-openai"
)

// minAudio is the shortest clip the transcription endpoint accepts.
const minAudio = 100 * time.Millisecond

// WhisperSTT implements stt.STT. Each stream holds one utterance and is
// transcribed in a single request when the sender closes it.
type WhisperSTT struct {
	client   *openai.Client
	model    string
	language string
}

// NewWhisperSTT creates a Whisper provider.
func NewWhisperSTT(cfg Config) (*WhisperSTT, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperSTT{client: client, model: model, language: cfg.Language}, nil
}

// NewStream creates a buffered utterance stream.
func (w *WhisperSTT) NewStream(ctx context.Context, cfg stt.StreamConfig) (stt.STTStream, error) {
	language := cfg.Lang
	if language == "" {
		language = w.language
	}
	return &whisperStream{
		stt:      w,
		ctx:      ctx,
		language: language,
		events:   make(chan stt.SpeechEvent, 1),
	}, nil
}

// Capabilities returns the STT capabilities.
func (w *WhisperSTT) Capabilities() stt.STTCapabilities {
	return stt.STTCapabilities{
		Streaming:          true,
		InterimResults:     false,
		SupportedLanguages: []string{"en", "zh", "de", "es", "ru", "ko", "fr", "ja", "pt", "tr", "pl", "nl", "it"},
		SampleRates:        []int{16000, 24000, 48000},
	}
}

type whisperStream struct {
	stt      *WhisperSTT
	ctx      context.Context
	language string
	events   chan stt.SpeechEvent

	mu     sync.Mutex
	frames []rtc.AudioFrame
	closed bool
}

func (s *whisperStream) Push(frame rtc.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("stream is closed")
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *whisperStream) Events() <-chan stt.SpeechEvent {
	return s.events
}

// CloseSend ends the utterance and starts transcription. The events channel
// receives exactly one final or error event and is then closed.
func (s *whisperStream) CloseSend() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream already closed")
	}
	s.closed = true
	frames := s.frames
	s.frames = nil
	s.mu.Unlock()

	go func() {
		defer close(s.events)
		s.events <- s.transcribe(frames)
	}()
	return nil
}

func (s *whisperStream) transcribe(frames []rtc.AudioFrame) stt.SpeechEvent {
	final := stt.SpeechEvent{Type: stt.SpeechEventFinal, IsFinal: true, Timestamp: time.Now().UnixMilli()}

	var total time.Duration
	for i := range frames {
		total += frames[i].Duration()
	}
	if total < minAudio {
		return final
	}

	data, err := wav.Encode(frames)
	if err != nil {
		return s.errorEvent(err)
	}

	start := time.Now()
	resp, err := s.stt.client.CreateTranscription(s.ctx, openai.AudioRequest{
		Model:    s.stt.model,
		Language: s.language,
		Format:   openai.AudioResponseFormatJSON,
		Reader:   bytes.NewReader(data),
		FilePath: "audio.wav",
	})
	if err != nil {
		slog.Error("whisper transcription failed", slog.String("error", err.Error()))
		return s.errorEvent(classify(err, "transcription failed"))
	}

	slog.Debug("whisper transcription",
		slog.String("text", resp.Text),
		slog.Duration("audio", total),
		slog.Duration("duration", time.Since(start)))

	final.Text = resp.Text
	final.Language = resp.Language
	return final
}

func (s *whisperStream) errorEvent(err error) stt.SpeechEvent {
	return stt.SpeechEvent{Type: stt.SpeechEventError, Error: err, Timestamp: time.Now().UnixMilli()}
}
