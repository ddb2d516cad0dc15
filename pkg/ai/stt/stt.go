// Package stt defines streaming speech-to-text providers. A stream receives
// one caller utterance and reports its transcript when CloseSend is called.
package stt

import (
	"context"

	"github.com/jeffo777/input-right/pkg/ai"
	"github.com/jeffo777/input-right/pkg/rtc"
)

var (
	// ErrRecoverable indicates a temporary STT failure that may succeed if retried.
	ErrRecoverable = ai.ErrRecoverable

	// ErrFatal indicates a permanent STT failure that will not succeed if retried.
	ErrFatal = ai.ErrFatal
)

// StreamConfig contains configuration for STT streams.
type StreamConfig struct {
	SampleRate  int
	NumChannels int
	Lang        string
}

// SpeechEvent carries an interim or final transcript, or an error.
type SpeechEvent struct {
	Type      SpeechEventType
	Text      string
	IsFinal   bool
	Language  string
	Timestamp int64 // unix millis
	Error     error
}

// SpeechEventType represents the type of speech recognition event.
type SpeechEventType int

const (
	SpeechEventInterim SpeechEventType = iota
	SpeechEventFinal
	SpeechEventError
)

// STTCapabilities describes the capabilities of an STT provider.
type STTCapabilities struct {
	Streaming          bool
	InterimResults     bool
	SupportedLanguages []string
	SampleRates        []int
}

// STT is the main interface for speech-to-text providers.
type STT interface {
	NewStream(ctx context.Context, cfg StreamConfig) (STTStream, error)
	Capabilities() STTCapabilities
}

// STTStream is one utterance being transcribed.
type STTStream interface {
	Push(frame rtc.AudioFrame) error

	// Events is closed after the final event following CloseSend.
	Events() <-chan SpeechEvent

	// CloseSend flushes buffered audio; a final event follows.
	CloseSend() error
}
