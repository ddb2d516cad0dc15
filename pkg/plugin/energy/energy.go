// Package energy provides an RMS-threshold voice activity detector.
package energy

import (
	"context"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/vad"
	"github.com/jeffo777/input-right/pkg/plugin"
	"github.com/jeffo777/input-right/pkg/rtc"
)

const (
	DefaultThreshold     = 0.02
	DefaultSpeechFrames  = 3
	DefaultSilenceFrames = 30
)

// Config holds the detector tuning.
type Config struct {
	Threshold     float32 // normalized RMS above which a frame counts as voice
	SpeechFrames  int     // consecutive voice frames before speech starts
	SilenceFrames int     // consecutive silent frames before speech ends
}

// VAD detects speech by comparing frame energy against a threshold with
// hysteresis on both edges.
type VAD struct {
	cfg Config
}

// New creates an energy VAD, filling zero fields with defaults.
func New(cfg Config) *VAD {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = DefaultSpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = DefaultSilenceFrames
	}
	return &VAD{cfg: cfg}
}

// Detect implements vad.VAD.
func (v *VAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.VADEvent, error) {
	events := make(chan vad.VADEvent, 10)

	go func() {
		defer close(events)

		emit := func(t vad.VADEventType) bool {
			select {
			case events <- vad.VADEvent{Type: t, Timestamp: time.Now()}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var speaking bool
		voiced, silent := 0, 0

		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					if speaking {
						emit(vad.VADEventSpeechEnd)
					}
					return
				}

				if frame.RMS() > v.cfg.Threshold {
					voiced++
					silent = 0
					if !speaking && voiced >= v.cfg.SpeechFrames {
						speaking = true
						if !emit(vad.VADEventSpeechStart) {
							return
						}
					}
				} else {
					silent++
					voiced = 0
					if speaking && silent >= v.cfg.SilenceFrames {
						speaking = false
						if !emit(vad.VADEventSpeechEnd) {
							return
						}
					}
				}
			}
		}
	}()

	return events, nil
}

// Capabilities implements vad.VAD.
func (v *VAD) Capabilities() vad.VADCapabilities {
	return vad.VADCapabilities{
		SampleRates:        []int{8000, 16000, 24000, 48000},
		MinSpeechDuration:  time.Duration(v.cfg.SpeechFrames) * rtc.FrameDuration,
		MinSilenceDuration: time.Duration(v.cfg.SilenceFrames) * rtc.FrameDuration,
		Sensitivity:        v.cfg.Threshold,
	}
}

func newEnergyVAD(cfg map[string]any) (any, error) {
	var c Config
	switch t := cfg["threshold"].(type) {
	case float64:
		c.Threshold = float32(t)
	case float32:
		c.Threshold = t
	}
	if n, ok := cfg["speech_frames"].(int); ok {
		c.SpeechFrames = n
	}
	if n, ok := cfg["silence_frames"].(int); ok {
		c.SilenceFrames = n
	}
	return New(c), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindVAD,
		Name:        "energy",
		Factory:     newEnergyVAD,
		Description: "RMS energy voice activity detector",
		Version:     "1.0.0",
		Config: map[string]any{
			"threshold":      DefaultThreshold,
			"speech_frames":  DefaultSpeechFrames,
			"silence_frames": DefaultSilenceFrames,
		},
	})
}
