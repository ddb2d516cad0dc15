package fake

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/tts"
	"github.com/jeffo777/input-right/pkg/rtc"
)

const (
	sampleRate = 48000
	frequency  = 440.0
)

// FakeTTS produces a sine tone whose length scales with the word count,
// paced like real playback, and records every text it was asked to speak.
type FakeTTS struct {
	FramesPerWord int
	FrameDelay    time.Duration

	mu     sync.Mutex
	spoken []string
}

// NewFakeTTS creates a fake provider with 5 frames per word at real time.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{FramesPerWord: 5, FrameDelay: rtc.FrameDuration}
}

// Spoken returns the texts synthesized so far.
func (f *FakeTTS) Spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.spoken))
	copy(out, f.spoken)
	return out
}

// Synthesize generates tone frames for the given text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (<-chan rtc.AudioFrame, error) {
	f.mu.Lock()
	f.spoken = append(f.spoken, req.Text)
	f.mu.Unlock()

	frameCount := len(strings.Fields(req.Text)) * f.FramesPerWord
	output := make(chan rtc.AudioFrame, 10)

	go func() {
		defer close(output)

		samplesPerChannel := sampleRate / 100
		for i := 0; i < frameCount; i++ {
			samples := make([]int16, samplesPerChannel)
			for j := range samples {
				idx := i*samplesPerChannel + j
				samples[j] = int16(0.3 * 32767 * math.Sin(2*math.Pi*frequency*float64(idx)/sampleRate))
			}
			frame := rtc.FrameFromSamples(samples, sampleRate, 1)
			frame.Timestamp = time.Duration(i) * rtc.FrameDuration

			select {
			case output <- frame:
			case <-ctx.Done():
				return
			}

			if f.FrameDelay > 0 {
				select {
				case <-time.After(f.FrameDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return output, nil
}

// Capabilities returns the fake TTS capabilities.
func (f *FakeTTS) Capabilities() tts.TTSCapabilities {
	return tts.TTSCapabilities{
		Streaming:          true,
		SupportedLanguages: []string{"en-US"},
		SupportedVoices:    []string{"fake-voice"},
		SampleRates:        []int{sampleRate},
	}
}
