package fake

import (
	"context"
	"sync"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/vad"
	"github.com/jeffo777/input-right/pkg/rtc"
)

// FakeVAD drains frames and emits only the events a test triggers by hand.
type FakeVAD struct {
	mu      sync.Mutex
	outputs []chan vad.VADEvent
	frames  int
}

// NewFakeVAD creates a new fake VAD provider.
func NewFakeVAD() *FakeVAD {
	return &FakeVAD{}
}

// SpeechStart emits a speech start event to every active detector.
func (f *FakeVAD) SpeechStart() { f.emit(vad.VADEventSpeechStart) }

// SpeechEnd emits a speech end event to every active detector.
func (f *FakeVAD) SpeechEnd() { f.emit(vad.VADEventSpeechEnd) }

// FrameCount returns how many frames have been consumed across detectors.
func (f *FakeVAD) FrameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

func (f *FakeVAD) emit(t vad.VADEventType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, out := range f.outputs {
		select {
		case out <- vad.VADEvent{Type: t, Timestamp: time.Now()}:
		default:
		}
	}
}

// Detect registers an output channel and drains frames until they end.
func (f *FakeVAD) Detect(ctx context.Context, frames <-chan rtc.AudioFrame) (<-chan vad.VADEvent, error) {
	output := make(chan vad.VADEvent, 16)

	f.mu.Lock()
	f.outputs = append(f.outputs, output)
	f.mu.Unlock()

	go func() {
		defer func() {
			f.mu.Lock()
			for i, out := range f.outputs {
				if out == output {
					f.outputs = append(f.outputs[:i], f.outputs[i+1:]...)
					break
				}
			}
			close(output)
			f.mu.Unlock()
		}()

		for {
			select {
			case _, ok := <-frames:
				if !ok {
					return
				}
				f.mu.Lock()
				f.frames++
				f.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	return output, nil
}

// Capabilities returns the fake VAD capabilities.
func (f *FakeVAD) Capabilities() vad.VADCapabilities {
	return vad.VADCapabilities{
		SampleRates:        []int{16000, 48000},
		MinSpeechDuration:  100 * time.Millisecond,
		MinSilenceDuration: 200 * time.Millisecond,
		Sensitivity:        0.5,
	}
}
