package job

import (
	"context"
	"log/slog"
	"sync"

	media "github.com/livekit/media-sdk"

	"github.com/jeffo777/input-right/pkg/rtc"
)

// micWriter receives decoded caller PCM and re-chunks it into 10ms frames.
// Frames are dropped rather than blocking the decoder when the consumer
// falls behind.
type micWriter struct {
	ctx        context.Context
	out        chan<- rtc.AudioFrame
	sampleRate int
	name       string

	mu      sync.Mutex
	pending []int16
	dropped int
}

func newMicWriter(ctx context.Context, out chan<- rtc.AudioFrame, sampleRate int, name string) *micWriter {
	return &micWriter{ctx: ctx, out: out, sampleRate: sampleRate, name: name}
}

func (w *micWriter) String() string { return "mic:" + w.name }

func (w *micWriter) SampleRate() int { return w.sampleRate }

func (w *micWriter) WriteSample(sample media.PCM16Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, sample...)
	per := w.sampleRate / 100
	for len(w.pending) >= per {
		frame := rtc.FrameFromSamples(w.pending[:per], w.sampleRate, 1)
		w.pending = w.pending[per:]

		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case w.out <- frame:
		default:
			w.dropped++
			if w.dropped%100 == 1 {
				slog.Warn("Caller audio consumer is behind, dropping frames",
					slog.String("participant", w.name),
					slog.Int("dropped", w.dropped))
			}
		}
	}
	return nil
}

func (w *micWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = nil
	return nil
}
