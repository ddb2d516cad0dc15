package fake

import (
	"context"
	"testing"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/vad"
	"github.com/jeffo777/input-right/pkg/rtc"
)

func TestFakeVADTriggers(t *testing.T) {
	provider := NewFakeVAD()
	frames := make(chan rtc.AudioFrame)

	events, err := provider.Detect(context.Background(), frames)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}

	frames <- rtc.FrameFromSamples(make([]int16, 160), 16000, 1)

	provider.SpeechStart()
	provider.SpeechEnd()

	for _, want := range []vad.VADEventType{vad.VADEventSpeechStart, vad.VADEventSpeechEnd} {
		select {
		case ev := <-events:
			if ev.Type != want {
				t.Errorf("got %v, want %v", ev.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v", want)
		}
	}

	close(frames)
	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected events channel to close")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}

	if provider.FrameCount() != 1 {
		t.Errorf("FrameCount() = %d, want 1", provider.FrameCount())
	}
}

func TestFakeVADCancel(t *testing.T) {
	provider := NewFakeVAD()
	ctx, cancel := context.WithCancel(context.Background())

	events, _ := provider.Detect(ctx, make(chan rtc.AudioFrame))
	cancel()

	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("events channel not closed after cancel")
	}

	// no detectors left; must not panic
	provider.SpeechStart()
}
