package fake

import (
	"context"
	"sync"

	"github.com/jeffo777/input-right/pkg/turn"
)

// FakeTurnDetector returns scripted probabilities, repeating the last one.
type FakeTurnDetector struct {
	threshold float64

	mu    sync.Mutex
	probs []float64
	calls int
}

// NewFakeTurnDetector creates a fake that reports each turn as finished.
func NewFakeTurnDetector() *FakeTurnDetector {
	return NewFakeTurnDetectorWithValues(0.5, 0.9)
}

// NewFakeTurnDetectorWithValues creates a fake with a threshold and a
// sequence of probabilities returned in order.
func NewFakeTurnDetectorWithValues(threshold float64, probs ...float64) *FakeTurnDetector {
	if len(probs) == 0 {
		probs = []float64{1}
	}
	return &FakeTurnDetector{threshold: threshold, probs: probs}
}

// Calls returns how many predictions were made.
func (f *FakeTurnDetector) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeTurnDetector) UnlikelyThreshold(language string) (float64, error) {
	return f.threshold, nil
}

func (f *FakeTurnDetector) SupportsLanguage(language string) bool {
	return true
}

func (f *FakeTurnDetector) PredictEndOfTurn(ctx context.Context, chatCtx turn.ChatContext) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.probs) {
		i = len(f.probs) - 1
	}
	f.calls++
	return f.probs[i], nil
}
