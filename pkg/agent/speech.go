package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/tts"
)

// SpeechHandle tracks one queued utterance.
type SpeechHandle struct {
	Text               string
	AllowInterruptions bool

	done        chan struct{}
	once        sync.Once
	interrupted atomic.Bool
	cancel      context.CancelFunc // set while playing
}

func newSpeechHandle(text string, allow bool) *SpeechHandle {
	return &SpeechHandle{Text: text, AllowInterruptions: allow, done: make(chan struct{})}
}

// Done is closed when the utterance finished playing or was dropped.
func (h *SpeechHandle) Done() <-chan struct{} { return h.done }

// Interrupted reports whether the utterance was cut short or never played.
func (h *SpeechHandle) Interrupted() bool { return h.interrupted.Load() }

// Wait blocks until the utterance is done or ctx ends.
func (h *SpeechHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *SpeechHandle) finish(interrupted bool) {
	h.once.Do(func() {
		if interrupted {
			h.interrupted.Store(true)
		}
		close(h.done)
	})
}

// Say queues text to be spoken after anything already queued. While an
// utterance with allowInterruptions false plays, caller audio is discarded.
// After Close the returned handle is already done and interrupted.
func (a *Agent) Say(text string, allowInterruptions bool) *SpeechHandle {
	h := newSpeechHandle(text, allowInterruptions)

	select {
	case <-a.shutdown:
		h.finish(true)
		return h
	default:
	}

	a.speechMu.Lock()
	a.queue = append(a.queue, h)
	a.speechMu.Unlock()

	select {
	case a.speechReady <- struct{}{}:
	default:
	}
	return h
}

// Interrupt stops the current utterance and drops everything queued.
func (a *Agent) Interrupt() {
	a.interrupt(true)
}

// interrupt stops speech. Unless forced, utterances that do not allow
// interruptions are left alone. It reports whether playing audio was cut.
func (a *Agent) interrupt(force bool) bool {
	a.speechMu.Lock()
	var dropped, kept []*SpeechHandle
	for _, h := range a.queue {
		if force || h.AllowInterruptions {
			dropped = append(dropped, h)
		} else {
			kept = append(kept, h)
		}
	}
	a.queue = kept

	cur := a.current
	cut := cur != nil && (force || cur.AllowInterruptions)
	if cut {
		cur.interrupted.Store(true)
		cur.cancel()
	}
	a.speechMu.Unlock()

	for _, h := range dropped {
		h.finish(true)
	}
	if cut {
		slog.Debug("Speech interrupted", slog.String("text", cur.Text))
		if a.flush != nil {
			a.flush()
		}
	}
	return cut
}

// next waits for the head of the queue and marks it current.
func (a *Agent) next(ctx context.Context) (*SpeechHandle, context.Context) {
	for {
		a.speechMu.Lock()
		if len(a.queue) > 0 {
			h := a.queue[0]
			a.queue = a.queue[1:]
			speechCtx, cancel := context.WithCancel(ctx)
			h.cancel = cancel
			a.current = h
			a.speechMu.Unlock()
			return h, speechCtx
		}
		a.speechMu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil
		case <-a.shutdown:
			return nil, nil
		case <-a.speechReady:
		}
	}
}

// playLoop speaks queued utterances one at a time.
func (a *Agent) playLoop(ctx context.Context) {
	defer a.interrupt(true)
	for {
		h, speechCtx := a.next(ctx)
		if h == nil {
			return
		}
		a.play(speechCtx, h)
	}
}

func (a *Agent) play(ctx context.Context, h *SpeechHandle) {
	if !h.AllowInterruptions {
		a.gate.Hold(true)
	}
	a.agentSpeaking.Store(true)
	a.setState(StateSpeaking)
	a.kick()

	a.firstWordTimeOnce.Do(func() {
		a.metrics.FirstWordLatency.Set(float64(time.Since(a.sessionStart).Milliseconds()))
	})

	failed := false
	defer func() {
		cut := ctx.Err() != nil

		a.speechMu.Lock()
		a.current = nil
		h.cancel()
		a.speechMu.Unlock()

		a.gate.Hold(false)
		a.agentSpeaking.Store(false)
		if a.GetState() == StateSpeaking {
			a.setState(StateIdle)
		}
		h.finish(failed || cut)
		a.kick()
	}()

	frames, err := a.tts.Synthesize(ctx, tts.SynthesizeRequest{
		Text:     h.Text,
		Voice:    a.voice,
		Language: a.language,
	})
	if err != nil {
		slog.Error("TTS synthesis failed", slog.String("error", err.Error()))
		failed = true
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			select {
			case a.ttsOut <- frame:
			case <-ctx.Done():
				return
			}
		}
	}
}
