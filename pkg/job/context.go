package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobContext carries a job's cancellation and its shutdown hooks.
type JobContext struct {
	// Ctx is cancelled when the job ends.
	Ctx context.Context

	cancel context.CancelFunc

	mu       sync.Mutex
	hooks    []func(string)
	shutdown bool
	reason   string
}

// NewJobContext returns a context cancelled by Shutdown or by parent.
func NewJobContext(parent context.Context) *JobContext {
	ctx, cancel := context.WithCancel(parent)
	return &JobContext{Ctx: ctx, cancel: cancel}
}

// ShutdownHookTimeout bounds how long Shutdown waits for hooks.
var ShutdownHookTimeout = 5 * time.Second

// Shutdown initiates graceful shutdown of the job. It is idempotent: hooks
// run exactly once, concurrently, and the context is cancelled afterwards.
func (jc *JobContext) Shutdown(reason string) {
	jc.mu.Lock()
	if jc.shutdown {
		jc.mu.Unlock()
		return
	}
	jc.shutdown = true
	jc.reason = reason
	hooks := jc.hooks
	jc.hooks = nil
	jc.mu.Unlock()

	slog.Info("Job shutdown initiated", slog.String("reason", reason))

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(h func(string)) {
			defer wg.Done()
			runHook(h, reason)
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("All shutdown hooks completed")
	case <-time.After(ShutdownHookTimeout):
		slog.Warn("Shutdown hooks timed out", slog.Duration("timeout", ShutdownHookTimeout))
	}

	jc.cancel()
}

// OnShutdown registers a callback run when Shutdown is called. If the job
// has already shut down, the callback runs immediately in a new goroutine.
func (jc *JobContext) OnShutdown(callback func(reason string)) {
	jc.mu.Lock()
	defer jc.mu.Unlock()

	if jc.shutdown {
		reason := jc.reason
		go runHook(callback, reason)
		return
	}
	jc.hooks = append(jc.hooks, callback)
}

func runHook(h func(string), reason string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Shutdown hook panicked", slog.Any("panic", r))
		}
	}()
	h(reason)
}

// Reason returns the reason passed to the first Shutdown call.
func (jc *JobContext) Reason() string {
	jc.mu.Lock()
	defer jc.mu.Unlock()
	return jc.reason
}

// IsShutdown returns true once the job context is cancelled.
func (jc *JobContext) IsShutdown() bool {
	select {
	case <-jc.Ctx.Done():
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the job context is cancelled.
func (jc *JobContext) Done() <-chan struct{} {
	return jc.Ctx.Done()
}

// Err returns the error associated with the context cancellation.
func (jc *JobContext) Err() error {
	return jc.Ctx.Err()
}

func generateJobID() string {
	return "job_" + uuid.NewString()
}
