// Package job holds the lifecycle of one agent session (a job) and the
// LiveKit room adapter the session talks through.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	// AssignmentTimeout is how long a worker may take to accept a job.
	AssignmentTimeout = 7500 * time.Millisecond

	// DefaultJobTimeout is the longest a single call may run.
	DefaultJobTimeout = 30 * time.Minute
)

// Config describes a job to create.
type Config struct {
	ID       string // generated when empty
	RoomName string
	Timeout  time.Duration // zero means no limit
}

// Job is one agent session assigned to one room.
type Job struct {
	ID       string
	RoomName string

	// Context is cancelled when the job shuts down or times out.
	Context *JobContext
}

// New creates a running job under parentCtx.
func New(parentCtx context.Context, cfg Config) (*Job, error) {
	if cfg.RoomName == "" {
		return nil, fmt.Errorf("room name is required")
	}
	if cfg.ID == "" {
		cfg.ID = generateJobID()
	}

	ctx := parentCtx
	var jc *JobContext
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parentCtx, cfg.Timeout)
		jc = NewJobContext(ctx)
		context.AfterFunc(jc.Ctx, cancel)
	} else {
		jc = NewJobContext(ctx)
	}

	j := &Job{ID: cfg.ID, RoomName: cfg.RoomName, Context: jc}
	slog.Info("Created new job", append(j.LogAttrs(), slog.Duration("timeout", cfg.Timeout))...)
	return j, nil
}

// LogAttrs are the attributes every log line about the job carries.
func (j *Job) LogAttrs() []any {
	return []any{slog.String("job_id", j.ID), slog.String("room", j.RoomName)}
}

// Shutdown runs the shutdown hooks and cancels the job. Only the first
// reason is kept.
func (j *Job) Shutdown(reason string) {
	if !j.Context.IsShutdown() {
		slog.Info("Shutting down job", append(j.LogAttrs(), slog.String("reason", reason))...)
	}
	j.Context.Shutdown(reason)
}

// Wait blocks until the job ends and returns context.Canceled after a
// shutdown or context.DeadlineExceeded after a timeout.
func (j *Job) Wait() error {
	<-j.Context.Done()
	return j.Context.Err()
}

// IsActive reports whether the job is still running. A timed-out job is
// inactive even before Shutdown runs.
func (j *Job) IsActive() bool {
	return j.Context.Err() == nil
}

func (j *Job) String() string {
	status := "active"
	if !j.IsActive() {
		status = "shutdown"
	}
	return fmt.Sprintf("Job{ID: %s, Room: %s, Status: %s}", j.ID, j.RoomName, status)
}
