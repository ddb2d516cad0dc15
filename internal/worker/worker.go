// Package worker connects to the job dispatcher and runs one agent session
// per assigned room.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jeffo777/input-right/pkg/job"
)

// Signal types received from the dispatcher.
const (
	SignalTypePing     = "ping"
	SignalTypeStartJob = "startJob"
	SignalTypeShutdown = "shutdown"
)

// Command types sent to the dispatcher.
const (
	CommandTypePong        = "pong"
	CommandTypeJobAccepted = "jobAccepted"
	CommandTypeJobRejected = "jobRejected"
	CommandTypeJobEnded    = "jobEnded"
)

// DefaultMaxJobs bounds concurrent sessions when Config.MaxJobs is unset.
const DefaultMaxJobs = 4

// JobHandler runs one session. It returns when the session is over or the
// job's context ends.
type JobHandler func(ctx context.Context, j *job.Job) error

type Worker struct {
	url      string
	token    string
	maxJobs  int
	handler  JobHandler
	timeout  time.Duration
	wsClient *WebSocketClient
	logger   *slog.Logger
	in       chan *Signal
	out      chan *Command

	mu             sync.RWMutex
	connected      bool
	backoffAttempt int
	jobs           map[string]*job.Job

	jobsWG   sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

type Config struct {
	URL     string
	Token   string
	MaxJobs int
	Handler JobHandler

	// JobTimeout bounds each session; zero uses job.DefaultJobTimeout.
	JobTimeout time.Duration
}

func New(config Config, logger *slog.Logger) *Worker {
	if config.MaxJobs <= 0 {
		config.MaxJobs = DefaultMaxJobs
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = job.DefaultJobTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		url:      config.URL,
		token:    config.Token,
		maxJobs:  config.MaxJobs,
		handler:  config.Handler,
		timeout:  config.JobTimeout,
		logger:   logger,
		in:       make(chan *Signal, 100),
		out:      make(chan *Command, 100),
		wsClient: NewWebSocketClient(config.URL, config.Token, logger),
		jobs:     make(map[string]*job.Job),
		stop:     make(chan struct{}),
	}
}

// Run keeps a dispatcher connection open, reconnecting with backoff, until
// ctx ends or the dispatcher sends shutdown. Running jobs are cancelled and
// waited for before it returns.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Starting worker", slog.String("url", w.url), slog.Int("max_jobs", w.maxJobs))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-runCtx.Done():
		}
	}()

	for {
		if runCtx.Err() != nil {
			return w.shutdown()
		}
		if err := w.connectAndRun(runCtx); err != nil {
			w.logger.Error("Worker connection failed", slog.String("error", err.Error()))
			if err := w.backoffDelay(runCtx); err != nil {
				return w.shutdown()
			}
		}
	}
}

func (w *Worker) connectAndRun(ctx context.Context) error {
	if err := w.wsClient.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	w.setConnected(true)
	defer w.setConnected(false)

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := w.readSignals(connCtx); err != nil {
			errCh <- fmt.Errorf("read signals: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := w.writeCommands(connCtx); err != nil {
			errCh <- fmt.Errorf("write commands: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		w.processSignals(connCtx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
	}

	connCancel()
	if cerr := w.wsClient.Close(); cerr != nil {
		w.logger.Error("Error closing WebSocket during cleanup", slog.String("error", cerr.Error()))
	}
	wg.Wait()
	return err
}

func (w *Worker) readSignals(ctx context.Context) error {
	for {
		signal, err := w.wsClient.ReadSignal()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case w.in <- signal:
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Worker) writeCommands(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-w.out:
			if err := w.wsClient.WriteCommand(cmd); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case signal := <-w.in:
			w.handleSignal(ctx, signal)
		}
	}
}

func (w *Worker) handleSignal(ctx context.Context, signal *Signal) {
	w.logger.Debug("Processing signal", slog.String("type", signal.Type))

	switch signal.Type {
	case SignalTypePing:
		w.send(ctx, &Command{Type: CommandTypePong, Data: signal.Data})

	case SignalTypeStartJob:
		w.startJob(signal.Data)

	case SignalTypeShutdown:
		w.logger.Info("Received shutdown signal")
		w.stopOnce.Do(func() { close(w.stop) })

	default:
		w.logger.Warn("Unknown signal type", slog.String("type", signal.Type))
	}
}

// send queues cmd without blocking signal processing.
func (w *Worker) send(ctx context.Context, cmd *Command) {
	select {
	case w.out <- cmd:
	case <-ctx.Done():
	default:
		w.logger.Warn("Command queue full, dropping command", slog.String("type", cmd.Type))
	}
}

// startJob accepts an assignment when below the job bound and runs it in
// its own goroutine. Jobs outlive the connection that assigned them.
func (w *Worker) startJob(data map[string]any) {
	jobID, _ := data["job_id"].(string)
	roomName, _ := data["room_name"].(string)

	reject := func(reason string) {
		w.logger.Warn("Rejecting job",
			slog.String("job_id", jobID),
			slog.String("room", roomName),
			slog.String("reason", reason))
		w.enqueue(&Command{Type: CommandTypeJobRejected, Data: map[string]any{"job_id": jobID, "reason": reason}})
	}

	if roomName == "" {
		reject("room_name is required")
		return
	}
	if w.handler == nil {
		reject("no job handler")
		return
	}

	w.mu.Lock()
	if len(w.jobs) >= w.maxJobs {
		w.mu.Unlock()
		reject("at capacity")
		return
	}
	select {
	case <-w.stop:
		w.mu.Unlock()
		reject("shutting down")
		return
	default:
	}

	j, err := job.New(context.Background(), job.Config{ID: jobID, RoomName: roomName, Timeout: w.timeout})
	if err != nil {
		w.mu.Unlock()
		reject(err.Error())
		return
	}
	w.jobs[j.ID] = j
	w.jobsWG.Add(1)
	w.mu.Unlock()

	w.logger.Info("Job accepted", slog.String("job_id", j.ID), slog.String("room", roomName))
	w.enqueue(&Command{Type: CommandTypeJobAccepted, Data: map[string]any{"job_id": j.ID}})

	go w.runJob(j)
}

func (w *Worker) runJob(j *job.Job) {
	defer w.jobsWG.Done()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				w.logger.Error("Job panicked", slog.String("job_id", j.ID), slog.Any("panic", p))
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		return w.handler(j.Context.Ctx, j)
	}()
	j.Shutdown("job ended")

	w.mu.Lock()
	delete(w.jobs, j.ID)
	w.mu.Unlock()

	ended := map[string]any{"job_id": j.ID}
	if err != nil && !errors.Is(err, context.Canceled) {
		ended["error"] = err.Error()
		w.logger.Error("Job failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
	} else {
		w.logger.Info("Job ended", slog.String("job_id", j.ID))
	}
	w.enqueue(&Command{Type: CommandTypeJobEnded, Data: ended})
}

// enqueue queues a command from outside the signal loop. It drops the
// command if the queue stays full.
func (w *Worker) enqueue(cmd *Command) {
	select {
	case w.out <- cmd:
	case <-time.After(time.Second):
		w.logger.Warn("Command queue full, dropping command", slog.String("type", cmd.Type))
	}
}

// ActiveJobs returns the number of running jobs.
func (w *Worker) ActiveJobs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.jobs)
}

// backoffFor is 1s, 2s, 4s, 8s, then 10s.
func backoffFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(math.Min(math.Pow(2, float64(attempt-1)), 10)) * time.Second
}

func (w *Worker) backoffDelay(ctx context.Context) error {
	w.mu.Lock()
	w.backoffAttempt++
	attempt := w.backoffAttempt
	w.mu.Unlock()

	delay := backoffFor(attempt)
	w.logger.Info("Reconnecting with backoff",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) setConnected(connected bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if connected && !w.connected {
		w.backoffAttempt = 0
		w.logger.Info("Worker connected successfully")
	}
	w.connected = connected
}

func (w *Worker) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected
}

// shutdown cancels running jobs and waits for them.
func (w *Worker) shutdown() error {
	w.logger.Info("Shutting down worker")
	w.stopOnce.Do(func() { close(w.stop) })

	w.mu.RLock()
	running := make([]*job.Job, 0, len(w.jobs))
	for _, j := range w.jobs {
		running = append(running, j)
	}
	w.mu.RUnlock()

	for _, j := range running {
		j.Shutdown("worker shutdown")
	}
	w.jobsWG.Wait()

	if err := w.wsClient.Close(); err != nil {
		w.logger.Error("Error closing WebSocket", slog.String("error", err.Error()))
		return err
	}
	w.logger.Info("Worker shutdown complete")
	return nil
}
