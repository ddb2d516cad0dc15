// Package ai provides the error taxonomy and retry helper shared by the
// speech, language and voice-activity providers.
package ai

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"
)

var (
	// ErrRecoverable indicates a temporary failure that may succeed if retried:
	// network timeouts, rate limiting, a provider briefly unavailable.
	ErrRecoverable = errors.New("recoverable AI provider error")

	// ErrFatal indicates a failure that will not succeed if retried:
	// a bad API key, an unsupported model, a malformed request.
	ErrFatal = errors.New("fatal AI provider error")
)

// RetryConfig configures Retry.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPercent float32 // 0.0-1.0
}

// DefaultRetryConfig is tuned for conversational latency: a caller is waiting.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    2,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	JitterPercent: 0.1,
}

// IsRecoverable reports whether err is worth retrying.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err must not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// RetryableError wraps an underlying error with retry classification.
type RetryableError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *RetryableError) Error() string {
	if e.Message != "" {
		if e.Underlying != nil {
			return e.Message + ": " + e.Underlying.Error()
		}
		return e.Message
	}
	return e.Underlying.Error()
}

// Is matches the classification sentinel.
func (e *RetryableError) Is(target error) bool {
	if e.Retryable {
		return target == ErrRecoverable
	}
	return target == ErrFatal
}

func (e *RetryableError) Unwrap() error {
	return e.Underlying
}

// NewRecoverableError creates a recoverable error with context.
func NewRecoverableError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: true, Message: message}
}

// NewFatalError creates a fatal error with context.
func NewFatalError(underlying error, message string) error {
	return &RetryableError{Underlying: underlying, Retryable: false, Message: message}
}

// ClassifyStatus maps a provider HTTP status onto the taxonomy.
// Status 0 means the request never got a response.
func ClassifyStatus(status int, err error, message string) error {
	switch {
	case status == 0,
		status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= 500:
		return NewRecoverableError(err, message)
	default:
		return NewFatalError(err, message)
	}
}

// Retry calls fn until it succeeds, returns a non-recoverable error, or the
// retry budget is spent. The last error is returned.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	delay := cfg.InitialDelay
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsRecoverable(err) || attempt >= cfg.MaxRetries {
			return err
		}

		wait := delay
		if cfg.JitterPercent > 0 {
			jitter := float64(delay) * float64(cfg.JitterPercent)
			wait += time.Duration((rand.Float64()*2 - 1) * jitter)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
