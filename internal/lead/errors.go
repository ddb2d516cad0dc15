package lead

import (
	"errors"
	"fmt"
)

var (
	// ErrSinkUnreachable is a transport failure talking to the sink.
	ErrSinkUnreachable = errors.New("lead sink unreachable")

	// ErrSinkRejected is a non-success response from the sink.
	ErrSinkRejected = errors.New("lead sink rejected the lead")

	// ErrConfigurationMissing means no sink endpoint is configured.
	ErrConfigurationMissing = errors.New("no lead sink configured")
)

// SinkError carries the details of a failed submission. It matches its Kind
// with errors.Is.
type SinkError struct {
	Kind       error // one of the sentinels above
	StatusCode int
	Body       string
	Err        error
}

func (e *SinkError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: status=%d body=%q", e.Kind, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return e.Kind.Error()
	}
}

// Is matches the failure kind.
func (e *SinkError) Is(target error) bool {
	return target == e.Kind
}

func (e *SinkError) Unwrap() error {
	return e.Err
}
