package lead

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Pipeline validates a confirmed draft and stores it in the sink with
// tenant attribution. It never retries; the caller decides what to say.
type Pipeline struct {
	sink   Sink
	logger *slog.Logger
}

// NewPipeline creates a pipeline. A nil sink reports missing configuration.
func NewPipeline(sink Sink, logger *slog.Logger) *Pipeline {
	if sink == nil {
		sink = unconfiguredSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{sink: sink, logger: logger}
}

// Submit stores the draft for tenantID.
func (p *Pipeline) Submit(ctx context.Context, tenantID string, d Draft) (Record, error) {
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Record{}, err
	}
	if tenantID == "" {
		return Record{}, fmt.Errorf("%w: tenant id is required", ErrInvalidDraft)
	}

	rec, err := p.sink.Store(ctx, tenantID, d)
	if err != nil {
		var sinkErr *SinkError
		if errors.As(err, &sinkErr) && sinkErr.Body != "" {
			p.logger.Error("Lead sink rejected submission",
				slog.String("tenant_id", tenantID),
				slog.Int("status", sinkErr.StatusCode),
				slog.String("body", sinkErr.Body))
		} else {
			p.logger.Error("Failed to store lead",
				slog.String("tenant_id", tenantID),
				slog.String("error", err.Error()))
		}
		return Record{}, err
	}

	p.logger.Info("Lead stored",
		slog.String("tenant_id", tenantID),
		slog.Int64("lead_id", rec.ID))
	return rec, nil
}
