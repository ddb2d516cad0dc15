package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jeffo777/input-right/internal/lead"
	"github.com/jeffo777/input-right/pkg/job"
)

// handleSubmit answers the caller's form submission. It only interrupts
// speech, clears the form flag and schedules the work, so the reply never
// waits on the sink.
func (c *Coordinator) handleSubmit(_ context.Context, req job.RPCRequest) (resp string, err error) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("Submit handler panicked", slog.Any("panic", p))
			resp, err = "", fmt.Errorf("internal error")
		}
	}()

	c.submitMu.Lock()
	if c.state.Terminated() {
		c.submitMu.Unlock()
		return "", ErrSessionEnded
	}
	shown, ok := c.state.TakeForm()
	if !ok {
		c.submitMu.Unlock()
		c.logger.Warn("Form submitted with no form displayed", slog.String("caller", req.CallerIdentity))
		return "", ErrNoFormDisplayed
	}
	c.submissions.Add(1)
	c.submitMu.Unlock()

	c.engine.Interrupt()
	go c.processSubmission(req.CallerIdentity, req.Payload, shown)

	return SubmitAccepted, nil
}

func (c *Coordinator) processSubmission(caller, payload string, shown lead.Draft) {
	defer c.submissions.Done()
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("Lead submission panicked", slog.Any("panic", p))
			c.notify(malformedApologyText, true)
		}
	}()

	draft, err := lead.ParseDraft(payload)
	if err != nil {
		c.logger.Warn("Malformed form submission",
			slog.String("caller", caller),
			slog.String("error", err.Error()))
		c.notify(malformedApologyText, true)
		return
	}
	if fields := editedFields(shown, draft); len(fields) > 0 {
		c.logger.Info("Caller edited the form before submitting",
			slog.String("caller", caller),
			slog.Any("fields", fields))
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.submitTimeout)
	defer cancel()

	rec, err := c.leads.Submit(ctx, c.profile.TenantID, draft)
	switch {
	case errors.Is(err, lead.ErrConfigurationMissing):
		c.notify(configApologyText, true)
	case err != nil:
		c.notify(sinkApologyText, true)
	default:
		c.logger.Info("Lead captured",
			slog.String("caller", caller),
			slog.Int64("lead_id", rec.ID))
		c.notify(confirmationText, false)
	}
}

// notify hands text to the control loop. It gives up once the session is
// closed.
func (c *Coordinator) notify(text string, interruptOK bool) {
	select {
	case c.notices <- notice{say: text, interruptOK: interruptOK}:
	case <-c.done:
	}
}

// editedFields names the fields the caller changed between display and
// submission.
func editedFields(shown, submitted lead.Draft) []string {
	shown, submitted = shown.Normalize(), submitted.Normalize()
	var fields []string
	if shown.Name != submitted.Name {
		fields = append(fields, "name")
	}
	if shown.Inquiry != submitted.Inquiry {
		fields = append(fields, "inquiry")
	}
	if shown.Email != submitted.Email {
		fields = append(fields, "email")
	}
	if shown.Phone != submitted.Phone {
		fields = append(fields, "phone")
	}
	return fields
}
