// Package lead holds the lead data model and the pipeline that stores a
// caller-confirmed draft in a durable sink.
package lead

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// StatusNew is the only status this service assigns.
const StatusNew = "new"

// ErrInvalidDraft means a draft is missing required fields or is malformed.
var ErrInvalidDraft = errors.New("invalid lead draft")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Draft is the lead shown on the caller's verification form. The caller
// may edit it before submitting.
type Draft struct {
	Name    string `json:"name" validate:"required"`
	Inquiry string `json:"inquiry" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (d Draft) Normalize() Draft {
	d.Name = strings.TrimSpace(d.Name)
	d.Inquiry = strings.TrimSpace(d.Inquiry)
	d.Email = strings.TrimSpace(d.Email)
	d.Phone = strings.TrimSpace(d.Phone)
	return d
}

// Validate checks required fields and the email format.
func (d Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDraft, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	return nil
}

// ParseDraft decodes a JSON form payload, normalizes and validates it.
func ParseDraft(payload string) (Draft, error) {
	var d Draft
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", ErrInvalidDraft, err)
	}
	d = d.Normalize()
	if err := d.Validate(); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Payload serializes the draft for the display form call.
func (d Draft) Payload() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Record is a stored lead.
type Record struct {
	ID         int64     `json:"id,omitempty"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Inquiry    string    `json:"inquiry"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Status     string    `json:"status"`
	CapturedAt time.Time `json:"captured_at"`
}

// Draft returns the caller-provided part of the record.
func (r Record) Draft() Draft {
	return Draft{Name: r.Name, Inquiry: r.Inquiry, Email: r.Email, Phone: r.Phone}
}

// createRequest is the sink-facing create-lead body.
type createRequest struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Inquiry  string `json:"inquiry"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

func newCreateRequest(tenantID string, d Draft) createRequest {
	return createRequest{TenantID: tenantID, Name: d.Name, Inquiry: d.Inquiry, Email: d.Email, Phone: d.Phone}
}
