package lead

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jeffo777/input-right/pkg/version"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 1 << 16
)

// Sink stores one lead for a tenant.
type Sink interface {
	Store(ctx context.Context, tenantID string, d Draft) (Record, error)
}

// RESTSink posts to the backend's internal create-lead endpoint and returns
// the record the backend created.
type RESTSink struct {
	baseURL    string
	secret     string
	httpClient *http.Client
	now        func() time.Time
}

// NewRESTSink creates a sink against baseURL, e.g. http://backend:8000.
func NewRESTSink(baseURL, secret string, timeout time.Duration) *RESTSink {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &RESTSink{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Store implements Sink. Only 201 Created counts as success. The lead is
// stored even when the reply body cannot be read, so the record is then
// assembled locally without an ID.
func (s *RESTSink) Store(ctx context.Context, tenantID string, d Draft) (Record, error) {
	resp, err := post(ctx, s.httpClient, s.baseURL+"/api/internal/leads", s.secret, newCreateRequest(tenantID, d))
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return Record{}, rejected(resp)
	}

	var rec Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&rec); err != nil {
		slog.Warn("Lead created but the reply could not be decoded",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
		return localRecord(tenantID, d, s.now()), nil
	}
	return rec, nil
}

// WebhookSink posts the lead to a plain webhook. Any 2xx is success and the
// record is assembled locally.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// NewWebhookSink creates a webhook sink.
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &WebhookSink{
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Store implements Sink.
func (s *WebhookSink) Store(ctx context.Context, tenantID string, d Draft) (Record, error) {
	resp, err := post(ctx, s.httpClient, s.url, "", newCreateRequest(tenantID, d))
	if err != nil {
		return Record{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Record{}, rejected(resp)
	}
	return localRecord(tenantID, d, s.now()), nil
}

func localRecord(tenantID string, d Draft, at time.Time) Record {
	return Record{
		TenantID:   tenantID,
		Name:       d.Name,
		Inquiry:    d.Inquiry,
		Email:      d.Email,
		Phone:      d.Phone,
		Status:     StatusNew,
		CapturedAt: at.UTC(),
	}
}

// unconfiguredSink fails every submission.
type unconfiguredSink struct{}

func (unconfiguredSink) Store(context.Context, string, Draft) (Record, error) {
	return Record{}, &SinkError{Kind: ErrConfigurationMissing}
}

// NewSink picks the REST sink when apiBaseURL is set, else the webhook sink
// when webhookURL is set, else a sink that reports missing configuration.
func NewSink(apiBaseURL, apiSecret string, apiTimeout time.Duration, webhookURL string, webhookTimeout time.Duration) Sink {
	switch {
	case strings.TrimSpace(apiBaseURL) != "":
		return NewRESTSink(apiBaseURL, apiSecret, apiTimeout)
	case strings.TrimSpace(webhookURL) != "":
		return NewWebhookSink(webhookURL, webhookTimeout)
	default:
		return unconfiguredSink{}
	}
}

func post(ctx context.Context, client *http.Client, url, secret string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal lead: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &SinkError{Kind: ErrConfigurationMissing, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &SinkError{Kind: ErrSinkUnreachable, Err: err}
	}
	return resp, nil
}

func rejected(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes+1))
	text := string(body)
	if len(body) > maxErrorBodyBytes {
		text = string(body[:maxErrorBodyBytes]) + " (truncated)"
	}
	return &SinkError{Kind: ErrSinkRejected, StatusCode: resp.StatusCode, Body: text}
}
