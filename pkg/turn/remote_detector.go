package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jeffo777/input-right/pkg/ai/llm"
	"github.com/jeffo777/input-right/pkg/version"
)

// RemoteTimeout bounds one prediction request. A slow answer is worse than
// the heuristic's guess.
const RemoteTimeout = 2 * time.Second

// RemoteDetector asks an HTTP inference endpoint for the end-of-turn
// probability and uses a local detector whenever the endpoint fails.
type RemoteDetector struct {
	endpoint string
	client   *http.Client
	fallback Detector
}

// NewRemoteDetector returns a detector posting to endpoint. fallback may be
// nil, in which case endpoint failures are returned as errors.
func NewRemoteDetector(endpoint string, fallback Detector) *RemoteDetector {
	return &RemoteDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: RemoteTimeout},
		fallback: fallback,
	}
}

// RemoteRequest is the body posted to the endpoint.
type RemoteRequest struct {
	Messages []llm.Message `json:"messages"`
	Language string        `json:"language,omitempty"`
}

// RemoteResponse is the endpoint's reply.
type RemoteResponse struct {
	Probability float64 `json:"eou_probability"`
	Error       string  `json:"error,omitempty"`
}

func (d *RemoteDetector) UnlikelyThreshold(language string) (float64, error) {
	if d.fallback != nil {
		return d.fallback.UnlikelyThreshold(language)
	}
	if language == "en" || language == "en-US" || language == "en-GB" {
		return 0.85, nil
	}
	return 0.80, nil
}

// SupportsLanguage is always true; the remote model is multilingual.
func (d *RemoteDetector) SupportsLanguage(string) bool { return true }

func (d *RemoteDetector) PredictEndOfTurn(ctx context.Context, chatCtx ChatContext) (float64, error) {
	p, err := d.query(ctx, chatCtx)
	if err == nil {
		return p, nil
	}
	if d.fallback == nil {
		return 0, fmt.Errorf("remote turn detection: %w", err)
	}
	slog.Warn("Remote turn detection failed, using heuristic", slog.String("error", err.Error()))
	return d.fallback.PredictEndOfTurn(ctx, chatCtx)
}

func (d *RemoteDetector) query(ctx context.Context, chatCtx ChatContext) (float64, error) {
	body, err := json.Marshal(RemoteRequest{Messages: chatCtx.Messages, Language: chatCtx.Language})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out RemoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case out.Error != "":
		return 0, fmt.Errorf("endpoint error: %s", out.Error)
	case out.Probability < 0 || out.Probability > 1:
		return 0, fmt.Errorf("probability %f out of range", out.Probability)
	}
	return out.Probability, nil
}
