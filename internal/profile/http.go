package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jeffo777/input-right/pkg/version"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	maxBodyBytes       = 1 << 20
)

// HTTPResolver fetches profiles from the backend's internal tenant API,
// authenticating with the shared secret.
type HTTPResolver struct {
	baseURL    string
	secret     string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver against baseURL, e.g.
// http://backend:8000. A zero timeout uses 10s.
func NewHTTPResolver(baseURL, secret string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPResolver{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, sessionKey string) (Profile, error) {
	tenantID, err := TenantKey(sessionKey)
	if err != nil {
		return Profile{}, err
	}

	endpoint := r.baseURL + "/api/internal/tenants/" + url.PathEscape(tenantID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", r.secret)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Profile{}, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, tenantID)
	case resp.StatusCode != http.StatusOK:
		slog.Error("Failed to fetch tenant profile",
			slog.String("tenant_id", tenantID),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		return Profile{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		return Profile{}, fmt.Errorf("%w: decode profile: %v", ErrUpstreamUnavailable, err)
	}
	if p.TenantID == "" {
		p.TenantID = tenantID
	}
	return p, nil
}
