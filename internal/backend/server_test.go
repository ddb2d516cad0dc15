package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffo777/input-right/internal/lead"
	"github.com/jeffo777/input-right/internal/profile"
)

const testSecret = "s3cret"

func newTestServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Store:   newTestStore(t),
		Secret:  testSecret,
		LiveKit: LiveKit{URL: "wss://lk.example.com", APIKey: "devkey", APISecret: "devsecret-devsecret-devsecret-00"},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, secret string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("Authorization", secret)
	}
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func seedTenant(t *testing.T, srv *Server) {
	t.Helper()
	resp, _ := do(t, srv, http.MethodPost, "/api/internal/tenants", testSecret, map[string]string{
		"id": "acme", "business_name": "Acme Plumbing", "knowledge_base": "We fix pipes.",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, body := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestInternalAuth(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		server string
		want   int
	}{
		{name: "match", secret: testSecret, server: testSecret, want: http.StatusNotFound},
		{name: "mismatch", secret: "wrong", server: testSecret, want: http.StatusForbidden},
		{name: "missing header", server: testSecret, want: http.StatusForbidden},
		{name: "unconfigured", secret: "anything", server: "", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, func(c *Config) { c.Secret = tt.server })
			resp, _ := do(t, srv, http.MethodGet, "/api/internal/tenants/nobody", tt.secret, nil)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestTenantRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	seedTenant(t, srv)

	resp, body := do(t, srv, http.MethodGet, "/api/internal/tenants/acme", testSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// the agent's profile resolver reads the same document
	var p profile.Profile
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, profile.Profile{TenantID: "acme", BusinessName: "Acme Plumbing", KnowledgeBase: "We fix pipes."}, p)

	resp, _ = do(t, srv, http.MethodPost, "/api/internal/tenants", testSecret, map[string]string{
		"id": "acme", "business_name": "Again",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = do(t, srv, http.MethodPost, "/api/internal/tenants", testSecret, map[string]string{
		"id": "bad_id", "business_name": "",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "business_name")
	assert.Contains(t, string(body), `"id"`)
}

func TestLeadRoutes(t *testing.T) {
	srv := newTestServer(t, nil)
	seedTenant(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/api/internal/leads", testSecret, map[string]string{
		"tenant_id": "acme", "name": "Jane", "inquiry": "leaky pipe", "email": "jane@x.com", "phone": "555",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rec lead.Record
	require.NoError(t, json.Unmarshal(body, &rec))
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, lead.StatusNew, rec.Status)
	assert.False(t, rec.CapturedAt.IsZero())

	resp, body = do(t, srv, http.MethodPost, "/api/internal/leads", testSecret, map[string]string{
		"tenant_id": "acme", "name": "Jane", "inquiry": "leaky pipe", "email": "not-an-email",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, string(body), "email")

	resp, _ = do(t, srv, http.MethodPost, "/api/internal/leads", testSecret, map[string]string{
		"tenant_id": "nobody", "name": "Jane", "inquiry": "leaky pipe", "email": "jane@x.com",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = do(t, srv, http.MethodGet, "/api/internal/tenants/acme/leads", testSecret, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var leads []lead.Record
	require.NoError(t, json.Unmarshal(body, &leads))
	assert.Len(t, leads, 1)

	resp, _ = do(t, srv, http.MethodGet, "/api/internal/tenants/nobody/leads", testSecret, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBadJSON(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/internal/leads", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", testSecret)
	resp, err := srv.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func jwtClaims(t *testing.T, token string) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(raw, &claims))
	return claims
}

func TestCreateToken(t *testing.T) {
	srv := newTestServer(t, nil)
	seedTenant(t, srv)

	resp, body := do(t, srv, http.MethodPost, "/api/token", "", map[string]string{"tenant_id": "acme"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	assert.True(t, strings.HasPrefix(tr.Identity, "visitor-"))
	assert.True(t, strings.HasPrefix(tr.RoomName, "acme_"))
	assert.Equal(t, "wss://lk.example.com", tr.URL)

	key, err := profile.TenantKey(tr.RoomName)
	require.NoError(t, err)
	assert.Equal(t, "acme", key)

	claims := jwtClaims(t, tr.Token)
	assert.Equal(t, tr.Identity, claims["sub"])
	assert.Equal(t, CallerName, claims["name"])
	video := claims["video"].(map[string]any)
	assert.Equal(t, true, video["roomJoin"])
	assert.Equal(t, tr.RoomName, video["room"])
	assert.Equal(t, true, video["canPublish"])
	assert.Equal(t, true, video["canSubscribe"])
	assert.Equal(t, true, video["canPublishData"])
}

func TestCreateTokenErrors(t *testing.T) {
	srv := newTestServer(t, nil)
	seedTenant(t, srv)

	resp, _ := do(t, srv, http.MethodPost, "/api/token", "", map[string]string{"tenant_id": "nobody"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/api/token", "", map[string]string{"tenant_id": "acme", "room_name": "other_123"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body := do(t, srv, http.MethodPost, "/api/token", "", map[string]string{"tenant_id": "acme", "room_name": "acme_fixed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"room_name":"acme_fixed"`)

	unconfigured := newTestServer(t, func(c *Config) { c.LiveKit = LiveKit{} })
	resp, _ = do(t, unconfigured, http.MethodPost, "/api/token", "", map[string]string{"tenant_id": "acme"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestRESTSinkAgainstBackend(t *testing.T) {
	srv := newTestServer(t, nil)
	seedTenant(t, srv)

	hs := httptest.NewServer(adaptor.FiberApp(srv.App()))
	defer hs.Close()

	pipeline := lead.NewPipeline(lead.NewRESTSink(hs.URL, testSecret, 0), slog.New(slog.NewTextHandler(io.Discard, nil)))
	d := lead.Draft{Name: "Jane", Inquiry: "leaky pipe", Email: "jane@x.com"}
	rec, err := pipeline.Submit(context.Background(), "acme", d)
	require.NoError(t, err)
	assert.Equal(t, d, rec.Draft())
	assert.Equal(t, "acme", rec.TenantID)
	assert.Equal(t, lead.StatusNew, rec.Status)

	resolver := profile.NewHTTPResolver(hs.URL, testSecret, 0)
	p, err := resolver.Resolve(context.Background(), "acme_call-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Plumbing", p.BusinessName)
}
