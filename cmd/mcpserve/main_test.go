package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/mnehpets/mcpserve/client"
	"github.com/mnehpets/mcpserve/config"
	"github.com/mnehpets/mcpserve/middleware"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "mcpserve dev\n", out)
}

func TestHandleCommand(t *testing.T) {
	out, err := execute(t, `{"jsonrpc":"2.0","method":"initialize","id":1}`, "handle")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(out)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t,
		`{"jsonrpc":"2.0","result":{"result":{"protocolVersion":"2024-11-05","capabilities":{},"serverInfo":{"name":"rust-mcp-server","version":"0.1.0"}}},"id":1}`,
		string(body))
}

func TestHandleCommand_ConfiguredIdentity(t *testing.T) {
	t.Setenv("MCP_SERVER_NAME", "configured")
	t.Setenv("MCP_SERVER_VERSION", "1.2.3")
	out, err := execute(t, `{"jsonrpc":"2.0","method":"initialize","id":"a"}`, "handle")
	require.NoError(t, err)
	assert.Contains(t, out, `"serverInfo":{"name":"configured","version":"1.2.3"}`)
}

func TestHandleCommand_Malformed(t *testing.T) {
	out, err := execute(t, `{not json`, "handle")
	require.NoError(t, err)

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(out)), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Type"))
	assert.True(t, strings.HasPrefix(string(body), "invalid json: "))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Log.Level = "error"
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	h, err := newHandler(context.Background(), cfg, zap.NewNop(), prometheus.NewRegistry())
	require.NoError(t, err)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_Routes(t *testing.T) {
	srv := newTestServer(t, testConfig())

	resp, err := http.Post(srv.URL+"/mcp", "text/plain", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":7}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"result":{"tools":[{}]}},"id":7}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	metrics, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metrics), `mcpserve_http_requests_total{code="200"} 1`)
}

func TestHandler_BodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 16
	srv := newTestServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHandler_LargeBodyUnderDefaults(t *testing.T) {
	srv := newTestServer(t, testConfig())

	body := `{"jsonrpc":"2.0","method":"tools/list","params":{"pad":"` + strings.Repeat("x", 5<<20) + `"},"id":1}`
	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"jsonrpc":"2.0","result":{"result":{"tools":[{}]}},"id":1}`, string(got))
}

func TestHandler_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimit{RPS: 0.001, Burst: 1}
	srv := newTestServer(t, cfg)

	post := func() int {
		resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list"}`))
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post())
	assert.Equal(t, http.StatusTooManyRequests, post())
}

func TestHandler_BearerAuth(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	jwks := jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{Key: &priv.PublicKey, Use: "sig", Algorithm: "RS256", KeyID: "k1"}}}
	data, err := json.Marshal(jwks)
	require.NoError(t, err)
	jwksFile := filepath.Join(t.TempDir(), "jwks.json")
	require.NoError(t, os.WriteFile(jwksFile, data, 0o600))

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Issuer: "https://issuer.example", Audience: "mcp-api", JWKSFile: jwksFile, Realm: "mcp"}
	srv := newTestServer(t, cfg)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, `Bearer realm="mcp"`, resp.Header.Get("WWW-Authenticate"))

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: priv}, (&jose.SignerOptions{}).WithType("JWT"))
	require.NoError(t, err)
	raw, err := jwt.Signed(signer).Claims(jwt.Claims{
		Subject:  "user123",
		Issuer:   "https://issuer.example",
		Audience: jwt.Audience{"mcp-api"},
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).Serialize()
	require.NoError(t, err)

	c, err := client.New(srv.URL+"/mcp", client.WithHeader("Authorization", "Bearer "+raw))
	require.NoError(t, err)
	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 1)
}

func TestHandler_CORSPreflight(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://app.example"}
	srv := newTestServer(t, cfg)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSmoke(t *testing.T) {
	srv := newTestServer(t, testConfig())

	c, err := client.New(srv.URL + "/mcp")
	require.NoError(t, err)
	report := runSmoke(context.Background(), c, srv.URL+"/mcp", "2025-06-18")

	assert.True(t, report.OK)
	assert.Equal(t, "2025-06-18", report.Protocol)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, "initialize", report.Steps[0].Name)
	assert.JSONEq(t, `{"count":1}`, string(report.Steps[1].Detail))
}

func TestSmokeCommand_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	out, err := execute(t, "", "smoke", "--url", srv.URL)
	assert.ErrorIs(t, err, errSmokeFailed)

	var report smokeReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.OK)
	assert.Contains(t, report.Steps[0].Error, "503")
}

func TestInstallStdoutTracer(t *testing.T) {
	prev := otel.GetTracerProvider()
	shutdown, err := installStdoutTracer()
	require.NoError(t, err)
	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)
	shutdown()
	assert.Equal(t, prev, otel.GetTracerProvider())
}
