package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libtrack/core/internal/infrastructure/config"
	"github.com/libtrack/core/internal/infrastructure/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		App:     config.AppConfig{Name: "LibTrack", Version: "test", Environment: "test"},
		Server:  config.ServerConfig{Port: 8080},
		Storage: config.StorageConfig{Driver: config.DriverFile, DataDir: t.TempDir(), StateID: "test"},
		Logger:  config.LoggerConfig{Level: "info", Format: "json"},
		Security: config.SecurityConfig{
			CORSAllowedOrigins: "*",
			RateLimitRequests:  1000,
			RateLimitWindow:    time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	srv, err := New(testConfig(t), nil, logger.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "file", body["storage_driver"])
	assert.Equal(t, "test", body["state_id"])
}

func TestServerReadyEndpoint(t *testing.T) {
	srv, err := New(testConfig(t), nil, logger.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerMetricsEndpoint(t *testing.T) {
	srv, err := New(testConfig(t), nil, logger.NewNop())
	require.NoError(t, err)

	// Counters only show up after a request has been observed.
	warm := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	srv.echo.ServeHTTP(httptest.NewRecorder(), warm)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServerEndToEndArchiveFlow(t *testing.T) {
	srv, err := New(testConfig(t), nil, logger.NewNop())
	require.NoError(t, err)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		srv.echo.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/data", `{"students":[{"id":"s1","name":"Ayesha"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = post("/api/archive/student", `{"studentId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/archive", nil)
	getRec := httptest.NewRecorder()
	srv.echo.ServeHTTP(getRec, req)
	require.Equal(t, http.StatusOK, getRec.Code)
	assert.Contains(t, getRec.Body.String(), `"status":"Archived"`)
}

func TestBuildProviderChain(t *testing.T) {
	chain := BuildProviderChain(config.ChatConfig{})
	assert.Empty(t, chain)

	chain = BuildProviderChain(config.ChatConfig{OpenAIKey: "sk-x"})
	require.Len(t, chain, 1)
	assert.Equal(t, "openai", chain[0].Name())

	chain = BuildProviderChain(config.ChatConfig{
		OpenAIKey:    "sk-x",
		GeminiKey:    "g-x",
		GeminiModels: "gemini-1.5-flash",
	})
	require.Len(t, chain, 2)
	assert.Equal(t, "openai", chain[0].Name())
	assert.Equal(t, "gemini", chain[1].Name())

	// Fallback-only configuration puts gemini alone in the chain.
	chain = BuildProviderChain(config.ChatConfig{GeminiKey: "g-x"})
	require.Len(t, chain, 1)
	assert.Equal(t, "gemini", chain[0].Name())
}
