package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libtrack/core/internal/adapters/repository"
	"github.com/libtrack/core/internal/application/services"
	"github.com/libtrack/core/internal/domain/entities"
	"github.com/libtrack/core/internal/infrastructure/logger"
	"github.com/libtrack/core/internal/ports"
)

type testValidator struct {
	validator *validator.Validate
}

func (v *testValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

type stubProvider struct {
	name  string
	reply string
	tag   string
	err   error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Complete(ctx context.Context, system string, history []entities.ChatTurn, message string) (string, string, error) {
	if p.err != nil {
		return "", "", p.err
	}
	return p.reply, p.tag, nil
}

// newTestServer wires the full handler stack against file stores in a
// temp dir and the given provider chain.
func newTestServer(t *testing.T, providers []ports.CompletionProvider) *echo.Echo {
	t.Helper()

	dir := t.TempDir()
	nop := logger.NewNop()

	stateStore, err := repository.NewFileStateStore(dir, "test")
	require.NoError(t, err)
	backupStore, err := repository.NewFileBackupStore(dir)
	require.NoError(t, err)

	stateHandler := NewStateHandler(services.NewStateService(stateStore, nop), nop)
	backupHandler := NewBackupHandler(services.NewBackupService(backupStore, nop), nop)
	chatHandler := NewChatHandler(services.NewChatService(providers, nop), nop)

	e := echo.New()
	e.Validator = &testValidator{validator: validator.New()}

	api := e.Group("/api")
	api.GET("/data", stateHandler.GetData)
	api.POST("/data", stateHandler.ReplaceData)
	api.GET("/archive", stateHandler.GetArchive)
	api.POST("/archive", stateHandler.ReplaceArchive)
	api.POST("/archive/student", stateHandler.ArchiveStudent)
	api.GET("/settings", stateHandler.GetSettings)
	api.POST("/settings", stateHandler.UpdateSettings)
	api.POST("/backup", backupHandler.CreateBackup)
	api.GET("/backups", backupHandler.ListBackups)
	api.GET("/restore/:id", backupHandler.Restore)
	api.POST("/chat", chatHandler.Chat)

	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestDataEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodGet, "/api/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"students":[]}`, rec.Body.String())

	rec = doJSON(e, http.MethodPost, "/api/data", `{"students":[{"id":"s1","name":"Ayesha"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/data", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"students":[{"id":"s1","name":"Ayesha"}]}`, rec.Body.String())
}

func TestDataEndpointMissingStudentsField(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/data", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArchiveStudentEndpoint(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/data", `{"students":[{"id":"s1"},{"id":"s2"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/archive/student", `{"studentId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/archive", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ArchiveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Archived, 1)
	assert.Equal(t, "s1", resp.Archived[0].ID())
	assert.Equal(t, entities.StudentStatusArchived, resp.Archived[0]["status"])
	assert.NotEmpty(t, resp.Archived[0]["archivedAt"])

	// Unknown ids succeed without touching the archive.
	rec = doJSON(e, http.MethodPost, "/api/archive/student", `{"studentId":"ghost"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = doJSON(e, http.MethodGet, "/api/archive", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Archived, 1)
}

func TestArchiveStudentEndpointMissingID(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/archive/student", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsEndpoints(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/settings", `{"a":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/settings", `{"b":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"a":1,"b":2}`, rec.Body.String())
}

func TestSettingsEndpointStripsSecrets(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/settings", `{"openaiKey":"sk-x","theme":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk-x")

	rec = doJSON(e, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"theme":"dark"}`, rec.Body.String())
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	e := newTestServer(t, nil)

	payload := `{"students":[{"id":"s1"}],"archived":[],"settings":{}}`
	rec := doJSON(e, http.MethodPost, "/api/backup", `{"data":`+payload+`}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BackupResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	require.NotEmpty(t, resp.Backup)

	rec = doJSON(e, http.MethodGet, "/api/restore/"+resp.Backup, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, payload, rec.Body.String())
}

func TestBackupEndpointMissingData(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/backup", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRestoreUnknownBackup(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodGet, "/api/restore/backup-19990101-000000.000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatEndpointFallback(t *testing.T) {
	providers := []ports.CompletionProvider{
		&stubProvider{name: "openai", err: errors.New("primary down")},
		&stubProvider{name: "gemini", reply: "Ji, bataiye.", tag: "gemini-1.5-flash"},
	}
	e := newTestServer(t, providers)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hello","history":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Ji, bataiye.","provider":"gemini-1.5-flash"}`, rec.Body.String())
}

func TestChatEndpointMissingMessage(t *testing.T) {
	e := newTestServer(t, []ports.CompletionProvider{&stubProvider{name: "openai", reply: "x", tag: "m"}})

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"history":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatEndpointNoProviderConfigured(t *testing.T) {
	e := newTestServer(t, nil)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestChatEndpointAllProvidersFail(t *testing.T) {
	providers := []ports.CompletionProvider{
		&stubProvider{name: "openai", err: errors.New("primary down")},
		&stubProvider{name: "gemini", err: errors.New("fallback down")},
	}
	e := newTestServer(t, providers)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "fallback down")
}
