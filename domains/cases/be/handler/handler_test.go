package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/handler"
	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/provisioning"
	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/repo"
	"github.com/mediamatex/lexarbitra-vue/domains/cases/be/service"
	"github.com/mediamatex/lexarbitra-vue/platform/go/casedb"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	sb := casedb.NewSwitchboard(casedb.SwitchboardConfig{LocalMode: true, Logger: logger})
	t.Cleanup(sb.CloseAll)

	svc, err := service.New(service.Deps{
		Repo:        repo.NewMemory(),
		Provisioner: provisioning.NewLocal(t.TempDir(), logger),
		Switchboard: sb,
		Migrator:    casedb.NewMigrator(logger),
		TenantCases: casedb.NewTenantCaseRepository(),
		Logger:      logger,
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	router.Mount("/api/v1", handler.New(svc, logger).Routes())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createCase(t *testing.T, server *httptest.Server) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/cases", map[string]any{
		"case_number":  "AZ-2024-0042",
		"title":        "Meier ./. Schulz",
		"initiated_at": "2024-03-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, false, body["database_pending"])

	caseBody := body["case"].(map[string]any)
	return caseBody["id"].(string)
}

func TestCreateAndGetCase(t *testing.T) {
	t.Parallel()
	server := testServer(t)

	id := createCase(t, server)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/cases/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["availability"])

	tenant := body["tenant_case"].(map[string]any)
	require.Equal(t, "AZ-2024-0042", tenant["case_number"])
	require.Equal(t, "Meier ./. Schulz", tenant["title"])
}

func TestCreateCaseValidationError(t *testing.T) {
	t.Parallel()
	server := testServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/cases", map[string]any{
		"title": "missing everything else",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Validation failed", body["title"])
	require.EqualValues(t, http.StatusBadRequest, body["status"])
}

func TestGetCaseNotFound(t *testing.T) {
	t.Parallel()
	server := testServer(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/cases/0d9b6f2a-4c31-4e52-9f8d-1a2b3c4d5e6f", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "Case not found", body["title"])
}

func TestGetCaseRejectsBadID(t *testing.T) {
	t.Parallel()
	server := testServer(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/v1/cases/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateAndDeleteCase(t *testing.T) {
	t.Parallel()
	server := testServer(t)
	id := createCase(t, server)

	resp, body := doJSON(t, http.MethodPatch, server.URL+"/api/v1/cases/"+id, map[string]any{
		"title":  "Meier ./. Schulz GmbH",
		"status": "active",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["tenant_mirrored"])

	resp, body = doJSON(t, http.MethodDelete, server.URL+"/api/v1/cases/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["database_deleted"])

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/v1/cases/"+id, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTestDatabaseEndpoint(t *testing.T) {
	t.Parallel()
	server := testServer(t)
	id := createCase(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/cases/"+id+"/test-database", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["reachable"])
	require.EqualValues(t, 1, body["tenant_cases"])
}

func TestValidateSyncEndpoint(t *testing.T) {
	t.Parallel()
	server := testServer(t)
	createCase(t, server)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/v1/cases/validate-sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, body["issues"])
}

func TestDatabaseInfoEndpoint(t *testing.T) {
	t.Parallel()
	server := testServer(t)
	createCase(t, server)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/v1/debug/database-info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "local", body["backend_kind"])
	require.Equal(t, true, body["reachable"])
	require.EqualValues(t, 1, body["total_cases"])
}
