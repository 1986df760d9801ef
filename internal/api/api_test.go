package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"passport-tracker/internal/access"
	"passport-tracker/internal/common/auth"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/lifecycle"
	"passport-tracker/internal/models"
	"passport-tracker/internal/notification"
	"passport-tracker/internal/store"
	"passport-tracker/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	citizen  = models.Principal{UserID: "citizen-1", Role: models.RoleCitizen, Email: "asha@example.com"}
	neighbor = models.Principal{UserID: "citizen-2", Role: models.RoleCitizen}
	rpo      = models.Principal{UserID: "rpo-1", Role: models.RoleRPO}
	admin    = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
)

type apiFixture struct {
	server *httptest.Server
	tokens *auth.TokenService
	checks map[string]HealthCheck
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.NewTestLogger(t)
	st := store.NewMemory()
	gate := access.NewGate(true)
	dispatcher := notification.NewDispatcher(st, nil, nil, log)
	svc := lifecycle.NewService(lifecycle.Dependencies{
		Store:     st,
		Gate:      gate,
		Engine:    workflow.NewEngine(st, gate, dispatcher, nil, nil, log),
		Estimator: estimation.NewService(nil, estimation.MinimumDays, log),
		Notifier:  dispatcher,
		Inbox:     dispatcher,
	}, log)

	f := &apiFixture{
		tokens: auth.NewTokenService("test-secret", "passport-tracker", ""),
		checks: map[string]HealthCheck{},
	}
	router := NewRouter(svc, f.tokens, Options{Version: "test", Checks: f.checks, RequestTimeout: 5 * time.Second}, log)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) do(t *testing.T, p *models.Principal, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if p != nil {
		token, err := f.tokens.Issue(*p, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func submitBody() map[string]interface{} {
	return map[string]interface{}{
		"category":    "new",
		"fullName":    "Asha Rao",
		"dateOfBirth": "1990-04-02",
		"gender":      "F",
		"phone":       "9876543210",
		"address":     "12 MG Road",
		"city":        "Mumbai",
		"state":       "Maharashtra",
		"pincode":     "400001",
	}
}

func (f *apiFixture) submit(t *testing.T) string {
	t.Helper()
	resp, body := f.do(t, &citizen, http.MethodPost, "/api/v1/applications", submitBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	return body["applicationNumber"].(string)
}

// ==========================
// Infrastructure endpoints
// ==========================

func TestHealthAndReady(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "test", body["version"])

	f.checks["postgres"] = func(context.Context) error { return nil }
	resp, _ = f.do(t, nil, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.checks["redis"] = func(context.Context) error { return stderrors.New("connection refused") }
	resp, body = f.do(t, nil, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "ok", checks["postgres"])
	assert.Equal(t, "connection refused", checks["redis"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, nil, http.MethodGet, "/health", nil)

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// ==========================
// Authentication
// ==========================

func TestAuthentication(t *testing.T) {
	f := newAPIFixture(t)

	resp, body := f.do(t, nil, http.MethodGet, "/api/v1/applications", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHENTICATED", body["error"])

	req, _ := http.NewRequest(http.MethodGet, f.server.URL+"/api/v1/applications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, raw.StatusCode)

	resp, _ = f.do(t, &models.Principal{UserID: "x", Role: "superuser"}, http.MethodGet, "/api/v1/applications", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// ==========================
// Applications
// ==========================

func TestSubmitAndTrack(t *testing.T) {
	f := newAPIFixture(t)
	number := f.submit(t)
	assert.True(t, strings.HasPrefix(number, "PSP"))

	resp, body := f.do(t, &citizen, http.MethodGet, "/api/v1/applications/"+number, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["stages"], 5)

	resp, body = f.do(t, &neighbor, http.MethodGet, "/api/v1/applications/"+number, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "ACCESS_DENIED", body["error"])
	assert.Nil(t, body["application"])

	resp, _ = f.do(t, &citizen, http.MethodGet, "/api/v1/applications/PSP2024000000", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, &citizen, http.MethodGet, "/api/v1/applications", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["applications"], 1)
}

func TestSubmit_ValidationErrors(t *testing.T) {
	f := newAPIFixture(t)
	req := submitBody()
	req["pincode"] = "12"

	resp, body := f.do(t, &citizen, http.MethodPost, "/api/v1/applications", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeValidationFailed), body["error"])
	require.NotEmpty(t, body["fields"])

	token, err := f.tokens.Issue(citizen, time.Hour)
	require.NoError(t, err)
	malformed, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/v1/applications", strings.NewReader("{"))
	malformed.Header.Set("Authorization", "Bearer "+token)
	raw, err := http.DefaultClient.Do(malformed)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestUploadDocument(t *testing.T) {
	f := newAPIFixture(t)
	number := f.submit(t)

	resp, body := f.do(t, &citizen, http.MethodPost, "/api/v1/applications/"+number+"/documents", map[string]interface{}{
		"documentType": "photo", "fileName": "me.jpg", "sizeBytes": 1024,
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "photo", body["documentType"])

	resp, _ = f.do(t, &citizen, http.MethodPost, "/api/v1/applications/"+number+"/documents", map[string]interface{}{
		"documentType": "selfie", "fileName": "me.jpg",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ==========================
// Stage actions
// ==========================

func TestOfficerFlow(t *testing.T) {
	f := newAPIFixture(t)
	number := f.submit(t)

	resp, body := f.do(t, &rpo, http.MethodGet, "/api/v1/officer/queue", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	stage := items[0].(map[string]interface{})["stage"].(map[string]interface{})
	stageID := stage["id"].(string)

	resp, body = f.do(t, &rpo, http.MethodPost, "/api/v1/stages/"+stageID+"/approve", map[string]string{"remarks": "ok"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	app := body["application"].(map[string]interface{})
	assert.Equal(t, "police_verification", app["currentStatus"])

	resp, body = f.do(t, &rpo, http.MethodPost, "/api/v1/stages/"+stageID+"/approve", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["error"])

	resp, _ = f.do(t, &citizen, http.MethodPost, "/api/v1/stages/"+stageID+"/reject", map[string]string{"reason": "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = f.do(t, &rpo, http.MethodPost, "/api/v1/stages/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, &citizen, http.MethodGet, "/api/v1/applications/"+number, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "police_verification", body["application"].(map[string]interface{})["currentStatus"])
}

// ==========================
// Administration and search
// ==========================

func TestAdminEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t)

	resp, body := f.do(t, &admin, http.MethodGet, "/api/v1/admin/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	resp, _ = f.do(t, &citizen, http.MethodGet, "/api/v1/admin/statistics", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = f.do(t, &admin, http.MethodGet, "/api/v1/admin/estimation-accuracy", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), body["evaluated"])
}

func TestSearchApplications(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t)

	resp, body := f.do(t, &admin, http.MethodGet, "/api/v1/search/applications?status=submitted&from=2000-01-01", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	tests := []struct {
		name  string
		query string
	}{
		{"bad date", "?from=yesterday"},
		{"bad size", "?size=-3"},
		{"inverted range", "?from=2024-05-01&to=2024-04-01"},
		{"unknown status", "?status=lost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := f.do(t, &admin, http.MethodGet, "/api/v1/search/applications"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

// ==========================
// Notifications
// ==========================

func TestNotifications(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t)
	f.submit(t)

	resp, body := f.do(t, &citizen, http.MethodGet, "/api/v1/notifications?unread=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["notifications"].([]interface{})
	require.Len(t, list, 2)
	id := list[0].(map[string]interface{})["id"].(string)

	resp, _ = f.do(t, &neighbor, http.MethodPost, "/api/v1/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, &citizen, http.MethodPost, "/api/v1/notifications/"+id+"/read", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = f.do(t, &citizen, http.MethodPost, "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["updated"])
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, StatusFor(errors.ErrCodeConflict))
	assert.Equal(t, http.StatusConflict, StatusFor(errors.ErrCodeInvalidTransition))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.ErrCodeDatabase))
}
