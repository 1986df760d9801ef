package search

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method string
	path   string
	query  string
	body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []capturedRequest
	status   int
	response string
}

func (f *fakeCluster) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
	status, response := f.status, f.response
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, response)
}

func newTestIndex(t *testing.T, cluster *fakeCluster) *Index {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(cluster.handler))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return NewIndex(client, "", logger.NewTestLogger(t))
}

func sampleApplication() *models.Application {
	submitted := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	return &models.Application{
		ApplicationNumber:       "PSP2024123456",
		OwnerID:                 "citizen-1",
		Category:                models.CategoryRenewal,
		City:                    "Pune",
		State:                   "Maharashtra",
		CurrentStatus:           models.StatusPoliceVerification,
		SubmissionDate:          submitted,
		ExpectedCompletionDate:  submitted.AddDate(0, 0, 20),
		PredictedCompletionDays: 20,
		UpdatedAt:               submitted,
	}
}

// ==========================
// Indexing
// ==========================

func TestPut_WritesDocumentUnderNumber(t *testing.T) {
	cluster := &fakeCluster{response: `{"result":"created"}`}
	idx := newTestIndex(t, cluster)

	require.NoError(t, idx.Put(context.Background(), sampleApplication()))

	require.Len(t, cluster.requests, 1)
	req := cluster.requests[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "/passport-applications/_doc/PSP2024123456", req.path)

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(req.body), &doc))
	assert.Equal(t, "police_verification", doc.Status)
	assert.Equal(t, "renewal", doc.Category)
	assert.Equal(t, 20, doc.PredictedDays)
}

func TestIndex_FailureIsSwallowed(t *testing.T) {
	cluster := &fakeCluster{status: http.StatusInternalServerError, response: `{"error":"boom"}`}
	idx := newTestIndex(t, cluster)

	assert.NotPanics(t, func() { idx.Index(context.Background(), sampleApplication()) })
	err := idx.Put(context.Background(), sampleApplication())
	assert.Equal(t, errors.ErrCodeSearchFailed, errors.CodeOf(err))
}

func TestEnsureIndex_ToleratesExisting(t *testing.T) {
	cluster := &fakeCluster{
		status:   http.StatusBadRequest,
		response: `{"error":{"type":"resource_already_exists_exception"},"status":400}`,
	}
	idx := newTestIndex(t, cluster)

	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Equal(t, "/passport-applications", cluster.requests[0].path)
	assert.Contains(t, cluster.requests[0].body, `"submissionDate"`)
}

// ==========================
// Searching
// ==========================

func TestSearch_BuildsFilterAndDecodesHits(t *testing.T) {
	cluster := &fakeCluster{response: `{
		"took": 3,
		"hits": {
			"total": {"value": 1},
			"hits": [{"_source": {"applicationNumber": "PSP2024123456", "status": "submitted", "city": "Pune"}}]
		}
	}`}
	idx := newTestIndex(t, cluster)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	res, err := idx.Search(context.Background(), Query{Status: models.StatusSubmitted, From: &from, Size: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "Pune", res.Documents[0].City)

	req := cluster.requests[0]
	assert.Equal(t, "/passport-applications/_search", req.path)
	assert.Contains(t, req.query, "size=100")
	assert.Contains(t, req.body, `"term":{"status":"submitted"}`)
	assert.Contains(t, req.body, `"gte":"2024-01-01T00:00:00Z"`)
	assert.NotContains(t, req.body, `"lte"`)
}

func TestSearch_ErrorResponse(t *testing.T) {
	cluster := &fakeCluster{status: http.StatusNotFound, response: `{"error":{"type":"index_not_found_exception"}}`}
	idx := newTestIndex(t, cluster)

	_, err := idx.Search(context.Background(), Query{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeSearchFailed, errors.CodeOf(err))
}

func TestBuildQuery_NoFilters(t *testing.T) {
	q := buildQuery(Query{})
	b, err := json.Marshal(q)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(b), `"filter"`))
	assert.Contains(t, string(b), `"submissionDate":"desc"`)
}
