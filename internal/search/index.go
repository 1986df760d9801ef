// Package search mirrors applications into Elasticsearch for status and
// date-range queries.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	DefaultIndex = "passport-applications"
	DefaultSize  = 20
	MaxSize      = 100
)

const indexMapping = `{
  "mappings": {
    "properties": {
      "applicationNumber":      {"type": "keyword"},
      "ownerId":                {"type": "keyword"},
      "category":               {"type": "keyword"},
      "city":                   {"type": "keyword"},
      "state":                  {"type": "keyword"},
      "status":                 {"type": "keyword"},
      "priority":               {"type": "boolean"},
      "submissionDate":         {"type": "date"},
      "expectedCompletionDate": {"type": "date"},
      "predictedDays":          {"type": "integer"},
      "updatedAt":              {"type": "date"}
    }
  }
}`

// Document is the indexed projection of an application.
type Document struct {
	ApplicationNumber      string    `json:"applicationNumber"`
	OwnerID                string    `json:"ownerId"`
	Category               string    `json:"category"`
	City                   string    `json:"city"`
	State                  string    `json:"state"`
	Status                 string    `json:"status"`
	Priority               bool      `json:"priority"`
	SubmissionDate         time.Time `json:"submissionDate"`
	ExpectedCompletionDate time.Time `json:"expectedCompletionDate"`
	PredictedDays          int       `json:"predictedDays"`
	UpdatedAt              time.Time `json:"updatedAt"`
}

// DocumentOf projects app onto the indexed fields.
func DocumentOf(app *models.Application) Document {
	return Document{
		ApplicationNumber:      app.ApplicationNumber,
		OwnerID:                app.OwnerID,
		Category:               string(app.Category),
		City:                   app.City,
		State:                  app.State,
		Status:                 string(app.CurrentStatus),
		Priority:               app.Priority,
		SubmissionDate:         app.SubmissionDate,
		ExpectedCompletionDate: app.ExpectedCompletionDate,
		PredictedDays:          app.PredictedCompletionDays,
		UpdatedAt:              app.UpdatedAt,
	}
}

// Query filters the index. Zero values match everything.
type Query struct {
	Status models.ApplicationStatus
	From   *time.Time
	To     *time.Time
	Size   int
}

type Result struct {
	Total     int64      `json:"total"`
	Documents []Document `json:"documents"`
	Took      int64      `json:"took"`
}

type Index struct {
	client *elasticsearch.Client
	name   string
	logger logger.Logger
}

func NewIndex(client *elasticsearch.Client, name string, log logger.Logger) *Index {
	if name == "" {
		name = DefaultIndex
	}
	return &Index{
		client: client,
		name:   name,
		logger: log.WithFields(map[string]interface{}{"component": "search", "index": name}),
	}
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (i *Index) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesCreateRequest{
		Index: i.name,
		Body:  strings.NewReader(indexMapping),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.NewSearchFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return errors.NewSearchFailedError(fmt.Errorf("create index: %s", res.String()))
	}
	return nil
}

// Index writes app and logs any failure.
func (i *Index) Index(ctx context.Context, app *models.Application) {
	if err := i.Put(ctx, app); err != nil {
		metrics.SearchIndexFailures.Inc()
		i.logger.Warn("failed to index application", map[string]interface{}{
			"applicationNumber": app.ApplicationNumber,
			"error":             err,
		})
	}
}

// Put writes app under its application number.
func (i *Index) Put(ctx context.Context, app *models.Application) error {
	body, err := json.Marshal(DocumentOf(app))
	if err != nil {
		return errors.NewSearchFailedError(err)
	}

	res, err := esapi.IndexRequest{
		Index:      i.name,
		DocumentID: app.ApplicationNumber,
		Body:       bytes.NewReader(body),
	}.Do(ctx, i.client)
	if err != nil {
		return errors.NewSearchFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return errors.NewSearchFailedError(fmt.Errorf("index %s: %s", app.ApplicationNumber, res.String()))
	}
	return nil
}

// Search runs q, newest submission first.
func (i *Index) Search(ctx context.Context, q Query) (*Result, error) {
	size := q.Size
	if size <= 0 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, errors.NewSearchFailedError(err)
	}

	res, err := esapi.SearchRequest{
		Index: []string{i.name},
		Body:  bytes.NewReader(body),
		Size:  &size,
	}.Do(ctx, i.client)
	if err != nil {
		return nil, errors.NewSearchFailedError(err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.NewSearchFailedError(fmt.Errorf("search query failed: %s", res.String()))
	}

	var r struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, errors.NewSearchFailedError(err)
	}

	out := &Result{Total: r.Hits.Total.Value, Took: r.Took, Documents: make([]Document, 0, len(r.Hits.Hits))}
	for _, h := range r.Hits.Hits {
		out.Documents = append(out.Documents, h.Source)
	}
	return out, nil
}

func buildQuery(q Query) map[string]interface{} {
	filters := []interface{}{}
	if q.Status != "" {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"status": string(q.Status)},
		})
	}
	if q.From != nil || q.To != nil {
		rng := map[string]interface{}{}
		if q.From != nil {
			rng["gte"] = q.From.Format(time.RFC3339)
		}
		if q.To != nil {
			rng["lte"] = q.To.Format(time.RFC3339)
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"submissionDate": rng},
		})
	}

	boolQuery := map[string]interface{}{
		"must": []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort":  []map[string]interface{}{{"submissionDate": "desc"}},
	}
}
