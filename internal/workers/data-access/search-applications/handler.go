package searchapplications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"
	"passport-tracker/internal/search"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "search-applications"
)

// systemPrincipal is who the process engine acts as when it searches.
var systemPrincipal = models.Principal{UserID: "zeebe", Role: models.RoleAdmin}

// Searcher runs an application search on behalf of a principal.
type Searcher interface {
	SearchApplications(ctx context.Context, p models.Principal, q search.Query) (*search.Result, error)
}

type Handler struct {
	config     *Config
	searcher   Searcher
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, searcher Searcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		searcher:   searcher,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, errors.NewValidationError([]errors.FieldError{{
			Field: "(variables)", Code: "PARSE_ERROR", Message: err.Error(),
		}}))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	q := search.Query{
		Status: models.ApplicationStatus(strings.ToLower(strings.TrimSpace(input.Status))),
		Size:   input.Size,
	}

	var fieldErrs []errors.FieldError
	var err error
	if q.From, err = parseBound(input.From, false); err != nil {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "from", Code: "INVALID_FORMAT", Message: err.Error()})
	}
	if q.To, err = parseBound(input.To, true); err != nil {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "to", Code: "INVALID_FORMAT", Message: err.Error()})
	}
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError(fieldErrs)
	}

	res, err := h.searcher.SearchApplications(ctx, systemPrincipal, q)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.NewTimeoutError("search", err)
		}
		return nil, err
	}

	h.logger.Info("search completed", map[string]interface{}{
		"status":    q.Status,
		"totalHits": res.Total,
	})

	docs := res.Documents
	if docs == nil {
		docs = []search.Document{}
	}
	return &Output{Applications: docs, TotalHits: res.Total, Took: res.Took}, nil
}

// parseBound accepts RFC 3339 or a bare date; a bare upper bound covers the
// whole day.
func parseBound(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmn := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
}
