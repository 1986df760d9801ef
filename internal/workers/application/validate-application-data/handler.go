package validateapplicationdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/lifecycle"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "validate-application-data"
)

type Handler struct {
	config     *Config
	logger     logger.Logger
	errHandler *errors.ErrorHandler
	now        func() time.Time
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
		now:        func() time.Time { return time.Now().UTC() },
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
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}

// Execute normalizes the submission and checks it against the submission
// rules. Invalid data is reported as a non-retryable validation error
// carrying every field problem.
func (h *Handler) Execute(_ context.Context, input *Input) (*Output, error) {
	valid, fieldErrs := lifecycle.ValidateSubmission(input.ApplicationData, h.now())

	h.logger.Info("validation completed", map[string]interface{}{
		"isValid":    len(fieldErrs) == 0,
		"errorCount": len(fieldErrs),
	})
	if len(fieldErrs) > 0 {
		return nil, fmt.Errorf("validate submission: %w", errors.NewValidationError(fieldErrs))
	}

	return &Output{
		IsValid:          true,
		ValidatedData:    &valid.Request,
		ValidationErrors: []errors.FieldError{},
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmn := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
}
