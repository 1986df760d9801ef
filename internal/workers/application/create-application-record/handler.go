package createapplicationrecord

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "create-application-record"
)

// Submitter persists a new application with its stages and prediction.
type Submitter interface {
	Submit(ctx context.Context, p models.Principal, req models.SubmitRequest) (*models.Application, error)
}

type Handler struct {
	config     *Config
	submitter  Submitter
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, submitter Submitter, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		submitter:  submitter,
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
	h.completeJob(ctx, client, job, output)
}

// Execute submits the application on behalf of its owner. Number
// collisions are retried inside the submission; once exhausted they surface
// as a retryable conflict.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	ownerID := strings.TrimSpace(input.OwnerID)
	if ownerID == "" {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "ownerId", Code: "REQUIRED", Message: "ownerId is required",
		}})
	}

	owner := models.Principal{UserID: ownerID, Role: models.RoleCitizen, Email: input.OwnerEmail}
	app, err := h.submitter.Submit(ctx, owner, input.ApplicationData)
	if err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	h.logger.Info("application record created", map[string]interface{}{
		"applicationId":     app.ID,
		"applicationNumber": app.ApplicationNumber,
		"ownerId":           ownerID,
	})

	return &Output{
		ApplicationID:           app.ID,
		ApplicationNumber:       app.ApplicationNumber,
		Status:                  string(app.CurrentStatus),
		PredictedCompletionDays: app.PredictedCompletionDays,
		ExpectedCompletionDate:  app.ExpectedCompletionDate,
		Priority:                app.Priority,
		CreatedAt:               app.SubmissionDate,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
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

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmn := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
}
