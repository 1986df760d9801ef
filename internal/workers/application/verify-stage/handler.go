package verifystage

import (
	"context"
	"encoding/json"
	"strings"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/models"
	"passport-tracker/internal/workflow"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "verify-stage"
)

// StageActor applies one officer action to a stage.
type StageActor interface {
	Act(ctx context.Context, p models.Principal, stageID string, action workflow.Action, remarks string) (*workflow.Result, error)
}

type Handler struct {
	config     *Config
	actor      StageActor
	logger     logger.Logger
	errHandler *errors.ErrorHandler
}

func NewHandler(config *Config, actor StageActor, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		actor:      actor,
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

// Execute runs the officer's action through the workflow engine, which
// authorizes it against the officer's role and scope.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var fieldErrs []errors.FieldError
	if strings.TrimSpace(input.StageID) == "" {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "stageId", Code: "REQUIRED", Message: "stageId is required"})
	}
	if strings.TrimSpace(input.OfficerID) == "" {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: "officerId", Code: "REQUIRED", Message: "officerId is required"})
	}
	if len(fieldErrs) > 0 {
		return nil, errors.NewValidationError(fieldErrs)
	}

	officer := models.Principal{
		UserID: strings.TrimSpace(input.OfficerID),
		Role:   models.Role(strings.ToLower(strings.TrimSpace(input.OfficerRole))),
	}
	action := workflow.Action(strings.ToLower(strings.TrimSpace(input.Action)))

	res, err := h.actor.Act(ctx, officer, strings.TrimSpace(input.StageID), action, input.Remarks)
	if err != nil {
		return nil, err
	}

	events := make([]string, 0, len(res.Events))
	for _, e := range res.Events {
		events = append(events, string(e))
	}
	return &Output{
		ApplicationNumber: res.Application.ApplicationNumber,
		ApplicationStatus: string(res.Application.CurrentStatus),
		StageName:         string(res.Stage.Name),
		StageStatus:       string(res.Stage.Status),
		Events:            events,
		Version:           res.Application.Version,
		Terminal:          res.Application.CurrentStatus.IsTerminal(),
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmn := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
}
