package estimateprocessingtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/estimation"
	"passport-tracker/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "estimate-processing-time"
)

// WorkloadSource reports the number of applications still in the early
// stages.
type WorkloadSource interface {
	Workload(ctx context.Context) int
}

type Handler struct {
	config     *Config
	estimator  *estimation.Service
	workload   WorkloadSource
	logger     logger.Logger
	errHandler *errors.ErrorHandler
	now        func() time.Time
}

// NewHandler builds the handler. workload may be nil, in which case the
// default workload is assumed.
func NewHandler(config *Config, estimator *estimation.Service, workload WorkloadSource, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     config,
		estimator:  estimator,
		workload:   workload,
		logger:     log,
		errHandler: errors.NewErrorHandler(log),
		now:        time.Now,
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
		bpmn := h.errHandler.HandleJobError(ctx, client, job, errors.NewValidationError([]errors.FieldError{{
			Field: "(variables)", Code: "PARSE_ERROR", Message: err.Error(),
		}}))
		metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
		return
	}

	output := h.Execute(ctx, &input)

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

// Execute never fails: unknown inputs and a missing model land on the
// fallback table.
func (h *Handler) Execute(ctx context.Context, input *Input) *Output {
	workload := estimation.DefaultWorkload
	switch {
	case input.Workload != nil && *input.Workload >= 0:
		workload = *input.Workload
	case h.workload != nil:
		workload = h.workload.Workload(ctx)
	}

	month := input.Month
	if month < 1 || month > 12 {
		month = int(h.now().Month())
	}

	est := h.estimator.Estimate(ctx, estimation.Request{
		Category: models.Category(strings.ToLower(strings.TrimSpace(input.Category))),
		City:     strings.TrimSpace(input.City),
		State:    strings.TrimSpace(input.State),
		Month:    month,
		Workload: workload,
	})

	h.logger.Info("processing time estimated", map[string]interface{}{
		"category":      input.Category,
		"predictedDays": est.Days,
		"modelVersion":  est.ModelVersion,
		"fallback":      est.Fallback,
	})

	return &Output{
		PredictedDays: est.Days,
		Confidence:    est.Confidence,
		ModelVersion:  est.ModelVersion,
		Fallback:      est.Fallback,
		Workload:      workload,
	}
}
