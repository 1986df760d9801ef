package sendnotification

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
	TaskType = "send-notification"
)

type ApplicationReader interface {
	GetApplicationByNumber(ctx context.Context, number string) (*models.Application, error)
}

// Sender renders and delivers one event. ok is false for an event without
// a template.
type Sender interface {
	Send(ctx context.Context, app *models.Application, event models.EventType, reason string) (*models.Notification, bool)
}

type Handler struct {
	config       *Config
	applications ApplicationReader
	sender       Sender
	logger       logger.Logger
	errHandler   *errors.ErrorHandler
}

func NewHandler(config *Config, applications ApplicationReader, sender Sender, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		applications: applications,
		sender:       sender,
		logger:       log,
		errHandler:   errors.NewErrorHandler(log),
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

// Execute delivers the event to the application's owner. Email and SMS
// failures are absorbed by the dispatcher; a failed inbox write is
// reported so the job is retried.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	number := strings.TrimSpace(input.ApplicationNumber)
	if number == "" {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "applicationNumber", Code: "REQUIRED", Message: "applicationNumber is required",
		}})
	}

	app, err := h.applications.GetApplicationByNumber(ctx, number)
	if err != nil {
		return nil, err
	}

	event := models.EventType(strings.ToLower(strings.TrimSpace(input.Event)))
	n, ok := h.sender.Send(ctx, app, event, input.Reason)
	if !ok {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "event", Code: "INVALID_VALUE", Message: fmt.Sprintf("no notification template for event %q", input.Event),
		}})
	}
	if n.Status == models.NotificationFailed {
		return nil, errors.NewNotificationSendFailedError(models.ChannelSystem,
			fmt.Errorf("inbox write failed for %s", number))
	}

	h.logger.Info("notification sent", map[string]interface{}{
		"notificationId":    n.ID,
		"applicationNumber": number,
		"event":             event,
	})

	return &Output{
		NotificationID: n.ID,
		Title:          n.Title,
		Status:         n.Status,
		SentAt:         n.CreatedAt,
	}, nil
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	bpmn := h.errHandler.HandleJobError(ctx, client, job, err)
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, bpmn.Code).Inc()
}
