package workflow

import (
	"context"
	stderrors "errors"
	"time"

	"passport-tracker/internal/access"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/common/metrics"
	"passport-tracker/internal/common/observability"
	"passport-tracker/internal/models"
	"passport-tracker/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Notifier receives lifecycle events after they are committed.
type Notifier interface {
	Notify(ctx context.Context, app *models.Application, event models.EventType, reason string)
}

// Indexer mirrors an application into the search index.
type Indexer interface {
	Index(ctx context.Context, app *models.Application)
}

// Result is what a committed stage action produced.
type Result struct {
	Application *models.Application `json:"application"`
	Stage       *models.Stage       `json:"stage"`
	Events      []models.EventType  `json:"events"`
}

var gateActions = map[Action]access.Action{
	ActionStart:   access.StageStart,
	ActionApprove: access.StageApprove,
	ActionReject:  access.StageReject,
}

// Engine applies officer actions to stages. Actions on one application are
// serialized in-process; the version check in the store catches writers in
// other processes.
type Engine struct {
	store    store.ApplicationStore
	gate     *access.Gate
	notifier Notifier
	indexer  Indexer
	obs      *observability.Observability
	logger   logger.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// NewEngine returns an Engine. notifier, indexer and obs may be nil.
func NewEngine(st store.ApplicationStore, gate *access.Gate, notifier Notifier, indexer Indexer, obs *observability.Observability, log logger.Logger) *Engine {
	return &Engine{
		store:    st,
		gate:     gate,
		notifier: notifier,
		indexer:  indexer,
		obs:      obs,
		logger:   log.WithFields(map[string]interface{}{"component": "workflow"}),
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) Start(ctx context.Context, p models.Principal, stageID, remarks string) (*Result, error) {
	return e.Act(ctx, p, stageID, ActionStart, remarks)
}

func (e *Engine) Approve(ctx context.Context, p models.Principal, stageID, remarks string) (*Result, error) {
	return e.Act(ctx, p, stageID, ActionApprove, remarks)
}

func (e *Engine) Reject(ctx context.Context, p models.Principal, stageID, reason string) (*Result, error) {
	return e.Act(ctx, p, stageID, ActionReject, reason)
}

// Act authorizes and applies one action. Nothing is written unless the
// whole transition commits; notifications and indexing follow the commit
// and never undo it.
func (e *Engine) Act(ctx context.Context, p models.Principal, stageID string, action Action, remarks string) (*Result, error) {
	gateAction, ok := gateActions[action]
	if !ok {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "action", Code: "INVALID_VALUE", Message: "action must be start, approve or reject",
		}})
	}

	ctx, span := e.obs.StartSpan(ctx, "workflow.stage_transition",
		attribute.String("stage.id", stageID),
		attribute.String("stage.action", string(action)),
		attribute.String("principal.role", string(p.Role)),
	)
	defer span.End()

	res, err := e.act(ctx, p, stageID, action, gateAction, remarks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		return nil, err
	}
	span.SetAttributes(
		attribute.String("application.number", res.Application.ApplicationNumber),
		attribute.String("application.status", string(res.Application.CurrentStatus)),
	)
	return res, nil
}

func (e *Engine) act(ctx context.Context, p models.Principal, stageID string, action Action, gateAction access.Action, remarks string) (*Result, error) {
	stage, err := e.store.GetStage(ctx, stageID)
	if err != nil {
		return nil, err
	}
	if err := e.gate.Authorize(p, gateAction, access.Resource{Stage: stage.Name}); err != nil {
		return nil, err
	}

	app, tr, err := e.commit(ctx, p, stage, action, remarks)
	if err != nil {
		return nil, err
	}

	metrics.StageTransitions.WithLabelValues(string(stage.Name), string(action), string(tr.Application.CurrentStatus)).Inc()
	e.logger.Info("stage transition applied", map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"stage":             stage.Name,
		"action":            action,
		"officerId":         p.UserID,
		"fromStatus":        app.CurrentStatus,
		"toStatus":          tr.Application.CurrentStatus,
	})

	// Side effects run outside the application lock so a slow channel never
	// holds up the next transition.
	events := make([]models.EventType, 0, len(tr.Events))
	for _, ev := range tr.Events {
		events = append(events, ev.Type)
		if e.notifier != nil {
			e.notifier.Notify(ctx, tr.Application, ev.Type, ev.Reason)
		}
	}
	if e.indexer != nil {
		e.indexer.Index(ctx, tr.Application)
	}

	return &Result{Application: tr.Application, Stage: tr.Stage, Events: events}, nil
}

// commit runs load, decide and persist under the application lock. It
// returns the application as loaded and the applied transition.
func (e *Engine) commit(ctx context.Context, p models.Principal, stage *models.Stage, action Action, remarks string) (*models.Application, *Transition, error) {
	unlock := e.locks.Lock(stage.ApplicationID)
	defer unlock()

	app, err := e.store.GetApplication(ctx, stage.ApplicationID)
	if err != nil {
		return nil, nil, err
	}
	stages, err := e.store.ListStages(ctx, app.ID)
	if err != nil {
		return nil, nil, err
	}

	var prediction *models.Prediction
	if action == ActionApprove && stage.Name == models.StageDispatch {
		prediction, err = e.store.GetPrediction(ctx, app.ID)
		if err != nil && !stderrors.Is(err, errors.ErrNotFound) {
			return nil, nil, err
		}
	}

	tr, err := Apply(app, stages, prediction, Command{
		StageID:   stage.ID,
		Action:    action,
		OfficerID: p.UserID,
		Remarks:   remarks,
		At:        e.now(),
	})
	if err != nil {
		return nil, nil, err
	}

	err = e.store.ApplyTransition(ctx, store.TransitionWrite{
		Application:     tr.Application,
		ExpectedVersion: app.Version,
		Stage:           tr.Stage,
		History:         tr.History,
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrConflict) {
			metrics.TransitionConflicts.Inc()
		}
		return nil, nil, err
	}
	return app, tr, nil
}
