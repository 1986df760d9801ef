package workflow

import (
	"fmt"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"
)

// Event is a lifecycle event raised by a transition. Reason is only set
// for rejections.
type Event struct {
	Type   models.EventType
	Reason string
}

// Transition is the outcome of applying one action. Application and Stage
// are new values; the inputs are never modified.
type Transition struct {
	Application *models.Application
	Stage       *models.Stage
	Events      []Event
	History     *models.ProcessingHistory
}

// Command describes one officer action on one stage.
type Command struct {
	StageID   string
	Action    Action
	OfficerID string
	Remarks   string
	At        time.Time
}

// Apply decides cmd against the current application and its stages. The
// prediction is only consulted when Dispatch is approved, to fill the
// processing history row; it may be nil.
func Apply(app *models.Application, stages []*models.Stage, prediction *models.Prediction, cmd Command) (*Transition, error) {
	if !cmd.Action.Valid() {
		return nil, errors.NewValidationError([]errors.FieldError{{
			Field: "action", Code: "INVALID_VALUE", Message: fmt.Sprintf("unknown action %q", cmd.Action),
		}})
	}

	idx := -1
	for i, s := range stages {
		if s.ID == cmd.StageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, errors.NewNotFoundError("stage", cmd.StageID)
	}
	target := stages[idx]

	if app.CurrentStatus.IsTerminal() {
		return nil, errors.NewInvalidTransitionError(fmt.Sprintf(
			"application %s is %s and accepts no further actions", app.ApplicationNumber, app.CurrentStatus))
	}
	if target.Status != models.StagePending && target.Status != models.StageInProgress {
		return nil, errors.NewInvalidTransitionError(fmt.Sprintf(
			"cannot %s %s while it is %s", cmd.Action, target.Name, target.Status))
	}
	if cmd.Action == ActionStart && target.Status != models.StagePending {
		return nil, errors.NewInvalidTransitionError(fmt.Sprintf("%s is already in progress", target.Name))
	}
	if cmd.Action != ActionReject {
		for _, s := range stages {
			if s.Position < target.Position && s.Status != models.StageCompleted {
				return nil, errors.NewInvalidTransitionError(fmt.Sprintf(
					"%s requires %s to be completed first", target.Name, s.Name))
			}
		}
	}

	now := cmd.At
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stage := cloneStage(target)
	switch cmd.Action {
	case ActionStart:
		stage.Status = models.StageInProgress
		stage.AssignedOfficerID = cmd.OfficerID
		stage.StartTime = timeRef(now)
	case ActionApprove:
		stage.Status = models.StageCompleted
		if stage.AssignedOfficerID == "" {
			stage.AssignedOfficerID = cmd.OfficerID
		}
		if stage.StartTime == nil {
			stage.StartTime = timeRef(now)
		}
		stage.EndTime = timeRef(now)
	case ActionReject:
		stage.Status = models.StageRejected
		stage.AssignedOfficerID = cmd.OfficerID
		stage.EndTime = timeRef(now)
	}
	if cmd.Remarks != "" {
		stage.Remarks = cmd.Remarks
	}

	next := make([]*models.Stage, len(stages))
	copy(next, stages)
	next[idx] = stage

	updated := *app
	updated.CurrentStatus = DeriveStatus(next)
	updated.Version = app.Version + 1
	updated.UpdatedAt = now

	tr := &Transition{Application: &updated, Stage: stage}

	switch cmd.Action {
	case ActionStart:
		if stage.Name == models.StagePrinting {
			tr.Events = []Event{{Type: models.EventPrintingStarted}}
		}
	case ActionReject:
		reason := cmd.Remarks
		if reason == "" {
			reason = DefaultRejectionReason
		}
		updated.Remarks = reason
		tr.Events = []Event{{Type: models.EventApplicationRejected, Reason: reason}}
	case ActionApprove:
		tr.Events = approvalEvents[stage.Name]
		if stage.Name == models.StageDispatch {
			updated.ActualCompletionDate = timeRef(now)
			tr.History = historyFor(&updated, prediction, now)
		}
	}
	return tr, nil
}

var approvalEvents = map[models.StageName][]Event{
	models.StageDocumentVerification: {
		{Type: models.EventDocumentsVerified},
		{Type: models.EventPoliceVerificationStarted},
	},
	models.StagePoliceVerification: {
		{Type: models.EventPoliceVerificationCompleted},
		{Type: models.EventApplicationApproved},
	},
	models.StagePrinting: {
		{Type: models.EventPassportDispatched},
	},
	models.StageDispatch: {
		{Type: models.EventPassportDelivered},
	},
}

func historyFor(app *models.Application, prediction *models.Prediction, completed time.Time) *models.ProcessingHistory {
	h := &models.ProcessingHistory{
		ApplicationID:        app.ID,
		Category:             app.Category,
		City:                 app.City,
		State:                app.State,
		SubmissionMonth:      int(app.SubmissionDate.Month()),
		PredictedDays:        app.PredictedCompletionDays,
		ActualProcessingDays: app.ActualProcessingDays(),
		CompletionDate:       completed,
	}
	if prediction != nil {
		h.WorkloadAtSubmission = prediction.Workload
		h.PredictedDays = prediction.PredictedDays
	}
	return h
}
