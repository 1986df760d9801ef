// Package workflow owns the ordered verification stages of an application
// and the rules for moving through them.
package workflow

import (
	"time"

	"passport-tracker/internal/models"

	"github.com/google/uuid"
)

// Action is what an officer does to a stage.
type Action string

const (
	ActionStart   Action = "start"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func (a Action) Valid() bool {
	return a == ActionStart || a == ActionApprove || a == ActionReject
}

// DefaultRejectionReason is sent to the applicant when an officer rejects
// without remarks.
const DefaultRejectionReason = "Please contact the passport office for details."

// StageOrder is the fixed sequence every application walks through.
var StageOrder = []models.StageName{
	models.StageDocumentVerification,
	models.StagePoliceVerification,
	models.StageFinalApproval,
	models.StagePrinting,
	models.StageDispatch,
}

// completedStatus is the application status reached once the stage is the
// furthest completed one.
var completedStatus = map[models.StageName]models.ApplicationStatus{
	models.StageDocumentVerification: models.StatusPoliceVerification,
	models.StagePoliceVerification:   models.StatusApproved,
	models.StageFinalApproval:        models.StatusPrinting,
	models.StagePrinting:             models.StatusDispatched,
	models.StageDispatch:             models.StatusDelivered,
}

// NewStages returns the five pending stages of a fresh application.
func NewStages(applicationID string) []*models.Stage {
	stages := make([]*models.Stage, len(StageOrder))
	for i, name := range StageOrder {
		stages[i] = &models.Stage{
			ID:            uuid.New().String(),
			ApplicationID: applicationID,
			Name:          name,
			Position:      i + 1,
			Status:        models.StagePending,
		}
	}
	return stages
}

// DeriveStatus computes the application status from its stages alone.
func DeriveStatus(stages []*models.Stage) models.ApplicationStatus {
	var furthest *models.Stage
	for _, s := range stages {
		switch s.Status {
		case models.StageRejected:
			return models.StatusRejected
		case models.StageCompleted:
			if furthest == nil || s.Position > furthest.Position {
				furthest = s
			}
		}
	}
	if furthest != nil {
		if status, ok := completedStatus[furthest.Name]; ok {
			return status
		}
	}
	for _, s := range stages {
		if s.Name == models.StageDocumentVerification && s.Status == models.StageInProgress {
			return models.StatusDocumentVerification
		}
	}
	return models.StatusSubmitted
}

func cloneStage(s *models.Stage) *models.Stage {
	c := *s
	if s.StartTime != nil {
		t := *s.StartTime
		c.StartTime = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}

func timeRef(t time.Time) *time.Time {
	return &t
}
