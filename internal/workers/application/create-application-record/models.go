package createapplicationrecord

import (
	"time"

	"passport-tracker/internal/models"
)

type Input struct {
	OwnerID         string               `json:"ownerId"`
	OwnerEmail      string               `json:"ownerEmail,omitempty"`
	ApplicationData models.SubmitRequest `json:"applicationData"`
}

type Output struct {
	ApplicationID           string    `json:"applicationId"`
	ApplicationNumber       string    `json:"applicationNumber"`
	Status                  string    `json:"status"`
	PredictedCompletionDays int       `json:"predictedCompletionDays"`
	ExpectedCompletionDate  time.Time `json:"expectedCompletionDate"`
	Priority                bool      `json:"priority"`
	CreatedAt               time.Time `json:"createdAt"`
}
