package store

import (
	"fmt"
	"time"

	"passport-tracker/internal/models"
)

var stageOrder = []models.StageName{
	models.StageDocumentVerification,
	models.StagePoliceVerification,
	models.StageFinalApproval,
	models.StagePrinting,
	models.StageDispatch,
}

func fixture(number, owner string, submitted time.Time) (*models.Application, []*models.Stage) {
	id := "app-" + number
	app := &models.Application{
		ID:                      id,
		ApplicationNumber:       number,
		OwnerID:                 owner,
		Category:                models.CategoryNew,
		FullName:                "Asha Rao",
		DateOfBirth:             time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC),
		Gender:                  "F",
		Email:                   "asha@example.com",
		Phone:                   "9876543210",
		Address:                 "12 MG Road",
		City:                    "Mumbai",
		State:                   "Maharashtra",
		Pincode:                 "400001",
		CurrentStatus:           models.StatusSubmitted,
		SubmissionDate:          submitted,
		PredictedCompletionDays: 30,
		ExpectedCompletionDate:  submitted.AddDate(0, 0, 30),
		Version:                 1,
		UpdatedAt:               submitted,
	}
	stages := make([]*models.Stage, len(stageOrder))
	for i, name := range stageOrder {
		stages[i] = &models.Stage{
			ID:            fmt.Sprintf("%s-s%d", id, i+1),
			ApplicationID: id,
			Name:          name,
			Position:      i + 1,
			Status:        models.StagePending,
		}
	}
	return app, stages
}
