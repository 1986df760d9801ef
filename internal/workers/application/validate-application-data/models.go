package validateapplicationdata

import (
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/models"
)

type Input struct {
	ApplicationData models.SubmitRequest `json:"applicationData"`
}

type Output struct {
	IsValid          bool                  `json:"isValid"`
	ValidatedData    *models.SubmitRequest `json:"validatedData"`
	ValidationErrors []errors.FieldError   `json:"validationErrors"`
}
