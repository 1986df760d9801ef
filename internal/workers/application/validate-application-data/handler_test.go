package validateapplicationdata

import (
	"context"
	"testing"
	"time"

	"passport-tracker/internal/common/config"
	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/logger"
	"passport-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestHandler(t *testing.T) *Handler {
	h := NewHandler(&Config{Timeout: 5 * time.Second}, logger.NewTestLogger(t))
	h.now = func() time.Time { return time.Date(2024, 8, 14, 0, 0, 0, 0, time.UTC) }
	return h
}

func createValidApplicationData() models.SubmitRequest {
	return models.SubmitRequest{
		Category:    "renewal",
		FullName:    " Ravi  Kumar ",
		DateOfBirth: "1985-11-20",
		Gender:      "M",
		Email:       "Ravi.Kumar@Example.com",
		Phone:       "+91 98450 12345",
		Address:     "4 Residency Road",
		City:        "Bengaluru",
		State:       "Karnataka",
		Pincode:     "560025",
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	h := createTestHandler(t)

	output, err := h.Execute(context.Background(), &Input{ApplicationData: createValidApplicationData()})
	require.NoError(t, err)

	assert.True(t, output.IsValid)
	assert.Empty(t, output.ValidationErrors)
	assert.Equal(t, "Ravi Kumar", output.ValidatedData.FullName)
	assert.Equal(t, "ravi.kumar@example.com", output.ValidatedData.Email)
	assert.Equal(t, "M", output.ValidatedData.Gender)
	assert.Equal(t, models.CategoryRenewal, output.ValidatedData.Category)
}

func TestHandler_Execute_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.SubmitRequest)
		field  string
	}{
		{"unknown category", func(r *models.SubmitRequest) { r.Category = "tatkal" }, "category"},
		{"short pincode", func(r *models.SubmitRequest) { r.Pincode = "5600" }, "pincode"},
		{"future birth date", func(r *models.SubmitRequest) { r.DateOfBirth = "2025-01-01" }, "dateOfBirth"},
		{"missing phone", func(r *models.SubmitRequest) { r.Phone = "" }, "phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := createTestHandler(t)
			data := createValidApplicationData()
			tt.mutate(&data)

			output, err := h.Execute(context.Background(), &Input{ApplicationData: data})
			assert.Nil(t, output)
			require.ErrorIs(t, err, errors.ErrValidation)

			stdErr := errors.Normalize(err)
			assert.False(t, stdErr.Retryable)
			fields := make([]string, 0, len(stdErr.Fields))
			for _, f := range stdErr.Fields {
				fields = append(fields, f.Field)
			}
			assert.Contains(t, fields, tt.field)

			bpmn := errors.ConvertToBPMNError(stdErr)
			assert.Equal(t, "APPLICATION_VALIDATION_FAILED", bpmn.Code)
			assert.Zero(t, bpmn.Retries)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 10*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 2*time.Second, LoadConfig(config.WorkerConfig{Timeout: 2000}).Timeout)
}
