package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("track: %w", NewNotFoundError("application", "PSP2024123456"))

	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.False(t, stderrors.Is(err, ErrAccessDenied))
	assert.Equal(t, ErrCodeNotFound, CodeOf(err))
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("boom")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewConflictError("version moved")))
	assert.False(t, IsRetryable(NewAccessDeniedError("citizen", "stage:approve")))
	assert.False(t, IsRetryable(stderrors.New("plain")))
}

func TestNewValidationError_CollectsFields(t *testing.T) {
	err := NewValidationError([]FieldError{
		{Field: "email", Code: "INVALID_FORMAT", Message: "bad email"},
		{Field: "pincode", Code: "INVALID_FORMAT", Message: "bad pincode"},
	})

	assert.Equal(t, ErrCodeValidationFailed, err.Code)
	assert.Equal(t, "email, pincode", err.Details)
	assert.Len(t, err.Fields, 2)
	assert.False(t, err.Timestamp.IsZero())
}

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name        string
		err         *StandardError
		wantCode    string
		wantRetries int
	}{
		{"conflict is retried", NewConflictError("x"), "APPLICATION_CONFLICT", 2},
		{"database is retried", NewDatabaseError("insert", stderrors.New("x")), "DATABASE_ERROR", 3},
		{"access denied is thrown", NewAccessDeniedError("police", "stage:approve"), "ACCESS_DENIED", 0},
		{"unmapped code passes through", NewExternalServiceError("ses", stderrors.New("x")), "EXTERNAL_SERVICE_ERROR", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, tt.wantCode, bpmn.Code)
			assert.Equal(t, tt.wantRetries, bpmn.Retries)
			vars := bpmn.ToErrorVariables()
			assert.Equal(t, string(tt.err.Code), vars["originalErrorCode"])
		})
	}
}

func TestNormalize(t *testing.T) {
	std := NewNotFoundError("stage", "42")
	assert.Same(t, std, Normalize(fmt.Errorf("wrapped: %w", std)))

	timeout := Normalize(context.DeadlineExceeded)
	assert.Equal(t, ErrCodeTimeout, timeout.Code)
	assert.True(t, timeout.Retryable)

	internal := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, internal.Code)
	assert.Equal(t, "boom", internal.Details)
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "AUTH", GetErrorCategory(ErrCodeAccessDenied))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeConflict))
	assert.Equal(t, "WORKFLOW", GetErrorCategory(ErrCodeInvalidTransition))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeNotFound))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
