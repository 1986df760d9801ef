package lifecycle

import (
	"testing"

	"passport-tracker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSubmission_Normalizes(t *testing.T) {
	req := validRequest()
	req.Category = " RENEWAL "
	req.Email = " Asha@Example.COM "
	req.Gender = "F"

	valid, errs := ValidateSubmission(req, fixedNow)
	require.Empty(t, errs)
	assert.Equal(t, models.CategoryRenewal, valid.Request.Category)
	assert.Equal(t, "asha@example.com", valid.Request.Email)
	assert.Equal(t, "F", valid.Request.Gender)
	assert.Equal(t, 1990, valid.DateOfBirth.Year())
}

func TestValidateSubmission_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.SubmitRequest)
		field  string
	}{
		{"missing name", func(r *models.SubmitRequest) { r.FullName = "" }, "fullName"},
		{"digits in name", func(r *models.SubmitRequest) { r.FullName = "R2D2 Unit" }, "fullName"},
		{"unknown gender", func(r *models.SubmitRequest) { r.Gender = "x" }, "gender"},
		{"bad email", func(r *models.SubmitRequest) { r.Email = "not-an-email" }, "email"},
		{"short phone", func(r *models.SubmitRequest) { r.Phone = "12345" }, "phone"},
		{"bad pincode", func(r *models.SubmitRequest) { r.Pincode = "ABC123" }, "pincode"},
		{"malformed date", func(r *models.SubmitRequest) { r.DateOfBirth = "02/04/1990" }, "dateOfBirth"},
		{"impossible date", func(r *models.SubmitRequest) { r.DateOfBirth = "1990-02-30" }, "dateOfBirth"},
		{"future date", func(r *models.SubmitRequest) { r.DateOfBirth = "2030-01-01" }, "dateOfBirth"},
		{"ancient date", func(r *models.SubmitRequest) { r.DateOfBirth = "1850-01-01" }, "dateOfBirth"},
		{"missing city", func(r *models.SubmitRequest) { r.City = "  " }, "city"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			valid, errs := ValidateSubmission(req, fixedNow)
			assert.Nil(t, valid)
			fields := make([]string, 0, len(errs))
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}
