package lifecycle

import (
	"strings"
	"time"

	"passport-tracker/internal/common/errors"
	"passport-tracker/internal/common/validation"
	"passport-tracker/internal/models"
)

const dateLayout = "2006-01-02"

// SubmissionSchema is the structural contract for a new application.
const SubmissionSchema = `{
  "type": "object",
  "required": ["category", "fullName", "dateOfBirth", "gender", "phone", "address", "city", "state", "pincode"],
  "properties": {
    "category":    {"type": "string", "enum": ["new", "renewal", "reissue"]},
    "fullName":    {"type": "string", "minLength": 2, "maxLength": 200},
    "dateOfBirth": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "gender":      {"type": "string", "enum": ["M", "F", "O"]},
    "email":       {"type": "string", "maxLength": 254},
    "phone":       {"type": "string", "minLength": 1, "maxLength": 20},
    "address":     {"type": "string", "minLength": 1, "maxLength": 500},
    "city":        {"type": "string", "minLength": 1, "maxLength": 100},
    "state":       {"type": "string", "minLength": 1, "maxLength": 100},
    "pincode":     {"type": "string", "minLength": 1, "maxLength": 10},
    "priority":    {"type": "boolean"}
  }
}`

// ValidSubmission is a normalized request together with its parsed date of
// birth.
type ValidSubmission struct {
	Request     models.SubmitRequest
	DateOfBirth time.Time
}

// ValidateSubmission normalizes req and checks it against SubmissionSchema
// and the field formats. Every problem is reported, not just the first.
func ValidateSubmission(req models.SubmitRequest, now time.Time) (*ValidSubmission, []errors.FieldError) {
	req.Category = models.Category(strings.ToLower(strings.TrimSpace(string(req.Category))))
	req.FullName = validation.SanitizeName(req.FullName)
	req.Gender = normalizeGender(req.Gender)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = validation.SanitizePhone(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	req.City = strings.TrimSpace(req.City)
	req.State = strings.TrimSpace(req.State)
	req.Pincode = strings.TrimSpace(req.Pincode)
	req.DateOfBirth = strings.TrimSpace(req.DateOfBirth)

	var fieldErrs []errors.FieldError
	result, err := validation.ValidateAgainstSchema(SubmissionSchema, req)
	if err != nil {
		return nil, []errors.FieldError{{Field: "(root)", Code: "SCHEMA_ERROR", Message: err.Error()}}
	}
	for _, e := range result.Errors {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: e.Field, Code: e.Code, Message: e.Message})
	}

	failed := func(field string) bool { return result.HasErrors(field) }
	add := func(field, message string) {
		fieldErrs = append(fieldErrs, errors.FieldError{Field: field, Code: "INVALID_FORMAT", Message: message})
	}

	if !failed("fullName") && !validation.ValidateName(req.FullName) {
		add("fullName", "name may contain only letters, spaces, dots, hyphens and apostrophes")
	}
	if req.Email != "" && !failed("email") && !validation.ValidateEmail(req.Email) {
		add("email", "invalid email address")
	}
	if !failed("phone") && !validation.ValidatePhone(req.Phone) {
		add("phone", "phone must have 10 to 14 digits")
	}
	if !failed("pincode") && !validation.ValidatePincode(req.Pincode) {
		add("pincode", "pincode must be 6 digits")
	}

	var dob time.Time
	if !failed("dateOfBirth") {
		dob, err = time.Parse(dateLayout, req.DateOfBirth)
		switch {
		case err != nil:
			add("dateOfBirth", "date of birth must be a valid YYYY-MM-DD date")
		case !dob.Before(now):
			add("dateOfBirth", "date of birth must be in the past")
		case dob.Before(now.AddDate(-120, 0, 0)):
			add("dateOfBirth", "date of birth is more than 120 years ago")
		}
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return &ValidSubmission{Request: req, DateOfBirth: dob}, nil
}

var genderCodes = map[string]string{
	"m": "M", "male": "M",
	"f": "F", "female": "F",
	"o": "O", "other": "O",
}

// normalizeGender maps the single-letter codes and the full words, in any
// case, to M, F or O.
func normalizeGender(g string) string {
	g = strings.TrimSpace(g)
	if code, ok := genderCodes[strings.ToLower(g)]; ok {
		return code
	}
	return g
}
