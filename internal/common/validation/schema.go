package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var (
	emailPattern   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phonePattern   = regexp.MustCompile(`^\+?[0-9]{10,14}$`)
	pincodePattern = regexp.MustCompile(`^[0-9]{6}$`)
	namePattern    = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\s.\-']{1,99}$`)
	whitespace     = regexp.MustCompile(`\s+`)
	phoneNoise     = regexp.MustCompile(`[^\d+]`)
)

// ValidateAgainstSchema validates document against a JSON schema. Both
// arguments may be Go values (maps, structs) or a JSON string.
func ValidateAgainstSchema(schema interface{}, document interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(loaderFor(schema), loaderFor(document))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldOf(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

func loaderFor(v interface{}) gojsonschema.JSONLoader {
	if s, ok := v.(string); ok {
		return gojsonschema.NewStringLoader(s)
	}
	return gojsonschema.NewGoLoader(v)
}

// fieldOf reports the offending property. Missing required properties are
// reported against their parent, so the property name is taken from the
// error details instead.
func fieldOf(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == "(root)" {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// ValidatePhone accepts 10 to 14 digits with an optional leading +.
func ValidatePhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidatePincode accepts exactly six digits.
func ValidatePincode(pincode string) bool {
	return pincodePattern.MatchString(pincode)
}

// ValidateName accepts 2-100 characters of letters, spaces, dots, hyphens
// and apostrophes, starting with a letter.
func ValidateName(name string) bool {
	return namePattern.MatchString(name)
}

// SanitizeName trims and collapses internal whitespace.
func SanitizeName(name string) string {
	return whitespace.ReplaceAllString(strings.TrimSpace(name), " ")
}

// SanitizePhone strips everything except digits and a leading +.
func SanitizePhone(phone string) string {
	phone = phoneNoise.ReplaceAllString(strings.TrimSpace(phone), "")
	if i := strings.LastIndex(phone, "+"); i > 0 {
		phone = strings.ReplaceAll(phone, "+", "")
	}
	return phone
}
