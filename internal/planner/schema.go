package planner

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validation for non-empty trimmed strings
	_ = validate.RegisterValidation("nonempty", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s != ""
	})
}

// ValidationError provides structured error information for schema
// validation failures.
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   any    `json:"value,omitempty"`
	Message string `json:"message"`
}

// ValidationResult contains the result of schema validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ErrorSummary returns a single string summarizing all validation errors.
func (r ValidationResult) ErrorSummary() string {
	if r.Valid {
		return ""
	}
	var parts []string
	for _, e := range r.Errors {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "; ")
}

// ValidatePlanDraft checks the strict wire rules: at least one
// milestone, feature and task; non-empty titles. Role is intentionally
// not checked here — normalization defaults it to "execution".
func ValidatePlanDraft(p *PlanDraft) ValidationResult {
	return validateStruct(p)
}

// validateStruct is a helper that validates any struct and returns a
// ValidationResult.
func validateStruct(s any) ValidationResult {
	err := validate.Struct(s)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var errors []ValidationError
	for _, err := range err.(validator.ValidationErrors) {
		errors = append(errors, ValidationError{
			Field:   err.Field(),
			Tag:     err.Tag(),
			Value:   err.Value(),
			Message: formatValidationError(err),
		})
	}

	return ValidationResult{Valid: false, Errors: errors}
}

// formatValidationError creates a human-readable error message.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "nonempty":
		return fmt.Sprintf("%s cannot be empty or whitespace", err.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s items", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}
