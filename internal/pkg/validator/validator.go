package validator

import (
	"errors"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("baseurl", validateBaseURL)
	validate.RegisterValidation("synctype", validateSyncType)
	validate.RegisterValidation("lifecycle", validateLifecycle)
}

func Get() *validator.Validate {
	return validate
}

func Validate(s interface{}) error {
	return validate.Struct(s)
}

func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}

// validateBaseURL accepts absolute http(s) URLs of a remote instance.
func validateBaseURL(fl validator.FieldLevel) bool {
	raw := strings.TrimSpace(fl.Field().String())
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func validateSyncType(fl validator.FieldLevel) bool {
	return models.IsValidSyncType(fl.Field().String())
}

func validateLifecycle(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case models.LifecycleActive, models.LifecycleDeprecated, models.LifecycleArchived, models.LifecycleDeletedFromN8N:
		return true
	}
	return false
}

// Error formatting
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func FormatErrors(err error) []ValidationError {
	var out []ValidationError

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			out = append(out, ValidationError{
				Field:   toSnakeCase(e.Field()),
				Message: formatMessage(e),
			})
		}
	}

	return out
}

func formatMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "baseurl":
		return "Must be an absolute http or https URL"
	case "synctype":
		return "Must be one of: executions, workflows, backups, full"
	case "lifecycle":
		return "Must be one of: active, deprecated, archived, deleted_from_n8n"
	case "uuid":
		return "Invalid UUID format"
	default:
		return "Invalid value"
	}
}

// toSnakeCase keeps acronyms together: BaseURL becomes base_url.
func toSnakeCase(str string) string {
	var result strings.Builder
	var prev rune
	for i, r := range str {
		if i > 0 && 'A' <= r && r <= 'Z' && 'a' <= prev && prev <= 'z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
		prev = r
	}
	return strings.ToLower(result.String())
}
