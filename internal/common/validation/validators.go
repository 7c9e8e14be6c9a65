// path: internal/common/validation/validators.go
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError is returned by a single field-level check.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

var urlRegex = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)

// ValidateUUID checks that id is present and parses as a UUID.
func ValidateUUID(id string, fieldName string) error {
	if id == "" {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s is required", fieldName)}
	}
	if _, err := uuid.Parse(id); err != nil {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("invalid %s format", fieldName)}
	}
	return nil
}

// ValidateURL checks that a non-empty url is an http(s) URL of at most 2048
// characters; an empty url passes.
func ValidateURL(url string, fieldName string) error {
	if url == "" {
		return nil
	}
	if !urlRegex.MatchString(url) {
		return &ValidationError{Field: fieldName, Message: "invalid URL format"}
	}
	if len(url) > 2048 {
		return &ValidationError{Field: fieldName, Message: "URL too long (max 2048 characters)"}
	}
	return nil
}

// ValidateStringLength checks string length constraints in code points.
func ValidateStringLength(value string, fieldName string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s must be at least %d characters", fieldName, min)}
	}
	if max > 0 && length > max {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s must not exceed %d characters", fieldName, max)}
	}
	return nil
}

// ValidateRequired checks that value is not blank.
func ValidateRequired(value string, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s is required", fieldName)}
	}
	return nil
}

// ValidateFutureDate returns a field-level error when date is in the past,
// the same check Post.Schedule reports as ErrScheduleTimeInPast.
func ValidateFutureDate(date time.Time, fieldName string) error {
	if date.Before(time.Now().UTC()) {
		return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s must be in the future", fieldName)}
	}
	return nil
}

// ValidateEnum checks that value is one of allowed.
func ValidateEnum(value string, fieldName string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: fieldName, Message: fmt.Sprintf("%s must be one of: %s", fieldName, strings.Join(allowed, ", "))}
}

// Validator is a single check to be run by ValidateAll.
type Validator func() error

// ValidateAll runs every validator and collects all field errors together
// rather than stopping at the first failure.
func ValidateAll(validators ...Validator) error {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				errs = append(errs, *ve)
			} else if ves, ok := err.(ValidationErrors); ok {
				errs = append(errs, ves...)
			} else {
				errs = append(errs, ValidationError{Field: "unknown", Message: err.Error()})
			}
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
