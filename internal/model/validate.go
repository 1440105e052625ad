package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Default submission limits.
const (
	DefaultMaxBodyLength   = 140
	DefaultMaxAuthorLength = 100
)

// Limits bounds the size of a submission, in characters.
type Limits struct {
	MaxBody   int
	MaxAuthor int
}

// DefaultLimits returns the stock submission limits.
func DefaultLimits() Limits {
	return Limits{MaxBody: DefaultMaxBodyLength, MaxAuthor: DefaultMaxAuthorLength}
}

// Submission is a message as posted by a visitor.
type Submission struct {
	Author *string `json:"author"`
	Body   string  `json:"body"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Normalize trims the submission and maps an empty author to nil, then
// checks it against limits. It returns the normalized submission or a
// *ValidationError.
func (l Limits) Normalize(s Submission) (Submission, error) {
	out := Submission{Body: strings.TrimSpace(s.Body)}
	if s.Author != nil {
		if a := strings.TrimSpace(*s.Author); a != "" {
			out.Author = &a
		}
	}

	var ve ValidationError
	if fe := checkField("body", out.Body, fmt.Sprintf("required,max=%d", l.MaxBody)); fe != nil {
		ve.Errors = append(ve.Errors, *fe)
	}
	if out.Author != nil {
		if fe := checkField("author", *out.Author, fmt.Sprintf("max=%d", l.MaxAuthor)); fe != nil {
			ve.Errors = append(ve.Errors, *fe)
		}
	}
	if ve.HasErrors() {
		return Submission{}, &ve
	}
	return out, nil
}

func checkField(field, value, tag string) *FieldError {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &FieldError{Field: field, Message: err.Error()}
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return &FieldError{Field: field, Message: "is required"}
	case "max":
		return &FieldError{Field: field, Message: fmt.Sprintf("must be %s characters or fewer", fe.Param())}
	}
	return &FieldError{Field: field, Message: fmt.Sprintf("failed %q", fe.Tag())}
}
