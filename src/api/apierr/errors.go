// Package apierr defines the error taxonomy shared by the registry, the task
// pipeline and the HTTP layer. Callers classify with errors.Is / errors.As.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks caller-correctable input problems.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized marks a request without an authenticated principal.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden marks an authenticated caller touching something it does not own.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound marks a missing record.
	ErrNotFound = errors.New("not found")

	// ErrUpstream marks a failed inference collaborator call.
	ErrUpstream = errors.New("upstream failure")

	// ErrInternal marks storage or unexpected failures.
	ErrInternal = errors.New("internal error")
)

// FieldError is one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every rejected field of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add records a field failure.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// OrNil returns e when at least one field failed.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid builds a single-field validation error.
func Invalid(field, format string, args ...any) error {
	v := &ValidationError{}
	v.Add(field, format, args...)
	return v
}

// Stage names an inference pipeline step.
type Stage string

const (
	StageParsing    Stage = "parsing"
	StagePlanning   Stage = "planning"
	StageClassify   Stage = "classification"
	StageEntities   Stage = "entity extraction"
	StageSuggestion Stage = "agent suggestion"
)

// UpstreamError reports a failed collaborator call. StatusCode is zero when no
// response was received.
type UpstreamError struct {
	Stage      Stage
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := string(e.Stage) + " failed"
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// PublicMessage is the caller-facing description of the failed stage.
func (e *UpstreamError) PublicMessage() string {
	switch e.Stage {
	case StageParsing:
		return "Failed to parse instruction"
	case StagePlanning:
		return "Failed to generate execution plan"
	default:
		return "Failed to complete " + string(e.Stage)
	}
}

// Internal wraps err as an internal failure, keeping it for logs.
func Internal(msg string, err error) error {
	return fmt.Errorf("%s: %w: %w", msg, ErrInternal, err)
}

// NotFound wraps ErrNotFound with a descriptive message.
func NotFound(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrNotFound)
}

// HTTPStatus maps err onto a response code.
func HTTPStatus(err error) int {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
