package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// UserError is a failure worth showing to the user together with a way out
type UserError struct {
	Message  string
	Solution string
	Err      error
}

func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Solution != "" {
		b.WriteString("\n\n💡 Solution: ")
		b.WriteString(e.Solution)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, "\n\nDetails: %v", e.Err)
	}
	return b.String()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new UserError
func NewUserError(message, solution string, err error) *UserError {
	return &UserError{Message: message, Solution: solution, Err: err}
}

// ExplainBackendError turns a network failure talking to serverURL into a UserError.
// Errors that already carry a solution, and non-network errors, are returned unchanged.
func ExplainBackendError(serverURL string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var ue *UserError
	if errors.As(err, &ue) {
		return err
	}
	var netErr net.Error
	if !errors.As(err, &netErr) {
		return err
	}
	if netErr.Timeout() {
		return NewUserError(
			fmt.Sprintf("The backend at %s did not answer in time", serverURL),
			"Check the backend logs or raise http_timeout in ~/.crewview.toml",
			err,
		)
	}
	return NewUserError(
		fmt.Sprintf("Cannot reach the backend at %s", serverURL),
		"Start the backend, or point crewview at it with --server or CREWVIEW_SERVER_URL",
		err,
	)
}

// ValidationError reports a bad value for a named field or argument
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
