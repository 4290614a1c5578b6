package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/systmms/gcpkit/pkg/rotation"
	"github.com/systmms/gcpkit/pkg/secretstore"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
	Err        error
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

func (e ConfigError) Unwrap() error {
	return e.Err
}

// GCPError wraps a secretstore, drive or rotation failure for display,
// keeping the original error reachable through errors.Is and errors.As.
func GCPError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}

	user := UserError{
		Message:    fmt.Sprintf("%s failed", operation),
		Suggestion: GCPSuggestion(err),
		Err:        err,
	}
	user.Details = err.Error()
	return user
}

// GCPSuggestion returns a hint for the error's class.
func GCPSuggestion(err error) string {
	var rerr *rotation.RetirementError
	if errors.As(err, &rerr) {
		if rerr.Target != "" {
			return fmt.Sprintf("Version %s is live. Version %s is still enabled; destroy it with 'gcpkit secrets destroy %s %s --yes'",
				rerr.NewVersion, rerr.Target, rerr.Identity.SecretID(), rerr.Target)
		}
		return fmt.Sprintf("Version %s is live. Find the version it replaced with 'gcpkit secrets list %s --enabled' and destroy it",
			rerr.NewVersion, rerr.Identity.SecretID())
	}

	switch {
	case errors.Is(err, secretstore.ErrAuth):
		return "Check authentication: set GOOGLE_APPLICATION_CREDENTIALS or run 'gcloud auth application-default login', and check IAM permissions for secretmanager.versions.*"
	case errors.Is(err, secretstore.ErrMissingProjectID):
		return "Pass --project, set project_id in gcpkit.yaml, or export GOOGLE_CLOUD_PROJECT"
	case errors.Is(err, secretstore.ErrNotFound):
		return "Verify the secret name and project ID. Check that the secret or version exists"
	case errors.Is(err, secretstore.ErrInvalidArgument):
		return "Check the secret name format and version id"
	case errors.Is(err, secretstore.ErrTransient):
		return "The backend is unavailable or throttling. Consider enabling retry in gcpkit.yaml and try again"
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Raise timeout_ms or check your network connection"
	default:
		return ""
	}
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Already a user-friendly error
	var ue UserError
	if errors.As(err, &ue) {
		return err
	}
	var ce ConfigError
	if errors.As(err, &ce) {
		return err
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "yaml:") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
