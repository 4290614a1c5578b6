package secretstore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrAuth             = errors.New("authentication failed")
	ErrNotFound         = errors.New("not found")
	ErrTransient        = errors.New("transient backend failure")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrMissingProjectID = errors.New("missing project id")
)

// AuthError indicates that credentials are invalid, expired, or lack
// permission for the requested resource. It is never retried.
type AuthError struct {
	Resource string
	Err      error
}

func (e AuthError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed for %s: %v", e.Resource, e.Err)
}

func (e AuthError) Unwrap() error        { return e.Err }
func (e AuthError) Is(target error) bool { return target == ErrAuth }

// NotFoundError indicates that the secret or version does not exist, or that
// a version being destroyed is already gone.
type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

func (e NotFoundError) Unwrap() error        { return e.Err }
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransientError covers network, timeout, throttling and 5xx-class failures.
type TransientError struct {
	Resource string
	Err      error
}

func (e TransientError) Error() string {
	return fmt.Sprintf("transient failure on %s: %v", e.Resource, e.Err)
}

func (e TransientError) Unwrap() error        { return e.Err }
func (e TransientError) Is(target error) bool { return target == ErrTransient }

// InvalidArgumentError reports a malformed payload, identity or version
// identifier, whether rejected locally or by the backend.
type InvalidArgumentError struct {
	Field   string
	Value   string
	Message string
	Err     error
}

func (e InvalidArgumentError) Error() string {
	msg := "invalid argument"
	if e.Field != "" {
		msg += fmt.Sprintf(" %s", e.Field)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" %q", e.Value)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e InvalidArgumentError) Unwrap() error        { return e.Err }
func (e InvalidArgumentError) Is(target error) bool { return target == ErrInvalidArgument }

// MissingProjectIDError is returned when no project id was supplied and none
// could be discovered from the environment or the metadata server.
type MissingProjectIDError struct {
	Sources []string
}

func (e MissingProjectIDError) Error() string {
	if len(e.Sources) == 0 {
		return "project id is required"
	}
	return fmt.Sprintf("project id is required (looked in: %v)", e.Sources)
}

func (e MissingProjectIDError) Is(target error) bool { return target == ErrMissingProjectID }

// Classify converts a Secret Manager RPC error into the package taxonomy.
// Context cancellation and errors that are already classified pass through
// unchanged.
func Classify(resource string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isClassified(err) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		return TransientError{Resource: resource, Err: err}
	}

	switch st.Code() {
	case codes.Canceled:
		return err
	case codes.Unauthenticated, codes.PermissionDenied:
		return AuthError{Resource: resource, Err: err}
	case codes.NotFound:
		return NotFoundError{Resource: resource, Err: err}
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		return InvalidArgumentError{Field: "request", Value: resource, Message: st.Message(), Err: err}
	default:
		// Unavailable, DeadlineExceeded, ResourceExhausted, Internal, Aborted,
		// Unknown and anything new.
		return TransientError{Resource: resource, Err: err}
	}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrTransient) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrMissingProjectID)
}
