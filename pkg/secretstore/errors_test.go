package secretstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{name: "unauthenticated", err: status.Error(codes.Unauthenticated, "expired"), sentinel: ErrAuth},
		{name: "permission_denied", err: status.Error(codes.PermissionDenied, "nope"), sentinel: ErrAuth},
		{name: "not_found", err: status.Error(codes.NotFound, "gone"), sentinel: ErrNotFound},
		{name: "invalid_argument", err: status.Error(codes.InvalidArgument, "bad"), sentinel: ErrInvalidArgument},
		{name: "failed_precondition", err: status.Error(codes.FailedPrecondition, "state"), sentinel: ErrInvalidArgument},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), sentinel: ErrTransient},
		{name: "deadline_exceeded_status", err: status.Error(codes.DeadlineExceeded, "slow"), sentinel: ErrTransient},
		{name: "resource_exhausted", err: status.Error(codes.ResourceExhausted, "quota"), sentinel: ErrTransient},
		{name: "internal", err: status.Error(codes.Internal, "boom"), sentinel: ErrTransient},
		{name: "plain_network_error", err: errors.New("connection reset by peer"), sentinel: ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Classify("projects/p/secrets/s", tt.err)
			assert.ErrorIs(t, got, tt.sentinel)
			assert.ErrorIs(t, got, tt.err, "cause must stay reachable")
		})
	}
}

func TestClassifyPassThrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Classify("r", nil))
	assert.Equal(t, context.Canceled, Classify("r", context.Canceled))

	wrapped := fmt.Errorf("call: %w", context.DeadlineExceeded)
	assert.Equal(t, wrapped, Classify("r", wrapped))

	canceled := status.Error(codes.Canceled, "canceled")
	assert.Equal(t, canceled, Classify("r", canceled))

	already := NotFoundError{Resource: "r"}
	assert.Equal(t, error(already), Classify("other", already))
}

func TestTypedErrorsAs(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("rotate: %w", NotFoundError{Resource: "projects/p/secrets/s/versions/2"})
	var nf NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.Equal(t, "projects/p/secrets/s/versions/2", nf.Resource)
	assert.False(t, errors.Is(err, ErrAuth))

	assert.ErrorIs(t, MissingProjectIDError{Sources: []string{"env"}}, ErrMissingProjectID)
	assert.Contains(t, MissingProjectIDError{Sources: []string{"env"}}.Error(), "env")
	assert.Equal(t, "project id is required", MissingProjectIDError{}.Error())
}

func TestResultLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", ResultLabel(nil))
	assert.Equal(t, "canceled", ResultLabel(context.Canceled))
	assert.Equal(t, "auth", ResultLabel(AuthError{}))
	assert.Equal(t, "not_found", ResultLabel(NotFoundError{}))
	assert.Equal(t, "invalid_argument", ResultLabel(InvalidArgumentError{}))
	assert.Equal(t, "transient", ResultLabel(TransientError{}))
	assert.Equal(t, "error", ResultLabel(errors.New("x")))
}
