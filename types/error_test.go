package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrAgentError, "agent failed").
		WithCause(root).
		WithRetryable(true).
		WithAgent("refactorer")

	assert.Equal(t, ErrAgentError, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, "refactorer", err.Agent)
	assert.Contains(t, err.Error(), "root")
}

func TestError_IsMatchesByCode(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("route: %w", NewTimeoutError("deadline exceeded"))

	assert.True(t, errors.Is(wrapped, NewError(ErrTimeout, "")))
	assert.False(t, errors.Is(wrapped, NewError(ErrNoAgentsFound, "")))
	assert.Equal(t, ErrTimeout, GetErrorCode(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrTimeout))
}

func TestGetErrorCode_PlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestMissingFieldsError(t *testing.T) {
	t.Parallel()

	var err error = &MissingFieldsError{Category: "dependency_upgrade", Fields: []string{"package", "target_version"}}

	assert.Contains(t, err.Error(), "package, target_version")
	assert.True(t, errors.Is(err, NewError(ErrMissingFields, "")))
	assert.Equal(t, ErrMissingFields, GetErrorCode(err))

	var mf *MissingFieldsError
	require.True(t, errors.As(err, &mf))
	assert.Equal(t, []string{"package", "target_version"}, mf.Fields)
}

func TestNewNotFoundError(t *testing.T) {
	t.Parallel()

	err := NewNotFoundError("ghost")
	assert.Equal(t, ErrNotFound, err.Code)
	assert.False(t, err.Retryable)
	assert.Contains(t, err.Error(), "ghost")
}
