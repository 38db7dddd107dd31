package apierrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDerivesCategoryFromCode(t *testing.T) {
	require.Equal(t, CategoryIO, New(CodeInvalidPath, "bad path", nil).Category)
	require.Equal(t, CategoryValidation, New(CodeInvalidRange, "bad range", nil).Category)
	require.Equal(t, CategoryRetrieval, New(CodeAmbiguousQuery, "ambiguous", nil).Category)
	require.Equal(t, CategoryJob, New(CodeJobNotFound, "missing", nil).Category)
}

func TestNewDerivesRetryableFromCode(t *testing.T) {
	require.True(t, New(CodeLockTimeout, "locked", nil).Retryable)
	require.True(t, New(CodeEmbeddingUnavailable, "down", nil).Retryable)
	require.False(t, New(CodeInvalidPath, "bad", nil).Retryable)
}

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := New(CodeFileNotFound, "missing on disk", nil)
	require.True(t, errors.Is(err, New(CodeFileNotFound, "different message", nil)))
	require.False(t, errors.Is(err, New(CodeInvalidPath, "missing on disk", nil)))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := fmt.Errorf("underlying disk error")
	err := New(CodeFileNotFound, "missing", cause)
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestWithDetailAndSuggestionChain(t *testing.T) {
	err := New(CodeInvalidPath, "bad path", nil).
		WithDetail("path", "/etc/passwd").
		WithSuggestion("use a path under an allowed root")

	require.Equal(t, "/etc/passwd", err.Details["path"])
	require.Equal(t, "use a path under an allowed root", err.Suggestion)
}

func TestWrapNilReturnsNil(t *testing.T) {
	require.Nil(t, Wrap(CodeInternal, nil))
}

func TestWrapPreservesMessageAndCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	wrapped := Wrap(CodeInternal, cause)
	require.NotNil(t, wrapped)
	require.Equal(t, "disk full", wrapped.Message)
	require.Equal(t, cause, wrapped.Cause)
}

func TestIsRetryableAndCodeHelpers(t *testing.T) {
	err := New(CodeLockTimeout, "locked", nil)
	require.True(t, IsRetryable(err))
	require.Equal(t, CodeLockTimeout, Code(err))

	plain := fmt.Errorf("plain error")
	require.False(t, IsRetryable(plain))
	require.Equal(t, "", Code(plain))
}

func TestErrorStringIncludesCode(t *testing.T) {
	err := New(CodeInvalidRange, "end before start", nil)
	require.Contains(t, err.Error(), CodeInvalidRange)
	require.Contains(t, err.Error(), "end before start")
}
