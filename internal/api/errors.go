package api

import (
	"errors"

	"github.com/mnemo-dev/mnemo/internal/apierrors"
)

// APIError is what handlers return to an HTTP or stdio-RPC shell: a
// status code plus a structured body, mirroring the teacher's MCPError
// wrapping of internal errors (internal/mcp/errors.go), generalized
// from MCP's JSON-RPC codes to plain HTTP-style status codes per
// spec.md §7: "400 for client validation, 403 for unsafe paths, 404 for
// missing jobs/files, 500 only for truly unexpected exceptions."
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// MapError translates any error into an APIError. A nil input returns
// nil.
func MapError(err error) *APIError {
	if err == nil {
		return nil
	}

	var mErr *apierrors.MnemoError
	if errors.As(err, &mErr) {
		return &APIError{Status: statusForCode(mErr.Code), Code: mErr.Code, Message: mErr.Message}
	}
	return &APIError{Status: 500, Code: apierrors.CodeInternal, Message: err.Error()}
}

func statusForCode(code string) int {
	switch code {
	case apierrors.CodeInvalidRange, apierrors.CodeInvalidInput, apierrors.CodeAmbiguousQuery:
		return 400
	case apierrors.CodeInvalidPath, apierrors.CodePermissionDenied:
		return 403
	case apierrors.CodeFileNotFound, apierrors.CodeJobNotFound:
		return 404
	case apierrors.CodeLockTimeout:
		return 409
	case apierrors.CodeJobNotCancellable:
		return 409
	default:
		return 500
	}
}
