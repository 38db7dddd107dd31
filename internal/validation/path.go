// Package validation implements the path-safety contract from spec.md
// §7: every externally-supplied path is rejected if empty, contains a
// NUL/CR/LF byte, normalizes to something outside the allowed roots, or
// contains a ".." segment after normalization.
package validation

import (
	"path/filepath"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/apierrors"
)

// Roots holds the set of directories a path must resolve under.
type Roots struct {
	allowed []string
}

// NewRoots builds a Roots validator from a list of absolute directories.
func NewRoots(dirs ...string) *Roots {
	r := &Roots{}
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			r.allowed = append(r.allowed, filepath.Clean(abs))
		}
	}
	return r
}

// SafePath validates path and returns its cleaned, absolute form.
func (r *Roots) SafePath(path string) (string, error) {
	if path == "" {
		return "", apierrors.New(apierrors.CodeInvalidPath, "path is empty", nil)
	}
	if strings.ContainsAny(path, "\x00\n\r") {
		return "", apierrors.New(apierrors.CodeInvalidPath, "path contains a control byte", nil)
	}

	clean := filepath.Clean(path)
	for _, seg := range strings.Split(clean, string(filepath.Separator)) {
		if seg == ".." {
			return "", apierrors.New(apierrors.CodeInvalidPath, "path escapes its root via ..", nil)
		}
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", apierrors.New(apierrors.CodeInvalidPath, "path could not be resolved", err)
	}

	if len(r.allowed) == 0 {
		return abs, nil
	}
	for _, root := range r.allowed {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", apierrors.New(apierrors.CodeInvalidPath, "path is outside allowed roots", nil).
		WithDetail("path", abs)
}

// SafeRange validates a (start, end) line range per the Exact-fetch API
// contract: start >= 1, end >= start, end-start <= 10000.
func SafeRange(start, end int) error {
	if start < 1 {
		return apierrors.New(apierrors.CodeInvalidRange, "start line must be >= 1", nil)
	}
	if end < start {
		return apierrors.New(apierrors.CodeInvalidRange, "end line must be >= start line", nil)
	}
	if end-start > 10000 {
		return apierrors.New(apierrors.CodeInvalidRange, "line range exceeds 10000 lines", nil)
	}
	return nil
}
