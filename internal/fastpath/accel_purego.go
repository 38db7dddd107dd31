package fastpath

import (
	"log/slog"
	"os"
	"strings"

	"github.com/ebitengine/purego"
)

// PuregoAccelerator optionally delegates prefix-length comparison to a
// dynamically-loaded native library (libc's memcmp-family via purego),
// avoiding CGO while still honoring spec.md §4.6's "may transparently
// delegate to a native accelerator" contract note. If no shared library
// is found at construction, LongestCommonPrefixLen always returns -1 and
// the Index falls back to its pure-Go trie length — a purego load
// failure never disables FastPath, only its acceleration.
type PuregoAccelerator struct {
	handle  uintptr
	memcmp  func(a, b []byte, n uintptr) int32
	enabled bool
}

// NewPuregoAccelerator attempts to load libc and bind memcmp. Returns a
// disabled (but safe to use) accelerator on any failure.
func NewPuregoAccelerator() *PuregoAccelerator {
	libName := libcPath()
	if libName == "" {
		return &PuregoAccelerator{}
	}

	handle, err := purego.Dlopen(libName, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		slog.Debug("fastpath_accelerator_unavailable", slog.String("error", err.Error()))
		return &PuregoAccelerator{}
	}

	var memcmp func(a, b []byte, n uintptr) int32
	purego.RegisterLibFunc(&memcmp, handle, "memcmp")

	return &PuregoAccelerator{handle: handle, memcmp: memcmp, enabled: true}
}

// LongestCommonPrefixLen returns the number of leading bytes shared
// between query and doc, computed via a native memcmp probe over
// successively longer prefixes when the accelerator loaded, or -1 when
// it did not (signaling the caller to use its own pure-Go count).
func (a *PuregoAccelerator) LongestCommonPrefixLen(query, doc string) int {
	if !a.enabled || a.memcmp == nil {
		return -1
	}
	n := len(query)
	if len(doc) < n {
		n = len(doc)
	}
	if n == 0 {
		return 0
	}
	qb, db := []byte(query[:n]), []byte(doc[:n])
	// Binary-search the longest matching prefix length via memcmp,
	// rather than a byte-at-a-time Go loop, so the hot comparison
	// itself runs natively.
	lo, hi := 0, n
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if a.memcmp(qb[:mid], db[:mid], uintptr(mid)) == 0 {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func libcPath() string {
	candidates := []string{
		"libc.so.6",
		"/lib/x86_64-linux-gnu/libc.so.6",
		"/usr/lib/x86_64-linux-gnu/libc.so.6",
		"libSystem.B.dylib",
	}
	for _, c := range candidates {
		if strings.HasPrefix(c, "/") {
			if _, err := os.Stat(c); err == nil {
				return c
			}
			continue
		}
		return c // let dlopen's own search path resolve bare names
	}
	return ""
}
