package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString_ContainsVersionAndCommit(t *testing.T) {
	// Given: the package's default build vars
	// When: formatting the version string
	s := String()

	// Then: it includes the version and commit
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
}

func TestGetInfo_MatchesRuntime(t *testing.T) {
	// Given/When: structured build info
	info := GetInfo()

	// Then: OS/Arch/GoVersion reflect the running binary
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}
