package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigDerivesLogPathFromDataDir(t *testing.T) {
	cfg := DefaultConfig("/tmp/mnemo-data")
	require.Equal(t, filepath.Join("/tmp/mnemo-data", "mnemo.log"), cfg.FilePath)
	require.Equal(t, "info", cfg.Level)
	require.True(t, cfg.WriteToStderr)
}

func TestSetupCreatesLogFileAndLoggerWrites(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Level: "debug", FilePath: filepath.Join(dir, "nested", "mnemo.log"), WriteToStderr: false}

	logger, closeFn, err := Setup(cfg)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hello from a test")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(cfg.FilePath)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello from a test")
}

func TestParseLevelMapsKnownNames(t *testing.T) {
	require.Equal(t, slog.LevelDebug, parseLevel("debug"))
	require.Equal(t, slog.LevelWarn, parseLevel("warn"))
	require.Equal(t, slog.LevelWarn, parseLevel("warning"))
	require.Equal(t, slog.LevelError, parseLevel("error"))
	require.Equal(t, slog.LevelInfo, parseLevel("unknown"))
}

func TestNotifyHandlerForwardsWarnAndAboveToSink(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Level: "debug", FilePath: filepath.Join(dir, "mnemo.log"), WriteToStderr: false}
	logger, closeFn, err := Setup(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { closeFn() })

	var notified []string
	sink := func(level, message string) { notified = append(notified, level+":"+message) }
	wrapped := slog.New(NewNotifyHandler(logger.Handler(), sink))

	wrapped.Info("just info, not notified")
	wrapped.Warn("disk almost full")
	wrapped.Error("job failed")

	require.Equal(t, []string{"WARN:disk almost full", "ERROR:job failed"}, notified)
}
