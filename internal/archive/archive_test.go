package archive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.jsonl")

	log, err := Open(path)
	require.NoError(t, err)

	require.NoError(t, log.Append(EventFileProcessed, map[string]any{"path": "a.md"}))
	require.NoError(t, log.Append(EventEntitySaved, map[string]any{"id": "e1"}))
	require.NoError(t, log.Append(EventDecisionRatified, map[string]any{"id": "d1"}))
	require.NoError(t, log.Close())

	var got []Event
	require.NoError(t, Replay(path, func(ev Event) error {
		got = append(got, ev)
		return nil
	}))

	require.Len(t, got, 3)
	require.Equal(t, EventFileProcessed, got[0].Type)
	require.Equal(t, "a.md", got[0].Payload["path"])
	require.Equal(t, EventEntitySaved, got[1].Type)
	require.Equal(t, EventDecisionRatified, got[2].Type)
}

func TestReplayMissingFileIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.jsonl")

	called := false
	err := Replay(path, func(Event) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.False(t, called)
}

func TestReplaySkipsCorruptLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.jsonl")

	log, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(EventFileProcessed, map[string]any{"path": "good.md"}))
	require.NoError(t, log.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	var count int
	require.NoError(t, Replay(path, func(Event) error {
		count++
		return nil
	}))
	require.Equal(t, 1, count)
}

func TestReplayPropagatesApplyError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "archive.jsonl")

	log, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(EventFileProcessed, map[string]any{"path": "a.md"}))
	require.NoError(t, log.Append(EventFileProcessed, map[string]any{"path": "b.md"}))
	require.NoError(t, log.Close())

	sentinel := errTest{"boom"}
	seen := 0
	err = Replay(path, func(Event) error {
		seen++
		return sentinel
	})
	require.Error(t, err)
	require.Equal(t, sentinel, err)
	require.Equal(t, 1, seen)
}

type errTest struct{ msg string }

func (e errTest) Error() string { return e.msg }
