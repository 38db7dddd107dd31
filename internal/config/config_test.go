package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsValidate(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 4000, cfg.Composer.Profiles["default"].GlobalLimit)
	require.Equal(t, 2000, cfg.Composer.Profiles["light"].GlobalLimit)
	require.Equal(t, 8000, cfg.Composer.Profiles["extra"].GlobalLimit)
}

func TestValidateRejectsUnknownStemmerMode(t *testing.T) {
	cfg := New()
	cfg.Stemmer.DefaultMode = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownBM25Backend(t *testing.T) {
	cfg := New()
	cfg.Search.BM25Backend = "bogus"
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownEmbeddingProvider(t *testing.T) {
	cfg := New()
	cfg.Embedding.Provider = "bogus"
	require.Error(t, cfg.Validate())
}

func TestNewDefaultsToHashEmbeddingProvider(t *testing.T) {
	cfg := New()
	require.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestValidateRequiresDefaultProfile(t *testing.T) {
	cfg := New()
	delete(cfg.Composer.Profiles, "default")
	require.Error(t, cfg.Validate())
}

func TestProfileFallsBackToDefault(t *testing.T) {
	cfg := New()
	require.Equal(t, cfg.Composer.Profiles["default"], cfg.Profile("nonexistent"))
	require.Equal(t, cfg.Composer.Profiles["light"], cfg.Profile("light"))
}

func TestPricePerMillionFallsBackToDefault(t *testing.T) {
	cfg := New()
	require.Equal(t, cfg.Composer.PricePerMillion["default"], cfg.PricePerMillion("unknown-model"))
	require.Equal(t, 2.5, cfg.PricePerMillion("gpt-4o"))
}

func TestLoadLayersProjectConfigOverDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-such-xdg-config"))
	yaml := "stemmer:\n  default_mode: conservative\nwatcher:\n  debounce_seconds: 9\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mnemo.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "conservative", cfg.Stemmer.DefaultMode)
	require.Equal(t, 9, cfg.Watcher.DebounceSeconds)
	require.Equal(t, 20, cfg.Watcher.MaxBatchSize, "unset fields must keep their default")
}

func TestLoadLayersRetrieverWeightsOverDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-such-xdg-config"))
	yaml := "retriever:\n  path_boost_high: 0.9\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mnemo.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 0.9, cfg.Retriever.PathBoostHigh)
	require.Equal(t, 0.3, cfg.Retriever.TemporalBaseWeight, "unset retriever fields must keep their default")
}

func TestLoadAppliesEnvOverridesLast(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-such-xdg-config"))
	yaml := "stemmer:\n  default_mode: conservative\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mnemo.yaml"), []byte(yaml), 0o644))
	t.Setenv("MNEMO_STEMMER_MODE", "aggressive")

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "aggressive", cfg.Stemmer.DefaultMode, "env override must win over project config")
}

func TestLoadRejectsInvalidMergedConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "no-such-xdg-config"))
	yaml := "search:\n  bm25_backend: bogus\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".mnemo.yaml"), []byte(yaml), 0o644))

	_, err := Load(dir)
	require.Error(t, err)
}

func TestWriteYAMLRoundTrips(t *testing.T) {
	cfg := New()
	cfg.LogLevel = "debug"
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "log_level: debug")
}

func TestFindProjectRootStopsAtGitDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, err := FindProjectRoot(sub)
	require.NoError(t, err)
	require.Equal(t, root, found)
}

func TestWriteTOMLProducesReadableFile(t *testing.T) {
	cfg := New()
	path := filepath.Join(t.TempDir(), "out.toml")
	require.NoError(t, cfg.WriteTOML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "log_level")
}

func TestFindProjectRootStopsAtMnemoYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".mnemo.yaml"), []byte("log_level: info\n"), 0o644))
	sub := filepath.Join(root, "nested")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	found, err := FindProjectRoot(sub)
	require.NoError(t, err)
	require.Equal(t, root, found)
}
