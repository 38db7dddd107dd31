// Package config implements mnemo's layered configuration, following the
// teacher's internal/config precedence chain: hardcoded defaults, then a
// user-level XDG config, then a project-level .mnemo.yaml, then
// MNEMO_* environment overrides, then validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ComposerProfile holds one named token-budget profile (spec.md §4.9).
type ComposerProfile struct {
	GlobalLimit        int `yaml:"global_limit"`
	BriefingLimit      int `yaml:"briefing_limit"`
	EntitiesLimit      int `yaml:"entities_limit"`
	ChunksLimit        int `yaml:"chunks_limit"`
	RecentChangesLimit int `yaml:"recent_changes_limit"`
	FileMaxChunks      int `yaml:"file_max_chunks"`
	FileMaxTokens      int `yaml:"file_max_tokens"`
	ChunkHardCap       int `yaml:"chunk_hard_cap"`
	MinUniqueFiles     int `yaml:"min_unique_files"`
}

// ComposerConfig holds the three named profiles plus the price table
// used for the savings ledger's USD-saved estimate.
type ComposerConfig struct {
	Profiles        map[string]ComposerProfile `yaml:"profiles"`
	PricePerMillion map[string]float64         `yaml:"price_per_million"`
}

// RetrieverConfig holds weighting constants the Retriever applies
// verbatim, per spec.md §9 ("reproduced from the source verbatim").
type RetrieverConfig struct {
	TemporalBaseWeight    float64 `yaml:"temporal_base_weight"`    // 0.3
	TemporalRecencyWeight float64 `yaml:"temporal_recency_weight"` // 0.7
	PathBoostHigh         float64 `yaml:"path_boost_high"`         // +0.5
	PathBoostMedium       float64 `yaml:"path_boost_medium"`       // +0.2
	PathBoostArchive      float64 `yaml:"path_boost_archive"`      // -0.3
	RecencyBoost48h       float64 `yaml:"recency_boost_48h"`       // 1.0
	RecencyBoostWeek      float64 `yaml:"recency_boost_week"`      // 0.5
}

// PathsConfig holds path-safety and data-directory settings.
type PathsConfig struct {
	DataDir                string   `yaml:"data_dir"`
	AllowedRoots           []string `yaml:"allowed_roots"`
	FileLockTimeoutSeconds int      `yaml:"file_lock_timeout_seconds"`
}

// StemmerConfig holds the default language mode.
type StemmerConfig struct {
	DefaultMode string `yaml:"default_mode"` // "aggressive" | "conservative"
}

// SearchConfig holds the BM25 backend selection (teacher exposes both
// a SQLite-FTS5 backend and a Bleve-backed one; both are wired here).
type SearchConfig struct {
	BM25Backend string `yaml:"bm25_backend"` // "sqlite" | "bleve"
}

// AnalysisConfig toggles the proactive-analysis post-ingest plugin.
type AnalysisConfig struct {
	Enabled bool `yaml:"enabled"`
}

// WatcherConfig holds debounce and batch settings (spec.md §4.12).
type WatcherConfig struct {
	DebounceSeconds int `yaml:"debounce_seconds"`
	MaxBatchSize    int `yaml:"max_batch_size"`
}

// EmbeddingConfig selects the embedding backend. Provider "hash" (the
// default) needs no network access; "openai" calls a real or
// OpenAI-compatible embeddings endpoint and requires an API key, read
// from the environment variable named by APIKeyEnv, never from YAML.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // "hash" | "openai"
	Model      string `yaml:"model"`    // e.g. "text-embedding-3-small"
	BaseURL    string `yaml:"base_url"` // empty uses the default OpenAI API
	Dimensions int    `yaml:"dimensions"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

// Config is mnemo's top-level configuration.
type Config struct {
	Paths     PathsConfig     `yaml:"paths"`
	Stemmer   StemmerConfig   `yaml:"stemmer"`
	Search    SearchConfig    `yaml:"search"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Composer  ComposerConfig  `yaml:"composer"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LogLevel  string          `yaml:"log_level"`
}

// New returns mnemo's hardcoded defaults.
func New() *Config {
	return &Config{
		Paths: PathsConfig{
			DataDir:                ".mnemo",
			FileLockTimeoutSeconds: 5,
		},
		Stemmer:  StemmerConfig{DefaultMode: "aggressive"},
		Search:   SearchConfig{BM25Backend: "sqlite"},
		Analysis: AnalysisConfig{Enabled: true},
		Watcher:  WatcherConfig{DebounceSeconds: 5, MaxBatchSize: 20},
		Composer: ComposerConfig{
			Profiles: map[string]ComposerProfile{
				"default": {GlobalLimit: 4000, BriefingLimit: 300, EntitiesLimit: 800, ChunksLimit: 3200, RecentChangesLimit: 250, FileMaxChunks: 3, FileMaxTokens: 900, ChunkHardCap: 600, MinUniqueFiles: 4},
				"light":   {GlobalLimit: 2000, BriefingLimit: 200, EntitiesLimit: 400, ChunksLimit: 1400, RecentChangesLimit: 250, FileMaxChunks: 2, FileMaxTokens: 600, ChunkHardCap: 600, MinUniqueFiles: 4},
				"extra":   {GlobalLimit: 8000, BriefingLimit: 500, EntitiesLimit: 1500, ChunksLimit: 5000, RecentChangesLimit: 500, FileMaxChunks: 5, FileMaxTokens: 2000, ChunkHardCap: 600, MinUniqueFiles: 4},
			},
			PricePerMillion: map[string]float64{
				"default": 3.0,
				"gpt-4o":  2.5,
				"claude":  3.0,
			},
		},
		Retriever: RetrieverConfig{
			TemporalBaseWeight: 0.3, TemporalRecencyWeight: 0.7,
			PathBoostHigh: 0.5, PathBoostMedium: 0.2, PathBoostArchive: -0.3,
			RecencyBoost48h: 1.0, RecencyBoostWeek: 0.5,
		},
		Embedding: EmbeddingConfig{
			Provider:   "hash",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			APIKeyEnv:  "OPENAI_API_KEY",
		},
		LogLevel: "info",
	}
}

// UserConfigPath returns the XDG-aware path to the user-level config.
func UserConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "mnemo", "config.yaml")
}

// Load builds a Config by layering defaults, the user config, the
// project's .mnemo.yaml, and MNEMO_* environment overrides, then
// validates the result.
func Load(projectDir string) (*Config, error) {
	cfg := New()

	if data, err := os.ReadFile(UserConfigPath()); err == nil {
		if err := mergeYAML(cfg, data); err != nil {
			return nil, fmt.Errorf("user config: %w", err)
		}
	}

	projectPath := filepath.Join(projectDir, ".mnemo.yaml")
	if data, err := os.ReadFile(projectPath); err == nil {
		if err := mergeYAML(cfg, data); err != nil {
			return nil, fmt.Errorf("project config %s: %w", projectPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeYAML(cfg *Config, data []byte) error {
	var incoming Config
	if err := yaml.Unmarshal(data, &incoming); err != nil {
		return err
	}
	mergeNonZero(cfg, &incoming)
	return nil
}

// mergeNonZero copies fields set in incoming over cfg, field by field,
// leaving cfg's existing values where incoming is the zero value.
func mergeNonZero(cfg, incoming *Config) {
	if incoming.Paths.DataDir != "" {
		cfg.Paths.DataDir = incoming.Paths.DataDir
	}
	if len(incoming.Paths.AllowedRoots) > 0 {
		cfg.Paths.AllowedRoots = incoming.Paths.AllowedRoots
	}
	if incoming.Paths.FileLockTimeoutSeconds != 0 {
		cfg.Paths.FileLockTimeoutSeconds = incoming.Paths.FileLockTimeoutSeconds
	}
	if incoming.Stemmer.DefaultMode != "" {
		cfg.Stemmer.DefaultMode = incoming.Stemmer.DefaultMode
	}
	if incoming.Search.BM25Backend != "" {
		cfg.Search.BM25Backend = incoming.Search.BM25Backend
	}
	if incoming.Watcher.DebounceSeconds != 0 {
		cfg.Watcher.DebounceSeconds = incoming.Watcher.DebounceSeconds
	}
	if incoming.Watcher.MaxBatchSize != 0 {
		cfg.Watcher.MaxBatchSize = incoming.Watcher.MaxBatchSize
	}
	if incoming.Retriever.TemporalBaseWeight != 0 {
		cfg.Retriever.TemporalBaseWeight = incoming.Retriever.TemporalBaseWeight
	}
	if incoming.Retriever.TemporalRecencyWeight != 0 {
		cfg.Retriever.TemporalRecencyWeight = incoming.Retriever.TemporalRecencyWeight
	}
	if incoming.Retriever.PathBoostHigh != 0 {
		cfg.Retriever.PathBoostHigh = incoming.Retriever.PathBoostHigh
	}
	if incoming.Retriever.PathBoostMedium != 0 {
		cfg.Retriever.PathBoostMedium = incoming.Retriever.PathBoostMedium
	}
	if incoming.Retriever.PathBoostArchive != 0 {
		cfg.Retriever.PathBoostArchive = incoming.Retriever.PathBoostArchive
	}
	if incoming.Retriever.RecencyBoost48h != 0 {
		cfg.Retriever.RecencyBoost48h = incoming.Retriever.RecencyBoost48h
	}
	if incoming.Retriever.RecencyBoostWeek != 0 {
		cfg.Retriever.RecencyBoostWeek = incoming.Retriever.RecencyBoostWeek
	}
	for name, profile := range incoming.Composer.Profiles {
		if cfg.Composer.Profiles == nil {
			cfg.Composer.Profiles = map[string]ComposerProfile{}
		}
		cfg.Composer.Profiles[name] = profile
	}
	for model, price := range incoming.Composer.PricePerMillion {
		if cfg.Composer.PricePerMillion == nil {
			cfg.Composer.PricePerMillion = map[string]float64{}
		}
		cfg.Composer.PricePerMillion[model] = price
	}
	if incoming.Embedding.Provider != "" {
		cfg.Embedding.Provider = incoming.Embedding.Provider
	}
	if incoming.Embedding.Model != "" {
		cfg.Embedding.Model = incoming.Embedding.Model
	}
	if incoming.Embedding.BaseURL != "" {
		cfg.Embedding.BaseURL = incoming.Embedding.BaseURL
	}
	if incoming.Embedding.Dimensions != 0 {
		cfg.Embedding.Dimensions = incoming.Embedding.Dimensions
	}
	if incoming.Embedding.APIKeyEnv != "" {
		cfg.Embedding.APIKeyEnv = incoming.Embedding.APIKeyEnv
	}
	if incoming.LogLevel != "" {
		cfg.LogLevel = incoming.LogLevel
	}
}

// applyEnvOverrides applies MNEMO_* environment variables over cfg.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MNEMO_DATA_DIR"); v != "" {
		cfg.Paths.DataDir = v
	}
	if v := os.Getenv("MNEMO_ALLOWED_ROOTS"); v != "" {
		cfg.Paths.AllowedRoots = strings.Split(v, string(os.PathListSeparator))
	}
	if v := os.Getenv("MNEMO_STEMMER_MODE"); v != "" {
		cfg.Stemmer.DefaultMode = v
	}
	if v := os.Getenv("MNEMO_BM25_BACKEND"); v != "" {
		cfg.Search.BM25Backend = v
	}
	if v := os.Getenv("MNEMO_ANALYSIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Analysis.Enabled = b
		}
	}
	if v := os.Getenv("MNEMO_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MNEMO_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("MNEMO_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}

// Validate checks enum fields and the composer profile table.
func (c *Config) Validate() error {
	switch c.Stemmer.DefaultMode {
	case "aggressive", "conservative":
	default:
		return fmt.Errorf("stemmer.default_mode must be aggressive or conservative, got %q", c.Stemmer.DefaultMode)
	}
	switch c.Search.BM25Backend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("search.bm25_backend must be sqlite or bleve, got %q", c.Search.BM25Backend)
	}
	if _, ok := c.Composer.Profiles["default"]; !ok {
		return fmt.Errorf("composer.profiles must define a %q entry", "default")
	}
	switch c.Embedding.Provider {
	case "hash", "openai":
	default:
		return fmt.Errorf("embedding.provider must be hash or openai, got %q", c.Embedding.Provider)
	}
	return nil
}

// WriteYAML serializes cfg to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FindProjectRoot walks up from startDir looking for a .git directory
// or a .mnemo.yaml/.mnemo.yml file, returning the first directory that
// has one. Falls back to startDir's absolute form when neither is
// found by the filesystem root, mirroring the teacher's
// config.FindProjectRoot.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolve start dir: %w", err)
	}

	dir := absDir
	for {
		if dirExists(filepath.Join(dir, ".git")) {
			return dir, nil
		}
		if fileExists(filepath.Join(dir, ".mnemo.yaml")) || fileExists(filepath.Join(dir, ".mnemo.yml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return absDir, nil
		}
		dir = parent
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Profile returns the named composer profile, falling back to "default".
func (c *Config) Profile(name string) ComposerProfile {
	if p, ok := c.Composer.Profiles[name]; ok {
		return p
	}
	return c.Composer.Profiles["default"]
}

// PricePerMillion returns the USD-per-million-token rate for model,
// falling back to the "default" entry.
func (c *Config) PricePerMillion(model string) float64 {
	if p, ok := c.Composer.PricePerMillion[model]; ok {
		return p
	}
	return c.Composer.PricePerMillion["default"]
}
