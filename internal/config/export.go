package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// WriteTOML serializes cfg to path in TOML form, for `mnemo config export
// --format=toml` — an alternate machine-readable export alongside the
// canonical YAML project config. Keys are the YAML keys (log_level, ...).
func (c *Config) WriteTOML(path string) error {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(m)
}
