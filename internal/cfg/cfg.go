// Package cfg holds CAS store settings, loaded with repository config
// taking precedence over a user-global config file. Adapted from the
// teacher's internal/config package: same global+repo JSON precedence
// and merge strategy, generalized from VCS identity/editor settings to
// CAS store settings (root directory, color output, prune policy).
package cfg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds every setting a CAS store consults.
type Config struct {
	Store CoreConfig  `json:"store"`
	Color ColorConfig `json:"color"`
}

// CoreConfig holds storage-layer settings.
type CoreConfig struct {
	// Root is the CAS store root directory. Empty means "use the
	// default of ./.cas relative to the working directory".
	Root string `json:"root,omitempty"`
	// PruneMinAgeSeconds is the minimum ref mtime age `ref clean`
	// requires before a ref becomes eligible for expiry.
	PruneMinAgeSeconds int64 `json:"prune_min_age_seconds"`
	// UseSizeIndex toggles the bbolt-backed size cache; disabled it
	// falls back to a full directory walk for every size query.
	UseSizeIndex bool `json:"use_size_index"`
}

// ColorConfig toggles ANSI color output in the CLI.
type ColorConfig struct {
	UI bool `json:"ui"`
}

// DefaultConfig returns a Config with the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: CoreConfig{
			Root:               "",
			PruneMinAgeSeconds: 0,
			UseSizeIndex:       true,
		},
		Color: ColorConfig{UI: true},
	}
}

// globalConfigPath returns the path to the user-global config file.
func globalConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cfg: home directory: %w", err)
	}
	return filepath.Join(home, ".casconfig"), nil
}

// repoConfigPath returns the path to the store-local config file.
func repoConfigPath(storeRoot string) string {
	return filepath.Join(storeRoot, "config")
}

// Load builds a Config by starting from the defaults, applying the
// user-global config if present, then applying the store-local config
// (storeRoot/config) if present. The store-local file always wins.
func Load(storeRoot string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath, err := globalConfigPath(); err == nil {
		if data, err := os.ReadFile(globalPath); err == nil {
			var globalCfg Config
			if err := json.Unmarshal(data, &globalCfg); err == nil {
				merge(cfg, &globalCfg)
			}
		}
	}

	if storeRoot != "" {
		if data, err := os.ReadFile(repoConfigPath(storeRoot)); err == nil {
			var repoCfg Config
			if err := json.Unmarshal(data, &repoCfg); err == nil {
				merge(cfg, &repoCfg)
			}
		}
	}

	return cfg, nil
}

// SaveGlobal writes cfg to the user-global config file.
func SaveGlobal(cfg *Config) error {
	path, err := globalConfigPath()
	if err != nil {
		return err
	}
	return writeJSON(path, cfg)
}

// SaveRepo writes cfg to storeRoot/config, creating storeRoot if
// necessary.
func SaveRepo(storeRoot string, cfg *Config) error {
	if err := os.MkdirAll(storeRoot, 0755); err != nil {
		return fmt.Errorf("cfg: create store root: %w", err)
	}
	return writeJSON(repoConfigPath(storeRoot), cfg)
}

func writeJSON(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cfg: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// merge overlays non-zero fields of src onto dst. Booleans and
// integers are always copied (there is no "unset" representation for
// them), matching the teacher's mergeConfig.
func merge(dst, src *Config) {
	if src.Store.Root != "" {
		dst.Store.Root = src.Store.Root
	}
	dst.Store.PruneMinAgeSeconds = src.Store.PruneMinAgeSeconds
	dst.Store.UseSizeIndex = src.Store.UseSizeIndex
	dst.Color.UI = src.Color.UI
}
