package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.sitesmith/config.json
// Project: .sitesmith/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	globalPath, err := GlobalPath()
	if err != nil {
		return nil, err
	}

	return Load(globalPath, ProjectPath())
}

// GlobalPath returns the conventional global config path.
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sitesmith", "config.json"), nil
}

// ProjectPath returns the conventional project config path.
func ProjectPath() string {
	return filepath.Join(".sitesmith", "config.json")
}

// ActiveProvider returns the provider entry selected by Provider.
func (c *Config) ActiveProvider() (ProviderConfig, error) {
	p, ok := c.Providers[c.Provider]
	if !ok {
		return ProviderConfig{}, fmt.Errorf("unknown provider %q", c.Provider)
	}
	return p, nil
}

// HistoryDBPath returns the configured history database path, or the
// conventional ~/.sitesmith/history.db when unset.
func (c *Config) HistoryDBPath() (string, error) {
	if c.Paths.HistoryDB != "" {
		return c.Paths.HistoryDB, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".sitesmith", "history.db"), nil
}

// mergeConfigFile reads a JSON config file and merges it into the base config.
// Missing files are silently skipped. Malformed JSON returns an error.
// Maps merge per key; scalars and sections override only when set.
func mergeConfigFile(base *Config, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	// Parse JSON
	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	// Active provider selection
	if loaded.Provider != "" {
		base.Provider = loaded.Provider
	}

	// Merge providers
	for key, provider := range loaded.Providers {
		base.Providers[key] = provider
	}

	// Build overrides
	if len(loaded.Build.Install) > 0 {
		base.Build.Install = loaded.Build.Install
	}
	if len(loaded.Build.Command) > 0 {
		base.Build.Command = loaded.Build.Command
	}
	if loaded.Build.MaxAttempts > 0 {
		base.Build.MaxAttempts = loaded.Build.MaxAttempts
	}
	if loaded.Build.TimeoutSeconds > 0 {
		base.Build.TimeoutSeconds = loaded.Build.TimeoutSeconds
	}

	// Path overrides
	if loaded.Paths.HistoryDB != "" {
		base.Paths.HistoryDB = loaded.Paths.HistoryDB
	}
	if loaded.Paths.BuildRoot != "" {
		base.Paths.BuildRoot = loaded.Paths.BuildRoot
	}

	return nil
}
