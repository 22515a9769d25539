package config

import "path/filepath"

// DefaultConfig returns the default configuration with built-in providers
// and build settings.
func DefaultConfig() *Config {
	return &Config{
		Provider: "openai",
		Providers: map[string]ProviderConfig{
			"openai": {
				Type:      "openai",
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "gpt-4o-mini",
			},
			"gemini": {
				Type:      "gemini",
				APIKeyEnv: "GEMINI_API_KEY",
				Model:     "gemini-2.0-flash",
			},
		},
		Build: BuildConfig{
			Install:        []string{"npm", "install", "--no-audit", "--no-fund"},
			Command:        []string{"npm", "run", "build"},
			MaxAttempts:    3,
			TimeoutSeconds: 600,
		},
		Paths: PathsConfig{
			BuildRoot: filepath.Join(".sitesmith", "builds"),
		},
	}
}
