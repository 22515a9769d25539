package config

// ProviderConfig defines one generative backend endpoint.
// Providers are separate from the active selection -- several entries can
// exist while only one drives a run.
type ProviderConfig struct {
	Type        string  `json:"type"`                  // Backend type matching backend.Config.Provider: "openai", "gemini"
	BaseURL     string  `json:"base_url,omitempty"`    // Endpoint override for OpenAI-compatible hosts
	APIKeyEnv   string  `json:"api_key_env,omitempty"` // Environment variable holding the API key
	Model       string  `json:"model,omitempty"`       // Model override (e.g., "gpt-4o-mini")
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// BuildConfig controls the npm build step and the repair budget.
type BuildConfig struct {
	Install        []string `json:"install,omitempty"`         // Dependency install command, run before every build
	Command        []string `json:"command,omitempty"`         // Build command
	MaxAttempts    int      `json:"max_attempts,omitempty"`    // Build invocation budget for the repair loop
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"` // Whole-invocation timeout (install + build)
}

// PathsConfig locates on-disk state.
type PathsConfig struct {
	HistoryDB string `json:"history_db,omitempty"` // Run history database; empty means ~/.sitesmith/history.db
	BuildRoot string `json:"build_root,omitempty"` // Working directories for builds
}

// Config is the top-level configuration.
type Config struct {
	Provider  string                    `json:"provider"` // Key into Providers selecting the active backend
	Providers map[string]ProviderConfig `json:"providers"`
	Build     BuildConfig               `json:"build"`
	Paths     PathsConfig               `json:"paths"`
}
