package backend

import "time"

// Request represents one prompt round-trip to the generative backend.
type Request struct {
	System string // system-level instructions, may be empty
	Prompt string // the prompt body
	Schema string // optional structured-output hint appended to the prompt
}

// Response represents the backend's reply.
type Response struct {
	Content string
	Model   string
	Usage   Usage
}

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Config defines the configuration for a backend.
type Config struct {
	Provider    string // "openai" (and OpenAI-compatible hosts) or "gemini"
	BaseURL     string // override for OpenAI-compatible providers
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}
