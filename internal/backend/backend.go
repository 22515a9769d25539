// Package backend adapts generative text providers behind a single
// prompt-in, text-out interface. Adapters exist for OpenAI-compatible
// chat-completion hosts and for the Gemini generateContent API.
package backend

import (
	"context"
	"fmt"
)

// Backend defines the interface that all provider adapters must implement.
type Backend interface {
	// Complete sends one prompt to the provider and returns the raw text
	// reply. The context bounds the round-trip; a deadline expiry is
	// returned as the context's error.
	Complete(ctx context.Context, req Request) (Response, error)

	// Name identifies the provider for logs and run records.
	Name() string
}

// New creates a backend based on the provided configuration.
// This factory function switches on cfg.Provider and returns the
// appropriate adapter.
func New(cfg Config) (Backend, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIAdapter(cfg)
	case "gemini":
		return NewGeminiAdapter(cfg)
	default:
		return nil, fmt.Errorf("unknown backend provider: %s", cfg.Provider)
	}
}
