// Package llm provides the language-model client used for slot extraction
// and reply drafting, plus the strict-JSON extraction layer on top of it.
// Everything degrades gracefully: with no model configured the callers fall
// back to deterministic behavior.
package llm

import "context"

// Generator produces one completion for a system+user prompt pair.
type Generator interface {
	// Generate returns the model reply. ErrDisabled means no model is
	// configured; callers should fall back rather than fail.
	Generate(ctx context.Context, systemPrompt, userText string) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemPrompt, userText string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userText string) (string, error) {
	return f(ctx, systemPrompt, userText)
}
