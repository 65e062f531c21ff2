package llm

import (
	"context"
	"fmt"
)

// Provider is the opaque text generation boundary. Everything the engine
// knows about a model is "send prompts, get text back, maybe fail".
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// ProviderError carries the upstream HTTP status so callers can distinguish
// rate limiting from everything else.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
}

// RateLimited reports whether err is a 429 from any provider. Only these
// are worth retrying.
func RateLimited(err error) bool {
	pe, ok := err.(*ProviderError)
	return ok && pe.Status == 429
}
