package domain

import "context"

// Message is one turn of a chat prompt.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// GenerateOptions tunes a single generation call. A nil Format requests free
// text; a JSON schema map constrains the model to structured output.
type GenerateOptions struct {
	MaxTokens int
	Format    map[string]interface{}
}

// LLMClient defines the capability to send chat prompts to an LLM and receive
// textual responses.
type LLMClient interface {
	Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*LLMResponse, error)
	Version() string
}

// LLMResponse carries the LLM output and whether the generation finished.
type LLMResponse struct {
	Text string
	Done bool
}
