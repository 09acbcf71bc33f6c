package ai

import (
	"context"
	"errors"
	"strings"

	"ragchat/internal/model"
)

// ChatMessage is one message in a conversation, as sent to a backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the uniform shape passed to any backend. The prompt is
// the fully assembled retrieval prompt; history and system prompt are optional.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	History      []ChatMessage
}

// Completer is the single contract every completion backend satisfies.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ProviderID identifies a completion backend. The set is closed; adding a
// provider means adding a constant and one Completer implementation.
type ProviderID string

const (
	ProviderLocal      ProviderID = "local"
	ProviderOpenRouter ProviderID = "openrouter"
)

// DefaultProvider is the fallback when a stored provider value is unknown.
const DefaultProvider = ProviderLocal

// ParseProviderID normalizes raw and reports whether it names a known
// provider. Unknown values map to DefaultProvider with ok=false.
func ParseProviderID(raw string) (ProviderID, bool) {
	switch ProviderID(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderLocal:
		return ProviderLocal, true
	case ProviderOpenRouter:
		return ProviderOpenRouter, true
	}
	return DefaultProvider, false
}

var (
	// ErrMissingAPIKey is a deployment mistake, not a per-request condition.
	// It surfaces to the caller instead of degrading into a textual result.
	ErrMissingAPIKey   = errors.New("openrouter api key is not set")
	ErrUnknownProvider = errors.New("unknown llm provider")
)

const defaultSystemPrompt = "You are a helpful assistant integrated in a retrieval-augmented application."

// UsageSink receives one record per backend call, success or failure.
// Implementations must never fail the caller.
type UsageSink interface {
	Record(rec model.UsageRecord)
}
