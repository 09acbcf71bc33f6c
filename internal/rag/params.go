package rag

import (
	"strings"

	"ragchat/internal/ai"
)

// QueryMode selects the retrieval strategy.
type QueryMode string

const (
	ModeLocal  QueryMode = "local"
	ModeGlobal QueryMode = "global"
	ModeHybrid QueryMode = "hybrid"
	ModeNaive  QueryMode = "naive"
	ModeMix    QueryMode = "mix"
)

// DefaultMode is the fallback for missing or unknown stored modes.
const DefaultMode = ModeNaive

// ParseQueryMode normalizes raw and reports whether it names a known mode.
// Unknown values map to DefaultMode with ok=false.
func ParseQueryMode(raw string) (QueryMode, bool) {
	switch QueryMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeLocal:
		return ModeLocal, true
	case ModeGlobal:
		return ModeGlobal, true
	case ModeHybrid:
		return ModeHybrid, true
	case ModeNaive:
		return ModeNaive, true
	case ModeMix:
		return ModeMix, true
	}
	return DefaultMode, false
}

const maxHistoryTurns = 3

// QueryParams is an immutable, fully-validated query parameter value.
// Optional fields are attached through the With methods; there is no
// after-the-fact mutation.
type QueryParams struct {
	mode         QueryMode
	userPrompt   string
	history      []ai.ChatMessage
	historyTurns int
}

func NewQueryParams(mode QueryMode) QueryParams {
	if _, ok := ParseQueryMode(string(mode)); !ok {
		mode = DefaultMode
	}
	return QueryParams{mode: mode}
}

// WithUserPrompt attaches an auxiliary instruction. Blank prompts are a no-op.
func (p QueryParams) WithUserPrompt(prompt string) QueryParams {
	p.userPrompt = strings.TrimSpace(prompt)
	return p
}

// WithHistory attaches prior conversation turns. The slice is copied; the
// turn count fed to the engine is bounded at maxHistoryTurns exchanges.
func (p QueryParams) WithHistory(history []ai.ChatMessage) QueryParams {
	if len(history) == 0 {
		return p
	}
	p.history = append([]ai.ChatMessage(nil), history...)
	p.historyTurns = len(history) / 2
	if p.historyTurns > maxHistoryTurns {
		p.historyTurns = maxHistoryTurns
	}
	return p
}

func (p QueryParams) Mode() QueryMode           { return p.mode }
func (p QueryParams) UserPrompt() string        { return p.userPrompt }
func (p QueryParams) History() []ai.ChatMessage { return p.history }
func (p QueryParams) HistoryTurns() int         { return p.historyTurns }
