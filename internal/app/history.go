package app

import (
	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/repository"
)

// historyLimit caps how many prior messages are handed to the retrieval
// engine: the last three user/assistant exchanges.
const historyLimit = 6

// HistoryProvider assembles the bounded conversation context for a session.
type HistoryProvider struct {
	turns *repository.TurnRepository
}

func NewHistoryProvider(turns *repository.TurnRepository) *HistoryProvider {
	return &HistoryProvider{turns: turns}
}

// History returns the session's prior turns oldest-first, excluding the most
// recent turn (the one the current request is answering), truncated to the
// last historyLimit entries. A session with at most one turn yields nothing.
func (h *HistoryProvider) History(sessionToken string) ([]ai.ChatMessage, error) {
	turns, err := h.turns.ListBySessionToken(sessionToken)
	if err != nil {
		return nil, err
	}
	if len(turns) <= 1 {
		return nil, nil
	}

	prior := turns[:len(turns)-1]
	if len(prior) > historyLimit {
		prior = prior[len(prior)-historyLimit:]
	}

	messages := make([]ai.ChatMessage, 0, len(prior))
	for _, t := range prior {
		role := t.Role
		if role == "" {
			role = model.RoleUser
		}
		messages = append(messages, ai.ChatMessage{Role: role, Content: t.Content})
	}
	return messages, nil
}
