package app

import (
	"log"
	"strings"
	"time"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
)

const (
	DefaultTimeoutSeconds = 180
	MinTimeoutSeconds     = 5
	MaxTimeoutSeconds     = 600
)

// UserOptions is the resolved, fully-typed per-user configuration. Every
// field is guaranteed to be within its allowed domain.
type UserOptions struct {
	ChatHistoryEnabled bool
	TimeoutSeconds     int
	CustomPrompt       string
	QueryMode          rag.QueryMode
	LLMProvider        ai.ProviderID
}

func DefaultUserOptions() UserOptions {
	return UserOptions{
		ChatHistoryEnabled: true,
		TimeoutSeconds:     DefaultTimeoutSeconds,
		CustomPrompt:       "",
		QueryMode:          rag.DefaultMode,
		LLMProvider:        ai.DefaultProvider,
	}
}

// OptionsService resolves and stores per-user options. Resolution never
// fails: anything missing or out of range falls back to its default.
type OptionsService struct {
	repo *repository.OptionsRepository
}

func NewOptionsService(repo *repository.OptionsRepository) *OptionsService {
	return &OptionsService{repo: repo}
}

// Resolve loads the stored options for the username and validates each field
// independently. Missing username, missing row, storage errors, and invalid
// values all degrade to defaults; the result is always fully populated.
func (s *OptionsService) Resolve(username string) UserOptions {
	out := DefaultUserOptions()
	username = strings.TrimSpace(username)
	if username == "" || s == nil || s.repo == nil {
		return out
	}

	stored, err := s.repo.Find(username)
	if err != nil {
		log.Printf("load options for %q failed, using defaults: %v", username, err)
		return out
	}
	if stored == nil {
		return out
	}

	out.ChatHistoryEnabled = stored.ChatHistoryEnabled

	if t := stored.TimeoutSeconds; t != 0 {
		if t < MinTimeoutSeconds {
			t = MinTimeoutSeconds
		}
		if t > MaxTimeoutSeconds {
			t = MaxTimeoutSeconds
		}
		out.TimeoutSeconds = t
	}

	out.CustomPrompt = stored.CustomPrompt

	// Unknown enum values silently fall back to the hard defaults.
	out.QueryMode, _ = rag.ParseQueryMode(stored.QueryMode)
	out.LLMProvider, _ = ai.ParseProviderID(stored.LLMProvider)

	return out
}

// Save upserts the raw options row for the username. Values are stored as
// given; validation happens on the read path so a stale row can never make
// resolution fail.
func (s *OptionsService) Save(username string, opts model.UserOptions) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ErrInvalidInput
	}
	opts.Username = username
	opts.UpdatedAt = time.Now()
	return s.repo.Upsert(&opts)
}
