package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/model"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrTurnEnqueue     = errors.New("turn enqueue failed")
)

// AsyncTurnPublisher hands turns to the async persistence path.
type AsyncTurnPublisher interface {
	Publish(ctx context.Context, turn model.Turn) error
}

// HistoryCache fronts turn reads for the HTTP history endpoint.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionToken string) ([]model.Turn, bool, error)
	SetHistory(ctx context.Context, sessionToken string, turns []model.Turn) error
	DeleteHistory(ctx context.Context, sessionToken string) error
	MarkDirty(ctx context.Context, sessionToken string) error
	IsDirty(ctx context.Context, sessionToken string) (bool, error)
}

// ChatService brokers a chat request end to end: session bookkeeping, option
// resolution, history assembly, engine acquisition, and the bounded query.
type ChatService struct {
	sessions     *repository.SessionRepository
	turns        *repository.TurnRepository
	publisher    AsyncTurnPublisher
	historyCache HistoryCache
	options      *OptionsService
	history      *HistoryProvider
	engines      *rag.Manager
}

func NewChatService(
	sessions *repository.SessionRepository,
	turns *repository.TurnRepository,
	publisher AsyncTurnPublisher,
	historyCache HistoryCache,
	options *OptionsService,
	history *HistoryProvider,
	engines *rag.Manager,
) *ChatService {
	return &ChatService{
		sessions:     sessions,
		turns:        turns,
		publisher:    publisher,
		historyCache: historyCache,
		options:      options,
		history:      history,
		engines:      engines,
	}
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.Session{
		Token:  uuid.NewString(),
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.sessions.AddSessionToUser(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessions.ListByUserID(userID)
}

func (s *ChatService) DeleteSession(userID uint, sessionToken string) error {
	if userID == 0 || sessionToken == "" {
		return ErrInvalidInput
	}
	session, err := s.sessions.GetByTokenAndUserID(sessionToken, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.turns.DeleteBySessionToken(sessionToken); err != nil {
		return err
	}
	if err := s.sessions.DeleteByTokenAndUserID(sessionToken, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), sessionToken)
	}
	return nil
}

type SendTurnInput struct {
	UserID       uint
	SessionToken string
	Content      string
}

type SendTurnResult struct {
	Turns  []model.Turn `json:"turns"`
	Answer string       `json:"answer"`
}

// SendTurn appends the user's turn, generates the assistant's answer, and
// appends that too. The user turn is written synchronously: history assembly
// during generation drops the store's most recent turn as the in-flight one,
// which is only true once that turn is actually in the store. The assistant
// turn rides the async publisher; a concurrent history read may not yet
// observe it.
func (s *ChatService) SendTurn(ctx context.Context, input SendTurnInput) (*SendTurnResult, error) {
	if input.UserID == 0 || input.SessionToken == "" {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.sessions.GetByTokenAndUserID(input.SessionToken, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.publisher == nil {
		return nil, ErrTurnEnqueue
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.SessionToken)
		_ = s.historyCache.DeleteHistory(ctx, input.SessionToken)
	}

	userTurn := model.Turn{
		SessionToken: input.SessionToken,
		UserID:       input.UserID,
		Role:         model.RoleUser,
		Content:      content,
		CreatedAt:    time.Now(),
	}
	if err := s.turns.Create(&userTurn); err != nil {
		return nil, err
	}

	answer, err := s.Generate(ctx, content, input.SessionToken)
	if err != nil {
		return nil, err
	}

	assistantTurn := model.Turn{
		SessionToken: input.SessionToken,
		UserID:       input.UserID,
		Role:         model.RoleAssistant,
		Content:      answer,
		CreatedAt:    time.Now(),
	}
	if err := s.publisher.Publish(ctx, assistantTurn); err != nil {
		return nil, ErrTurnEnqueue
	}

	return &SendTurnResult{
		Turns:  []model.Turn{userTurn, assistantTurn},
		Answer: answer,
	}, nil
}

// Generate produces the assistant's answer for one user input. Every
// generation failure (timeout, retrieval error, backend error) resolves to a
// textual result; the only error this returns is a configuration error from
// engine initialization, which indicates a deployment mistake.
func (s *ChatService) Generate(ctx context.Context, userInput, sessionToken string) (string, error) {
	username, err := s.sessions.FindUsernameByToken(sessionToken)
	if err != nil {
		// best-effort reverse lookup; defaults apply
		log.Printf("resolve session owner failed: %v", err)
		username = ""
	}

	opts := s.options.Resolve(username)

	eng, err := s.engines.Engine(opts.LLMProvider)
	if err != nil {
		return "", err
	}

	params := rag.NewQueryParams(opts.QueryMode).WithUserPrompt(opts.CustomPrompt)

	if opts.ChatHistoryEnabled {
		history, err := s.history.History(sessionToken)
		if err != nil {
			log.Printf("load chat history failed: %v", err)
		}
		if len(history) > 0 {
			params = params.WithHistory(history)
		}
	}

	return s.engines.Query(ctx, eng, userInput, params, opts.TimeoutSeconds), nil
}

// GetHistory returns the session's turns oldest-first, via the cache when it
// is clean.
func (s *ChatService) GetHistory(ctx context.Context, userID uint, sessionToken string, limit int) ([]model.Turn, error) {
	if userID == 0 || sessionToken == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.sessions.GetByTokenAndUserID(sessionToken, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionToken)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionToken); cacheErr == nil && hit {
				return trimTurns(cached, limit), nil
			}
		}
	}

	turns, err := s.turns.ListBySessionToken(sessionToken)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionToken); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionToken, turns)
		}
	}
	return trimTurns(turns, limit), nil
}

func trimTurns(turns []model.Turn, limit int) []model.Turn {
	if limit <= 0 || limit >= len(turns) {
		return turns
	}
	return turns[len(turns)-limit:]
}
