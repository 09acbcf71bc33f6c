package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
)

type capturingCompleter struct {
	lastReq ai.CompletionRequest
	answer  string
}

func (c *capturingCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	_ = ctx
	c.lastReq = req
	return c.answer, nil
}

// memoryPublisher only records what was enqueued. Like the real broker, it
// does not write to the store during the request, so nothing published is
// visible to a same-request history read.
type memoryPublisher struct {
	published []model.Turn
	fail      bool
}

func (p *memoryPublisher) Publish(ctx context.Context, turn model.Turn) error {
	_ = ctx
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.published = append(p.published, turn)
	return nil
}

type chatFixture struct {
	db        *gorm.DB
	svc       *ChatService
	completer *capturingCompleter
	publisher *memoryPublisher
	sessions  *repository.SessionRepository
	turns     *repository.TurnRepository
	options   *OptionsService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	db := openTestDB(t)

	sessions := repository.NewSessionRepository(db)
	turns := repository.NewTurnRepository(db)
	knowledge := repository.NewKnowledgeRepository(db)
	options := NewOptionsService(repository.NewOptionsRepository(db))

	completer := &capturingCompleter{answer: "generated answer"}
	reg := ai.NewRegistry()
	reg.Register(ai.ProviderLocal, func() (ai.Completer, error) {
		return completer, nil
	})
	reg.Register(ai.ProviderOpenRouter, func() (ai.Completer, error) {
		return nil, ai.ErrMissingAPIKey
	})

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	engines := rag.NewManager(reg, embed, knowledge, 5)

	publisher := &memoryPublisher{}
	svc := NewChatService(sessions, turns, publisher, nil, options, NewHistoryProvider(turns), engines)

	return &chatFixture{
		db:        db,
		svc:       svc,
		completer: completer,
		publisher: publisher,
		sessions:  sessions,
		turns:     turns,
		options:   options,
	}
}

func (f *chatFixture) createUserAndSession(t *testing.T, username string) (uint, string) {
	t.Helper()
	user := &model.User{Username: username, Email: username + "@example.test", PasswordHash: "x"}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	session, err := f.svc.CreateSession(CreateSessionInput{UserID: user.ID, Title: "test chat"})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return user.ID, session.Token
}

func TestSendTurn_WritesUserAndAssistant(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "sender")

	result, err := f.svc.SendTurn(context.Background(), SendTurnInput{
		UserID:       userID,
		SessionToken: token,
		Content:      "  what is up?  ",
	})
	if err != nil {
		t.Fatalf("send turn: %v", err)
	}
	if result.Answer != "generated answer" {
		t.Fatalf("unexpected answer: %q", result.Answer)
	}
	if len(result.Turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(result.Turns))
	}
	if result.Turns[0].Role != model.RoleUser || result.Turns[0].Content != "what is up?" {
		t.Fatalf("unexpected user turn: %+v", result.Turns[0])
	}
	if result.Turns[1].Role != model.RoleAssistant || result.Turns[1].Content != "generated answer" {
		t.Fatalf("unexpected assistant turn: %+v", result.Turns[1])
	}

	// the user turn lands in the store during the request; the assistant
	// turn goes to the broker
	stored, err := f.turns.ListBySessionToken(token)
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 persisted turn, got %d (%v)", len(stored), err)
	}
	if stored[0].Role != model.RoleUser {
		t.Fatalf("expected persisted user turn, got role %q", stored[0].Role)
	}
	if len(f.publisher.published) != 1 || f.publisher.published[0].Role != model.RoleAssistant {
		t.Fatalf("expected published assistant turn, got %+v", f.publisher.published)
	}
}

func TestSendTurn_HistoryCoversAllPriorTurns(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "historian-live")

	seedTurns(t, f.turns, token, 4)

	if _, err := f.svc.SendTurn(context.Background(), SendTurnInput{
		UserID:       userID,
		SessionToken: token,
		Content:      "followup?",
	}); err != nil {
		t.Fatalf("send turn: %v", err)
	}

	// every already-completed turn reaches the backend; only the in-flight
	// message is excluded
	history := f.completer.lastReq.History
	if len(history) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(history))
	}
	for i, msg := range history {
		if want := fmt.Sprintf("turn-%d", i); msg.Content != want {
			t.Fatalf("history[%d] = %q, want %q", i, msg.Content, want)
		}
	}
	for _, msg := range history {
		if msg.Content == "followup?" {
			t.Fatal("in-flight message leaked into its own history")
		}
	}
}

func TestSendTurn_UnknownSession(t *testing.T) {
	f := newChatFixture(t)
	userID, _ := f.createUserAndSession(t, "nobody-home")

	_, err := f.svc.SendTurn(context.Background(), SendTurnInput{
		UserID:       userID,
		SessionToken: "missing-token",
		Content:      "hello",
	})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSendTurn_EmptyContent(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "quiet")

	_, err := f.svc.SendTurn(context.Background(), SendTurnInput{
		UserID:       userID,
		SessionToken: token,
		Content:      "   ",
	})
	if !errors.Is(err, ErrMessageEmpty) {
		t.Fatalf("expected ErrMessageEmpty, got %v", err)
	}
}

func TestSendTurn_PublisherFailure(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "unlucky")
	f.publisher.fail = true

	_, err := f.svc.SendTurn(context.Background(), SendTurnInput{
		UserID:       userID,
		SessionToken: token,
		Content:      "hello",
	})
	if !errors.Is(err, ErrTurnEnqueue) {
		t.Fatalf("expected ErrTurnEnqueue, got %v", err)
	}
}

func TestGenerate_UnknownSessionUsesDefaults(t *testing.T) {
	f := newChatFixture(t)

	answer, err := f.svc.Generate(context.Background(), "a question", "unknown-session-token")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if answer != "generated answer" {
		t.Fatalf("unexpected answer: %q", answer)
	}
	// defaults apply: no stored options, no custom system instruction
	if strings.Contains(f.completer.lastReq.SystemPrompt, "Additional instruction") {
		t.Fatalf("expected no custom prompt, got %q", f.completer.lastReq.SystemPrompt)
	}
}

func TestGenerate_MisconfiguredProviderReturnsError(t *testing.T) {
	f := newChatFixture(t)
	_, token := f.createUserAndSession(t, "router-user")

	if err := f.options.Save("router-user", model.UserOptions{
		ChatHistoryEnabled: true,
		LLMProvider:        "openrouter",
	}); err != nil {
		t.Fatalf("save options: %v", err)
	}

	_, err := f.svc.Generate(context.Background(), "a question", token)
	if !errors.Is(err, ai.ErrMissingAPIKey) {
		t.Fatalf("expected config error to propagate, got %v", err)
	}
}

func TestGenerate_HistoryAttachedWhenEnabled(t *testing.T) {
	f := newChatFixture(t)
	_, token := f.createUserAndSession(t, "historian")

	seedTurns(t, f.turns, token, 4)

	if _, err := f.svc.Generate(context.Background(), "followup?", token); err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 4 turns minus the latest one
	if got := len(f.completer.lastReq.History); got != 3 {
		t.Fatalf("expected 3 history messages, got %d", got)
	}
}

func TestGenerate_HistorySkippedWhenDisabled(t *testing.T) {
	f := newChatFixture(t)
	_, token := f.createUserAndSession(t, "amnesiac")

	seedTurns(t, f.turns, token, 4)

	if err := f.options.Save("amnesiac", model.UserOptions{ChatHistoryEnabled: false}); err != nil {
		t.Fatalf("save options: %v", err)
	}

	if _, err := f.svc.Generate(context.Background(), "followup?", token); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got := len(f.completer.lastReq.History); got != 0 {
		t.Fatalf("expected no history, got %d messages", got)
	}
}

func TestGenerate_CustomPromptFlowsToSystem(t *testing.T) {
	f := newChatFixture(t)
	_, token := f.createUserAndSession(t, "stylist")

	if err := f.options.Save("stylist", model.UserOptions{
		ChatHistoryEnabled: true,
		CustomPrompt:       "answer like a pirate",
	}); err != nil {
		t.Fatalf("save options: %v", err)
	}

	if _, err := f.svc.Generate(context.Background(), "a question", token); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(f.completer.lastReq.SystemPrompt, "answer like a pirate") {
		t.Fatalf("custom prompt missing: %q", f.completer.lastReq.SystemPrompt)
	}
}

func TestDeleteSession_RemovesTurns(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "cleaner")
	seedTurns(t, f.turns, token, 4)

	if err := f.svc.DeleteSession(userID, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	if s, err := f.sessions.GetByToken(token); err != nil || s != nil {
		t.Fatalf("session should be gone, got %v (%v)", s, err)
	}
	turns, err := f.turns.ListBySessionToken(token)
	if err != nil || len(turns) != 0 {
		t.Fatalf("turns should be gone, got %d (%v)", len(turns), err)
	}
}

func TestGetHistory_LimitTrims(t *testing.T) {
	f := newChatFixture(t)
	userID, token := f.createUserAndSession(t, "reader")
	seedTurns(t, f.turns, token, 5)

	turns, err := f.svc.GetHistory(context.Background(), userID, token, 2)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Content != "turn-4" {
		t.Fatalf("expected newest turns kept, tail is %q", turns[1].Content)
	}
}
