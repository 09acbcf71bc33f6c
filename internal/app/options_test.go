package app

import (
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// one named in-memory database per test, shared across pooled connections
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Turn{},
		&model.UserOptions{},
		&model.KnowledgeDocument{},
		&model.KnowledgeChunk{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestOptionsResolve_UnknownUserGetsDefaults(t *testing.T) {
	svc := NewOptionsService(repository.NewOptionsRepository(openTestDB(t)))

	got := svc.Resolve("nobody")
	want := DefaultUserOptions()
	if got != want {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestOptionsResolve_EmptyUsernameGetsDefaults(t *testing.T) {
	svc := NewOptionsService(repository.NewOptionsRepository(openTestDB(t)))
	if got := svc.Resolve("   "); got != DefaultUserOptions() {
		t.Fatalf("expected defaults for blank username, got %+v", got)
	}
}

func TestOptionsResolve_TimeoutClamped(t *testing.T) {
	db := openTestDB(t)
	svc := NewOptionsService(repository.NewOptionsRepository(db))

	cases := []struct {
		stored int
		want   int
	}{
		{stored: 1, want: MinTimeoutSeconds},
		{stored: 10000, want: MaxTimeoutSeconds},
		{stored: 90, want: 90},
		{stored: 0, want: DefaultTimeoutSeconds}, // unset
	}
	for i, tc := range cases {
		username := fmt.Sprintf("clamp-user-%d", i)
		if err := svc.Save(username, model.UserOptions{
			ChatHistoryEnabled: true,
			TimeoutSeconds:     tc.stored,
		}); err != nil {
			t.Fatalf("save: %v", err)
		}
		if got := svc.Resolve(username).TimeoutSeconds; got != tc.want {
			t.Errorf("stored %d: expected timeout %d, got %d", tc.stored, tc.want, got)
		}
	}
}

func TestOptionsResolve_InvalidEnumsFallBack(t *testing.T) {
	db := openTestDB(t)
	svc := NewOptionsService(repository.NewOptionsRepository(db))

	if err := svc.Save("enum-user", model.UserOptions{
		QueryMode:   "vector-search",
		LLMProvider: "gpt9",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got := svc.Resolve("enum-user")
	if got.QueryMode != rag.DefaultMode {
		t.Fatalf("expected default query mode, got %q", got.QueryMode)
	}
	if got.LLMProvider != ai.DefaultProvider {
		t.Fatalf("expected default provider, got %q", got.LLMProvider)
	}
}

func TestOptionsSave_UpsertsExistingRow(t *testing.T) {
	db := openTestDB(t)
	svc := NewOptionsService(repository.NewOptionsRepository(db))

	if err := svc.Save("alex", model.UserOptions{TimeoutSeconds: 60, QueryMode: "naive"}); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if err := svc.Save("alex", model.UserOptions{TimeoutSeconds: 120, QueryMode: "hybrid", CustomPrompt: "be brief"}); err != nil {
		t.Fatalf("second save: %v", err)
	}

	var count int64
	if err := db.Model(&model.UserOptions{}).Where("username = ?", "alex").Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row after upsert, got %d", count)
	}

	got := svc.Resolve("alex")
	if got.TimeoutSeconds != 120 || got.QueryMode != rag.ModeHybrid || got.CustomPrompt != "be brief" {
		t.Fatalf("unexpected resolved options: %+v", got)
	}
}

func TestOptionsSave_RejectsBlankUsername(t *testing.T) {
	svc := NewOptionsService(repository.NewOptionsRepository(openTestDB(t)))
	if err := svc.Save("  ", model.UserOptions{}); err != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
