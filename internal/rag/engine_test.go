package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/repository"
)

type recordingCompleter struct {
	lastReq ai.CompletionRequest
	answer  string
	err     error
}

func (c *recordingCompleter) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	_ = ctx
	c.lastReq = req
	if c.err != nil {
		return "", c.err
	}
	return c.answer, nil
}

func openTestStore(t *testing.T) *repository.KnowledgeRepository {
	t.Helper()
	// one named in-memory database per test, shared across pooled connections
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&model.KnowledgeDocument{}, &model.KnowledgeChunk{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return repository.NewKnowledgeRepository(db)
}

func constEmbed(vec []float32) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = vec
		}
		return out, nil
	}
}

func TestEngineInsert_PersistsChunks(t *testing.T) {
	store := openTestStore(t)
	comp := &recordingCompleter{answer: "ok"}
	eng := NewEngine(comp, constEmbed([]float32{1, 0}), store, 5)

	count, err := eng.Insert(context.Background(), "doc one", "some short document text")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 chunk for short text, got %d", count)
	}

	docs, err := store.ListDocuments()
	if err != nil || len(docs) != 1 || docs[0].Name != "doc one" {
		t.Fatalf("unexpected documents: %v, %v", docs, err)
	}
	chunks, err := store.ListChunks()
	if err != nil || len(chunks) != 1 {
		t.Fatalf("unexpected chunks: %v, %v", chunks, err)
	}
	if got := chunks[0].EmbeddingVector(); len(got) != 2 {
		t.Fatalf("embedding not stored: %v", got)
	}
}

func TestEngineInsert_SkipsBlankChunks(t *testing.T) {
	store := openTestStore(t)
	// like the HTTP embedding client, refuse to vectorize blank text
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		var out [][]float32
		for _, s := range texts {
			if strings.TrimSpace(s) == "" {
				return nil, fmt.Errorf("blank text reached embedding backend")
			}
			out = append(out, []float32{1, 0})
		}
		return out, nil
	}
	eng := NewEngine(&recordingCompleter{answer: "ok"}, embed, store, 5)

	// the whitespace run spans a full chunk window, so chunking yields an
	// all-blank middle chunk
	text := "intro text" + strings.Repeat(" ", 1200) + "tail content"
	count, err := eng.Insert(context.Background(), "gappy doc", text)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored chunks, got %d", count)
	}

	chunks, err := store.ListChunks()
	if err != nil || len(chunks) != 2 {
		t.Fatalf("unexpected chunks: %d (%v)", len(chunks), err)
	}
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			t.Fatal("blank chunk was persisted")
		}
	}
}

func TestEngineInsert_RejectsEmpty(t *testing.T) {
	store := openTestStore(t)
	eng := NewEngine(&recordingCompleter{}, constEmbed([]float32{1}), store, 5)
	if _, err := eng.Insert(context.Background(), "x", "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestEngineQuery_EmptyKnowledgeBase(t *testing.T) {
	store := openTestStore(t)
	comp := &recordingCompleter{answer: "no context answer"}
	eng := NewEngine(comp, constEmbed([]float32{1, 0}), store, 5)

	out, err := eng.Query(context.Background(), "anything?", NewQueryParams(ModeNaive))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out != "no context answer" {
		t.Fatalf("unexpected answer: %q", out)
	}
	if !strings.Contains(comp.lastReq.Prompt, "(no indexed content available)") {
		t.Fatalf("expected empty-context marker in prompt: %q", comp.lastReq.Prompt)
	}
}

func seedChunk(t *testing.T, store *repository.KnowledgeRepository, docName, content string, vec []float32) {
	t.Helper()
	doc := &model.KnowledgeDocument{Name: docName}
	if err := store.CreateDocument(doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	chunk := model.KnowledgeChunk{DocumentID: doc.ID, Content: content}
	chunk.SetEmbedding(vec)
	if err := store.CreateChunks([]model.KnowledgeChunk{chunk}); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}

func TestEngineQuery_NaiveRanksBySimilarity(t *testing.T) {
	store := openTestStore(t)
	seedChunk(t, store, "relevant", "rockets burn liquid fuel", []float32{1, 0})
	seedChunk(t, store, "irrelevant", "bread rises with yeast", []float32{0, 1})

	comp := &recordingCompleter{answer: "ok"}
	// query embeds to the rocket chunk's direction
	eng := NewEngine(comp, constEmbed([]float32{1, 0}), store, 1)

	if _, err := eng.Query(context.Background(), "how do rockets work?", NewQueryParams(ModeNaive)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(comp.lastReq.Prompt, "rockets burn liquid fuel") {
		t.Fatalf("expected relevant chunk in prompt: %q", comp.lastReq.Prompt)
	}
	if strings.Contains(comp.lastReq.Prompt, "bread rises with yeast") {
		t.Fatalf("irrelevant chunk should be cut by topK: %q", comp.lastReq.Prompt)
	}
	if !strings.Contains(comp.lastReq.Prompt, "Question: how do rockets work?") {
		t.Fatalf("question missing from prompt: %q", comp.lastReq.Prompt)
	}
}

func TestEngineQuery_LocalModeBoostsKeywords(t *testing.T) {
	store := openTestStore(t)
	// identical embeddings; only the keyword signal can separate them
	seedChunk(t, store, "a", "volcanoes erupt molten lava", []float32{1, 0})
	seedChunk(t, store, "b", "completely unrelated filler", []float32{1, 0})

	comp := &recordingCompleter{answer: "ok"}
	eng := NewEngine(comp, constEmbed([]float32{1, 0}), store, 1)

	if _, err := eng.Query(context.Background(), "why do volcanoes erupt?", NewQueryParams(ModeLocal)); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(comp.lastReq.Prompt, "volcanoes erupt molten lava") {
		t.Fatalf("keyword-matching chunk should win: %q", comp.lastReq.Prompt)
	}
}

func TestEngineQuery_DimensionMismatch(t *testing.T) {
	store := openTestStore(t)
	seedChunk(t, store, "doc", "stored with three dims", []float32{1, 0, 0})

	comp := &recordingCompleter{answer: "ok"}
	eng := NewEngine(comp, constEmbed([]float32{1, 0}), store, 5)

	_, err := eng.Query(context.Background(), "question", NewQueryParams(ModeNaive))
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "dimension mismatch") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEngineQuery_CustomPromptInSystem(t *testing.T) {
	store := openTestStore(t)
	comp := &recordingCompleter{answer: "ok"}
	eng := NewEngine(comp, constEmbed([]float32{1}), store, 5)

	params := NewQueryParams(ModeNaive).WithUserPrompt("  answer in French  ")
	if _, err := eng.Query(context.Background(), "q", params); err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(comp.lastReq.SystemPrompt, "Additional instruction from the user: answer in French") {
		t.Fatalf("custom prompt missing: %q", comp.lastReq.SystemPrompt)
	}
}

func TestChunkText_Overlap(t *testing.T) {
	text := strings.Repeat("a", 1000)
	chunks := chunkText(text, 512, 64)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 512 {
		t.Fatalf("first chunk should be full size, got %d", len(chunks[0]))
	}
	// step is size-overlap = 448, so the last chunk starts at 896
	if len(chunks[2]) != 1000-896 {
		t.Fatalf("unexpected tail chunk length %d", len(chunks[2]))
	}
}

func TestQueryParams_HistoryBounds(t *testing.T) {
	long := make([]ai.ChatMessage, 10)
	for i := range long {
		long[i] = ai.ChatMessage{Role: "user", Content: "x"}
	}
	p := NewQueryParams(ModeHybrid).WithHistory(long)
	if p.HistoryTurns() != 3 {
		t.Fatalf("expected history turns capped at 3, got %d", p.HistoryTurns())
	}
	if len(p.History()) != 10 {
		t.Fatalf("history slice should be kept whole, got %d", len(p.History()))
	}

	short := []ai.ChatMessage{{Role: "user"}, {Role: "assistant"}}
	if got := NewQueryParams(ModeNaive).WithHistory(short).HistoryTurns(); got != 1 {
		t.Fatalf("expected 1 turn, got %d", got)
	}
}

func TestNewQueryParams_UnknownModeFallsBack(t *testing.T) {
	if got := NewQueryParams(QueryMode("vector")).Mode(); got != DefaultMode {
		t.Fatalf("expected fallback to %q, got %q", DefaultMode, got)
	}
}
