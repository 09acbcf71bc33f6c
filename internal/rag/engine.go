package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/repository"
)

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultTopK         = 5
	embeddingBatchSize  = 10 // embedding APIs often limit batch size
)

// EmbedFunc embeds texts; one function is shared by all engines.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Engine is one retrieval+generation instance bound to a completion backend.
// All knowledge lives in the shared chunk store, so every engine searches the
// same corpus; only the generation backend differs.
type Engine struct {
	completer ai.Completer
	embed     EmbedFunc
	store     *repository.KnowledgeRepository
	topK      int

	// queryMu totally orders queries against this engine instance.
	// Held by Manager.Query, never by Engine methods themselves.
	queryMu sync.Mutex
}

func NewEngine(completer ai.Completer, embed EmbedFunc, store *repository.KnowledgeRepository, topK int) *Engine {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Engine{
		completer: completer,
		embed:     embed,
		store:     store,
		topK:      topK,
	}
}

// Insert chunks the text, embeds the chunks in batches, and persists a
// document with its chunks. Returns the number of chunks written.
func (e *Engine) Insert(ctx context.Context, name, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, fmt.Errorf("insert text is empty")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Untitled"
	}

	// long whitespace runs can yield all-blank chunks; drop them up front so
	// the chunk count stays aligned with what the embedding backend returns
	chunks := chunkText(text, defaultChunkSize, defaultChunkOverlap)
	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	chunks = kept
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks produced")
	}

	var embeddings [][]float32
	for i := 0; i < len(chunks); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batched, err := e.embed(ctx, chunks[i:end])
		if err != nil {
			return 0, fmt.Errorf("embed chunks failed: %w", err)
		}
		embeddings = append(embeddings, batched...)
	}
	if len(embeddings) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(chunks), len(embeddings))
	}

	doc := &model.KnowledgeDocument{Name: name}
	if err := e.store.CreateDocument(doc); err != nil {
		return 0, err
	}

	rows := make([]model.KnowledgeChunk, len(chunks))
	for i := range chunks {
		rows[i] = model.KnowledgeChunk{
			DocumentID: doc.ID,
			Content:    chunks[i],
		}
		rows[i].SetEmbedding(embeddings[i])
	}
	if err := e.store.CreateChunks(rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// Query retrieves context for the question per the params' mode and asks the
// completion backend. Synchronous; the manager runs it off the caller's path
// and owns timeout and serialization.
func (e *Engine) Query(ctx context.Context, question string, params QueryParams) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("query text is empty")
	}

	chunks, err := e.store.ListChunks()
	if err != nil {
		return "", err
	}

	var selected []model.KnowledgeChunk
	if len(chunks) > 0 {
		qvec, err := e.embed(ctx, []string{question})
		if err != nil {
			return "", fmt.Errorf("embed query failed: %w", err)
		}
		if len(qvec) == 0 {
			return "", fmt.Errorf("embed query returned no vector")
		}
		if stored := firstVectorDim(chunks); stored > 0 && stored != len(qvec[0]) {
			return "", fmt.Errorf(
				"embedding dimension mismatch: index built with %d-dimensional vectors, query produced %d",
				stored, len(qvec[0]),
			)
		}
		selected = e.rank(chunks, qvec[0], question, params.Mode())
	}

	req := ai.CompletionRequest{
		Prompt:       buildPrompt(question, selected),
		SystemPrompt: buildSystemPrompt(params.UserPrompt()),
		History:      params.History(),
	}
	return e.completer.Complete(ctx, req)
}

type scoredChunk struct {
	chunk model.KnowledgeChunk
	score float64
}

// rank scores chunks by the mode's retrieval strategy and returns the topK.
func (e *Engine) rank(chunks []model.KnowledgeChunk, qvec []float32, question string, mode QueryMode) []model.KnowledgeChunk {
	terms := queryTerms(question)

	cos := make([]float64, len(chunks))
	kw := make([]float64, len(chunks))
	for i := range chunks {
		cos[i] = cosineSimilarity(qvec, chunks[i].EmbeddingVector())
		kw[i] = keywordOverlap(terms, chunks[i].Content)
	}

	switch mode {
	case ModeLocal:
		// keyword-anchored: chunks mentioning the query entities win ties
		return topOf(chunks, func(i int) float64 { return cos[i] + 0.3*kw[i] }, e.topK)
	case ModeGlobal:
		// document-level: rank whole documents, then their best chunks
		docAvg := map[uint]float64{}
		docCnt := map[uint]int{}
		for i, c := range chunks {
			docAvg[c.DocumentID] += cos[i]
			docCnt[c.DocumentID]++
		}
		for id := range docAvg {
			docAvg[id] /= float64(docCnt[id])
		}
		return topOf(chunks, func(i int) float64 {
			return docAvg[chunks[i].DocumentID] + 0.01*cos[i]
		}, e.topK)
	case ModeHybrid:
		return topOf(chunks, func(i int) float64 { return 0.5*cos[i] + 0.5*kw[i] }, e.topK)
	case ModeMix:
		// union of the naive and hybrid candidate sets
		naive := topOf(chunks, func(i int) float64 { return cos[i] }, e.topK)
		hybrid := topOf(chunks, func(i int) float64 { return 0.5*cos[i] + 0.5*kw[i] }, e.topK)
		return mergeChunks(naive, hybrid, e.topK)
	default: // ModeNaive
		return topOf(chunks, func(i int) float64 { return cos[i] }, e.topK)
	}
}

func topOf(chunks []model.KnowledgeChunk, score func(i int) float64, k int) []model.KnowledgeChunk {
	scored := make([]scoredChunk, len(chunks))
	for i := range chunks {
		scored[i] = scoredChunk{chunk: chunks[i], score: score(i)}
	}
	sort.SliceStable(scored, func(a, b int) bool { return scored[a].score > scored[b].score })
	if k > len(scored) {
		k = len(scored)
	}
	out := make([]model.KnowledgeChunk, k)
	for i := 0; i < k; i++ {
		out[i] = scored[i].chunk
	}
	return out
}

func mergeChunks(a, b []model.KnowledgeChunk, k int) []model.KnowledgeChunk {
	seen := map[uint]bool{}
	var out []model.KnowledgeChunk
	for i := 0; i < len(a) || i < len(b); i++ {
		if i < len(a) && !seen[a[i].ID] {
			seen[a[i].ID] = true
			out = append(out, a[i])
		}
		if i < len(b) && !seen[b[i].ID] {
			seen[b[i].ID] = true
			out = append(out, b[i])
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func buildSystemPrompt(userPrompt string) string {
	base := "You are a helpful assistant. Answer the user's question based only on the provided context. If the context does not contain enough information, say so. Do not make up facts."
	if userPrompt == "" {
		return base
	}
	return base + "\n\nAdditional instruction from the user: " + userPrompt
}

func buildPrompt(question string, chunks []model.KnowledgeChunk) string {
	var b strings.Builder
	b.WriteString("Context:")
	if len(chunks) == 0 {
		b.WriteString(" (no indexed content available)")
	}
	for _, c := range chunks {
		b.WriteString("\n---\n")
		b.WriteString(c.Content)
	}
	if len(chunks) > 0 {
		b.WriteString("\n---")
	}
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		i += size - overlap
		if i >= len(runes) {
			break
		}
	}
	return chunks
}

func firstVectorDim(chunks []model.KnowledgeChunk) int {
	for i := range chunks {
		if v := chunks[i].EmbeddingVector(); len(v) > 0 {
			return len(v)
		}
	}
	return 0
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func queryTerms(question string) []string {
	fields := strings.Fields(strings.ToLower(question))
	seen := map[string]bool{}
	var terms []string
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}

func keywordOverlap(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
