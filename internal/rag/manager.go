package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ragchat/internal/ai"
	"ragchat/internal/repository"
)

// Manager owns one lazily-initialized engine per provider id. It is the only
// holder of engine state; callers get handles through it instead of through
// package-level singletons.
type Manager struct {
	registry *ai.Registry
	embed    EmbedFunc
	store    *repository.KnowledgeRepository
	topK     int

	mu        sync.Mutex // guards engines and initLocks
	engines   map[ai.ProviderID]*Engine
	initLocks map[ai.ProviderID]*sync.Mutex
}

func NewManager(registry *ai.Registry, embed EmbedFunc, store *repository.KnowledgeRepository, topK int) *Manager {
	return &Manager{
		registry:  registry,
		embed:     embed,
		store:     store,
		topK:      topK,
		engines:   make(map[ai.ProviderID]*Engine),
		initLocks: make(map[ai.ProviderID]*sync.Mutex),
	}
}

// Engine returns the engine for the provider, initializing it on first use.
// Initialization runs under a per-provider lock so concurrent first requests
// do not double-initialize. A successful init is cached for the process
// lifetime; a failed init propagates and leaves the slot empty for the next
// attempt. Backend configuration errors (missing credential) surface here,
// before any query is attempted.
func (m *Manager) Engine(provider ai.ProviderID) (*Engine, error) {
	il := m.initLock(provider)
	il.Lock()
	defer il.Unlock()

	m.mu.Lock()
	eng := m.engines[provider]
	m.mu.Unlock()
	if eng != nil {
		return eng, nil
	}

	completer, err := m.registry.New(provider)
	if err != nil {
		return nil, fmt.Errorf("initialize engine for provider %q failed: %w", provider, err)
	}
	eng = NewEngine(completer, m.embed, m.store, m.topK)

	m.mu.Lock()
	m.engines[provider] = eng
	m.mu.Unlock()
	return eng, nil
}

// Query runs the engine query under the engine's global serialization lock,
// bounded by the timeout. It never returns an error: every failure path
// resolves to a textual result. On timeout the in-flight work is abandoned
// (the context is cancelled best-effort) and its eventual result discarded.
func (m *Manager) Query(ctx context.Context, eng *Engine, text string, params QueryParams, timeoutSeconds int) string {
	eng.queryMu.Lock()
	defer eng.queryMu.Unlock()

	qctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		out, err := eng.Query(qctx, text, params)
		done <- result{text: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return classifyQueryError(res.err, qctx, timeoutSeconds)
		}
		return res.text
	case <-qctx.Done():
		if errors.Is(qctx.Err(), context.DeadlineExceeded) {
			return timeoutMessage(timeoutSeconds)
		}
		return fmt.Sprintf("[Error] Query failed: %v", qctx.Err())
	}
}

func classifyQueryError(err error, qctx context.Context, timeoutSeconds int) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(qctx.Err(), context.DeadlineExceeded) {
		return timeoutMessage(timeoutSeconds)
	}
	if isDimensionMismatch(err) {
		return "[Error] Embedding dimension mismatch: the knowledge base was indexed with a different embedding model. Rebuild the index with the current embedding configuration."
	}
	return fmt.Sprintf("[Error] Query failed: %v", err)
}

func timeoutMessage(timeoutSeconds int) string {
	return fmt.Sprintf("[Timeout] The request exceeded the configured timeout of %d seconds.", timeoutSeconds)
}

func isDimensionMismatch(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "dimension mismatch") || strings.Contains(msg, "shape mismatch")
}

func (m *Manager) initLock(provider ai.ProviderID) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	il, ok := m.initLocks[provider]
	if !ok {
		il = &sync.Mutex{}
		m.initLocks[provider] = il
	}
	return il
}
