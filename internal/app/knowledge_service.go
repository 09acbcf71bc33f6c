package app

import (
	"context"
	"strings"

	"ragchat/internal/ai"
	"ragchat/internal/model"
	"ragchat/internal/rag"
	"ragchat/internal/repository"
)

// KnowledgeService inserts source texts into the shared knowledge base. The
// engine for the default provider does the chunking and embedding; all
// providers search the same corpus afterwards.
type KnowledgeService struct {
	engines *rag.Manager
	repo    *repository.KnowledgeRepository
}

func NewKnowledgeService(engines *rag.Manager, repo *repository.KnowledgeRepository) *KnowledgeService {
	return &KnowledgeService{engines: engines, repo: repo}
}

type InsertResult struct {
	Name       string `json:"name"`
	ChunkCount int    `json:"chunk_count"`
}

func (s *KnowledgeService) Insert(ctx context.Context, name, text string) (*InsertResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrInvalidInput
	}
	eng, err := s.engines.Engine(ai.DefaultProvider)
	if err != nil {
		return nil, err
	}
	count, err := eng.Insert(ctx, name, text)
	if err != nil {
		return nil, err
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Untitled"
	}
	return &InsertResult{Name: name, ChunkCount: count}, nil
}

func (s *KnowledgeService) ListDocuments() ([]model.KnowledgeDocument, error) {
	return s.repo.ListDocuments()
}
