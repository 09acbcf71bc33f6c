package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type KnowledgeRepository struct {
	db *gorm.DB
}

func NewKnowledgeRepository(db *gorm.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

func (r *KnowledgeRepository) CreateDocument(doc *model.KnowledgeDocument) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("create knowledge document failed: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) ListDocuments() ([]model.KnowledgeDocument, error) {
	var docs []model.KnowledgeDocument
	if err := r.db.Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list knowledge documents failed: %w", err)
	}
	return docs, nil
}

func (r *KnowledgeRepository) CreateChunks(chunks []model.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := r.db.Create(&chunks).Error; err != nil {
		return fmt.Errorf("create knowledge chunks failed: %w", err)
	}
	return nil
}

func (r *KnowledgeRepository) ListChunks() ([]model.KnowledgeChunk, error) {
	var chunks []model.KnowledgeChunk
	if err := r.db.Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list knowledge chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *KnowledgeRepository) DeleteDocument(documentID uint) error {
	if err := r.db.Where("document_id = ?", documentID).Delete(&model.KnowledgeChunk{}).Error; err != nil {
		return fmt.Errorf("delete knowledge chunks failed: %w", err)
	}
	if err := r.db.Delete(&model.KnowledgeDocument{}, documentID).Error; err != nil {
		return fmt.Errorf("delete knowledge document failed: %w", err)
	}
	return nil
}
