package repository

import (
	"fmt"

	"gorm.io/gorm"

	"ragchat/internal/model"
)

type TurnRepository struct {
	db *gorm.DB
}

func NewTurnRepository(db *gorm.DB) *TurnRepository {
	return &TurnRepository{db: db}
}

func (r *TurnRepository) Create(turn *model.Turn) error {
	if err := r.db.Create(turn).Error; err != nil {
		return fmt.Errorf("create turn failed: %w", err)
	}
	return nil
}

// ListBySessionToken returns all turns of a session oldest-first. The id
// tiebreak keeps turns written within the same timestamp in insert order.
func (r *TurnRepository) ListBySessionToken(token string) ([]model.Turn, error) {
	var turns []model.Turn
	if err := r.db.Where("session_token = ?", token).
		Order("created_at ASC, id ASC").
		Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("list turns failed: %w", err)
	}
	return turns, nil
}

func (r *TurnRepository) DeleteBySessionToken(token string) error {
	if err := r.db.Where("session_token = ?", token).Delete(&model.Turn{}).Error; err != nil {
		return fmt.Errorf("delete turns failed: %w", err)
	}
	return nil
}
