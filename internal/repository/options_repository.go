package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragchat/internal/model"
)

type OptionsRepository struct {
	db *gorm.DB
}

func NewOptionsRepository(db *gorm.DB) *OptionsRepository {
	return &OptionsRepository{db: db}
}

// Find returns the stored options row for the username, or nil when none exists.
func (r *OptionsRepository) Find(username string) (*model.UserOptions, error) {
	var opts model.UserOptions
	if err := r.db.Where("username = ?", username).First(&opts).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user options failed: %w", err)
	}
	return &opts, nil
}

// Upsert writes the options row for the username, inserting or replacing the
// existing one in a single statement.
func (r *OptionsRepository) Upsert(opts *model.UserOptions) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"chat_history_enabled", "timeout_seconds", "custom_prompt",
			"query_mode", "llm_provider", "updated_at",
		}),
	}).Create(opts).Error; err != nil {
		return fmt.Errorf("upsert user options failed: %w", err)
	}
	return nil
}
