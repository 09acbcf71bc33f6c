package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// AddSessionToUser registers the session token under the user if it is not
// registered yet. The unique index on token makes this atomic; racing callers
// all succeed and exactly one row exists afterwards.
func (r *SessionRepository) AddSessionToUser(session *model.Session) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoNothing: true,
	}).Create(session).Error; err != nil {
		return fmt.Errorf("add session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByToken(token string) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("token = ?", token).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) GetByTokenAndUserID(token string, userID uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.Where("token = ? AND user_id = ?", token, userID).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// FindUsernameByToken resolves the owning username for a session token.
// Returns "" when the token is unknown or the user row is gone.
func (r *SessionRepository) FindUsernameByToken(token string) (string, error) {
	var username string
	err := r.db.Model(&model.Session{}).
		Select("users.username").
		Joins("JOIN users ON users.id = sessions.user_id").
		Where("sessions.token = ?", token).
		Scan(&username).Error
	if err != nil {
		return "", fmt.Errorf("find username by session failed: %w", err)
	}
	return username, nil
}

func (r *SessionRepository) ListByUserID(userID uint) ([]model.Session, error) {
	var sessions []model.Session
	if err := r.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) DeleteByTokenAndUserID(token string, userID uint) error {
	if err := r.db.Where("token = ? AND user_id = ?", token, userID).Delete(&model.Session{}).Error; err != nil {
		return fmt.Errorf("delete session failed: %w", err)
	}
	return nil
}
