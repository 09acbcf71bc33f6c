package model

import "time"

// Turn is one message (user or assistant) in a session. Turns are immutable
// once written and totally ordered by CreatedAt within a session.
type Turn struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SessionToken string    `gorm:"size:64;not null;index" json:"session_token"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	Role         string    `gorm:"size:16;not null" json:"role"`
	Content      string    `gorm:"type:text;not null" json:"content"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
