package model

import "time"

// UserOptions is the stored, unvalidated per-user configuration row, one per
// username. Validation and defaulting happen in the options resolver; the row
// itself may hold out-of-range or unknown values.
type UserOptions struct {
	ID                 uint      `gorm:"primaryKey" json:"-"`
	Username           string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	ChatHistoryEnabled bool      `gorm:"not null;default:true" json:"chat_history_enabled"`
	TimeoutSeconds     int       `gorm:"not null" json:"timeout_seconds"`
	CustomPrompt       string    `gorm:"type:text" json:"custom_prompt"`
	QueryMode          string    `gorm:"size:16" json:"query_mode"`
	LLMProvider        string    `gorm:"size:32" json:"llm_provider"`
	UpdatedAt          time.Time `json:"updated_at"`
}
