package model

import "time"

// UsageRecord is an append-only log entry for one completion-backend call.
// Writes are fire-and-forget; a lost record never fails a request.
type UsageRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Provider    string    `gorm:"size:32;not null;index" json:"provider"`
	Model       string    `gorm:"size:128;not null" json:"model"`
	Status      string    `gorm:"size:32;not null" json:"status"`
	PromptChars int       `gorm:"not null" json:"prompt_chars"`
	AnswerChars int       `gorm:"not null" json:"answer_chars"`
	RawPayload  string    `gorm:"type:text" json:"raw_payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
