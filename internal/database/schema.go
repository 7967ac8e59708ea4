package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatSession struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

type ChatMessage struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID      `gorm:"type:uuid;index;not null" json:"session_id"`
	Role      string         `gorm:"size:16;not null" json:"role"` // 'user', 'assistant', or 'system'
	Content   string         `json:"content"`
	Failed    bool           `gorm:"default:false" json:"failed"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

// Setting is a single key/value configuration row, e.g. the upstream API key.
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}
