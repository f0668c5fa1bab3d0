package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assignment binds one uploaded media file to one control-surface key.
// Rows are created by the upload flow and never mutated by playback.
type Assignment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	KeySlot     string    `json:"key_slot" gorm:"size:16;index;not null"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description,omitempty" gorm:"type:text"`
	MediaURL    string    `json:"media_url" gorm:"size:1024;not null"`
	MediaType   string    `json:"media_type,omitempty" gorm:"size:255"` // MIME type or bare extension, may be empty
	SubmittedBy string    `json:"submitted_by,omitempty" gorm:"size:255"`
	CreatedAt   time.Time `json:"created_at" gorm:"index"`
}

// TableName 指定表名
func (Assignment) TableName() string {
	return "assignments"
}

// BeforeCreate assigns the opaque id when the caller did not.
func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// NewerThan reports whether a is the more recent of two rows for the same slot.
// Equal timestamps fall back to comparing ids so the answer never depends on
// input order.
func (a Assignment) NewerThan(b Assignment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
