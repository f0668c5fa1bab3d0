package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaFile records one blob uploaded to the media bucket.
type MediaFile struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	ObjectKey   string    `json:"object_key" gorm:"size:512;uniqueIndex;not null"`
	FileName    string    `json:"file_name" gorm:"size:255"`
	ContentType string    `json:"content_type" gorm:"size:255"`
	SizeBytes   int64     `json:"size_bytes"`
	PublicURL   string    `json:"public_url" gorm:"size:1024"`
	UploadedBy  string    `json:"uploaded_by,omitempty" gorm:"size:255"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (MediaFile) TableName() string {
	return "media_files"
}

func (m *MediaFile) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
