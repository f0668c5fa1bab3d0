package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStatus 活动状态
type EventStatus string

const (
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusCurrent  EventStatus = "current"
	EventStatusArchived EventStatus = "archived"
)

// Event is a listing on the events page. At most one event is current.
type Event struct {
	ID          string      `json:"id" gorm:"primaryKey;size:36"`
	Title       string      `json:"title" gorm:"size:255;not null"`
	Description string      `json:"description,omitempty" gorm:"type:text"`
	Location    string      `json:"location,omitempty" gorm:"size:255"`
	StartsAt    time.Time   `json:"starts_at"`
	Status      EventStatus `json:"status" gorm:"size:20;default:'upcoming';index"`
	ArchivedAt  *time.Time  `json:"archived_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (Event) TableName() string {
	return "events"
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = EventStatusUpcoming
	}
	return nil
}
