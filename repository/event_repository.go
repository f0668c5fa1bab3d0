package repository

import (
	"context"
	"fmt"

	"voxpro/model"

	"gorm.io/gorm"
)

// EventRepository 活动数据访问接口
type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	Save(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
	FindByStatus(ctx context.Context, status model.EventStatus) ([]model.Event, error)
	// Transaction runs fn against a repository bound to one transaction.
	Transaction(ctx context.Context, fn func(repo EventRepository) error) error
}

type gormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) EventRepository {
	return &gormEventRepository{db: db}
}

func (r *gormEventRepository) Create(ctx context.Context, e *model.Event) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *gormEventRepository) Save(ctx context.Context, e *model.Event) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *gormEventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

// List returns events ordered by start time.
func (r *gormEventRepository) List(ctx context.Context) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).Order("starts_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (r *gormEventRepository) FindByStatus(ctx context.Context, status model.EventStatus) ([]model.Event, error) {
	var events []model.Event
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("starts_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find %s events: %w", status, err)
	}
	return events, nil
}

func (r *gormEventRepository) Transaction(ctx context.Context, fn func(repo EventRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormEventRepository{db: tx})
	})
}
