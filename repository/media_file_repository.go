package repository

import (
	"context"
	"fmt"

	"voxpro/model"

	"gorm.io/gorm"
)

// MediaFileRepository 媒体文件数据访问接口
type MediaFileRepository interface {
	Create(ctx context.Context, f *model.MediaFile) error
	List(ctx context.Context, limit, offset int) ([]model.MediaFile, error)
	GetByObjectKey(ctx context.Context, key string) (*model.MediaFile, error)
	WithTx(tx *gorm.DB) MediaFileRepository
}

type gormMediaFileRepository struct {
	db *gorm.DB
}

func NewGormMediaFileRepository(db *gorm.DB) MediaFileRepository {
	return &gormMediaFileRepository{db: db}
}

func (r *gormMediaFileRepository) WithTx(tx *gorm.DB) MediaFileRepository {
	return &gormMediaFileRepository{db: tx}
}

func (r *gormMediaFileRepository) Create(ctx context.Context, f *model.MediaFile) error {
	if err := r.db.WithContext(ctx).Create(f).Error; err != nil {
		return fmt.Errorf("failed to insert media file: %w", err)
	}
	return nil
}

func (r *gormMediaFileRepository) List(ctx context.Context, limit, offset int) ([]model.MediaFile, error) {
	if limit <= 0 {
		limit = 50
	}
	var files []model.MediaFile
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list media files: %w", err)
	}
	return files, nil
}

func (r *gormMediaFileRepository) GetByObjectKey(ctx context.Context, key string) (*model.MediaFile, error) {
	var f model.MediaFile
	if err := r.db.WithContext(ctx).Where("object_key = ?", key).First(&f).Error; err != nil {
		return nil, translate(err)
	}
	return &f, nil
}
