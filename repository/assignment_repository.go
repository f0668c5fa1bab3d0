package repository

import (
	"context"
	"fmt"

	"voxpro/model"

	"gorm.io/gorm"
)

// AssignmentRepository 键位分配数据访问接口
type AssignmentRepository interface {
	List(ctx context.Context) ([]model.Assignment, error)
	ListByKeySlot(ctx context.Context, keySlot string) ([]model.Assignment, error)
	Latest(ctx context.Context, keySlot string) (*model.Assignment, error)
	GetByID(ctx context.Context, id string) (*model.Assignment, error)
	Create(ctx context.Context, a *model.Assignment) error
	Delete(ctx context.Context, id string) (*model.Assignment, error)
	WithTx(tx *gorm.DB) AssignmentRepository
}

type gormAssignmentRepository struct {
	db *gorm.DB
}

// NewGormAssignmentRepository 创建 GORM 分配仓库
func NewGormAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &gormAssignmentRepository{db: db}
}

func (r *gormAssignmentRepository) WithTx(tx *gorm.DB) AssignmentRepository {
	return &gormAssignmentRepository{db: tx}
}

// List returns every row, newest first.
func (r *gormAssignmentRepository) List(ctx context.Context) ([]model.Assignment, error) {
	var rows []model.Assignment
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	return rows, nil
}

func (r *gormAssignmentRepository) ListByKeySlot(ctx context.Context, keySlot string) ([]model.Assignment, error) {
	var rows []model.Assignment
	err := r.db.WithContext(ctx).
		Where("key_slot = ?", keySlot).
		Order("created_at DESC").
		Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments for key %s: %w", keySlot, err)
	}
	return rows, nil
}

// Latest returns the authoritative row for a key slot.
func (r *gormAssignmentRepository) Latest(ctx context.Context, keySlot string) (*model.Assignment, error) {
	var a model.Assignment
	err := r.db.WithContext(ctx).
		Where("key_slot = ?", keySlot).
		Order("created_at DESC").
		Order("id DESC").
		First(&a).Error
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *gormAssignmentRepository) GetByID(ctx context.Context, id string) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (r *gormAssignmentRepository) Create(ctx context.Context, a *model.Assignment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// Delete removes a row and returns it so callers can publish the old value.
func (r *gormAssignmentRepository) Delete(ctx context.Context, id string) (*model.Assignment, error) {
	var deleted *model.Assignment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a model.Assignment
		if err := tx.Where("id = ?", id).First(&a).Error; err != nil {
			return translate(err)
		}
		if err := tx.Delete(&model.Assignment{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = &a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
