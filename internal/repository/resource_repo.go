package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// ResourceRepository defines persistence operations for the resource
// tree inside course sections.
type ResourceRepository interface {
	GetByID(ctx context.Context, id uint) (models.Resource, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Resource, error)
	ListChildren(ctx context.Context, parentID uint) ([]models.Resource, error)
	Create(ctx context.Context, resource *models.Resource) error
	Update(ctx context.Context, resource *models.Resource) error
	DeleteMany(ctx context.Context, ids []uint) error
	MaxPosition(ctx context.Context, sectionID uint, parentID *uint) (int, error)
	Reorder(ctx context.Context, items []ReorderItem) error
}

type resourceRepository struct {
	db *gorm.DB
}

// NewResourceRepository instantiates a GORM-backed repository.
func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) GetByID(ctx context.Context, id uint) (models.Resource, error) {
	var resource models.Resource
	if err := r.db.WithContext(ctx).First(&resource, id).Error; err != nil {
		return models.Resource{}, err
	}

	return resource, nil
}

func (r *resourceRepository) ListBySection(ctx context.Context, sectionID uint) ([]models.Resource, error) {
	var resources []models.Resource
	err := r.db.WithContext(ctx).
		Where("course_section_id = ?", sectionID).
		Order("position ASC, id ASC").
		Find(&resources).Error
	if err != nil {
		return nil, err
	}

	return resources, nil
}

func (r *resourceRepository) ListChildren(ctx context.Context, parentID uint) ([]models.Resource, error) {
	var resources []models.Resource
	err := r.db.WithContext(ctx).
		Where("parent_resource_id = ?", parentID).
		Order("position ASC, id ASC").
		Find(&resources).Error
	if err != nil {
		return nil, err
	}

	return resources, nil
}

func (r *resourceRepository) Create(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *resourceRepository) Update(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

func (r *resourceRepository) DeleteMany(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.Resource{}, ids).Error
}

func (r *resourceRepository) MaxPosition(ctx context.Context, sectionID uint, parentID *uint) (int, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Resource{}).
		Where("course_section_id = ?", sectionID)
	if parentID != nil {
		query = query.Where("parent_resource_id = ?", *parentID)
	} else {
		query = query.Where("parent_resource_id IS NULL")
	}

	var max *int
	if err := query.Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func (r *resourceRepository) Reorder(ctx context.Context, items []ReorderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			result := tx.Model(&models.Resource{}).
				Where("id = ?", item.ID).
				Update("position", item.Position)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
		}
		return nil
	})
}
