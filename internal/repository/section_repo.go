package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// ReorderItem assigns a new position to one sibling in a batch reorder.
type ReorderItem struct {
	ID       uint `json:"id" validate:"required"`
	Position int  `json:"position" validate:"min=0"`
}

// SectionRepository defines persistence operations for course sections,
// both template and derived.
type SectionRepository interface {
	GetByID(ctx context.Context, id uint) (models.CourseSection, error)
	ListTemplates(ctx context.Context, courseID uint) ([]models.CourseSection, error)
	ListBySubjectGroup(ctx context.Context, subjectGroupID uint) ([]models.CourseSection, error)
	Create(ctx context.Context, section *models.CourseSection) error
	CreateBatch(ctx context.Context, sections []models.CourseSection) error
	Update(ctx context.Context, section *models.CourseSection) error
	Delete(ctx context.Context, id uint) error
	MaxTemplatePosition(ctx context.Context, courseID uint) (int, error)
	Reorder(ctx context.Context, items []ReorderItem) error
}

type sectionRepository struct {
	db *gorm.DB
}

// NewSectionRepository instantiates a GORM-backed repository.
func NewSectionRepository(db *gorm.DB) SectionRepository {
	return &sectionRepository{db: db}
}

func (r *sectionRepository) GetByID(ctx context.Context, id uint) (models.CourseSection, error) {
	var section models.CourseSection
	if err := r.db.WithContext(ctx).First(&section, id).Error; err != nil {
		return models.CourseSection{}, err
	}

	return section, nil
}

func (r *sectionRepository) ListTemplates(ctx context.Context, courseID uint) ([]models.CourseSection, error) {
	var sections []models.CourseSection
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND subject_group_id IS NULL", courseID).
		Order("position ASC, id ASC").
		Find(&sections).Error
	if err != nil {
		return nil, err
	}

	return sections, nil
}

func (r *sectionRepository) ListBySubjectGroup(ctx context.Context, subjectGroupID uint) ([]models.CourseSection, error) {
	var sections []models.CourseSection
	err := r.db.WithContext(ctx).
		Where("subject_group_id = ?", subjectGroupID).
		Order("position ASC, id ASC").
		Find(&sections).Error
	if err != nil {
		return nil, err
	}

	return sections, nil
}

func (r *sectionRepository) Create(ctx context.Context, section *models.CourseSection) error {
	return r.db.WithContext(ctx).Create(section).Error
}

func (r *sectionRepository) CreateBatch(ctx context.Context, sections []models.CourseSection) error {
	if len(sections) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&sections).Error
}

func (r *sectionRepository) Update(ctx context.Context, section *models.CourseSection) error {
	return r.db.WithContext(ctx).Save(section).Error
}

func (r *sectionRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.CourseSection{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *sectionRepository) MaxTemplatePosition(ctx context.Context, courseID uint) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.CourseSection{}).
		Where("course_id = ? AND subject_group_id IS NULL", courseID).
		Select("MAX(position)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return -1, nil
	}
	return *max, nil
}

func (r *sectionRepository) Reorder(ctx context.Context, items []ReorderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			result := tx.Model(&models.CourseSection{}).
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
