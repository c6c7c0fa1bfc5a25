package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// AssignmentRepository defines persistence operations for assignments
// and their attachments.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error
	Attachments(ctx context.Context, assignmentID uint) ([]models.AssignmentAttachment, error)
	CreateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error
	UpdateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error
	DeleteAttachment(ctx context.Context, id uint) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&assignment, id).Error
	if err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) ListBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Where("course_section_id = ?", sectionID).
		Order("id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}

	return assignments, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Attachments").Save(assignment).Error
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Assignment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assignmentRepository) Attachments(ctx context.Context, assignmentID uint) ([]models.AssignmentAttachment, error) {
	var attachments []models.AssignmentAttachment
	err := r.db.WithContext(ctx).
		Where("assignment_id = ?", assignmentID).
		Order("position ASC, id ASC").
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}

	return attachments, nil
}

func (r *assignmentRepository) CreateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *assignmentRepository) UpdateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error {
	return r.db.WithContext(ctx).Save(attachment).Error
}

func (r *assignmentRepository) DeleteAttachment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.AssignmentAttachment{}, id).Error
}
