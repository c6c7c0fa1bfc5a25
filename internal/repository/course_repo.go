package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// CourseRepository defines persistence operations for courses and their
// subject groups.
type CourseRepository interface {
	GetByID(ctx context.Context, id uint) (models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	SubjectGroupsOf(ctx context.Context, courseID uint) ([]models.SubjectGroup, error)
	GetSubjectGroup(ctx context.Context, id uint) (models.SubjectGroup, error)
	CreateSubjectGroup(ctx context.Context, group *models.SubjectGroup) error
}

type courseRepository struct {
	db *gorm.DB
}

// NewCourseRepository instantiates a GORM-backed repository.
func NewCourseRepository(db *gorm.DB) CourseRepository {
	return &courseRepository{db: db}
}

func (r *courseRepository) GetByID(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}

	return course, nil
}

func (r *courseRepository) Create(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Create(course).Error
}

func (r *courseRepository) Update(ctx context.Context, course *models.Course) error {
	return r.db.WithContext(ctx).Save(course).Error
}

func (r *courseRepository) SubjectGroupsOf(ctx context.Context, courseID uint) ([]models.SubjectGroup, error) {
	var groups []models.SubjectGroup
	if err := r.db.WithContext(ctx).Where("course_id = ?", courseID).Order("id ASC").Find(&groups).Error; err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *courseRepository) GetSubjectGroup(ctx context.Context, id uint) (models.SubjectGroup, error) {
	var group models.SubjectGroup
	if err := r.db.WithContext(ctx).First(&group, id).Error; err != nil {
		return models.SubjectGroup{}, err
	}

	return group, nil
}

func (r *courseRepository) CreateSubjectGroup(ctx context.Context, group *models.SubjectGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}
