package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// SyncRepository is the unit-of-work the sync planner drives. Lookups
// by template_ref implement the find-or-create key pattern; WithinTx
// hands back a transaction-bound copy so a whole test reconciliation
// commits or rolls back as one.
type SyncRepository interface {
	WithinTx(ctx context.Context, fn func(SyncRepository) error) error

	SectionByID(ctx context.Context, id uint) (models.CourseSection, error)
	ResourceByID(ctx context.Context, id uint) (models.Resource, error)
	AssignmentByID(ctx context.Context, id uint) (models.Assignment, error)

	TemplateSections(ctx context.Context, courseID uint) ([]models.CourseSection, error)
	DerivedSectionByRef(ctx context.Context, subjectGroupID, templateRefID uint) (models.CourseSection, bool, error)
	DerivedSectionsByTemplate(ctx context.Context, templateRefID uint) ([]models.CourseSection, error)
	CreateSection(ctx context.Context, section *models.CourseSection) error
	UpdateSection(ctx context.Context, section *models.CourseSection) error
	DeleteSection(ctx context.Context, id uint) error

	ResourcesBySection(ctx context.Context, sectionID uint) ([]models.Resource, error)
	DerivedResourceByRef(ctx context.Context, sectionID, templateRefID uint) (models.Resource, bool, error)
	DerivedResourcesByTemplate(ctx context.Context, templateRefID uint) ([]models.Resource, error)
	CreateResource(ctx context.Context, resource *models.Resource) error
	UpdateResource(ctx context.Context, resource *models.Resource) error
	DeleteResources(ctx context.Context, ids []uint) error

	AssignmentsBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error)
	DerivedAssignmentByRef(ctx context.Context, sectionID, templateRefID uint) (models.Assignment, bool, error)
	DerivedAssignmentsByTemplate(ctx context.Context, templateRefID uint) ([]models.Assignment, error)
	CreateAssignment(ctx context.Context, assignment *models.Assignment) error
	UpdateAssignment(ctx context.Context, assignment *models.Assignment) error
	DeleteAssignment(ctx context.Context, id uint) error
	CreateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error
	UpdateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error
	DeleteAttachment(ctx context.Context, id uint) error

	TestsBySection(ctx context.Context, sectionID uint) ([]models.Test, error)
	DerivedTestByRef(ctx context.Context, sectionID, templateRefID uint) (models.Test, bool, error)
	DerivedTestsByTemplate(ctx context.Context, templateRefID uint) ([]models.Test, error)
	CreateTest(ctx context.Context, test *models.Test) error
	UpdateTest(ctx context.Context, test *models.Test) error
	DeleteTest(ctx context.Context, id uint) error
	QuestionsByTest(ctx context.Context, testID uint) ([]models.Question, error)
	CreateQuestion(ctx context.Context, question *models.Question) error
	UpdateQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, id uint) error
	CreateOption(ctx context.Context, option *models.Option) error
	UpdateOption(ctx context.Context, option *models.Option) error
	DeleteOption(ctx context.Context, id uint) error

	HasCompletedAttempts(ctx context.Context, testID uint) (bool, error)
	QuestionHasGradedWork(ctx context.Context, questionID uint) (bool, error)
	OptionsWithAnswers(ctx context.Context, testID uint) ([]uint, error)
}

type syncRepository struct {
	db *gorm.DB
}

// NewSyncRepository instantiates a GORM-backed sync repository.
func NewSyncRepository(db *gorm.DB) SyncRepository {
	return &syncRepository{db: db}
}

func (r *syncRepository) WithinTx(ctx context.Context, fn func(SyncRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&syncRepository{db: tx})
	})
}

func (r *syncRepository) SectionByID(ctx context.Context, id uint) (models.CourseSection, error) {
	var section models.CourseSection
	err := r.db.WithContext(ctx).First(&section, id).Error
	return section, err
}

func (r *syncRepository) ResourceByID(ctx context.Context, id uint) (models.Resource, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).First(&resource, id).Error
	return resource, err
}

func (r *syncRepository) AssignmentByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&assignment, id).Error
	return assignment, err
}

func (r *syncRepository) TemplateSections(ctx context.Context, courseID uint) ([]models.CourseSection, error) {
	var sections []models.CourseSection
	err := r.db.WithContext(ctx).
		Where("course_id = ? AND subject_group_id IS NULL", courseID).
		Order("position ASC, id ASC").
		Find(&sections).Error
	return sections, err
}

func (r *syncRepository) DerivedSectionByRef(ctx context.Context, subjectGroupID, templateRefID uint) (models.CourseSection, bool, error) {
	var section models.CourseSection
	err := r.db.WithContext(ctx).
		Where("subject_group_id = ? AND template_ref_id = ?", subjectGroupID, templateRefID).
		First(&section).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CourseSection{}, false, nil
	}
	if err != nil {
		return models.CourseSection{}, false, err
	}
	return section, true, nil
}

func (r *syncRepository) DerivedSectionsByTemplate(ctx context.Context, templateRefID uint) ([]models.CourseSection, error) {
	var sections []models.CourseSection
	err := r.db.WithContext(ctx).
		Where("template_ref_id = ? AND subject_group_id IS NOT NULL", templateRefID).
		Find(&sections).Error
	return sections, err
}

func (r *syncRepository) CreateSection(ctx context.Context, section *models.CourseSection) error {
	return r.db.WithContext(ctx).Create(section).Error
}

func (r *syncRepository) UpdateSection(ctx context.Context, section *models.CourseSection) error {
	return r.db.WithContext(ctx).Save(section).Error
}

func (r *syncRepository) DeleteSection(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.CourseSection{}, id).Error
}

func (r *syncRepository) ResourcesBySection(ctx context.Context, sectionID uint) ([]models.Resource, error) {
	var resources []models.Resource
	err := r.db.WithContext(ctx).
		Where("course_section_id = ?", sectionID).
		Order("position ASC, id ASC").
		Find(&resources).Error
	return resources, err
}

func (r *syncRepository) DerivedResourceByRef(ctx context.Context, sectionID, templateRefID uint) (models.Resource, bool, error) {
	var resource models.Resource
	err := r.db.WithContext(ctx).
		Where("course_section_id = ? AND template_ref_id = ?", sectionID, templateRefID).
		First(&resource).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Resource{}, false, nil
	}
	if err != nil {
		return models.Resource{}, false, err
	}
	return resource, true, nil
}

func (r *syncRepository) DerivedResourcesByTemplate(ctx context.Context, templateRefID uint) ([]models.Resource, error) {
	var resources []models.Resource
	err := r.db.WithContext(ctx).
		Where("template_ref_id = ?", templateRefID).
		Find(&resources).Error
	return resources, err
}

func (r *syncRepository) CreateResource(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Create(resource).Error
}

func (r *syncRepository) UpdateResource(ctx context.Context, resource *models.Resource) error {
	return r.db.WithContext(ctx).Save(resource).Error
}

func (r *syncRepository) DeleteResources(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Delete(&models.Resource{}, ids).Error
}

func (r *syncRepository) AssignmentsBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Where("course_section_id = ?", sectionID).
		Order("id ASC").
		Find(&assignments).Error
	return assignments, err
}

func (r *syncRepository) DerivedAssignmentByRef(ctx context.Context, sectionID, templateRefID uint) (models.Assignment, bool, error) {
	var assignment models.Assignment
	err := r.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Where("course_section_id = ? AND template_ref_id = ?", sectionID, templateRefID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Assignment{}, false, nil
	}
	if err != nil {
		return models.Assignment{}, false, err
	}
	return assignment, true, nil
}

func (r *syncRepository) DerivedAssignmentsByTemplate(ctx context.Context, templateRefID uint) ([]models.Assignment, error) {
	var assignments []models.Assignment
	err := r.db.WithContext(ctx).
		Where("template_ref_id = ?", templateRefID).
		Find(&assignments).Error
	return assignments, err
}

func (r *syncRepository) CreateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *syncRepository) UpdateAssignment(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Omit("Attachments").Save(assignment).Error
}

func (r *syncRepository) DeleteAssignment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Assignment{}, id).Error
}

func (r *syncRepository) CreateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *syncRepository) UpdateAttachment(ctx context.Context, attachment *models.AssignmentAttachment) error {
	return r.db.WithContext(ctx).Save(attachment).Error
}

func (r *syncRepository) DeleteAttachment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.AssignmentAttachment{}, id).Error
}

func (r *syncRepository) TestsBySection(ctx context.Context, sectionID uint) ([]models.Test, error) {
	var tests []models.Test
	err := r.db.WithContext(ctx).
		Where("course_section_id = ?", sectionID).
		Order("id ASC").
		Find(&tests).Error
	return tests, err
}

func (r *syncRepository) DerivedTestByRef(ctx context.Context, sectionID, templateRefID uint) (models.Test, bool, error) {
	var test models.Test
	err := r.db.WithContext(ctx).
		Where("course_section_id = ? AND template_ref_id = ?", sectionID, templateRefID).
		First(&test).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Test{}, false, nil
	}
	if err != nil {
		return models.Test{}, false, err
	}
	return test, true, nil
}

func (r *syncRepository) DerivedTestsByTemplate(ctx context.Context, templateRefID uint) ([]models.Test, error) {
	var tests []models.Test
	err := r.db.WithContext(ctx).
		Where("template_ref_id = ?", templateRefID).
		Find(&tests).Error
	return tests, err
}

func (r *syncRepository) CreateTest(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *syncRepository) UpdateTest(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Omit("Questions").Save(test).Error
}

func (r *syncRepository) DeleteTest(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Test{}, id).Error
}

func (r *syncRepository) QuestionsByTest(ctx context.Context, testID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Where("test_id = ?", testID).
		Order("position ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

func (r *syncRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *syncRepository) UpdateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Omit("Options").Save(question).Error
}

func (r *syncRepository) DeleteQuestion(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Question{}, id).Error
}

func (r *syncRepository) CreateOption(ctx context.Context, option *models.Option) error {
	return r.db.WithContext(ctx).Create(option).Error
}

func (r *syncRepository) UpdateOption(ctx context.Context, option *models.Option) error {
	return r.db.WithContext(ctx).Save(option).Error
}

func (r *syncRepository) DeleteOption(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Option{}, id).Error
}

func (r *syncRepository) HasCompletedAttempts(ctx context.Context, testID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND submitted_at IS NOT NULL", testID).
		Count(&count).Error
	return count > 0, err
}

func (r *syncRepository) QuestionHasGradedWork(ctx context.Context, questionID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("answers.question_id = ? AND attempts.submitted_at IS NOT NULL", questionID).
		Count(&count).Error
	return count > 0, err
}

func (r *syncRepository) OptionsWithAnswers(ctx context.Context, testID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Table("answer_selected_options").
		Joins("JOIN answers ON answers.id = answer_selected_options.answer_id").
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("attempts.test_id = ? AND attempts.submitted_at IS NOT NULL", testID).
		Distinct("answer_selected_options.option_id").
		Pluck("answer_selected_options.option_id", &ids).Error
	return ids, err
}
