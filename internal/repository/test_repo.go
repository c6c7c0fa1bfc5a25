package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// TestRepository defines persistence operations for tests, questions
// and options.
type TestRepository interface {
	GetByID(ctx context.Context, id uint) (models.Test, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Test, error)
	Create(ctx context.Context, test *models.Test) error
	Update(ctx context.Context, test *models.Test) error
	Delete(ctx context.Context, id uint) error
	GetQuestion(ctx context.Context, id uint) (models.Question, error)
	QuestionsByTest(ctx context.Context, testID uint) ([]models.Question, error)
	CreateQuestion(ctx context.Context, question *models.Question) error
	UpdateQuestion(ctx context.Context, question *models.Question) error
	DeleteQuestion(ctx context.Context, id uint) error
	MaxQuestionPosition(ctx context.Context, testID uint) (int, error)
	CreateOption(ctx context.Context, option *models.Option) error
	UpdateOption(ctx context.Context, option *models.Option) error
	DeleteOption(ctx context.Context, id uint) error
	ReorderQuestions(ctx context.Context, items []ReorderItem) error
}

type testRepository struct {
	db *gorm.DB
}

// NewTestRepository instantiates a GORM-backed repository.
func NewTestRepository(db *gorm.DB) TestRepository {
	return &testRepository{db: db}
}

func (r *testRepository) GetByID(ctx context.Context, id uint) (models.Test, error) {
	var test models.Test
	err := r.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Questions.Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&test, id).Error
	if err != nil {
		return models.Test{}, err
	}

	return test, nil
}

func (r *testRepository) ListBySection(ctx context.Context, sectionID uint) ([]models.Test, error) {
	var tests []models.Test
	err := r.db.WithContext(ctx).
		Where("course_section_id = ?", sectionID).
		Order("id ASC").
		Find(&tests).Error
	if err != nil {
		return nil, err
	}

	return tests, nil
}

func (r *testRepository) Create(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Create(test).Error
}

func (r *testRepository) Update(ctx context.Context, test *models.Test) error {
	return r.db.WithContext(ctx).Omit("Questions").Save(test).Error
}

func (r *testRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Test{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *testRepository) GetQuestion(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&question, id).Error
	if err != nil {
		return models.Question{}, err
	}

	return question, nil
}

func (r *testRepository) QuestionsByTest(ctx context.Context, testID uint) ([]models.Question, error) {
	var questions []models.Question
	err := r.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Where("test_id = ?", testID).
		Order("position ASC, id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *testRepository) CreateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Create(question).Error
}

func (r *testRepository) UpdateQuestion(ctx context.Context, question *models.Question) error {
	return r.db.WithContext(ctx).Omit("Options").Save(question).Error
}

func (r *testRepository) DeleteQuestion(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Question{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *testRepository) MaxQuestionPosition(ctx context.Context, testID uint) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("test_id = ?", testID).
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

func (r *testRepository) CreateOption(ctx context.Context, option *models.Option) error {
	return r.db.WithContext(ctx).Create(option).Error
}

func (r *testRepository) UpdateOption(ctx context.Context, option *models.Option) error {
	return r.db.WithContext(ctx).Save(option).Error
}

func (r *testRepository) DeleteOption(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Option{}, id).Error
}

func (r *testRepository) ReorderQuestions(ctx context.Context, items []ReorderItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			result := tx.Model(&models.Question{}).
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
