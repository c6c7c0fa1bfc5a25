package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// AttemptRepository defines persistence operations for attempts and
// answers, including the graded-work predicates the sync planner needs.
type AttemptRepository interface {
	GetByID(ctx context.Context, id uint) (models.Attempt, error)
	GetForUpdate(ctx context.Context, id uint) (models.Attempt, error)
	Create(ctx context.Context, attempt *models.Attempt) error
	Update(ctx context.Context, attempt *models.Attempt) error
	CountByTestAndStudent(ctx context.Context, testID, studentID uint) (int64, error)

	GetAnswerByID(ctx context.Context, id uint) (models.Answer, error)
	FindAnswer(ctx context.Context, attemptID, questionID uint) (models.Answer, error)
	CreateAnswer(ctx context.Context, answer *models.Answer) error
	UpdateAnswer(ctx context.Context, answer *models.Answer) error
	ReplaceSelectedOptions(ctx context.Context, answer *models.Answer, options []models.Option) error

	HasCompletedAttempts(ctx context.Context, testID uint) (bool, error)
	QuestionHasGradedWork(ctx context.Context, questionID uint) (bool, error)
	OptionsWithAnswers(ctx context.Context, testID uint) ([]uint, error)

	WithinTx(ctx context.Context, fn func(AttemptRepository) error) error
}

type attemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository instantiates a GORM-backed repository.
func NewAttemptRepository(db *gorm.DB) AttemptRepository {
	return &attemptRepository{db: db}
}

func (r *attemptRepository) WithinTx(ctx context.Context, fn func(AttemptRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&attemptRepository{db: tx})
	})
}

func (r *attemptRepository) GetByID(ctx context.Context, id uint) (models.Attempt, error) {
	var attempt models.Attempt
	err := r.db.WithContext(ctx).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("Answers.Question.Options").
		Preload("Answers.SelectedOptions").
		First(&attempt, id).Error
	if err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

// GetForUpdate locks the attempt row for the duration of the enclosing
// transaction, guarding submit against double-submission races. SQLite
// has no row locks and serializes writers anyway, so the clause is
// skipped there.
func (r *attemptRepository) GetForUpdate(ctx context.Context, id uint) (models.Attempt, error) {
	tx := r.db.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var attempt models.Attempt
	err := tx.First(&attempt, id).Error
	if err != nil {
		return models.Attempt{}, err
	}

	return attempt, nil
}

func (r *attemptRepository) Create(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *attemptRepository) Update(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Omit("Answers", "Test").Save(attempt).Error
}

func (r *attemptRepository) CountByTestAndStudent(ctx context.Context, testID, studentID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND student_id = ?", testID, studentID).
		Count(&count).Error
	return count, err
}

func (r *attemptRepository) GetAnswerByID(ctx context.Context, id uint) (models.Answer, error) {
	var answer models.Answer
	err := r.db.WithContext(ctx).
		Preload("Question").
		Preload("SelectedOptions").
		First(&answer, id).Error
	if err != nil {
		return models.Answer{}, err
	}

	return answer, nil
}

func (r *attemptRepository) FindAnswer(ctx context.Context, attemptID, questionID uint) (models.Answer, error) {
	var answer models.Answer
	err := r.db.WithContext(ctx).
		Preload("SelectedOptions").
		Where("attempt_id = ? AND question_id = ?", attemptID, questionID).
		First(&answer).Error
	if err != nil {
		return models.Answer{}, err
	}

	return answer, nil
}

func (r *attemptRepository) CreateAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Create(answer).Error
}

func (r *attemptRepository) UpdateAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Omit("SelectedOptions", "Question").Save(answer).Error
}

func (r *attemptRepository) ReplaceSelectedOptions(ctx context.Context, answer *models.Answer, options []models.Option) error {
	return r.db.WithContext(ctx).Model(answer).Association("SelectedOptions").Replace(options)
}

func (r *attemptRepository) HasCompletedAttempts(ctx context.Context, testID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Attempt{}).
		Where("test_id = ? AND submitted_at IS NOT NULL", testID).
		Count(&count).Error
	return count > 0, err
}

// QuestionHasGradedWork reports whether any answer from a submitted
// attempt references the question. Evaluated fresh on every call, never
// cached on the entity.
func (r *attemptRepository) QuestionHasGradedWork(ctx context.Context, questionID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Answer{}).
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("answers.question_id = ? AND attempts.submitted_at IS NOT NULL", questionID).
		Count(&count).Error
	return count > 0, err
}

// OptionsWithAnswers returns option ids referenced by selected options
// of answers belonging to submitted attempts on the test.
func (r *attemptRepository) OptionsWithAnswers(ctx context.Context, testID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Table("answer_selected_options").
		Joins("JOIN answers ON answers.id = answer_selected_options.answer_id").
		Joins("JOIN attempts ON attempts.id = answers.attempt_id").
		Where("attempts.test_id = ? AND attempts.submitted_at IS NOT NULL", testID).
		Distinct("answer_selected_options.option_id").
		Pluck("answer_selected_options.option_id", &ids).Error
	if err != nil {
		return nil, err
	}

	return ids, nil
}
