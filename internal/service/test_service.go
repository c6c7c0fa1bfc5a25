package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrInvalidQuestionType indicates an unsupported question type string.
var ErrInvalidQuestionType = errors.New("invalid question type")

// ErrInvalidOptions indicates the option set breaks the rules of the
// question type.
var ErrInvalidOptions = errors.New("invalid options for question type")

// ErrInvalidMatchingPairs indicates a malformed matching configuration.
var ErrInvalidMatchingPairs = errors.New("invalid matching pairs")

// ErrOptionNotFound indicates the option does not exist on the question.
var ErrOptionNotFound = errors.New("option not found")

// ErrQuestionHasGradedWork refuses destructive edits on questions that
// already back graded answers.
var ErrQuestionHasGradedWork = errors.New("question has graded work")

const matchingPairsSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["left", "right"],
    "properties": {
      "left": {"type": "string", "minLength": 1},
      "right": {"type": "string", "minLength": 1}
    },
    "additionalProperties": false
  }
}`

var compiledMatchingPairsSchema = jsonschema.MustCompileString("matching_pairs.schema.json", matchingPairsSchema)

// TestService manages tests, questions and options.
type TestService interface {
	Get(ctx context.Context, id uint) (models.Test, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Test, error)
	Create(ctx context.Context, payload dto.TestCreateRequest, actor Actor) (models.Test, error)
	Update(ctx context.Context, id uint, payload dto.TestUpdateRequest, actor Actor) (models.Test, error)
	Delete(ctx context.Context, id uint, actor Actor) error
	SetPublished(ctx context.Context, id uint, published bool, actor Actor) (models.Test, error)
	AddQuestion(ctx context.Context, testID uint, payload dto.QuestionCreateRequest, actor Actor) (models.Question, error)
	UpdateQuestion(ctx context.Context, questionID uint, payload dto.QuestionUpdateRequest, actor Actor) (models.Question, error)
	DeleteQuestion(ctx context.Context, questionID uint, actor Actor) error
	AddOption(ctx context.Context, questionID uint, payload dto.OptionRequest, actor Actor) (models.Option, error)
	DeleteOption(ctx context.Context, questionID, optionID uint, actor Actor) error
	ReorderQuestions(ctx context.Context, payload dto.ReorderRequest, actor Actor) error
}

type testService struct {
	tests     repository.TestRepository
	attempts  repository.AttemptRepository
	sections  repository.SectionRepository
	syncRepo  repository.SyncRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewTestService constructs the test service.
func NewTestService(
	tests repository.TestRepository,
	attempts repository.AttemptRepository,
	sections repository.SectionRepository,
	syncRepo repository.SyncRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) TestService {
	return &testService{
		tests:     tests,
		attempts:  attempts,
		sections:  sections,
		syncRepo:  syncRepo,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		activity:  activity,
		logger:    logger.With().Str("component", "test_service").Logger(),
	}
}

func (s *testService) Get(ctx context.Context, id uint) (models.Test, error) {
	test, err := s.tests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Test{}, ErrTestNotFound
		}
		return models.Test{}, err
	}
	return test, nil
}

func (s *testService) ListBySection(ctx context.Context, sectionID uint) ([]models.Test, error) {
	return s.tests.ListBySection(ctx, sectionID)
}

func (s *testService) Create(ctx context.Context, payload dto.TestCreateRequest, actor Actor) (models.Test, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Test{}, err
	}

	if _, err := s.sections.GetByID(ctx, payload.SectionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Test{}, ErrSectionNotFound
		}
		return models.Test{}, err
	}

	test := models.Test{
		CourseSectionID:       payload.SectionID,
		TeacherID:             actor.ID,
		Title:                 payload.Title,
		Description:           s.sanitizer.Sanitize(payload.Description),
		ScheduledAt:           payload.ScheduledAt,
		RevealResultsAt:       payload.RevealResultsAt,
		AllowMultipleAttempts: payload.AllowMultipleAttempts,
		MaxAttempts:           payload.MaxAttempts,
		ShowCorrectAnswers:    payload.ShowCorrectAnswers,
	}
	if test.MaxAttempts == 0 {
		test.MaxAttempts = 1
	}

	if err := s.tests.Create(ctx, &test); err != nil {
		return models.Test{}, err
	}

	s.recordTest(ctx, actor, "test.created", test.ID)
	return test, nil
}

func (s *testService) Update(ctx context.Context, id uint, payload dto.TestUpdateRequest, actor Actor) (models.Test, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Test{}, err
	}

	test, err := s.Get(ctx, id)
	if err != nil {
		return models.Test{}, err
	}

	if payload.Title != nil {
		test.Title = *payload.Title
	}
	if payload.Description != nil {
		test.Description = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.ScheduledAt != nil {
		test.ScheduledAt = payload.ScheduledAt
	}
	if payload.RevealResultsAt != nil {
		test.RevealResultsAt = payload.RevealResultsAt
	}
	if payload.AllowMultipleAttempts != nil {
		test.AllowMultipleAttempts = *payload.AllowMultipleAttempts
	}
	if payload.MaxAttempts != nil {
		test.MaxAttempts = *payload.MaxAttempts
	}
	if payload.ShowCorrectAnswers != nil {
		test.ShowCorrectAnswers = *payload.ShowCorrectAnswers
	}

	if err := s.tests.Update(ctx, &test); err != nil {
		return models.Test{}, err
	}

	s.recordTest(ctx, actor, "test.updated", test.ID)
	return test, nil
}

// Delete removes a test. Template tests cascade to still-linked clones
// the same way sections and assignments do.
func (s *testService) Delete(ctx context.Context, id uint, actor Actor) error {
	test, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	section, err := s.sections.GetByID(ctx, test.CourseSectionID)
	if err != nil {
		return err
	}

	if section.IsTemplate() {
		err = s.syncRepo.WithinTx(ctx, func(repo repository.SyncRepository) error {
			clones, err := repo.DerivedTestsByTemplate(ctx, test.ID)
			if err != nil {
				return err
			}
			for _, clone := range clones {
				if clone.IsUnlinkedFromTemplate {
					continue
				}
				if err := repo.DeleteTest(ctx, clone.ID); err != nil {
					return err
				}
			}
			return repo.DeleteTest(ctx, test.ID)
		})
	} else {
		err = s.tests.Delete(ctx, id)
	}
	if err != nil {
		return err
	}

	s.recordTest(ctx, actor, "test.deleted", id)
	return nil
}

func (s *testService) SetPublished(ctx context.Context, id uint, published bool, actor Actor) (models.Test, error) {
	test, err := s.Get(ctx, id)
	if err != nil {
		return models.Test{}, err
	}
	if test.IsPublished == published {
		return test, nil
	}

	test.IsPublished = published
	if err := s.tests.Update(ctx, &test); err != nil {
		return models.Test{}, err
	}

	action := "test.published"
	if !published {
		action = "test.unpublished"
	}
	s.recordTest(ctx, actor, action, test.ID)
	return test, nil
}

func (s *testService) AddQuestion(ctx context.Context, testID uint, payload dto.QuestionCreateRequest, actor Actor) (models.Question, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Question{}, err
	}

	questionType := models.QuestionType(payload.Type)
	if !models.ValidQuestionType(questionType) {
		return models.Question{}, ErrInvalidQuestionType
	}

	if _, err := s.Get(ctx, testID); err != nil {
		return models.Question{}, err
	}

	if err := validateQuestionShape(questionType, payload.Options, payload.MatchingPairs); err != nil {
		return models.Question{}, err
	}

	question := models.Question{
		TestID:            testID,
		Type:              questionType,
		Text:              payload.Text,
		Points:            payload.Points,
		SampleAnswer:      payload.SampleAnswer,
		KeyWords:          payload.KeyWords,
		CorrectAnswerText: payload.CorrectAnswerText,
		MatchingPairs:     datatypes.JSON(payload.MatchingPairs),
	}

	if payload.Position != nil {
		question.Position = *payload.Position
	} else {
		max, err := s.tests.MaxQuestionPosition(ctx, testID)
		if err != nil {
			return models.Question{}, err
		}
		question.Position = max + 1
	}
	for i, option := range payload.Options {
		position := i
		if option.Position != nil {
			position = *option.Position
		}
		question.Options = append(question.Options, models.Option{
			Text:      option.Text,
			ImageURL:  option.ImageURL,
			IsCorrect: option.IsCorrect,
			Position:  position,
		})
	}

	if err := s.tests.CreateQuestion(ctx, &question); err != nil {
		return models.Question{}, err
	}

	s.recordTest(ctx, actor, "test.question_added", testID)
	return question, nil
}

func (s *testService) UpdateQuestion(ctx context.Context, questionID uint, payload dto.QuestionUpdateRequest, actor Actor) (models.Question, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Question{}, err
	}

	question, err := s.tests.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Question{}, ErrQuestionNotFound
		}
		return models.Question{}, err
	}

	graded, err := s.attempts.QuestionHasGradedWork(ctx, questionID)
	if err != nil {
		return models.Question{}, err
	}

	if payload.Text != nil {
		question.Text = *payload.Text
	}
	if payload.Points != nil {
		question.Points = *payload.Points
	}
	if payload.SampleAnswer != nil {
		question.SampleAnswer = *payload.SampleAnswer
	}
	if payload.KeyWords != nil {
		question.KeyWords = *payload.KeyWords
	}
	if payload.CorrectAnswerText != nil {
		// Reference answers freeze once graded work depends on them.
		if graded {
			return models.Question{}, ErrQuestionHasGradedWork
		}
		question.CorrectAnswerText = *payload.CorrectAnswerText
	}
	if len(payload.MatchingPairs) > 0 {
		if err := validateMatchingPairs(payload.MatchingPairs); err != nil {
			return models.Question{}, err
		}
		question.MatchingPairs = datatypes.JSON(payload.MatchingPairs)
	}

	if err := s.tests.UpdateQuestion(ctx, &question); err != nil {
		return models.Question{}, err
	}

	s.recordTest(ctx, actor, "test.question_updated", question.TestID)
	return question, nil
}

func (s *testService) DeleteQuestion(ctx context.Context, questionID uint, actor Actor) error {
	question, err := s.tests.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	graded, err := s.attempts.QuestionHasGradedWork(ctx, questionID)
	if err != nil {
		return err
	}
	if graded {
		return ErrQuestionHasGradedWork
	}

	if err := s.tests.DeleteQuestion(ctx, questionID); err != nil {
		return err
	}

	s.recordTest(ctx, actor, "test.question_deleted", question.TestID)
	return nil
}

func (s *testService) AddOption(ctx context.Context, questionID uint, payload dto.OptionRequest, actor Actor) (models.Option, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Option{}, err
	}

	question, err := s.tests.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Option{}, ErrQuestionNotFound
		}
		return models.Option{}, err
	}
	if question.Type != models.QuestionTypeMultipleChoice && question.Type != models.QuestionTypeChooseAll {
		return models.Option{}, ErrInvalidOptions
	}

	position := len(question.Options)
	if payload.Position != nil {
		position = *payload.Position
	}

	option := models.Option{
		QuestionID: questionID,
		Text:       payload.Text,
		ImageURL:   payload.ImageURL,
		IsCorrect:  payload.IsCorrect,
		Position:   position,
	}
	if err := s.tests.CreateOption(ctx, &option); err != nil {
		return models.Option{}, err
	}

	s.recordTest(ctx, actor, "test.option_added", question.TestID)
	return option, nil
}

func (s *testService) DeleteOption(ctx context.Context, questionID, optionID uint, actor Actor) error {
	question, err := s.tests.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	found := false
	for _, option := range question.Options {
		if option.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return ErrOptionNotFound
	}

	graded, err := s.attempts.QuestionHasGradedWork(ctx, questionID)
	if err != nil {
		return err
	}
	if graded {
		return ErrQuestionHasGradedWork
	}

	if err := s.tests.DeleteOption(ctx, optionID); err != nil {
		return err
	}

	s.recordTest(ctx, actor, "test.option_deleted", question.TestID)
	return nil
}

func (s *testService) ReorderQuestions(ctx context.Context, payload dto.ReorderRequest, actor Actor) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	items := make([]repository.ReorderItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, repository.ReorderItem{ID: item.ID, Position: item.Position})
	}
	if err := s.tests.ReorderQuestions(ctx, items); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrQuestionNotFound
		}
		return err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "test.questions_reordered",
		EntityType: "test",
		Metadata: map[string]interface{}{
			"count": len(items),
		},
	})
	return nil
}

// validateQuestionShape enforces the per-type structural rules: select
// questions need options with the right correct counts, matching
// questions need a valid pair set, and neither carries the other's
// configuration.
func validateQuestionShape(questionType models.QuestionType, options []dto.OptionRequest, pairs json.RawMessage) error {
	switch questionType {
	case models.QuestionTypeMultipleChoice:
		if len(options) < 2 || countCorrect(options) != 1 {
			return ErrInvalidOptions
		}
	case models.QuestionTypeChooseAll:
		if len(options) < 2 || countCorrect(options) < 1 {
			return ErrInvalidOptions
		}
	case models.QuestionTypeOpen:
		if len(options) > 0 {
			return ErrInvalidOptions
		}
	case models.QuestionTypeMatching:
		if len(options) > 0 {
			return ErrInvalidOptions
		}
		if err := validateMatchingPairs(pairs); err != nil {
			return err
		}
	}
	return nil
}

func countCorrect(options []dto.OptionRequest) int {
	count := 0
	for _, option := range options {
		if option.IsCorrect {
			count++
		}
	}
	return count
}

func validateMatchingPairs(raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ErrInvalidMatchingPairs
	}

	var payload interface{}
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&payload); err != nil {
		return ErrInvalidMatchingPairs
	}

	if err := compiledMatchingPairsSchema.Validate(payload); err != nil {
		return ErrInvalidMatchingPairs
	}
	return nil
}

func (s *testService) recordTest(ctx context.Context, actor Actor, action string, id uint) {
	testID := id
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "test",
		EntityID:   &testID,
	})
}
