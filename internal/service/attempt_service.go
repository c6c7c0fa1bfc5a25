package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/grading"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/observability"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrTestNotFound indicates the test does not exist.
var ErrTestNotFound = errors.New("test not found")

// ErrTestNotPublished indicates students cannot see the test yet.
var ErrTestNotPublished = errors.New("test is not published")

// ErrAttemptNotFound indicates the attempt does not exist.
var ErrAttemptNotFound = errors.New("attempt not found")

// ErrAttemptAlreadySubmitted indicates the attempt was already finalized.
var ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")

// ErrAttemptNotSubmitted indicates a grading operation hit a live attempt.
var ErrAttemptNotSubmitted = errors.New("attempt not submitted yet")

// ErrMaxAttemptsReached indicates the student used up all attempts.
var ErrMaxAttemptsReached = errors.New("maximum attempts reached")

// ErrQuestionNotFound indicates the question does not exist on the test.
var ErrQuestionNotFound = errors.New("question not found")

// ErrAnswerNotFound indicates the referenced answer does not exist.
var ErrAnswerNotFound = errors.New("answer not found")

// ErrScoreOutOfRange indicates a manual score outside [0, max_score].
var ErrScoreOutOfRange = errors.New("score out of range")

// AnswerInput carries a student's response to one question.
type AnswerInput struct {
	TextAnswer        string         `json:"text_answer"`
	SelectedOptionIDs []uint         `json:"selected_option_ids"`
	MatchPairs        datatypes.JSON `json:"match_pairs"`
}

// AnswerGrade is one manual grading decision in a bulk grade call.
type AnswerGrade struct {
	AnswerID uint    `json:"answer_id" validate:"required"`
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// AttemptService runs the student side of testing (start, answer,
// submit) and the teacher side of manual grading.
type AttemptService interface {
	StartAttempt(ctx context.Context, testID, studentID uint) (models.Attempt, error)
	SubmitAnswer(ctx context.Context, attemptID, questionID, studentID uint, input AnswerInput) (models.Answer, error)
	SubmitAttempt(ctx context.Context, attemptID, studentID uint) (models.Attempt, error)
	GetAttempt(ctx context.Context, attemptID uint) (models.Attempt, error)
	BulkGrade(ctx context.Context, grades []AnswerGrade, actor Actor) ([]models.Answer, error)
	UpdateAnswerScore(ctx context.Context, answerID uint, score float64, feedback string, actor Actor) (models.Attempt, error)
}

type attemptService struct {
	attempts repository.AttemptRepository
	tests    repository.TestRepository
	activity ActivityRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAttemptService constructs the attempt service.
func NewAttemptService(
	attempts repository.AttemptRepository,
	tests repository.TestRepository,
	activity ActivityRecorder,
	logger zerolog.Logger,
) AttemptService {
	return &attemptService{
		attempts: attempts,
		tests:    tests,
		activity: activity,
		logger:   logger.With().Str("component", "attempt_service").Logger(),
		now:      time.Now,
	}
}

func (s *attemptService) StartAttempt(ctx context.Context, testID, studentID uint) (models.Attempt, error) {
	test, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrTestNotFound
		}
		return models.Attempt{}, err
	}
	if !test.IsPublished {
		return models.Attempt{}, ErrTestNotPublished
	}

	count, err := s.attempts.CountByTestAndStudent(ctx, testID, studentID)
	if err != nil {
		return models.Attempt{}, err
	}
	limit := int64(1)
	if test.AllowMultipleAttempts {
		limit = int64(test.MaxAttempts)
	}
	if limit > 0 && count >= limit {
		return models.Attempt{}, ErrMaxAttemptsReached
	}

	started := s.now()
	attempt := models.Attempt{
		TestID:        testID,
		StudentID:     studentID,
		AttemptNumber: int(count) + 1,
		StartedAt:     &started,
	}
	if err := s.attempts.Create(ctx, &attempt); err != nil {
		return models.Attempt{}, err
	}

	s.logger.Info().
		Uint("test_id", testID).
		Uint("student_id", studentID).
		Int("attempt_number", attempt.AttemptNumber).
		Msg("attempt started")

	return attempt, nil
}

// SubmitAnswer saves or replaces the student's response to a question.
// Responses are mutable until the attempt is submitted.
func (s *attemptService) SubmitAnswer(ctx context.Context, attemptID, questionID, studentID uint, input AnswerInput) (models.Answer, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Answer{}, ErrAttemptNotFound
		}
		return models.Answer{}, err
	}
	if attempt.StudentID != studentID {
		return models.Answer{}, ErrPermissionDenied
	}
	if attempt.IsSubmitted() {
		return models.Answer{}, ErrAttemptAlreadySubmitted
	}

	question, err := s.tests.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Answer{}, ErrQuestionNotFound
		}
		return models.Answer{}, err
	}
	if question.TestID != attempt.TestID {
		return models.Answer{}, ErrQuestionNotFound
	}

	selected, err := selectedFromQuestion(question, input.SelectedOptionIDs)
	if err != nil {
		return models.Answer{}, err
	}

	answer, err := s.attempts.FindAnswer(ctx, attemptID, questionID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		answer = models.Answer{
			AttemptID:  attemptID,
			QuestionID: questionID,
			TextAnswer: input.TextAnswer,
			MatchPairs: input.MatchPairs,
		}
		if err := s.attempts.CreateAnswer(ctx, &answer); err != nil {
			return models.Answer{}, err
		}
	case err != nil:
		return models.Answer{}, err
	default:
		answer.TextAnswer = input.TextAnswer
		answer.MatchPairs = input.MatchPairs
		if err := s.attempts.UpdateAnswer(ctx, &answer); err != nil {
			return models.Answer{}, err
		}
	}

	if err := s.attempts.ReplaceSelectedOptions(ctx, &answer, selected); err != nil {
		return models.Answer{}, err
	}
	answer.SelectedOptions = selected

	return answer, nil
}

// selectedFromQuestion resolves submitted option ids against the
// question's own options, rejecting ids from other questions.
func selectedFromQuestion(question models.Question, ids []uint) ([]models.Option, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[uint]models.Option, len(question.Options))
	for _, option := range question.Options {
		byID[option.ID] = option
	}
	selected := make([]models.Option, 0, len(ids))
	for _, id := range ids {
		option, ok := byID[id]
		if !ok {
			return nil, ErrQuestionNotFound
		}
		selected = append(selected, option)
	}
	return selected, nil
}

// SubmitAttempt finalizes the attempt and auto-grades every question in
// one transaction. The row lock makes a concurrent double submit lose
// with ErrAttemptAlreadySubmitted instead of grading twice.
func (s *attemptService) SubmitAttempt(ctx context.Context, attemptID, studentID uint) (models.Attempt, error) {
	tracer := otel.Tracer("github.com/sabaq-dev/sabaq-api/internal/service/attempt")
	ctx, span := tracer.Start(ctx, "attempt.submit")
	span.SetAttributes(attribute.Int64("attempt.id", int64(attemptID)))
	defer span.End()

	var graded models.Attempt
	err := s.attempts.WithinTx(ctx, func(repo repository.AttemptRepository) error {
		locked, err := repo.GetForUpdate(ctx, attemptID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAttemptNotFound
			}
			return err
		}
		if locked.StudentID != studentID {
			return ErrPermissionDenied
		}
		if locked.IsSubmitted() {
			return ErrAttemptAlreadySubmitted
		}

		attempt, err := repo.GetByID(ctx, attemptID)
		if err != nil {
			return err
		}

		test, err := s.tests.GetByID(ctx, attempt.TestID)
		if err != nil {
			return err
		}

		graded, err = s.gradeAttempt(ctx, repo, attempt, test)
		return err
	})
	if err != nil {
		return models.Attempt{}, err
	}

	outcome := "auto"
	if !graded.IsGraded {
		outcome = "manual_review"
	}
	observability.AttemptsGraded().WithLabelValues(outcome).Inc()

	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    studentID,
		ActorRole:  "student",
		Action:     "attempt.submitted",
		EntityType: "attempt",
		EntityID:   &graded.ID,
		Metadata: map[string]interface{}{
			"test_id":   graded.TestID,
			"is_graded": graded.IsGraded,
		},
	})

	return graded, nil
}

// gradeAttempt scores every question of the test. Questions the student
// never answered get an explicit zero-score answer so the attempt's
// breakdown is complete.
func (s *attemptService) gradeAttempt(ctx context.Context, repo repository.AttemptRepository, attempt models.Attempt, test models.Test) (models.Attempt, error) {
	answerByQuestion := make(map[uint]models.Answer, len(attempt.Answers))
	for _, answer := range attempt.Answers {
		answerByQuestion[answer.QuestionID] = answer
	}

	allScored := true
	for _, question := range test.Questions {
		answer, answered := answerByQuestion[question.ID]
		if !answered {
			zero := 0.0
			maxScore := question.Points
			wrong := false
			blank := models.Answer{
				AttemptID:  attempt.ID,
				QuestionID: question.ID,
				Score:      &zero,
				MaxScore:   &maxScore,
				IsCorrect:  &wrong,
			}
			if err := repo.CreateAnswer(ctx, &blank); err != nil {
				return models.Attempt{}, err
			}
			continue
		}

		answer.Question = question
		result, err := grading.Score(question, answer)
		if err != nil {
			return models.Attempt{}, err
		}

		maxScore := question.Points
		answer.MaxScore = &maxScore
		if result.NeedsManualReview {
			answer.Score = nil
			answer.IsCorrect = nil
			allScored = false
			observability.ManualReviewQueued().Inc()
		} else {
			points := result.Points
			correct := points == question.Points
			answer.Score = &points
			answer.IsCorrect = &correct
		}
		if err := repo.UpdateAnswer(ctx, &answer); err != nil {
			return models.Attempt{}, err
		}
		answerByQuestion[question.ID] = answer
	}

	now := s.now()
	attempt.SubmittedAt = &now
	attempt.IsCompleted = true
	applyAttemptTotals(&attempt, test, answerByQuestion, allScored, now)

	if err := repo.Update(ctx, &attempt); err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}

// applyAttemptTotals recomputes the attempt's aggregate score. The
// attempt counts as graded only once every answer has a score.
func applyAttemptTotals(attempt *models.Attempt, test models.Test, answers map[uint]models.Answer, allScored bool, now time.Time) {
	total := 0.0
	for _, answer := range answers {
		if answer.Score != nil {
			total += *answer.Score
		}
	}
	maxScore := test.TotalPoints()

	attempt.Score = &total
	attempt.MaxScore = &maxScore
	percentage := 0.0
	if maxScore > 0 {
		percentage = total / maxScore * 100
	}
	attempt.Percentage = &percentage

	if allScored {
		attempt.IsGraded = true
		if attempt.GradedAt == nil {
			attempt.GradedAt = &now
		}
	} else {
		attempt.IsGraded = false
		attempt.GradedAt = nil
	}
}

func (s *attemptService) GetAttempt(ctx context.Context, attemptID uint) (models.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Attempt{}, ErrAttemptNotFound
		}
		return models.Attempt{}, err
	}
	return attempt, nil
}

// BulkGrade applies a batch of manual grading decisions. Items may
// span attempts: they are grouped by the owning attempt, and each
// attempt is regraded and its totals recomputed in its own
// transaction. Every target attempt must already be submitted. An
// answer graded here is marked correct exactly when the score equals
// its max score.
func (s *attemptService) BulkGrade(ctx context.Context, grades []AnswerGrade, actor Actor) ([]models.Answer, error) {
	var attemptOrder []uint
	byAttempt := make(map[uint][]AnswerGrade)
	for _, grade := range grades {
		answer, err := s.attempts.GetAnswerByID(ctx, grade.AnswerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrAnswerNotFound
			}
			return nil, err
		}
		if _, ok := byAttempt[answer.AttemptID]; !ok {
			attemptOrder = append(attemptOrder, answer.AttemptID)
		}
		byAttempt[answer.AttemptID] = append(byAttempt[answer.AttemptID], grade)
	}

	graded := make([]models.Answer, 0, len(grades))
	for _, attemptID := range attemptOrder {
		batch := byAttempt[attemptID]
		var updated []models.Answer
		err := s.attempts.WithinTx(ctx, func(repo repository.AttemptRepository) error {
			attempt, err := repo.GetByID(ctx, attemptID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAttemptNotFound
				}
				return err
			}
			if !attempt.IsSubmitted() {
				return ErrAttemptNotSubmitted
			}

			answerByID := make(map[uint]models.Answer, len(attempt.Answers))
			for _, answer := range attempt.Answers {
				answerByID[answer.ID] = answer
			}

			updated = updated[:0]
			for _, grade := range batch {
				answer, ok := answerByID[grade.AnswerID]
				if !ok {
					return ErrAnswerNotFound
				}
				if err := applyManualScore(&answer, grade.Score, grade.Feedback); err != nil {
					return err
				}
				if err := repo.UpdateAnswer(ctx, &answer); err != nil {
					return err
				}
				answerByID[answer.ID] = answer
				updated = append(updated, answer)
			}

			_, err = s.recomputeAttempt(ctx, repo, attempt, answerByID)
			return err
		})
		if err != nil {
			return nil, err
		}
		graded = append(graded, updated...)

		gradedAttemptID := attemptID
		recordActivity(ctx, s.activity, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "attempt.graded",
			EntityType: "attempt",
			EntityID:   &gradedAttemptID,
			Metadata: map[string]interface{}{
				"answers_graded": len(batch),
			},
		})
	}

	return graded, nil
}

// UpdateAnswerScore overrides the score of a single answer and brings
// the owning attempt's totals back in line.
func (s *attemptService) UpdateAnswerScore(ctx context.Context, answerID uint, score float64, feedback string, actor Actor) (models.Attempt, error) {
	var regraded models.Attempt
	err := s.attempts.WithinTx(ctx, func(repo repository.AttemptRepository) error {
		answer, err := repo.GetAnswerByID(ctx, answerID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAnswerNotFound
			}
			return err
		}

		attempt, err := repo.GetByID(ctx, answer.AttemptID)
		if err != nil {
			return err
		}
		if !attempt.IsSubmitted() {
			return ErrAttemptNotSubmitted
		}

		if err := applyManualScore(&answer, score, feedback); err != nil {
			return err
		}
		if err := repo.UpdateAnswer(ctx, &answer); err != nil {
			return err
		}

		answerByID := make(map[uint]models.Answer, len(attempt.Answers))
		for _, existing := range attempt.Answers {
			answerByID[existing.ID] = existing
		}
		answerByID[answer.ID] = answer

		regraded, err = s.recomputeAttempt(ctx, repo, attempt, answerByID)
		return err
	})
	if err != nil {
		return models.Attempt{}, err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "answer.score_updated",
		EntityType: "answer",
		EntityID:   &answerID,
		Metadata: map[string]interface{}{
			"score": score,
		},
	})

	return regraded, nil
}

func applyManualScore(answer *models.Answer, score float64, feedback string) error {
	maxScore := answer.Question.Points
	if answer.MaxScore != nil {
		maxScore = *answer.MaxScore
	}
	if score < 0 || score > maxScore {
		return ErrScoreOutOfRange
	}

	answer.Score = &score
	if answer.MaxScore == nil {
		answer.MaxScore = &maxScore
	}
	correct := score == maxScore
	answer.IsCorrect = &correct
	if feedback != "" {
		answer.TeacherFeedback = feedback
	}
	return nil
}

func (s *attemptService) recomputeAttempt(ctx context.Context, repo repository.AttemptRepository, attempt models.Attempt, answers map[uint]models.Answer) (models.Attempt, error) {
	test, err := s.tests.GetByID(ctx, attempt.TestID)
	if err != nil {
		return models.Attempt{}, err
	}

	allScored := true
	for _, answer := range answers {
		if answer.Score == nil {
			allScored = false
			break
		}
	}

	applyAttemptTotals(&attempt, test, answers, allScored, s.now())
	if err := repo.Update(ctx, &attempt); err != nil {
		return models.Attempt{}, err
	}
	return attempt, nil
}
