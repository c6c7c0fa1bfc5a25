package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

type attemptFixture struct {
	db  *gorm.DB
	svc AttemptService
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	db := newTestDB(t)
	svc := NewAttemptService(
		repository.NewAttemptRepository(db),
		repository.NewTestRepository(db),
		nil, testLogger(),
	)
	return &attemptFixture{db: db, svc: svc}
}

// publishedTest creates a test with one multiple-choice question (two
// options, first correct) and one open keyword question.
func (f *attemptFixture) publishedTest(t *testing.T) (models.Test, models.Question, models.Question, models.Option) {
	t.Helper()

	section := models.CourseSection{Title: "Week 1", Position: 1}
	require.NoError(t, f.db.Create(&section).Error)
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)

	choice := models.Question{TestID: test.ID, Type: models.QuestionTypeMultipleChoice, Text: "Pick one", Points: 2, Position: 0}
	require.NoError(t, f.db.Create(&choice).Error)
	correct := models.Option{QuestionID: choice.ID, Text: "Right", IsCorrect: true, Position: 0}
	require.NoError(t, f.db.Create(&correct).Error)
	require.NoError(t, f.db.Create(&models.Option{QuestionID: choice.ID, Text: "Wrong", Position: 1}).Error)

	open := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Explain", Points: 3, Position: 1, KeyWords: "mitochondria"}
	require.NoError(t, f.db.Create(&open).Error)

	return test, choice, open, correct
}

func TestStartAttemptRequiresPublishedTest(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	section := models.CourseSection{Title: "Week 1", Position: 1}
	require.NoError(t, f.db.Create(&section).Error)
	draft := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Draft", MaxAttempts: 1}
	require.NoError(t, f.db.Create(&draft).Error)

	_, err := f.svc.StartAttempt(ctx, draft.ID, 5)
	require.ErrorIs(t, err, ErrTestNotPublished)

	_, err = f.svc.StartAttempt(ctx, 9999, 5)
	require.ErrorIs(t, err, ErrTestNotFound)
}

func TestStartAttemptEnforcesAttemptLimit(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, _, _, _ := f.publishedTest(t)

	first, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 1, first.AttemptNumber)
	require.NotNil(t, first.StartedAt)

	_, err = f.svc.StartAttempt(ctx, test.ID, 5)
	require.ErrorIs(t, err, ErrMaxAttemptsReached)

	// Another student is unaffected.
	_, err = f.svc.StartAttempt(ctx, test.ID, 6)
	require.NoError(t, err)
}

func TestStartAttemptUnlimitedWhenMaxIsZero(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, _, _, _ := f.publishedTest(t)
	require.NoError(t, f.db.Model(&test).Updates(map[string]interface{}{
		"allow_multiple_attempts": true,
		"max_attempts":            0,
	}).Error)

	for i := 0; i < 3; i++ {
		_, err := f.svc.StartAttempt(ctx, test.ID, 5)
		require.NoError(t, err)
	}
}

func TestSubmitAnswerGuards(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, choice, _, correct := f.publishedTest(t)

	attempt, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)

	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 77, AnswerInput{})
	require.ErrorIs(t, err, ErrPermissionDenied)

	// Option ids from another question are rejected.
	otherSection := models.CourseSection{Title: "Week 2", Position: 2}
	require.NoError(t, f.db.Create(&otherSection).Error)
	otherTest := models.Test{CourseSectionID: otherSection.ID, TeacherID: 1, Title: "Other", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&otherTest).Error)
	foreignQuestion := models.Question{TestID: otherTest.ID, Type: models.QuestionTypeMultipleChoice, Text: "Foreign", Points: 1, Position: 0}
	require.NoError(t, f.db.Create(&foreignQuestion).Error)
	foreignOption := models.Option{QuestionID: foreignQuestion.ID, Text: "X", Position: 0}
	require.NoError(t, f.db.Create(&foreignOption).Error)

	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{SelectedOptionIDs: []uint{foreignOption.ID}})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, foreignQuestion.ID, 5, AnswerInput{})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	// A resubmission replaces the previous response.
	answer, err := f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{SelectedOptionIDs: []uint{correct.ID}})
	require.NoError(t, err)
	require.Len(t, answer.SelectedOptions, 1)

	answer, err = f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{})
	require.NoError(t, err)
	require.Empty(t, answer.SelectedOptions)

	var count int64
	require.NoError(t, f.db.Model(&models.Answer{}).Where("attempt_id = ?", attempt.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSubmitAttemptAutoGradesAndZeroFills(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, choice, open, correct := f.publishedTest(t)

	attempt, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{SelectedOptionIDs: []uint{correct.ID}})
	require.NoError(t, err)

	graded, err := f.svc.SubmitAttempt(ctx, attempt.ID, 5)
	require.NoError(t, err)
	require.True(t, graded.IsCompleted)
	require.True(t, graded.IsGraded)
	require.NotNil(t, graded.SubmittedAt)
	require.NotNil(t, graded.GradedAt)
	require.Equal(t, 2.0, *graded.Score)
	require.Equal(t, 5.0, *graded.MaxScore)
	require.Equal(t, 40.0, *graded.Percentage)

	// The unanswered open question got an explicit zero-score answer.
	var blank models.Answer
	require.NoError(t, f.db.Where("attempt_id = ? AND question_id = ?", attempt.ID, open.ID).First(&blank).Error)
	require.NotNil(t, blank.Score)
	require.Equal(t, 0.0, *blank.Score)
	require.Equal(t, 3.0, *blank.MaxScore)
	require.False(t, *blank.IsCorrect)

	_, err = f.svc.SubmitAttempt(ctx, attempt.ID, 5)
	require.ErrorIs(t, err, ErrAttemptAlreadySubmitted)
}

func TestSubmitAttemptKeywordGrading(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, choice, open, correct := f.publishedTest(t)

	attempt, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{SelectedOptionIDs: []uint{correct.ID}})
	require.NoError(t, err)
	_, err = f.svc.SubmitAnswer(ctx, attempt.ID, open.ID, 5, AnswerInput{TextAnswer: "The Mitochondria is the powerhouse of the cell"})
	require.NoError(t, err)

	graded, err := f.svc.SubmitAttempt(ctx, attempt.ID, 5)
	require.NoError(t, err)
	require.True(t, graded.IsGraded)
	require.Equal(t, 5.0, *graded.Score)
	require.Equal(t, 100.0, *graded.Percentage)
}

func TestManualReviewAndBulkGrade(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	section := models.CourseSection{Title: "Week 1", Position: 1}
	require.NoError(t, f.db.Create(&section).Error)
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Essay", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	// No keywords and no reference answer: auto-grading cannot score it.
	essay := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Discuss", Points: 4, Position: 0}
	require.NoError(t, f.db.Create(&essay).Error)

	attempt, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)
	answer, err := f.svc.SubmitAnswer(ctx, attempt.ID, essay.ID, 5, AnswerInput{TextAnswer: "A long discussion"})
	require.NoError(t, err)

	_, err = f.svc.BulkGrade(ctx, []AnswerGrade{{AnswerID: answer.ID, Score: 4}}, Actor{ID: 1, Role: "teacher"})
	require.ErrorIs(t, err, ErrAttemptNotSubmitted)

	submitted, err := f.svc.SubmitAttempt(ctx, attempt.ID, 5)
	require.NoError(t, err)
	require.False(t, submitted.IsGraded)
	require.Nil(t, submitted.GradedAt)
	require.Equal(t, 0.0, *submitted.Score)

	graded, err := f.svc.BulkGrade(ctx, []AnswerGrade{
		{AnswerID: answer.ID, Score: 4, Feedback: "Well argued"},
	}, Actor{ID: 1, Role: "teacher"})
	require.NoError(t, err)
	require.Len(t, graded, 1)
	require.Equal(t, 4.0, *graded[0].Score)

	regraded, err := f.svc.GetAttempt(ctx, attempt.ID)
	require.NoError(t, err)
	require.True(t, regraded.IsGraded)
	require.Equal(t, 4.0, *regraded.Score)
	require.Equal(t, 100.0, *regraded.Percentage)

	var stored models.Answer
	require.NoError(t, f.db.First(&stored, answer.ID).Error)
	require.Equal(t, "Well argued", stored.TeacherFeedback)
	require.NotNil(t, stored.IsCorrect)
	require.True(t, *stored.IsCorrect, "full score marks the answer correct")
}

func TestBulkGradeSpansAttempts(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()

	section := models.CourseSection{Title: "Week 1", Position: 1}
	require.NoError(t, f.db.Create(&section).Error)
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Essay", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	essay := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Discuss", Points: 4, Position: 0}
	require.NoError(t, f.db.Create(&essay).Error)

	// Two students, one submitted attempt each.
	var answers []models.Answer
	var attemptIDs []uint
	for _, studentID := range []uint{5, 6} {
		attempt, err := f.svc.StartAttempt(ctx, test.ID, studentID)
		require.NoError(t, err)
		answer, err := f.svc.SubmitAnswer(ctx, attempt.ID, essay.ID, studentID, AnswerInput{TextAnswer: "A discussion"})
		require.NoError(t, err)
		_, err = f.svc.SubmitAttempt(ctx, attempt.ID, studentID)
		require.NoError(t, err)
		answers = append(answers, answer)
		attemptIDs = append(attemptIDs, attempt.ID)
	}

	_, err := f.svc.BulkGrade(ctx, []AnswerGrade{{AnswerID: 9999, Score: 1}}, Actor{ID: 1, Role: "teacher"})
	require.ErrorIs(t, err, ErrAnswerNotFound)

	graded, err := f.svc.BulkGrade(ctx, []AnswerGrade{
		{AnswerID: answers[0].ID, Score: 4, Feedback: "Strong"},
		{AnswerID: answers[1].ID, Score: 2},
	}, Actor{ID: 1, Role: "teacher"})
	require.NoError(t, err)
	require.Len(t, graded, 2)

	// Both attempts had their totals recomputed.
	first, err := f.svc.GetAttempt(ctx, attemptIDs[0])
	require.NoError(t, err)
	require.True(t, first.IsGraded)
	require.Equal(t, 4.0, *first.Score)
	require.Equal(t, 100.0, *first.Percentage)

	second, err := f.svc.GetAttempt(ctx, attemptIDs[1])
	require.NoError(t, err)
	require.True(t, second.IsGraded)
	require.Equal(t, 2.0, *second.Score)
	require.Equal(t, 50.0, *second.Percentage)
}

func TestUpdateAnswerScoreBounds(t *testing.T) {
	f := newAttemptFixture(t)
	ctx := context.Background()
	test, choice, _, correct := f.publishedTest(t)

	attempt, err := f.svc.StartAttempt(ctx, test.ID, 5)
	require.NoError(t, err)
	answer, err := f.svc.SubmitAnswer(ctx, attempt.ID, choice.ID, 5, AnswerInput{SelectedOptionIDs: []uint{correct.ID}})
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(ctx, attempt.ID, 5)
	require.NoError(t, err)

	_, err = f.svc.UpdateAnswerScore(ctx, answer.ID, 5, "", Actor{ID: 1, Role: "teacher"})
	require.ErrorIs(t, err, ErrScoreOutOfRange)

	regraded, err := f.svc.UpdateAnswerScore(ctx, answer.ID, 1, "partial credit", Actor{ID: 1, Role: "teacher"})
	require.NoError(t, err)
	require.Equal(t, 1.0, *regraded.Score)
	require.Equal(t, 20.0, *regraded.Percentage)
}
