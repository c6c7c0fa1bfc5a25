package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

var academicStart2026 = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

func TestSyncCourseClonesTemplateTreeAndIsIdempotent(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))

	dir := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeDirectory, Title: "Materials", Position: 0}
	require.NoError(t, f.db.Create(&dir).Error)
	link := models.Resource{CourseSectionID: section.ID, ParentResourceID: &dir.ID, Type: models.ResourceTypeLink, Title: "Reading", URL: "https://example.com/cells", Position: 0}
	require.NoError(t, f.db.Create(&link).Error)

	offset := 2
	dueTime := "09:30"
	assignment := models.Assignment{
		CourseSectionID:         section.ID,
		TeacherID:               1,
		Title:                   "Lab report",
		MaxGrade:                10,
		TemplateStartOffsetDays: &offset,
		TemplateDueTime:         &dueTime,
	}
	require.NoError(t, f.db.Create(&assignment).Error)
	attachment := models.AssignmentAttachment{AssignmentID: assignment.ID, Type: models.AttachmentTypeText, Title: "Rubric", Content: "Grading rubric", Position: 0}
	require.NoError(t, f.db.Create(&attachment).Error)

	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz 1", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	q1 := models.Question{TestID: test.ID, Type: models.QuestionTypeMultipleChoice, Text: "Pick one", Points: 2, Position: 0}
	require.NoError(t, f.db.Create(&q1).Error)
	require.NoError(t, f.db.Create(&models.Option{QuestionID: q1.ID, Text: "A", IsCorrect: true, Position: 0}).Error)
	require.NoError(t, f.db.Create(&models.Option{QuestionID: q1.ID, Text: "B", Position: 1}).Error)
	q2 := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Explain", Points: 3, Position: 1, CorrectAnswerText: "mitochondria"}
	require.NoError(t, f.db.Create(&q2).Error)

	summary, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{ID: 1, Role: "admin"})
	require.NoError(t, err)
	require.Len(t, summary.Targets, 1)
	require.Empty(t, summary.Targets[0].Error)
	require.Equal(t, 10, summary.Totals.Created)
	require.Zero(t, summary.Totals.Updated)
	require.Zero(t, summary.Totals.Deleted)

	var derivedSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&derivedSection).Error)
	require.Equal(t, "Week 1", derivedSection.Title)
	require.NotNil(t, derivedSection.StartDate)
	require.True(t, derivedSection.StartDate.Equal(academicStart2026))
	require.True(t, derivedSection.EndDate.Equal(academicStart2026.AddDate(0, 0, 6)))

	var derivedLink models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, link.ID).First(&derivedLink).Error)
	require.NotNil(t, derivedLink.ParentResourceID)
	require.Equal(t, "https://example.com/cells", derivedLink.URL)

	var derivedAssignment models.Assignment
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, assignment.ID).First(&derivedAssignment).Error)
	require.NotNil(t, derivedAssignment.DueAt)
	wantDue := time.Date(2026, time.September, 3, 9, 30, 0, 0, time.UTC)
	require.True(t, derivedAssignment.DueAt.Equal(wantDue))

	var derivedTest models.Test
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, test.ID).First(&derivedTest).Error)
	require.True(t, derivedTest.IsPublished)

	var questionCount int64
	require.NoError(t, f.db.Model(&models.Question{}).Where("test_id = ?", derivedTest.ID).Count(&questionCount).Error)
	require.EqualValues(t, 2, questionCount)

	// A second run must not touch anything.
	again, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{ID: 1, Role: "admin"})
	require.NoError(t, err)
	require.Zero(t, again.Totals.Created)
	require.Zero(t, again.Totals.Updated)
	require.Zero(t, again.Totals.Deleted)
	require.Equal(t, 10, again.Totals.Preserved)
}

func TestSyncUpdatesDriftedFieldsOnly(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 2", 2, intPtr(1))
	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("id = ?", section.ID).Update("title", "Week 2: Cells").Error)

	summary, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Totals.Updated)

	var derived models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&derived).Error)
	require.Equal(t, "Week 2: Cells", derived.Title)
}

func TestSyncReconcilesAssignmentAttachments(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	assignment := models.Assignment{CourseSectionID: section.ID, TeacherID: 1, Title: "Lab report", MaxGrade: 10}
	require.NoError(t, f.db.Create(&assignment).Error)
	rubric := models.AssignmentAttachment{AssignmentID: assignment.ID, Type: models.AttachmentTypeText, Title: "Rubric", Content: "v1", Position: 0}
	require.NoError(t, f.db.Create(&rubric).Error)
	reading := models.AssignmentAttachment{AssignmentID: assignment.ID, Type: models.AttachmentTypeLink, Title: "Reading", FileURL: "https://example.com/paper", Position: 1}
	require.NoError(t, f.db.Create(&reading).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedAssignment models.Assignment
	require.NoError(t, f.db.Where("template_ref_id = ?", assignment.ID).First(&derivedAssignment).Error)
	var derivedCount int64
	require.NoError(t, f.db.Model(&models.AssignmentAttachment{}).Where("assignment_id = ?", derivedAssignment.ID).Count(&derivedCount).Error)
	require.EqualValues(t, 2, derivedCount)

	// Template edits: the rubric changes content, the link goes away
	// and a text attachment takes over its position.
	require.NoError(t, f.db.Model(&models.AssignmentAttachment{}).Where("id = ?", rubric.ID).Update("content", "v2").Error)
	require.NoError(t, f.db.Delete(&models.AssignmentAttachment{}, reading.ID).Error)
	notes := models.AssignmentAttachment{AssignmentID: assignment.ID, Type: models.AttachmentTypeText, Title: "Notes", Content: "remember units", Position: 1}
	require.NoError(t, f.db.Create(&notes).Error)

	summary, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Totals.Created)
	require.Equal(t, 1, summary.Totals.Updated)
	require.Equal(t, 1, summary.Totals.Deleted)

	var attachments []models.AssignmentAttachment
	require.NoError(t, f.db.Where("assignment_id = ?", derivedAssignment.ID).Order("position").Find(&attachments).Error)
	require.Len(t, attachments, 2)
	require.Equal(t, models.AttachmentTypeText, attachments[0].Type)
	require.Equal(t, "v2", attachments[0].Content)
	require.Equal(t, models.AttachmentTypeText, attachments[1].Type)
	require.Equal(t, "Notes", attachments[1].Title)

	var linkCount int64
	require.NoError(t, f.db.Model(&models.AssignmentAttachment{}).
		Where("assignment_id = ? AND type = ?", derivedAssignment.ID, models.AttachmentTypeLink).
		Count(&linkCount).Error)
	require.Zero(t, linkCount, "the re-keyed position sheds its old attachment")
}

func TestSyncFreezesAnswerKeyOnceGraded(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	question := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Define osmosis", Points: 2, Position: 0, CorrectAnswerText: "diffusion of water"}
	require.NoError(t, f.db.Create(&question).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedTest models.Test
	require.NoError(t, f.db.Where("template_ref_id = ?", test.ID).First(&derivedTest).Error)
	var derivedQuestion models.Question
	require.NoError(t, f.db.Where("test_id = ?", derivedTest.ID).First(&derivedQuestion).Error)

	// A submitted attempt with an answer to the question freezes its key.
	submitted := time.Now()
	score := 2.0
	attempt := models.Attempt{TestID: derivedTest.ID, StudentID: 9, SubmittedAt: &submitted, IsCompleted: true}
	require.NoError(t, f.db.Create(&attempt).Error)
	require.NoError(t, f.db.Create(&models.Answer{AttemptID: attempt.ID, QuestionID: derivedQuestion.ID, TextAnswer: "water moves", Score: &score}).Error)

	require.NoError(t, f.db.Model(&models.Question{}).Where("id = ?", question.ID).Updates(map[string]interface{}{
		"text":                "Define osmosis precisely",
		"correct_answer_text": "net diffusion of water",
	}).Error)

	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	require.NoError(t, f.db.First(&derivedQuestion, derivedQuestion.ID).Error)
	require.Equal(t, "Define osmosis precisely", derivedQuestion.Text)
	require.Equal(t, "diffusion of water", derivedQuestion.CorrectAnswerText)
}

func TestSyncPreservesAnsweredOptions(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", IsPublished: true, MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	question := models.Question{TestID: test.ID, Type: models.QuestionTypeMultipleChoice, Text: "Pick", Points: 1, Position: 0}
	require.NoError(t, f.db.Create(&question).Error)
	optionA := models.Option{QuestionID: question.ID, Text: "A", IsCorrect: true, Position: 0}
	optionB := models.Option{QuestionID: question.ID, Text: "B", Position: 1}
	require.NoError(t, f.db.Create(&optionA).Error)
	require.NoError(t, f.db.Create(&optionB).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedTest models.Test
	require.NoError(t, f.db.Where("template_ref_id = ?", test.ID).First(&derivedTest).Error)
	var derivedQuestion models.Question
	require.NoError(t, f.db.Where("test_id = ?", derivedTest.ID).First(&derivedQuestion).Error)
	var derivedB models.Option
	require.NoError(t, f.db.Where("question_id = ? AND position = ?", derivedQuestion.ID, 1).First(&derivedB).Error)

	submitted := time.Now()
	attempt := models.Attempt{TestID: derivedTest.ID, StudentID: 9, SubmittedAt: &submitted, IsCompleted: true}
	require.NoError(t, f.db.Create(&attempt).Error)
	answer := models.Answer{AttemptID: attempt.ID, QuestionID: derivedQuestion.ID}
	require.NoError(t, f.db.Create(&answer).Error)
	require.NoError(t, f.db.Model(&answer).Association("SelectedOptions").Append(&derivedB))

	// Template flips the correct option from A to B.
	require.NoError(t, f.db.Model(&models.Option{}).Where("id = ?", optionA.ID).Update("is_correct", false).Error)
	require.NoError(t, f.db.Model(&models.Option{}).Where("id = ?", optionB.ID).Update("is_correct", true).Error)

	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedA models.Option
	require.NoError(t, f.db.Where("question_id = ? AND position = ?", derivedQuestion.ID, 0).First(&derivedA).Error)
	require.NoError(t, f.db.First(&derivedB, derivedB.ID).Error)
	require.False(t, derivedA.IsCorrect, "unanswered option follows the template")
	require.False(t, derivedB.IsCorrect, "answered option keeps its frozen flag")

	// Deleting the answered option's template counterpart must not
	// delete the derived option either.
	require.NoError(t, f.db.Delete(&models.Option{}, optionB.ID).Error)
	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var stillThere int64
	require.NoError(t, f.db.Model(&models.Option{}).Where("id = ?", derivedB.ID).Count(&stillThere).Error)
	require.EqualValues(t, 1, stillThere)
}

func TestSyncDeletesOrphanedQuestionWithoutGradedWork(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	keep := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Keep", Points: 1, Position: 0, KeyWords: "cell"}
	drop := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Drop", Points: 1, Position: 1, KeyWords: "wall"}
	require.NoError(t, f.db.Create(&keep).Error)
	require.NoError(t, f.db.Create(&drop).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	require.NoError(t, f.db.Delete(&models.Question{}, drop.ID).Error)

	summary, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Totals.Deleted)

	var derivedTest models.Test
	require.NoError(t, f.db.Where("template_ref_id = ?", test.ID).First(&derivedTest).Error)
	var remaining int64
	require.NoError(t, f.db.Model(&models.Question{}).Where("test_id = ?", derivedTest.ID).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func TestSyncPreservesOrphanedQuestionWithGradedWork(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	question := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Old question", Points: 1, Position: 0, KeyWords: "cell"}
	require.NoError(t, f.db.Create(&question).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedTest models.Test
	require.NoError(t, f.db.Where("template_ref_id = ?", test.ID).First(&derivedTest).Error)
	var derivedQuestion models.Question
	require.NoError(t, f.db.Where("test_id = ?", derivedTest.ID).First(&derivedQuestion).Error)

	submitted := time.Now()
	score := 1.0
	attempt := models.Attempt{TestID: derivedTest.ID, StudentID: 4, SubmittedAt: &submitted, IsCompleted: true}
	require.NoError(t, f.db.Create(&attempt).Error)
	require.NoError(t, f.db.Create(&models.Answer{AttemptID: attempt.ID, QuestionID: derivedQuestion.ID, Score: &score}).Error)

	require.NoError(t, f.db.Delete(&models.Question{}, question.ID).Error)

	summary, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)
	require.Zero(t, summary.Totals.Deleted)

	var stillThere int64
	require.NoError(t, f.db.Model(&models.Question{}).Where("id = ?", derivedQuestion.ID).Count(&stillThere).Error)
	require.EqualValues(t, 1, stillThere)
}

func TestSyncSkipsUnlinkedSectionFieldsButSyncsChildren(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derived models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&derived).Error)
	require.NoError(t, f.db.Model(&derived).Updates(map[string]interface{}{
		"is_unlinked_from_template": true,
		"title":                     "My custom week",
	}).Error)

	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("id = ?", section.ID).Update("title", "Renamed week").Error)
	resource := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeText, Title: "Notes", Description: "intro", Position: 0}
	require.NoError(t, f.db.Create(&resource).Error)

	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	require.NoError(t, f.db.First(&derived, derived.ID).Error)
	require.Equal(t, "My custom week", derived.Title)

	var derivedResource models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derived.ID, resource.ID).First(&derivedResource).Error)
	require.Equal(t, "Notes", derivedResource.Title)
}

func TestSyncSkipsUnlinkedResourceSubtree(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	dir := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeDirectory, Title: "Folder", Position: 0}
	require.NoError(t, f.db.Create(&dir).Error)
	child := models.Resource{CourseSectionID: section.ID, ParentResourceID: &dir.ID, Type: models.ResourceTypeText, Title: "Doc", Position: 0}
	require.NoError(t, f.db.Create(&child).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedSection models.CourseSection
	require.NoError(t, f.db.Where("template_ref_id = ?", section.ID).First(&derivedSection).Error)
	var derivedDir models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, dir.ID).First(&derivedDir).Error)
	require.NoError(t, f.db.Model(&derivedDir).Update("is_unlinked_from_template", true).Error)

	require.NoError(t, f.db.Model(&models.Resource{}).Where("id = ?", child.ID).Update("title", "Doc v2").Error)

	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derivedChild models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, child.ID).First(&derivedChild).Error)
	require.Equal(t, "Doc", derivedChild.Title, "subtree of an unlinked resource stays untouched")
}

func TestSyncCourseErrors(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.ErrorIs(t, err, ErrNoTemplateSections)

	_, err = f.svc.SyncCourse(ctx, 9999, &academicStart2026, Actor{Role: "admin"})
	require.ErrorIs(t, err, ErrCourseNotFound)

	orphanCourse := models.Course{CourseCode: "CHM-8", Name: "Chemistry", Grade: 8}
	require.NoError(t, f.db.Create(&orphanCourse).Error)
	orphanSection := models.CourseSection{CourseID: &orphanCourse.ID, Title: "Week 1", Position: 1}
	require.NoError(t, f.db.Create(&orphanSection).Error)
	_, err = f.svc.SyncCourse(ctx, orphanCourse.ID, &academicStart2026, Actor{Role: "admin"})
	require.ErrorIs(t, err, ErrNoSubjectGroups)
}

func TestSyncSubjectGroupNotFound(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.svc.SyncSubjectGroup(context.Background(), 4242, &academicStart2026, Actor{Role: "admin"})
	require.ErrorIs(t, err, ErrSubjectGroupNotFound)
}

func TestSyncAccessDeniedForStudents(t *testing.T) {
	db := newTestDB(t)

	course := models.Course{CourseCode: "PHY-9", Name: "Physics", Grade: 9}
	require.NoError(t, db.Create(&course).Error)

	svc := NewSyncService(
		repository.NewSyncRepository(db),
		repository.NewCourseRepository(db),
		repository.NewSectionRepository(db),
		nil, 0, NewRoleAccessChecker("teacher", "admin"), nil, testLogger(),
	)

	_, err := svc.SyncCourse(context.Background(), course.ID, &academicStart2026, Actor{ID: 7, Role: "student"})
	require.ErrorIs(t, err, ErrPermissionDenied)
}
