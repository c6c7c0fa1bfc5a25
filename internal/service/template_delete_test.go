package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// secondGroup adds another subject group to the fixture's course so a
// cascade can hit a linked clone and spare an unlinked one.
func (f *syncFixture) secondGroup(t *testing.T) models.SubjectGroup {
	t.Helper()
	group := models.SubjectGroup{CourseID: f.course.ID, ClassroomID: 2}
	require.NoError(t, f.db.Create(&group).Error)
	return group
}

func TestDeleteTemplateSectionKeepsUnlinkedOrphans(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	group2 := f.secondGroup(t)

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var orphan models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&orphan).Error)
	require.NoError(t, f.db.Model(&orphan).Update("is_unlinked_from_template", true).Error)

	svc := NewSectionService(
		repository.NewSectionRepository(f.db),
		repository.NewSyncRepository(f.db),
		validator.New(validator.WithRequiredStructEnabled()),
		nil, testLogger(),
	)
	require.NoError(t, svc.Delete(ctx, section.ID, Actor{ID: 1, Role: "admin"}))

	var templateCount int64
	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("id = ?", section.ID).Count(&templateCount).Error)
	require.Zero(t, templateCount)

	var linkedCount int64
	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("subject_group_id = ?", group2.ID).Count(&linkedCount).Error)
	require.Zero(t, linkedCount, "still-linked clone follows the template")

	require.NoError(t, f.db.First(&orphan, orphan.ID).Error)
	require.True(t, orphan.IsUnlinkedFromTemplate)
	require.NotNil(t, orphan.TemplateRefID, "orphan keeps its template reference for audit")
	require.Equal(t, section.ID, *orphan.TemplateRefID)
}

func TestDeleteTemplateResourceKeepsUnlinkedOrphans(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	group2 := f.secondGroup(t)

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	dir := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeDirectory, Title: "Folder", Position: 0}
	require.NoError(t, f.db.Create(&dir).Error)
	child := models.Resource{CourseSectionID: section.ID, ParentResourceID: &dir.ID, Type: models.ResourceTypeText, Title: "Doc", Position: 0}
	require.NoError(t, f.db.Create(&child).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var orphanSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&orphanSection).Error)
	var orphan models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", orphanSection.ID, dir.ID).First(&orphan).Error)
	require.NoError(t, f.db.Model(&orphan).Update("is_unlinked_from_template", true).Error)

	svc := NewResourceService(
		repository.NewResourceRepository(f.db),
		repository.NewSectionRepository(f.db),
		repository.NewSyncRepository(f.db),
		nil, nil,
		validator.New(validator.WithRequiredStructEnabled()),
		nil, testLogger(),
	)
	require.NoError(t, svc.Delete(ctx, dir.ID, Actor{ID: 1, Role: "admin"}))

	// The template subtree is gone.
	var templateCount int64
	require.NoError(t, f.db.Model(&models.Resource{}).Where("id IN ?", []uint{dir.ID, child.ID}).Count(&templateCount).Error)
	require.Zero(t, templateCount)

	// The linked clone's subtree followed it.
	var linkedSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", group2.ID, section.ID).First(&linkedSection).Error)
	var linkedCount int64
	require.NoError(t, f.db.Model(&models.Resource{}).Where("course_section_id = ?", linkedSection.ID).Count(&linkedCount).Error)
	require.Zero(t, linkedCount)

	// The unlinked clone and its subtree survive, reference intact.
	require.NoError(t, f.db.First(&orphan, orphan.ID).Error)
	require.NotNil(t, orphan.TemplateRefID)
	require.Equal(t, dir.ID, *orphan.TemplateRefID)

	var orphanChildren int64
	require.NoError(t, f.db.Model(&models.Resource{}).Where("parent_resource_id = ?", orphan.ID).Count(&orphanChildren).Error)
	require.EqualValues(t, 1, orphanChildren)
}

func TestDeleteTemplateAssignmentKeepsUnlinkedOrphans(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	group2 := f.secondGroup(t)

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	assignment := models.Assignment{CourseSectionID: section.ID, TeacherID: 1, Title: "Lab report", MaxGrade: 10}
	require.NoError(t, f.db.Create(&assignment).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var orphanSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&orphanSection).Error)
	var orphan models.Assignment
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", orphanSection.ID, assignment.ID).First(&orphan).Error)
	require.NoError(t, f.db.Model(&orphan).Update("is_unlinked_from_template", true).Error)

	svc := NewAssignmentService(
		repository.NewAssignmentRepository(f.db),
		repository.NewSectionRepository(f.db),
		repository.NewSyncRepository(f.db),
		nil, nil,
		validator.New(validator.WithRequiredStructEnabled()),
		nil, testLogger(),
	)
	require.NoError(t, svc.Delete(ctx, assignment.ID, Actor{ID: 1, Role: "admin"}))

	var remaining []models.Assignment
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1, "only the unlinked orphan survives")
	require.Equal(t, orphan.ID, remaining[0].ID)
	require.NotNil(t, remaining[0].TemplateRefID)
	require.Equal(t, assignment.ID, *remaining[0].TemplateRefID)

	var linkedSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", group2.ID, section.ID).First(&linkedSection).Error)
	require.NotEqual(t, remaining[0].CourseSectionID, linkedSection.ID)
}

func TestDeleteTemplateTestKeepsUnlinkedOrphans(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()
	group2 := f.secondGroup(t)

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	test := models.Test{CourseSectionID: section.ID, TeacherID: 1, Title: "Quiz", MaxAttempts: 1}
	require.NoError(t, f.db.Create(&test).Error)
	question := models.Question{TestID: test.ID, Type: models.QuestionTypeOpen, Text: "Explain", Points: 2, Position: 0, KeyWords: "cell"}
	require.NoError(t, f.db.Create(&question).Error)

	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var orphanSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", f.group.ID, section.ID).First(&orphanSection).Error)
	var orphan models.Test
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", orphanSection.ID, test.ID).First(&orphan).Error)
	require.NoError(t, f.db.Model(&orphan).Update("is_unlinked_from_template", true).Error)

	svc := NewTestService(
		repository.NewTestRepository(f.db),
		repository.NewAttemptRepository(f.db),
		repository.NewSectionRepository(f.db),
		repository.NewSyncRepository(f.db),
		validator.New(validator.WithRequiredStructEnabled()),
		nil, testLogger(),
	)
	require.NoError(t, svc.Delete(ctx, test.ID, Actor{ID: 1, Role: "admin"}))

	var remaining []models.Test
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1, "only the unlinked orphan survives")
	require.Equal(t, orphan.ID, remaining[0].ID)
	require.NotNil(t, remaining[0].TemplateRefID)
	require.Equal(t, test.ID, *remaining[0].TemplateRefID)

	var linkedSection models.CourseSection
	require.NoError(t, f.db.Where("subject_group_id = ? AND template_ref_id = ?", group2.ID, section.ID).First(&linkedSection).Error)
	var linkedCount int64
	require.NoError(t, f.db.Model(&models.Test{}).Where("course_section_id = ?", linkedSection.ID).Count(&linkedCount).Error)
	require.Zero(t, linkedCount)
}
