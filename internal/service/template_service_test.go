package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

func newTemplateService(t *testing.T, f *syncFixture) TemplateService {
	t.Helper()
	return NewTemplateService(
		repository.NewCourseRepository(f.db),
		repository.NewSectionRepository(f.db),
		f.svc,
		nil, testLogger(),
	)
}

func TestEnsureTemplateSectionsBootstrapsAndReplays(t *testing.T) {
	f := newSyncFixture(t)
	svc := newTemplateService(t, f)
	ctx := context.Background()

	created, err := svc.EnsureTemplateSections(ctx, f.course.ID, &academicStart2026)
	require.NoError(t, err)
	// One general section plus one section per academic week.
	require.Equal(t, 40, created)

	var general models.CourseSection
	require.NoError(t, f.db.Where("course_id = ? AND position = ?", f.course.ID, 0).First(&general).Error)
	require.Equal(t, GeneralSectionTitle, general.Title)
	require.Nil(t, general.StartDate)
	require.Nil(t, general.TemplateWeekIndex)

	// Replaying the bootstrap leaves the existing template alone.
	created, err = svc.EnsureTemplateSections(ctx, f.course.ID, &academicStart2026)
	require.NoError(t, err)
	require.Zero(t, created)

	var count int64
	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("course_id = ?", f.course.ID).Count(&count).Error)
	require.EqualValues(t, 40, count)

	_, err = svc.EnsureTemplateSections(ctx, 9999, &academicStart2026)
	require.ErrorIs(t, err, ErrCourseNotFound)
}

func TestNotifyTemplateResourceCreatedPropagatesInProcess(t *testing.T) {
	f := newSyncFixture(t)
	svc := newTemplateService(t, f)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	// A resource added to the template after the sync reaches the
	// derived section through the event path.
	resource := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeText, Title: "Late addition", Position: 0}
	require.NoError(t, f.db.Create(&resource).Error)

	require.NoError(t, svc.NotifyTemplateResourceCreated(ctx, resource.ID))

	var derivedSection models.CourseSection
	require.NoError(t, f.db.Where("template_ref_id = ?", section.ID).First(&derivedSection).Error)
	var derived models.Resource
	require.NoError(t, f.db.Where("course_section_id = ? AND template_ref_id = ?", derivedSection.ID, resource.ID).First(&derived).Error)
	require.Equal(t, "Late addition", derived.Title)
}

func TestNotifyTemplateAssignmentCreatedSkipsUnsyncedGroups(t *testing.T) {
	f := newSyncFixture(t)
	svc := newTemplateService(t, f)
	ctx := context.Background()

	// The group never synced, so propagation has nowhere to land.
	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	assignment := models.Assignment{CourseSectionID: section.ID, TeacherID: 1, Title: "HW", MaxGrade: 10}
	require.NoError(t, f.db.Create(&assignment).Error)

	require.NoError(t, svc.NotifyTemplateAssignmentCreated(ctx, assignment.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.Assignment{}).Where("template_ref_id = ?", assignment.ID).Count(&count).Error)
	require.Zero(t, count)
}
