package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

func newCachedSyncFixture(t *testing.T) (*syncFixture, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	f := newSyncFixture(t)
	f.svc = NewSyncService(
		repository.NewSyncRepository(f.db),
		repository.NewCourseRepository(f.db),
		repository.NewSectionRepository(f.db),
		client, time.Minute, nil, nil, testLogger(),
	)
	return f, mr
}

func TestStatusReportsMissingAndOutdatedItems(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	resource := models.Resource{CourseSectionID: section.ID, Type: models.ResourceTypeLink, Title: "Reading", URL: "https://example.com", Position: 0}
	require.NoError(t, f.db.Create(&resource).Error)

	// Nothing derived yet: the whole subtree is missing.
	report, err := f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.False(t, report.IsSynced)
	require.Len(t, report.MissingItems, 2)
	require.Equal(t, "section", report.MissingItems[0].UnitType)
	require.Equal(t, "resource", report.MissingItems[1].UnitType)

	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	report, err = f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.True(t, report.IsSynced)
	require.Empty(t, report.MissingItems)
	require.Empty(t, report.OutdatedItems)

	// Template drift shows up as an outdated item.
	require.NoError(t, f.db.Model(&models.Resource{}).Where("id = ?", resource.ID).Update("title", "Updated reading").Error)

	report, err = f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.False(t, report.IsSynced)
	require.Len(t, report.OutdatedItems, 1)
	require.Equal(t, "resource", report.OutdatedItems[0].UnitType)
}

func TestStatusIgnoresUnlinkedUnits(t *testing.T) {
	f := newSyncFixture(t)
	ctx := context.Background()

	section := f.templateSection(t, "Week 1", 1, intPtr(0))
	_, err := f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)

	var derived models.CourseSection
	require.NoError(t, f.db.Where("template_ref_id = ?", section.ID).First(&derived).Error)
	require.NoError(t, f.db.Model(&derived).Update("is_unlinked_from_template", true).Error)

	require.NoError(t, f.db.Model(&models.CourseSection{}).Where("id = ?", section.ID).Update("title", "Renamed").Error)

	report, err := f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.True(t, report.IsSynced, "unlinked units never count as drift")
}

func TestStatusErrors(t *testing.T) {
	f := newSyncFixture(t)
	_, err := f.svc.Status(context.Background(), 4242)
	require.ErrorIs(t, err, ErrSubjectGroupNotFound)
}

func TestStatusCacheRoundTripAndInvalidation(t *testing.T) {
	f, mr := newCachedSyncFixture(t)
	ctx := context.Background()

	f.templateSection(t, "Week 1", 1, intPtr(0))

	report, err := f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.False(t, report.IsSynced)
	require.True(t, mr.Exists(statusCacheKey(f.group.ID)))

	// A second read is served from the cache: database changes are not
	// visible until the entry is invalidated.
	f.templateSection(t, "Week 2", 2, intPtr(1))
	cached, err := f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.Equal(t, report, cached)

	// Syncing invalidates the group's entry and the next read is fresh.
	_, err = f.svc.SyncCourse(ctx, f.course.ID, &academicStart2026, Actor{Role: "admin"})
	require.NoError(t, err)
	require.False(t, mr.Exists(statusCacheKey(f.group.ID)))

	fresh, err := f.svc.Status(ctx, f.group.ID)
	require.NoError(t, err)
	require.True(t, fresh.IsSynced)
}
