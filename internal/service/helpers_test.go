package service

import (
	"fmt"
	"io"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

var testDBSeq atomic.Int64

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Course{},
		&models.SubjectGroup{},
		&models.CourseSection{},
		&models.Resource{},
		&models.Assignment{},
		&models.AssignmentAttachment{},
		&models.Test{},
		&models.Question{},
		&models.Option{},
		&models.Attempt{},
		&models.Answer{},
		&models.ActivityLog{},
	))
	return db
}

// syncFixture bundles a course, one subject group and the wired sync
// service over a fresh database.
type syncFixture struct {
	db     *gorm.DB
	svc    SyncService
	course models.Course
	group  models.SubjectGroup
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()

	db := newTestDB(t)

	course := models.Course{CourseCode: "BIO-7", Name: "Biology", Grade: 7}
	require.NoError(t, db.Create(&course).Error)
	group := models.SubjectGroup{CourseID: course.ID, ClassroomID: 1}
	require.NoError(t, db.Create(&group).Error)

	svc := NewSyncService(
		repository.NewSyncRepository(db),
		repository.NewCourseRepository(db),
		repository.NewSectionRepository(db),
		nil, 0, nil, nil, testLogger(),
	)

	return &syncFixture{db: db, svc: svc, course: course, group: group}
}

func (f *syncFixture) templateSection(t *testing.T, title string, position int, weekIndex *int) models.CourseSection {
	t.Helper()
	section := models.CourseSection{
		CourseID:          &f.course.ID,
		Title:             title,
		Position:          position,
		TemplateWeekIndex: weekIndex,
	}
	require.NoError(t, f.db.Create(&section).Error)
	return section
}

func intPtr(v int) *int { return &v }
