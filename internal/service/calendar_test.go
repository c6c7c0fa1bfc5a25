package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

func TestAcademicYearBounds(t *testing.T) {
	tests := []struct {
		name      string
		reference time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "autumn reference",
			reference: time.Date(2025, time.October, 10, 12, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.May, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "spring reference falls into previous september",
			reference: time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.May, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "first day of the year",
			reference: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.May, 25, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "summer reference",
			reference: time.Date(2026, time.June, 20, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, time.May, 25, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end := AcademicYearBounds(tc.reference)
			require.True(t, start.Equal(tc.wantStart), "start = %v", start)
			require.True(t, end.Equal(tc.wantEnd), "end = %v", end)
		})
	}
}

func TestWeeklyTemplateSections(t *testing.T) {
	start, end := AcademicYearBounds(time.Date(2025, time.September, 1, 0, 0, 0, 0, time.UTC))
	sections := WeeklyTemplateSections(7, start, end)

	require.Len(t, sections, 39)

	first := sections[0]
	require.Equal(t, 1, first.Position)
	require.Equal(t, 0, *first.TemplateWeekIndex)
	require.True(t, first.StartDate.Equal(start))
	require.True(t, first.EndDate.Equal(start.AddDate(0, 0, 6)))

	last := sections[len(sections)-1]
	require.Equal(t, 38, *last.TemplateWeekIndex)
	require.True(t, last.EndDate.Equal(end), "final week is clamped to the year end")
	require.False(t, last.StartDate.After(*last.EndDate))

	// Weeks tile the year without gaps.
	for i := 1; i < len(sections); i++ {
		require.True(t, sections[i].StartDate.Equal(sections[i-1].EndDate.AddDate(0, 0, 1)))
	}
}

func TestSectionDatesFromTemplate(t *testing.T) {
	academicStart := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

	week := 3
	withIndex := models.CourseSection{TemplateWeekIndex: &week}
	start, end := sectionDatesFromTemplate(withIndex, academicStart)
	require.True(t, start.Equal(academicStart.AddDate(0, 0, 21)))
	require.True(t, end.Equal(academicStart.AddDate(0, 0, 27)))

	absStart := time.Date(2026, time.October, 5, 0, 0, 0, 0, time.UTC)
	absEnd := absStart.AddDate(0, 0, 4)
	withDates := models.CourseSection{StartDate: &absStart, EndDate: &absEnd}
	start, end = sectionDatesFromTemplate(withDates, academicStart)
	require.True(t, start.Equal(absStart))
	require.True(t, end.Equal(absEnd))

	start, end = sectionDatesFromTemplate(models.CourseSection{}, academicStart)
	require.Nil(t, start)
	require.Nil(t, end)
}

func TestAssignmentDueFromTemplate(t *testing.T) {
	sectionStart := time.Date(2026, time.September, 7, 0, 0, 0, 0, time.UTC)

	offset := 4
	dueTime := "23:59"
	withOffset := models.Assignment{TemplateStartOffsetDays: &offset, TemplateDueTime: &dueTime}
	due := assignmentDueFromTemplate(withOffset, &sectionStart)
	require.NotNil(t, due)
	require.True(t, due.Equal(time.Date(2026, time.September, 11, 23, 59, 0, 0, time.UTC)))

	// Without a section start the template's absolute due date wins.
	absolute := time.Date(2026, time.December, 1, 12, 0, 0, 0, time.UTC)
	withAbsolute := models.Assignment{TemplateStartOffsetDays: &offset, TemplateDueTime: &dueTime, DueAt: &absolute}
	due = assignmentDueFromTemplate(withAbsolute, nil)
	require.NotNil(t, due)
	require.True(t, due.Equal(absolute))

	require.Nil(t, assignmentDueFromTemplate(models.Assignment{}, &sectionStart))
}
