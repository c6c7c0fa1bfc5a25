package service

import (
	"fmt"
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// GeneralSectionTitle names the dateless bootstrap section every course
// template starts with.
const GeneralSectionTitle = "General information"

// AcademicYearBounds returns the Sep 1 - May 25 academic year window
// for the reference date. References before September fall into the
// year that began the previous September.
func AcademicYearBounds(reference time.Time) (time.Time, time.Time) {
	startYear := reference.Year()
	if reference.Month() < time.September {
		startYear--
	}
	start := time.Date(startYear, time.September, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(startYear+1, time.May, 25, 0, 0, 0, 0, time.UTC)
	return start, end
}

// WeeklyTemplateSections builds one template section per week of the
// academic year for the course, carrying the week index as a template
// offset so derived dates can be recomputed against any later start.
func WeeklyTemplateSections(courseID uint, academicStart, academicEnd time.Time) []models.CourseSection {
	var sections []models.CourseSection

	weekIndex := 0
	position := 1
	current := academicStart
	for !current.After(academicEnd) {
		weekStart := current
		weekEnd := weekStart.AddDate(0, 0, 6)
		if weekEnd.After(academicEnd) {
			weekEnd = academicEnd
		}

		idx := weekIndex
		start := weekStart
		end := weekEnd
		sections = append(sections, models.CourseSection{
			CourseID:          &courseID,
			Title:             weekSectionTitle(weekStart, weekEnd),
			Position:          position,
			StartDate:         &start,
			EndDate:           &end,
			TemplateWeekIndex: &idx,
		})

		current = weekEnd.AddDate(0, 0, 1)
		weekIndex++
		position++
	}

	return sections
}

func weekSectionTitle(start, end time.Time) string {
	return fmt.Sprintf("%d %s - %d %s", start.Day(), start.Month(), end.Day(), end.Month())
}

// sectionDatesFromTemplate resolves a derived section's dates: a week
// offset takes precedence over any absolute dates the template carries.
func sectionDatesFromTemplate(template models.CourseSection, academicStart time.Time) (*time.Time, *time.Time) {
	if template.TemplateWeekIndex != nil {
		start := academicStart.AddDate(0, 0, *template.TemplateWeekIndex*7)
		end := start.AddDate(0, 0, 6)
		return &start, &end
	}

	return copyTimePtr(template.StartDate), copyTimePtr(template.EndDate)
}

// assignmentDueFromTemplate resolves a derived assignment's due date.
// With both offset fields set and a section start available, the due
// date is section start + offset days at the template's wall-clock
// time; otherwise the template's absolute due date is kept.
func assignmentDueFromTemplate(template models.Assignment, sectionStart *time.Time) *time.Time {
	if template.TemplateStartOffsetDays != nil && template.TemplateDueTime != nil && sectionStart != nil {
		day := sectionStart.AddDate(0, 0, *template.TemplateStartOffsetDays)
		if clock, err := time.Parse("15:04", *template.TemplateDueTime); err == nil {
			due := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, day.Location())
			return &due
		}
	}

	return copyTimePtr(template.DueAt)
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	value := *t
	return &value
}
