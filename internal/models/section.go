package models

import "time"

// CourseSection groups resources, assignments and tests. A section is
// either a template (course-scoped) or derived (subject-group-scoped),
// never both. Derived sections keep a weak back-reference to the
// template section they were cloned from.
type CourseSection struct {
	ID             uint  `gorm:"primaryKey" json:"id"`
	CourseID       *uint `gorm:"index" json:"course_id"`
	SubjectGroupID *uint `gorm:"index:idx_section_target,priority:1" json:"subject_group_id"`
	TemplateRefID  *uint `gorm:"index:idx_section_target,priority:2" json:"template_ref_id"`

	IsUnlinkedFromTemplate bool `gorm:"not null;default:false" json:"is_unlinked_from_template"`

	Title    string `gorm:"size:255;not null" json:"title"`
	Position int    `gorm:"not null;default:0" json:"position"`

	// Derived sections carry absolute dates; templates carry a week
	// index resolved against the academic start date at sync time.
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	TemplateWeekIndex *int       `json:"template_week_index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Resources   []Resource   `gorm:"foreignKey:CourseSectionID;constraint:OnDelete:CASCADE" json:"-"`
	Assignments []Assignment `gorm:"foreignKey:CourseSectionID;constraint:OnDelete:CASCADE" json:"-"`
	Tests       []Test       `gorm:"foreignKey:CourseSectionID;constraint:OnDelete:CASCADE" json:"-"`
}

// IsTemplate reports whether the section belongs to the course-level
// template tree.
func (s CourseSection) IsTemplate() bool {
	return s.CourseID != nil && s.SubjectGroupID == nil
}

// IsDerived reports whether the section lives inside a subject group.
func (s CourseSection) IsDerived() bool {
	return s.SubjectGroupID != nil
}
