package models

import "time"

// Assignment is graded homework inside a course section. Templates may
// carry scheduling offsets instead of an absolute due date; sync
// resolves them against the derived section's start date.
type Assignment struct {
	ID              uint  `gorm:"primaryKey" json:"id"`
	CourseSectionID uint  `gorm:"not null;index:idx_assignment_target,priority:1" json:"course_section_id"`
	TeacherID       uint  `gorm:"not null" json:"teacher_id"`
	TemplateRefID   *uint `gorm:"index:idx_assignment_target,priority:2" json:"template_ref_id"`

	IsUnlinkedFromTemplate bool `gorm:"not null;default:false" json:"is_unlinked_from_template"`

	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	DueAt       *time.Time `json:"due_at"`
	MaxGrade    float64    `gorm:"not null;default:100" json:"max_grade"`

	// Offset scheduling for templates: due date = section start date +
	// offset days, at the given wall-clock time ("15:04" layout).
	TemplateStartOffsetDays *int    `json:"template_start_offset_days"`
	TemplateDueTime         *string `gorm:"size:5" json:"template_due_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Attachments []AssignmentAttachment `gorm:"foreignKey:AssignmentID;constraint:OnDelete:CASCADE" json:"attachments,omitempty"`
}

const (
	// AttachmentTypeText is inline text content.
	AttachmentTypeText = "text"
	// AttachmentTypeFile references a stored file.
	AttachmentTypeFile = "file"
	// AttachmentTypeLink is an external URL.
	AttachmentTypeLink = "link"
)

// AssignmentAttachment is supplementary material on an assignment.
// During sync attachments are keyed by (position, type).
type AssignmentAttachment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AssignmentID uint      `gorm:"not null;index" json:"assignment_id"`
	Type         string    `gorm:"size:32;not null" json:"type"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Content      string    `gorm:"type:text" json:"content"`
	FileURL      string    `gorm:"size:1024" json:"file_url"`
	Position     int       `gorm:"not null;default:0" json:"position"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
