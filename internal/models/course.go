package models

import "time"

// Course is the authoring scope for template content. Template sections
// hang off a course directly and are never shown to students.
type Course struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CourseCode  string    `gorm:"size:20;uniqueIndex;not null" json:"course_code"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Grade       int       `gorm:"not null" json:"grade"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	SubjectGroups []SubjectGroup `json:"-"`
}

// SubjectGroup is a course taught to one concrete classroom. Derived
// content produced by sync is scoped to a subject group.
type SubjectGroup struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CourseID    uint      `gorm:"not null;uniqueIndex:uq_course_classroom" json:"course_id"`
	ClassroomID uint      `gorm:"not null;uniqueIndex:uq_course_classroom" json:"classroom_id"`
	TeacherID   *uint     `json:"teacher_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Course Course `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}
