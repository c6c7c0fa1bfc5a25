package dto

import (
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// CourseCreateRequest describes the payload for creating a course.
type CourseCreateRequest struct {
	CourseCode  string `json:"course_code" validate:"required,min=2,max=64"`
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description"`
	Grade       int    `json:"grade" validate:"gte=0"`
}

// SubjectGroupCreateRequest links a classroom to a course.
type SubjectGroupCreateRequest struct {
	ClassroomID uint  `json:"classroom_id" validate:"required"`
	TeacherID   *uint `json:"teacher_id"`
}

// SubjectGroupResponse is the serialized subject group representation.
type SubjectGroupResponse struct {
	ID          uint      `json:"id"`
	CourseID    uint      `json:"course_id"`
	ClassroomID uint      `json:"classroom_id"`
	TeacherID   *uint     `json:"teacher_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CourseResponse is the serialized course representation.
type CourseResponse struct {
	ID            uint                   `json:"id"`
	CourseCode    string                 `json:"course_code"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Grade         int                    `json:"grade"`
	SubjectGroups []SubjectGroupResponse `json:"subject_groups,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewSubjectGroupResponse converts a model into a DTO.
func NewSubjectGroupResponse(model models.SubjectGroup) SubjectGroupResponse {
	return SubjectGroupResponse{
		ID:          model.ID,
		CourseID:    model.CourseID,
		ClassroomID: model.ClassroomID,
		TeacherID:   model.TeacherID,
		CreatedAt:   model.CreatedAt,
	}
}

// NewCourseResponse converts a model into a DTO.
func NewCourseResponse(model models.Course) CourseResponse {
	groups := make([]SubjectGroupResponse, 0, len(model.SubjectGroups))
	for _, group := range model.SubjectGroups {
		groups = append(groups, NewSubjectGroupResponse(group))
	}

	return CourseResponse{
		ID:            model.ID,
		CourseCode:    model.CourseCode,
		Name:          model.Name,
		Description:   model.Description,
		Grade:         model.Grade,
		SubjectGroups: groups,
		CreatedAt:     model.CreatedAt,
		UpdatedAt:     model.UpdatedAt,
	}
}
