package dto

import (
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// SectionCreateRequest describes the payload for creating a section.
// Exactly one of course_id (template) or subject_group_id (live class)
// must be set; the service enforces that.
type SectionCreateRequest struct {
	CourseID          *uint      `json:"course_id"`
	SubjectGroupID    *uint      `json:"subject_group_id"`
	Title             string     `json:"title" validate:"required,min=1,max=255"`
	Position          *int       `json:"position" validate:"omitempty,gte=0"`
	StartDate         *time.Time `json:"start_date"`
	EndDate           *time.Time `json:"end_date"`
	TemplateWeekIndex *int       `json:"template_week_index" validate:"omitempty,gte=0"`
}

// SectionUpdateRequest describes the payload for updating a section.
type SectionUpdateRequest struct {
	Title     *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Position  *int       `json:"position" validate:"omitempty,gte=0"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
}

// ReorderItemRequest assigns one entity its new position.
type ReorderItemRequest struct {
	ID       uint `json:"id" validate:"required"`
	Position int  `json:"position" validate:"gte=0"`
}

// ReorderRequest carries a batch of position assignments.
type ReorderRequest struct {
	Items []ReorderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// SectionResponse is the serialized representation returned to API clients.
type SectionResponse struct {
	ID                     uint       `json:"id"`
	CourseID               *uint      `json:"course_id,omitempty"`
	SubjectGroupID         *uint      `json:"subject_group_id,omitempty"`
	TemplateRefID          *uint      `json:"template_ref_id,omitempty"`
	IsUnlinkedFromTemplate bool       `json:"is_unlinked_from_template"`
	Title                  string     `json:"title"`
	Position               int        `json:"position"`
	StartDate              *time.Time `json:"start_date,omitempty"`
	EndDate                *time.Time `json:"end_date,omitempty"`
	TemplateWeekIndex      *int       `json:"template_week_index,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// NewSectionResponse converts a model into a DTO.
func NewSectionResponse(model models.CourseSection) SectionResponse {
	return SectionResponse{
		ID:                     model.ID,
		CourseID:               model.CourseID,
		SubjectGroupID:         model.SubjectGroupID,
		TemplateRefID:          model.TemplateRefID,
		IsUnlinkedFromTemplate: model.IsUnlinkedFromTemplate,
		Title:                  model.Title,
		Position:               model.Position,
		StartDate:              model.StartDate,
		EndDate:                model.EndDate,
		TemplateWeekIndex:      model.TemplateWeekIndex,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	}
}

// NewSectionResponseSlice converts a slice of models into DTOs.
func NewSectionResponseSlice(sections []models.CourseSection) []SectionResponse {
	responses := make([]SectionResponse, 0, len(sections))
	for _, section := range sections {
		responses = append(responses, NewSectionResponse(section))
	}

	return responses
}
