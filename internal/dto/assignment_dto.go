package dto

import (
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// AttachmentRequest describes one assignment attachment in a create or
// update payload.
type AttachmentRequest struct {
	Type     string `json:"type" validate:"required,oneof=file link text"`
	Title    string `json:"title" validate:"required,min=1,max=255"`
	Content  string `json:"content"`
	FileURL  string `json:"file_url" validate:"omitempty,url"`
	Position *int   `json:"position" validate:"omitempty,gte=0"`
}

// AssignmentCreateRequest describes the payload for creating an assignment.
type AssignmentCreateRequest struct {
	SectionID               uint                `json:"section_id" validate:"required"`
	Title                   string              `json:"title" validate:"required,min=1,max=255"`
	Description             string              `json:"description"`
	DueAt                   *time.Time          `json:"due_at"`
	MaxGrade                float64             `json:"max_grade" validate:"gte=0"`
	TemplateStartOffsetDays *int                `json:"template_start_offset_days" validate:"omitempty,gte=0"`
	TemplateDueTime         *string             `json:"template_due_time" validate:"omitempty,datetime=15:04"`
	Attachments             []AttachmentRequest `json:"attachments" validate:"omitempty,dive"`
}

// AssignmentUpdateRequest describes the payload for updating an assignment.
type AssignmentUpdateRequest struct {
	Title                   *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description             *string    `json:"description"`
	DueAt                   *time.Time `json:"due_at"`
	MaxGrade                *float64   `json:"max_grade" validate:"omitempty,gte=0"`
	TemplateStartOffsetDays *int       `json:"template_start_offset_days" validate:"omitempty,gte=0"`
	TemplateDueTime         *string    `json:"template_due_time" validate:"omitempty,datetime=15:04"`
}

// AttachmentResponse is the serialized attachment representation.
type AttachmentResponse struct {
	ID       uint   `json:"id"`
	Type     string `json:"type"`
	Title    string `json:"title"`
	Content  string `json:"content,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	Position int    `json:"position"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                     uint                 `json:"id"`
	CourseSectionID        uint                 `json:"course_section_id"`
	TemplateRefID          *uint                `json:"template_ref_id,omitempty"`
	IsUnlinkedFromTemplate bool                 `json:"is_unlinked_from_template"`
	Title                  string               `json:"title"`
	Description            string               `json:"description"`
	DueAt                  *time.Time           `json:"due_at,omitempty"`
	MaxGrade               float64              `json:"max_grade"`
	Attachments            []AttachmentResponse `json:"attachments,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// NewAttachmentResponse converts an attachment model into a DTO.
func NewAttachmentResponse(model models.AssignmentAttachment) AttachmentResponse {
	return AttachmentResponse{
		ID:       model.ID,
		Type:     model.Type,
		Title:    model.Title,
		Content:  model.Content,
		FileURL:  model.FileURL,
		Position: model.Position,
	}
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	attachments := make([]AttachmentResponse, 0, len(model.Attachments))
	for _, attachment := range model.Attachments {
		attachments = append(attachments, NewAttachmentResponse(attachment))
	}

	return AssignmentResponse{
		ID:                     model.ID,
		CourseSectionID:        model.CourseSectionID,
		TemplateRefID:          model.TemplateRefID,
		IsUnlinkedFromTemplate: model.IsUnlinkedFromTemplate,
		Title:                  model.Title,
		Description:            model.Description,
		DueAt:                  model.DueAt,
		MaxGrade:               model.MaxGrade,
		Attachments:            attachments,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
