package dto

import (
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// ResourceCreateRequest describes the payload for creating a resource.
type ResourceCreateRequest struct {
	SectionID   uint   `json:"section_id" validate:"required"`
	ParentID    *uint  `json:"parent_id"`
	Type        string `json:"type" validate:"required,oneof=file link directory text"`
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description"`
	URL         string `json:"url" validate:"omitempty,url"`
	Position    *int   `json:"position" validate:"omitempty,gte=0"`
}

// ResourceUpdateRequest describes the payload for updating a resource.
type ResourceUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	URL         *string `json:"url" validate:"omitempty,url"`
	ParentID    *uint   `json:"parent_id"`
	Position    *int    `json:"position" validate:"omitempty,gte=0"`
}

// ResourceResponse is the serialized representation returned to API clients.
type ResourceResponse struct {
	ID                     uint      `json:"id"`
	CourseSectionID        uint      `json:"course_section_id"`
	ParentResourceID       *uint     `json:"parent_resource_id,omitempty"`
	TemplateRefID          *uint     `json:"template_ref_id,omitempty"`
	IsUnlinkedFromTemplate bool      `json:"is_unlinked_from_template"`
	Type                   string    `json:"type"`
	Title                  string    `json:"title"`
	Description            string    `json:"description"`
	URL                    string    `json:"url,omitempty"`
	FileURL                string    `json:"file_url,omitempty"`
	Position               int       `json:"position"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// NewResourceResponse converts a model into a DTO.
func NewResourceResponse(model models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:                     model.ID,
		CourseSectionID:        model.CourseSectionID,
		ParentResourceID:       model.ParentResourceID,
		TemplateRefID:          model.TemplateRefID,
		IsUnlinkedFromTemplate: model.IsUnlinkedFromTemplate,
		Type:                   string(model.Type),
		Title:                  model.Title,
		Description:            model.Description,
		URL:                    model.URL,
		FileURL:                model.FileURL,
		Position:               model.Position,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	}
}

// NewResourceResponseSlice converts a slice of models into DTOs.
func NewResourceResponseSlice(resources []models.Resource) []ResourceResponse {
	responses := make([]ResourceResponse, 0, len(resources))
	for _, resource := range resources {
		responses = append(responses, NewResourceResponse(resource))
	}

	return responses
}
