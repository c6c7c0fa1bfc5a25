package models

import "time"

const (
	// ResourceTypeFile is a stored file with a backing object in file storage.
	ResourceTypeFile = "file"
	// ResourceTypeLink is an external URL.
	ResourceTypeLink = "link"
	// ResourceTypeDirectory is a folder holding child resources.
	ResourceTypeDirectory = "directory"
	// ResourceTypeText is inline rich text.
	ResourceTypeText = "text"
)

// ValidResourceType reports whether the given type string is one of the
// supported resource kinds.
func ValidResourceType(t string) bool {
	switch t {
	case ResourceTypeFile, ResourceTypeLink, ResourceTypeDirectory, ResourceTypeText:
		return true
	}
	return false
}

// Resource is a piece of section content. Resources form a tree via
// ParentResourceID; only directories carry children.
type Resource struct {
	ID               uint  `gorm:"primaryKey" json:"id"`
	CourseSectionID  uint  `gorm:"not null;index:idx_resource_target,priority:1" json:"course_section_id"`
	ParentResourceID *uint `gorm:"index" json:"parent_resource_id"`
	TemplateRefID    *uint `gorm:"index:idx_resource_target,priority:2" json:"template_ref_id"`

	IsUnlinkedFromTemplate bool `gorm:"not null;default:false" json:"is_unlinked_from_template"`

	Type        string `gorm:"size:32;not null" json:"type"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	URL         string `gorm:"size:1024" json:"url"`
	FileURL     string `gorm:"size:1024" json:"file_url"`
	Position    int    `gorm:"not null;default:0" json:"position"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Children []Resource `gorm:"foreignKey:ParentResourceID" json:"children,omitempty"`
}
