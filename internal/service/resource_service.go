package service

import (
	"context"
	"errors"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrResourceNotFound indicates the resource does not exist.
var ErrResourceNotFound = errors.New("resource not found")

// ErrInvalidResourceType indicates an unsupported resource type string.
var ErrInvalidResourceType = errors.New("invalid resource type")

// ErrParentNotDirectory rejects nesting under a non-directory resource.
var ErrParentNotDirectory = errors.New("parent resource is not a directory")

// FileStore abstracts the blob storage behind file resources. Delete is
// best effort and never fails the caller.
type FileStore interface {
	Store(ctx context.Context, name string, reader io.Reader) (string, error)
	Delete(ctx context.Context, fileURL string)
}

// ResourceService manages the resource tree of a section.
type ResourceService interface {
	Get(ctx context.Context, id uint) (models.Resource, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Resource, error)
	Create(ctx context.Context, payload dto.ResourceCreateRequest, actor Actor) (models.Resource, error)
	Update(ctx context.Context, id uint, payload dto.ResourceUpdateRequest, actor Actor) (models.Resource, error)
	Delete(ctx context.Context, id uint, actor Actor) error
	AttachFile(ctx context.Context, id uint, name string, reader io.Reader, actor Actor) (models.Resource, error)
	Reorder(ctx context.Context, payload dto.ReorderRequest, actor Actor) error
}

type resourceService struct {
	resources repository.ResourceRepository
	sections  repository.SectionRepository
	syncRepo  repository.SyncRepository
	templates TemplateService
	files     FileStore
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewResourceService constructs the resource service. files may be nil
// when no blob storage is configured; templates may be nil to disable
// template propagation events.
func NewResourceService(
	resources repository.ResourceRepository,
	sections repository.SectionRepository,
	syncRepo repository.SyncRepository,
	templates TemplateService,
	files FileStore,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) ResourceService {
	return &resourceService{
		resources: resources,
		sections:  sections,
		syncRepo:  syncRepo,
		templates: templates,
		files:     files,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		activity:  activity,
		logger:    logger.With().Str("component", "resource_service").Logger(),
	}
}

func (s *resourceService) Get(ctx context.Context, id uint) (models.Resource, error) {
	resource, err := s.resources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Resource{}, ErrResourceNotFound
		}
		return models.Resource{}, err
	}
	return resource, nil
}

func (s *resourceService) ListBySection(ctx context.Context, sectionID uint) ([]models.Resource, error) {
	return s.resources.ListBySection(ctx, sectionID)
}

func (s *resourceService) Create(ctx context.Context, payload dto.ResourceCreateRequest, actor Actor) (models.Resource, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Resource{}, err
	}
	if !models.ValidResourceType(payload.Type) {
		return models.Resource{}, ErrInvalidResourceType
	}

	section, err := s.sections.GetByID(ctx, payload.SectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Resource{}, ErrSectionNotFound
		}
		return models.Resource{}, err
	}

	if payload.ParentID != nil {
		parent, err := s.Get(ctx, *payload.ParentID)
		if err != nil {
			return models.Resource{}, err
		}
		if parent.Type != models.ResourceTypeDirectory {
			return models.Resource{}, ErrParentNotDirectory
		}
		if parent.CourseSectionID != payload.SectionID {
			return models.Resource{}, ErrResourceNotFound
		}
	}

	resource := models.Resource{
		CourseSectionID:  payload.SectionID,
		ParentResourceID: payload.ParentID,
		Type:             payload.Type,
		Title:            payload.Title,
		Description:      s.sanitizer.Sanitize(payload.Description),
		URL:              payload.URL,
	}

	if payload.Position != nil {
		resource.Position = *payload.Position
	} else {
		max, err := s.resources.MaxPosition(ctx, payload.SectionID, payload.ParentID)
		if err != nil {
			return models.Resource{}, err
		}
		resource.Position = max + 1
	}

	if err := s.resources.Create(ctx, &resource); err != nil {
		return models.Resource{}, err
	}

	s.recordResource(ctx, actor, "resource.created", resource.ID)
	s.notifyTemplateChange(ctx, section, resource.ID)

	return resource, nil
}

func (s *resourceService) Update(ctx context.Context, id uint, payload dto.ResourceUpdateRequest, actor Actor) (models.Resource, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Resource{}, err
	}

	resource, err := s.Get(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}

	if payload.Title != nil {
		resource.Title = *payload.Title
	}
	if payload.Description != nil {
		resource.Description = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.URL != nil {
		resource.URL = *payload.URL
	}
	if payload.ParentID != nil {
		parent, err := s.Get(ctx, *payload.ParentID)
		if err != nil {
			return models.Resource{}, err
		}
		if parent.Type != models.ResourceTypeDirectory || parent.CourseSectionID != resource.CourseSectionID {
			return models.Resource{}, ErrParentNotDirectory
		}
		resource.ParentResourceID = payload.ParentID
	}
	if payload.Position != nil {
		resource.Position = *payload.Position
	}

	if err := s.resources.Update(ctx, &resource); err != nil {
		return models.Resource{}, err
	}

	s.recordResource(ctx, actor, "resource.updated", resource.ID)
	return resource, nil
}

// Delete removes a resource and its whole subtree. Template resources
// also take their still-linked derived clones (and those clones'
// subtrees) with them; unlinked clones survive untouched. Backing
// files are deleted best effort after the rows commit.
func (s *resourceService) Delete(ctx context.Context, id uint, actor Actor) error {
	root, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	section, err := s.sections.GetByID(ctx, root.CourseSectionID)
	if err != nil {
		return err
	}

	// Unlinked clones survive as orphans with their template reference
	// kept for audit; only still-linked clones cascade.
	roots := []models.Resource{root}
	if section.IsTemplate() {
		clones, err := s.syncRepo.DerivedResourcesByTemplate(ctx, root.ID)
		if err != nil {
			return err
		}
		for _, clone := range clones {
			if clone.IsUnlinkedFromTemplate {
				continue
			}
			roots = append(roots, clone)
		}
	}

	doomed, err := s.collectSubtrees(ctx, roots)
	if err != nil {
		return err
	}

	err = s.syncRepo.WithinTx(ctx, func(repo repository.SyncRepository) error {
		ids := make([]uint, 0, len(doomed))
		for _, resource := range doomed {
			ids = append(ids, resource.ID)
		}
		return repo.DeleteResources(ctx, ids)
	})
	if err != nil {
		return err
	}

	if s.files != nil {
		for _, resource := range doomed {
			if resource.Type == models.ResourceTypeFile && resource.FileURL != "" {
				s.files.Delete(ctx, resource.FileURL)
			}
		}
	}

	s.recordResource(ctx, actor, "resource.deleted", id)
	return nil
}

// collectSubtrees gathers the given roots and all their descendants
// iteratively. The visited set caps traversal on malformed parent
// cycles.
func (s *resourceService) collectSubtrees(ctx context.Context, roots []models.Resource) ([]models.Resource, error) {
	var collected []models.Resource
	visited := make(map[uint]struct{})

	stack := append([]models.Resource(nil), roots...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[current.ID]; seen {
			continue
		}
		visited[current.ID] = struct{}{}
		collected = append(collected, current)

		children, err := s.resources.ListChildren(ctx, current.ID)
		if err != nil {
			return nil, err
		}
		stack = append(stack, children...)
	}

	return collected, nil
}

// AttachFile uploads a file and binds it to a file-type resource.
func (s *resourceService) AttachFile(ctx context.Context, id uint, name string, reader io.Reader, actor Actor) (models.Resource, error) {
	resource, err := s.Get(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}
	if resource.Type != models.ResourceTypeFile {
		return models.Resource{}, ErrInvalidResourceType
	}
	if s.files == nil {
		return models.Resource{}, errors.New("file storage not configured")
	}

	fileURL, err := s.files.Store(ctx, name, reader)
	if err != nil {
		return models.Resource{}, err
	}

	previous := resource.FileURL
	resource.FileURL = fileURL
	if err := s.resources.Update(ctx, &resource); err != nil {
		return models.Resource{}, err
	}
	if previous != "" && previous != fileURL {
		s.files.Delete(ctx, previous)
	}

	s.recordResource(ctx, actor, "resource.file_attached", resource.ID)
	return resource, nil
}

func (s *resourceService) Reorder(ctx context.Context, payload dto.ReorderRequest, actor Actor) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	items := make([]repository.ReorderItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, repository.ReorderItem{ID: item.ID, Position: item.Position})
	}
	if err := s.resources.Reorder(ctx, items); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResourceNotFound
		}
		return err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "resource.reordered",
		EntityType: "resource",
		Metadata: map[string]interface{}{
			"count": len(items),
		},
	})
	return nil
}

// notifyTemplateChange pushes newly authored template resources toward
// groups that already synced the section.
func (s *resourceService) notifyTemplateChange(ctx context.Context, section models.CourseSection, resourceID uint) {
	if s.templates == nil || !section.IsTemplate() {
		return
	}
	if err := s.templates.NotifyTemplateResourceCreated(ctx, resourceID); err != nil {
		s.logger.Warn().Err(err).Uint("resource_id", resourceID).Msg("template resource event publish failed")
	}
}

func (s *resourceService) recordResource(ctx context.Context, actor Actor, action string, id uint) {
	resourceID := id
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "resource",
		EntityID:   &resourceID,
	})
}
