package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrSectionNotFound indicates the section does not exist.
var ErrSectionNotFound = errors.New("section not found")

// ErrSectionScope rejects sections that would belong to both a course
// template and a subject group, or to neither.
var ErrSectionScope = errors.New("section must belong to exactly one of course or subject group")

// SectionService manages course sections on both sides of the template
// boundary.
type SectionService interface {
	Get(ctx context.Context, id uint) (models.CourseSection, error)
	ListTemplates(ctx context.Context, courseID uint) ([]models.CourseSection, error)
	ListBySubjectGroup(ctx context.Context, subjectGroupID uint) ([]models.CourseSection, error)
	Create(ctx context.Context, payload dto.SectionCreateRequest, actor Actor) (models.CourseSection, error)
	Update(ctx context.Context, id uint, payload dto.SectionUpdateRequest, actor Actor) (models.CourseSection, error)
	Delete(ctx context.Context, id uint, actor Actor) error
	Reorder(ctx context.Context, payload dto.ReorderRequest, actor Actor) error
}

type sectionService struct {
	sections  repository.SectionRepository
	syncRepo  repository.SyncRepository
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewSectionService constructs the section service.
func NewSectionService(
	sections repository.SectionRepository,
	syncRepo repository.SyncRepository,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) SectionService {
	return &sectionService{
		sections:  sections,
		syncRepo:  syncRepo,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "section_service").Logger(),
	}
}

func (s *sectionService) Get(ctx context.Context, id uint) (models.CourseSection, error) {
	section, err := s.sections.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CourseSection{}, ErrSectionNotFound
		}
		return models.CourseSection{}, err
	}
	return section, nil
}

func (s *sectionService) ListTemplates(ctx context.Context, courseID uint) ([]models.CourseSection, error) {
	return s.sections.ListTemplates(ctx, courseID)
}

func (s *sectionService) ListBySubjectGroup(ctx context.Context, subjectGroupID uint) ([]models.CourseSection, error) {
	return s.sections.ListBySubjectGroup(ctx, subjectGroupID)
}

func (s *sectionService) Create(ctx context.Context, payload dto.SectionCreateRequest, actor Actor) (models.CourseSection, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.CourseSection{}, err
	}
	if (payload.CourseID == nil) == (payload.SubjectGroupID == nil) {
		return models.CourseSection{}, ErrSectionScope
	}

	section := models.CourseSection{
		CourseID:          payload.CourseID,
		SubjectGroupID:    payload.SubjectGroupID,
		Title:             payload.Title,
		StartDate:         payload.StartDate,
		EndDate:           payload.EndDate,
		TemplateWeekIndex: payload.TemplateWeekIndex,
	}

	if payload.Position != nil {
		section.Position = *payload.Position
	} else if payload.CourseID != nil {
		max, err := s.sections.MaxTemplatePosition(ctx, *payload.CourseID)
		if err != nil {
			return models.CourseSection{}, err
		}
		section.Position = max + 1
	}

	if err := s.sections.Create(ctx, &section); err != nil {
		return models.CourseSection{}, err
	}

	s.recordSection(ctx, actor, "section.created", section.ID)
	return section, nil
}

func (s *sectionService) Update(ctx context.Context, id uint, payload dto.SectionUpdateRequest, actor Actor) (models.CourseSection, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.CourseSection{}, err
	}

	section, err := s.Get(ctx, id)
	if err != nil {
		return models.CourseSection{}, err
	}

	if payload.Title != nil {
		section.Title = *payload.Title
	}
	if payload.Position != nil {
		section.Position = *payload.Position
	}
	if payload.StartDate != nil {
		section.StartDate = payload.StartDate
	}
	if payload.EndDate != nil {
		section.EndDate = payload.EndDate
	}

	if err := s.sections.Update(ctx, &section); err != nil {
		return models.CourseSection{}, err
	}

	s.recordSection(ctx, actor, "section.updated", section.ID)
	return section, nil
}

// Delete removes a section. Deleting a template section also removes
// every still-linked derived clone; unlinked clones survive as orphans
// keeping their template reference for audit. The unlink flag alone
// keeps them out of future syncs.
func (s *sectionService) Delete(ctx context.Context, id uint, actor Actor) error {
	section, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if section.IsTemplate() {
		err = s.syncRepo.WithinTx(ctx, func(repo repository.SyncRepository) error {
			derived, err := repo.DerivedSectionsByTemplate(ctx, section.ID)
			if err != nil {
				return err
			}
			for _, clone := range derived {
				if clone.IsUnlinkedFromTemplate {
					continue
				}
				if err := repo.DeleteSection(ctx, clone.ID); err != nil {
					return err
				}
			}
			return repo.DeleteSection(ctx, section.ID)
		})
	} else {
		err = s.sections.Delete(ctx, id)
	}
	if err != nil {
		return err
	}

	s.recordSection(ctx, actor, "section.deleted", id)
	return nil
}

func (s *sectionService) Reorder(ctx context.Context, payload dto.ReorderRequest, actor Actor) error {
	if err := s.validator.Struct(payload); err != nil {
		return err
	}

	items := make([]repository.ReorderItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, repository.ReorderItem{ID: item.ID, Position: item.Position})
	}
	if err := s.sections.Reorder(ctx, items); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSectionNotFound
		}
		return err
	}

	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "section.reordered",
		EntityType: "section",
		Metadata: map[string]interface{}{
			"count": len(items),
		},
	})
	return nil
}

func (s *sectionService) recordSection(ctx context.Context, actor Actor, action string, id uint) {
	sectionID := id
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "section",
		EntityID:   &sectionID,
	})
}
