package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrAssignmentNotFound indicates the assignment does not exist.
var ErrAssignmentNotFound = errors.New("assignment not found")

// ErrAttachmentNotFound indicates the attachment does not exist.
var ErrAttachmentNotFound = errors.New("attachment not found")

// AssignmentService manages assignments and their attachments.
type AssignmentService interface {
	Get(ctx context.Context, id uint) (models.Assignment, error)
	ListBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error)
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor Actor) (models.Assignment, error)
	Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor Actor) (models.Assignment, error)
	Delete(ctx context.Context, id uint, actor Actor) error
	AddAttachment(ctx context.Context, assignmentID uint, payload dto.AttachmentRequest, actor Actor) (models.AssignmentAttachment, error)
	DeleteAttachment(ctx context.Context, assignmentID, attachmentID uint, actor Actor) error
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	sections    repository.SectionRepository
	syncRepo    repository.SyncRepository
	templates   TemplateService
	files       FileStore
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	activity    ActivityRecorder
	logger      zerolog.Logger
}

// NewAssignmentService constructs the assignment service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	sections repository.SectionRepository,
	syncRepo repository.SyncRepository,
	templates TemplateService,
	files FileStore,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		sections:    sections,
		syncRepo:    syncRepo,
		templates:   templates,
		files:       files,
		validator:   validate,
		sanitizer:   bluemonday.UGCPolicy(),
		activity:    activity,
		logger:      logger.With().Str("component", "assignment_service").Logger(),
	}
}

func (s *assignmentService) Get(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *assignmentService) ListBySection(ctx context.Context, sectionID uint) ([]models.Assignment, error) {
	return s.assignments.ListBySection(ctx, sectionID)
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, actor Actor) (models.Assignment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Assignment{}, err
	}

	section, err := s.sections.GetByID(ctx, payload.SectionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrSectionNotFound
		}
		return models.Assignment{}, err
	}

	assignment := models.Assignment{
		CourseSectionID:         payload.SectionID,
		TeacherID:               actor.ID,
		Title:                   payload.Title,
		Description:             s.sanitizer.Sanitize(payload.Description),
		DueAt:                   payload.DueAt,
		MaxGrade:                payload.MaxGrade,
		TemplateStartOffsetDays: payload.TemplateStartOffsetDays,
		TemplateDueTime:         payload.TemplateDueTime,
	}
	for i, attachment := range payload.Attachments {
		position := i
		if attachment.Position != nil {
			position = *attachment.Position
		}
		assignment.Attachments = append(assignment.Attachments, models.AssignmentAttachment{
			Type:     attachment.Type,
			Title:    attachment.Title,
			Content:  s.sanitizer.Sanitize(attachment.Content),
			FileURL:  attachment.FileURL,
			Position: position,
		})
	}

	if err := s.assignments.Create(ctx, &assignment); err != nil {
		return models.Assignment{}, err
	}

	s.recordAssignment(ctx, actor, "assignment.created", assignment.ID)
	if s.templates != nil && section.IsTemplate() {
		if err := s.templates.NotifyTemplateAssignmentCreated(ctx, assignment.ID); err != nil {
			s.logger.Warn().Err(err).Uint("assignment_id", assignment.ID).Msg("template assignment event publish failed")
		}
	}

	return assignment, nil
}

func (s *assignmentService) Update(ctx context.Context, id uint, payload dto.AssignmentUpdateRequest, actor Actor) (models.Assignment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Assignment{}, err
	}

	assignment, err := s.Get(ctx, id)
	if err != nil {
		return models.Assignment{}, err
	}

	if payload.Title != nil {
		assignment.Title = *payload.Title
	}
	if payload.Description != nil {
		assignment.Description = s.sanitizer.Sanitize(*payload.Description)
	}
	if payload.DueAt != nil {
		assignment.DueAt = payload.DueAt
	}
	if payload.MaxGrade != nil {
		assignment.MaxGrade = *payload.MaxGrade
	}
	if payload.TemplateStartOffsetDays != nil {
		assignment.TemplateStartOffsetDays = payload.TemplateStartOffsetDays
	}
	if payload.TemplateDueTime != nil {
		assignment.TemplateDueTime = payload.TemplateDueTime
	}

	if err := s.assignments.Update(ctx, &assignment); err != nil {
		return models.Assignment{}, err
	}

	s.recordAssignment(ctx, actor, "assignment.updated", assignment.ID)
	return assignment, nil
}

// Delete removes an assignment. Template assignments cascade to their
// still-linked clones; unlinked clones survive as orphans keeping
// their template reference for audit.
func (s *assignmentService) Delete(ctx context.Context, id uint, actor Actor) error {
	assignment, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	section, err := s.sections.GetByID(ctx, assignment.CourseSectionID)
	if err != nil {
		return err
	}

	if section.IsTemplate() {
		err = s.syncRepo.WithinTx(ctx, func(repo repository.SyncRepository) error {
			clones, err := repo.DerivedAssignmentsByTemplate(ctx, assignment.ID)
			if err != nil {
				return err
			}
			for _, clone := range clones {
				if clone.IsUnlinkedFromTemplate {
					continue
				}
				if err := repo.DeleteAssignment(ctx, clone.ID); err != nil {
					return err
				}
			}
			return repo.DeleteAssignment(ctx, assignment.ID)
		})
	} else {
		err = s.assignments.Delete(ctx, id)
	}
	if err != nil {
		return err
	}

	if s.files != nil {
		for _, attachment := range assignment.Attachments {
			if attachment.Type == models.AttachmentTypeFile && attachment.FileURL != "" {
				s.files.Delete(ctx, attachment.FileURL)
			}
		}
	}

	s.recordAssignment(ctx, actor, "assignment.deleted", id)
	return nil
}

func (s *assignmentService) AddAttachment(ctx context.Context, assignmentID uint, payload dto.AttachmentRequest, actor Actor) (models.AssignmentAttachment, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.AssignmentAttachment{}, err
	}

	assignment, err := s.Get(ctx, assignmentID)
	if err != nil {
		return models.AssignmentAttachment{}, err
	}

	position := len(assignment.Attachments)
	if payload.Position != nil {
		position = *payload.Position
	}

	attachment := models.AssignmentAttachment{
		AssignmentID: assignment.ID,
		Type:         payload.Type,
		Title:        payload.Title,
		Content:      s.sanitizer.Sanitize(payload.Content),
		FileURL:      payload.FileURL,
		Position:     position,
	}
	if err := s.assignments.CreateAttachment(ctx, &attachment); err != nil {
		return models.AssignmentAttachment{}, err
	}

	s.recordAssignment(ctx, actor, "assignment.attachment_added", assignment.ID)
	return attachment, nil
}

func (s *assignmentService) DeleteAttachment(ctx context.Context, assignmentID, attachmentID uint, actor Actor) error {
	assignment, err := s.Get(ctx, assignmentID)
	if err != nil {
		return err
	}

	var target *models.AssignmentAttachment
	for i := range assignment.Attachments {
		if assignment.Attachments[i].ID == attachmentID {
			target = &assignment.Attachments[i]
			break
		}
	}
	if target == nil {
		return ErrAttachmentNotFound
	}

	if err := s.assignments.DeleteAttachment(ctx, attachmentID); err != nil {
		return err
	}
	if s.files != nil && target.Type == models.AttachmentTypeFile && target.FileURL != "" {
		s.files.Delete(ctx, target.FileURL)
	}

	s.recordAssignment(ctx, actor, "assignment.attachment_deleted", assignmentID)
	return nil
}

func (s *assignmentService) recordAssignment(ctx context.Context, actor Actor, action string, id uint) {
	assignmentID := id
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: "assignment",
		EntityID:   &assignmentID,
	})
}
