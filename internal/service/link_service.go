package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrUnitNotFound indicates the unit does not exist.
var ErrUnitNotFound = errors.New("unit not found")

// ErrNotDerivedFromTemplate indicates relink hit a unit that was never
// cloned from a template.
var ErrNotDerivedFromTemplate = errors.New("unit is not derived from a template")

// ErrUnknownUnitType indicates an unsupported unit type string.
var ErrUnknownUnitType = errors.New("unknown unit type")

// UnitType names a syncable unit kind for unlink/relink calls.
type UnitType string

const (
	UnitTypeSection    UnitType = "section"
	UnitTypeResource   UnitType = "resource"
	UnitTypeAssignment UnitType = "assignment"
	UnitTypeTest       UnitType = "test"
)

// LinkService flips the per-unit unlink flag that shields derived
// content from template syncs. Unlinking is idempotent; relinking a
// unit that never had a template reference is an error.
type LinkService interface {
	Unlink(ctx context.Context, unitType UnitType, id uint, actor Actor) error
	Relink(ctx context.Context, unitType UnitType, id uint, actor Actor) error
}

type linkService struct {
	sections    repository.SectionRepository
	resources   repository.ResourceRepository
	assignments repository.AssignmentRepository
	tests       repository.TestRepository
	activity    ActivityRecorder
	logger      zerolog.Logger
}

// NewLinkService constructs the link service.
func NewLinkService(
	sections repository.SectionRepository,
	resources repository.ResourceRepository,
	assignments repository.AssignmentRepository,
	tests repository.TestRepository,
	activity ActivityRecorder,
	logger zerolog.Logger,
) LinkService {
	return &linkService{
		sections:    sections,
		resources:   resources,
		assignments: assignments,
		tests:       tests,
		activity:    activity,
		logger:      logger.With().Str("component", "link_service").Logger(),
	}
}

func (s *linkService) Unlink(ctx context.Context, unitType UnitType, id uint, actor Actor) error {
	if err := s.setUnlinked(ctx, unitType, id, true); err != nil {
		return err
	}
	s.recordLink(ctx, actor, "unit.unlinked", unitType, id)
	return nil
}

func (s *linkService) Relink(ctx context.Context, unitType UnitType, id uint, actor Actor) error {
	if err := s.setUnlinked(ctx, unitType, id, false); err != nil {
		return err
	}
	s.recordLink(ctx, actor, "unit.relinked", unitType, id)
	return nil
}

func (s *linkService) setUnlinked(ctx context.Context, unitType UnitType, id uint, unlinked bool) error {
	switch unitType {
	case UnitTypeSection:
		section, err := s.sections.GetByID(ctx, id)
		if err != nil {
			return mapUnitErr(err)
		}
		if err := checkRelinkable(section.TemplateRefID, unlinked); err != nil {
			return err
		}
		if section.IsUnlinkedFromTemplate == unlinked {
			return nil
		}
		section.IsUnlinkedFromTemplate = unlinked
		return s.sections.Update(ctx, &section)

	case UnitTypeResource:
		resource, err := s.resources.GetByID(ctx, id)
		if err != nil {
			return mapUnitErr(err)
		}
		if err := checkRelinkable(resource.TemplateRefID, unlinked); err != nil {
			return err
		}
		if resource.IsUnlinkedFromTemplate == unlinked {
			return nil
		}
		resource.IsUnlinkedFromTemplate = unlinked
		return s.resources.Update(ctx, &resource)

	case UnitTypeAssignment:
		assignment, err := s.assignments.GetByID(ctx, id)
		if err != nil {
			return mapUnitErr(err)
		}
		if err := checkRelinkable(assignment.TemplateRefID, unlinked); err != nil {
			return err
		}
		if assignment.IsUnlinkedFromTemplate == unlinked {
			return nil
		}
		assignment.IsUnlinkedFromTemplate = unlinked
		return s.assignments.Update(ctx, &assignment)

	case UnitTypeTest:
		test, err := s.tests.GetByID(ctx, id)
		if err != nil {
			return mapUnitErr(err)
		}
		if err := checkRelinkable(test.TemplateRefID, unlinked); err != nil {
			return err
		}
		if test.IsUnlinkedFromTemplate == unlinked {
			return nil
		}
		test.IsUnlinkedFromTemplate = unlinked
		return s.tests.Update(ctx, &test)
	}
	return ErrUnknownUnitType
}

// checkRelinkable rejects relink on units without a template reference.
// Unlink tolerates them: the flag is a no-op there and flipping it on
// is harmless.
func checkRelinkable(templateRefID *uint, unlinked bool) error {
	if !unlinked && templateRefID == nil {
		return ErrNotDerivedFromTemplate
	}
	return nil
}

func mapUnitErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrUnitNotFound
	}
	return err
}

func (s *linkService) recordLink(ctx context.Context, actor Actor, action string, unitType UnitType, id uint) {
	unitID := id
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: string(unitType),
		EntityID:   &unitID,
	})
}
