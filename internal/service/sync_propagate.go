package service

import (
	"context"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// PropagateTemplateResource pushes one freshly created or updated
// template resource (and its subtree) into every subject group that
// already has a derived counterpart of the template's section. Groups
// that never synced the section are left alone; the next full sync
// picks the resource up there.
func (s *syncService) PropagateTemplateResource(ctx context.Context, resourceID uint) (SyncReport, error) {
	resource, err := s.repo.ResourceByID(ctx, resourceID)
	if err != nil {
		return SyncReport{}, err
	}

	section, err := s.repo.SectionByID(ctx, resource.CourseSectionID)
	if err != nil {
		return SyncReport{}, err
	}
	if !section.IsTemplate() {
		return SyncReport{}, nil
	}

	return s.propagateToGroups(ctx, section, func(repo repository.SyncRepository, target models.CourseSection, report *SyncReport) error {
		return s.syncResources(ctx, repo, section.ID, target, &resource, report)
	})
}

// PropagateTemplateAssignment is the assignment counterpart of
// PropagateTemplateResource.
func (s *syncService) PropagateTemplateAssignment(ctx context.Context, assignmentID uint) (SyncReport, error) {
	assignment, err := s.repo.AssignmentByID(ctx, assignmentID)
	if err != nil {
		return SyncReport{}, err
	}

	section, err := s.repo.SectionByID(ctx, assignment.CourseSectionID)
	if err != nil {
		return SyncReport{}, err
	}
	if !section.IsTemplate() {
		return SyncReport{}, nil
	}

	return s.propagateToGroups(ctx, section, func(repo repository.SyncRepository, target models.CourseSection, report *SyncReport) error {
		return s.syncOneAssignment(ctx, repo, assignment, target, report)
	})
}

// propagateToGroups fans one scoped sync out over the course's subject
// groups. Each group runs in its own transaction; a failing group is
// logged and skipped so the others still receive the unit.
func (s *syncService) propagateToGroups(ctx context.Context, section models.CourseSection, sync func(repo repository.SyncRepository, target models.CourseSection, report *SyncReport) error) (SyncReport, error) {
	var total SyncReport

	groups, err := s.courses.SubjectGroupsOf(ctx, *section.CourseID)
	if err != nil {
		return SyncReport{}, err
	}

	for _, group := range groups {
		target, found, err := s.repo.DerivedSectionByRef(ctx, group.ID, section.ID)
		if err != nil {
			return total, err
		}
		if !found {
			continue
		}

		err = s.repo.WithinTx(ctx, func(repo repository.SyncRepository) error {
			var report SyncReport
			if err := sync(repo, target, &report); err != nil {
				return err
			}
			total.merge(report)
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).
				Uint("subject_group_id", group.ID).
				Uint("template_section_id", section.ID).
				Msg("template propagation failed for group")
			continue
		}

		s.invalidateStatusCache(ctx, group.ID)
	}

	return total, nil
}
