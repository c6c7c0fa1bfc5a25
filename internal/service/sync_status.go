package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// StatusItem names one template unit that a subject group is missing
// or holds an outdated copy of.
type StatusItem struct {
	UnitType   string `json:"unit_type"`
	TemplateID uint   `json:"template_id"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
}

// SyncStatusReport is a read-only diff between a course template and
// one subject group. Computing it never mutates derived content.
type SyncStatusReport struct {
	SubjectGroupID uint         `json:"subject_group_id"`
	CourseID       uint         `json:"course_id"`
	IsSynced       bool         `json:"is_synced"`
	MissingItems   []StatusItem `json:"missing_items"`
	OutdatedItems  []StatusItem `json:"outdated_items"`
}

func statusCacheKey(subjectGroupID uint) string {
	return fmt.Sprintf("sync:status:%d", subjectGroupID)
}

// Status reports how far the subject group has drifted from its course
// template. Reports are cached; any sync or propagation touching the
// group invalidates the cached entry.
func (s *syncService) Status(ctx context.Context, subjectGroupID uint) (SyncStatusReport, error) {
	if cached, ok := s.cachedStatus(ctx, subjectGroupID); ok {
		return cached, nil
	}

	group, err := s.courses.GetSubjectGroup(ctx, subjectGroupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncStatusReport{}, ErrSubjectGroupNotFound
		}
		return SyncStatusReport{}, err
	}
	if group.CourseID == 0 {
		return SyncStatusReport{}, ErrNoAssociatedCourse
	}

	report := SyncStatusReport{SubjectGroupID: subjectGroupID, CourseID: group.CourseID}

	templates, err := s.repo.TemplateSections(ctx, group.CourseID)
	if err != nil {
		return SyncStatusReport{}, err
	}

	for _, template := range templates {
		if err := s.statusForSection(ctx, template, subjectGroupID, &report); err != nil {
			return SyncStatusReport{}, err
		}
	}

	report.IsSynced = len(report.MissingItems) == 0 && len(report.OutdatedItems) == 0
	s.storeStatus(ctx, report)
	return report, nil
}

func (s *syncService) statusForSection(ctx context.Context, template models.CourseSection, subjectGroupID uint, report *SyncStatusReport) error {
	derived, found, err := s.repo.DerivedSectionByRef(ctx, subjectGroupID, template.ID)
	if err != nil {
		return err
	}
	if !found {
		// The whole subtree is missing along with the section.
		report.MissingItems = append(report.MissingItems, StatusItem{
			UnitType: "section", TemplateID: template.ID, Title: template.Title,
		})
		return s.subtreeAsMissing(ctx, template.ID, report)
	}

	if !derived.IsUnlinkedFromTemplate {
		if derived.Title != template.Title || derived.Position != template.Position {
			report.OutdatedItems = append(report.OutdatedItems, StatusItem{
				UnitType: "section", TemplateID: template.ID, Title: template.Title,
			})
		}
	}

	if err := s.statusForResources(ctx, template.ID, derived, report); err != nil {
		return err
	}
	if err := s.statusForAssignments(ctx, template.ID, derived, report); err != nil {
		return err
	}
	return s.statusForTests(ctx, template.ID, derived, report)
}

// subtreeAsMissing lists every template unit under a section that has
// no derived counterpart at all.
func (s *syncService) subtreeAsMissing(ctx context.Context, templateSectionID uint, report *SyncStatusReport) error {
	resources, err := s.repo.ResourcesBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, resource := range resources {
		report.MissingItems = append(report.MissingItems, StatusItem{
			UnitType: "resource", TemplateID: resource.ID, Title: resource.Title,
		})
	}

	assignments, err := s.repo.AssignmentsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, assignment := range assignments {
		report.MissingItems = append(report.MissingItems, StatusItem{
			UnitType: "assignment", TemplateID: assignment.ID, Title: assignment.Title,
		})
	}

	tests, err := s.repo.TestsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, test := range tests {
		report.MissingItems = append(report.MissingItems, StatusItem{
			UnitType: "test", TemplateID: test.ID, Title: test.Title,
		})
	}
	return nil
}

func (s *syncService) statusForResources(ctx context.Context, templateSectionID uint, target models.CourseSection, report *SyncStatusReport) error {
	templates, err := s.repo.ResourcesBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, template := range templates {
		derived, found, err := s.repo.DerivedResourceByRef(ctx, target.ID, template.ID)
		if err != nil {
			return err
		}
		if !found {
			report.MissingItems = append(report.MissingItems, StatusItem{
				UnitType: "resource", TemplateID: template.ID, Title: template.Title,
			})
			continue
		}
		if derived.IsUnlinkedFromTemplate {
			continue
		}
		outdated := derived.Type != template.Type ||
			derived.Title != template.Title ||
			derived.Description != template.Description ||
			derived.URL != template.URL ||
			derived.Position != template.Position ||
			(template.FileURL != "" && derived.FileURL != template.FileURL)
		if outdated {
			report.OutdatedItems = append(report.OutdatedItems, StatusItem{
				UnitType: "resource", TemplateID: template.ID, Title: template.Title,
			})
		}
	}
	return nil
}

func (s *syncService) statusForAssignments(ctx context.Context, templateSectionID uint, target models.CourseSection, report *SyncStatusReport) error {
	templates, err := s.repo.AssignmentsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, template := range templates {
		derived, found, err := s.repo.DerivedAssignmentByRef(ctx, target.ID, template.ID)
		if err != nil {
			return err
		}
		if !found {
			report.MissingItems = append(report.MissingItems, StatusItem{
				UnitType: "assignment", TemplateID: template.ID, Title: template.Title,
			})
			continue
		}
		if derived.IsUnlinkedFromTemplate {
			continue
		}
		due := assignmentDueFromTemplate(template, target.StartDate)
		outdated := derived.Title != template.Title ||
			derived.Description != template.Description ||
			derived.MaxGrade != template.MaxGrade ||
			!timePtrEqual(derived.DueAt, due)
		if outdated {
			report.OutdatedItems = append(report.OutdatedItems, StatusItem{
				UnitType: "assignment", TemplateID: template.ID, Title: template.Title,
			})
		}
	}
	return nil
}

// statusForTests compares test metadata and the question roster. The
// per-question reference answers are left out of the diff: graded work
// freezes them on the derived side, which is expected drift, not an
// out-of-sync condition.
func (s *syncService) statusForTests(ctx context.Context, templateSectionID uint, target models.CourseSection, report *SyncStatusReport) error {
	templates, err := s.repo.TestsBySection(ctx, templateSectionID)
	if err != nil {
		return err
	}
	for _, template := range templates {
		derived, found, err := s.repo.DerivedTestByRef(ctx, target.ID, template.ID)
		if err != nil {
			return err
		}
		if !found {
			report.MissingItems = append(report.MissingItems, StatusItem{
				UnitType: "test", TemplateID: template.ID, Title: template.Title,
			})
			continue
		}
		if derived.IsUnlinkedFromTemplate {
			continue
		}

		scratch := derived
		if applyTestMetadata(&scratch, template) {
			report.OutdatedItems = append(report.OutdatedItems, StatusItem{
				UnitType: "test", TemplateID: template.ID, Title: template.Title,
				Detail: "metadata differs",
			})
			continue
		}

		templateQuestions, err := s.repo.QuestionsByTest(ctx, template.ID)
		if err != nil {
			return err
		}
		derivedQuestions, err := s.repo.QuestionsByTest(ctx, derived.ID)
		if err != nil {
			return err
		}
		if detail, drifted := questionsDrifted(templateQuestions, derivedQuestions); drifted {
			report.OutdatedItems = append(report.OutdatedItems, StatusItem{
				UnitType: "test", TemplateID: template.ID, Title: template.Title,
				Detail: detail,
			})
		}
	}
	return nil
}

func questionsDrifted(templates, derived []models.Question) (string, bool) {
	derivedByKey := make(map[questionKey]models.Question, len(derived))
	for _, question := range derived {
		derivedByKey[questionKey{question.Position, question.Type}] = question
	}

	for _, template := range templates {
		counterpart, ok := derivedByKey[questionKey{template.Position, template.Type}]
		if !ok {
			return fmt.Sprintf("question %d missing", template.Position), true
		}
		if counterpart.Text != template.Text ||
			counterpart.Points != template.Points ||
			len(counterpart.Options) != len(template.Options) {
			return fmt.Sprintf("question %d differs", template.Position), true
		}
	}
	return "", false
}

func (s *syncService) cachedStatus(ctx context.Context, subjectGroupID uint) (SyncStatusReport, bool) {
	if s.cache == nil {
		return SyncStatusReport{}, false
	}
	payload, err := s.cache.Get(ctx, statusCacheKey(subjectGroupID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("sync status cache read failed")
		}
		return SyncStatusReport{}, false
	}
	var report SyncStatusReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return SyncStatusReport{}, false
	}
	return report, true
}

func (s *syncService) storeStatus(ctx context.Context, report SyncStatusReport) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, statusCacheKey(report.SubjectGroupID), payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("sync status cache write failed")
	}
}

func (s *syncService) invalidateStatusCache(ctx context.Context, subjectGroupID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(subjectGroupID)).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("sync status cache invalidation failed")
	}
}
