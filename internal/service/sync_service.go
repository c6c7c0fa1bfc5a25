package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/observability"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

// ErrPermissionDenied indicates the actor may not manage the target.
var ErrPermissionDenied = errors.New("permission denied")

// ErrCourseNotFound indicates the course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// ErrSubjectGroupNotFound indicates the subject group does not exist.
var ErrSubjectGroupNotFound = errors.New("subject group not found")

// ErrNoTemplateSections indicates the course has no template content to sync.
var ErrNoTemplateSections = errors.New("course has no template sections")

// ErrNoSubjectGroups indicates the course has no live classes to sync into.
var ErrNoSubjectGroups = errors.New("course has no subject groups")

// ErrNoAssociatedCourse indicates the subject group is not linked to a course.
var ErrNoAssociatedCourse = errors.New("subject group has no associated course")

// AccessChecker decides whether an actor may manage a course or subject
// group. Denials surface as ErrPermissionDenied before any work runs.
type AccessChecker interface {
	CanManageCourse(ctx context.Context, actor Actor, courseID uint) (bool, error)
	CanManageSubjectGroup(ctx context.Context, actor Actor, subjectGroupID uint) (bool, error)
}

// SyncReport counts planner decisions across all synced nodes.
type SyncReport struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Preserved int `json:"preserved"`
	Deleted   int `json:"deleted"`
}

func (r *SyncReport) merge(other SyncReport) {
	r.Created += other.Created
	r.Updated += other.Updated
	r.Preserved += other.Preserved
	r.Deleted += other.Deleted
}

// TargetSync is the per-subject-group outcome of a fan-out. A failed
// target carries its error message; the remaining targets still run.
type TargetSync struct {
	SubjectGroupID uint       `json:"subject_group_id"`
	Report         SyncReport `json:"report"`
	Error          string     `json:"error,omitempty"`
}

// SyncSummary aggregates a whole sync run.
type SyncSummary struct {
	CourseID          uint         `json:"course_id"`
	AcademicStartDate time.Time    `json:"academic_start_date"`
	Targets           []TargetSync `json:"targets"`
	Totals            SyncReport   `json:"totals"`
}

// SyncService syncs template content into subject groups and answers
// read-only sync-status queries.
type SyncService interface {
	SyncCourse(ctx context.Context, courseID uint, academicStart *time.Time, actor Actor) (SyncSummary, error)
	SyncSubjectGroup(ctx context.Context, subjectGroupID uint, academicStart *time.Time, actor Actor) (SyncSummary, error)
	Status(ctx context.Context, subjectGroupID uint) (SyncStatusReport, error)
	PropagateTemplateResource(ctx context.Context, resourceID uint) (SyncReport, error)
	PropagateTemplateAssignment(ctx context.Context, assignmentID uint) (SyncReport, error)
}

type syncService struct {
	repo     repository.SyncRepository
	courses  repository.CourseRepository
	sections repository.SectionRepository
	cache    *redis.Client
	cacheTTL time.Duration
	access   AccessChecker
	activity ActivityRecorder
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSyncService constructs the sync service. The redis client may be
// nil; sync-status reports are then computed fresh on every call.
func NewSyncService(
	repo repository.SyncRepository,
	courses repository.CourseRepository,
	sections repository.SectionRepository,
	cache *redis.Client,
	cacheTTL time.Duration,
	access AccessChecker,
	activity ActivityRecorder,
	logger zerolog.Logger,
) SyncService {
	return &syncService{
		repo:     repo,
		courses:  courses,
		sections: sections,
		cache:    cache,
		cacheTTL: cacheTTL,
		access:   access,
		activity: activity,
		logger:   logger.With().Str("component", "sync_service").Logger(),
		now:      time.Now,
	}
}

func (s *syncService) SyncCourse(ctx context.Context, courseID uint, academicStart *time.Time, actor Actor) (SyncSummary, error) {
	tracer := otel.Tracer("github.com/sabaq-dev/sabaq-api/internal/service/sync")
	ctx, span := tracer.Start(ctx, "sync.course")
	span.SetAttributes(attribute.Int64("sync.course_id", int64(courseID)))
	defer span.End()

	if err := s.checkCourseAccess(ctx, actor, courseID); err != nil {
		span.SetStatus(codes.Error, "access_denied")
		return SyncSummary{}, err
	}

	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncSummary{}, ErrCourseNotFound
		}
		return SyncSummary{}, err
	}

	templates, err := s.repo.TemplateSections(ctx, courseID)
	if err != nil {
		return SyncSummary{}, err
	}
	if len(templates) == 0 {
		return SyncSummary{}, ErrNoTemplateSections
	}

	groups, err := s.courses.SubjectGroupsOf(ctx, courseID)
	if err != nil {
		return SyncSummary{}, err
	}
	if len(groups) == 0 {
		return SyncSummary{}, ErrNoSubjectGroups
	}

	start := s.resolveAcademicStart(academicStart)
	summary := SyncSummary{CourseID: courseID, AcademicStartDate: start}

	for _, group := range groups {
		target := s.syncOneTarget(ctx, templates, group.ID, start)
		summary.Targets = append(summary.Targets, target)
		summary.Totals.merge(target.Report)
	}

	s.recordSync(ctx, actor, "course.synced", "course", courseID, summary)
	span.SetAttributes(
		attribute.Int("sync.targets", len(summary.Targets)),
		attribute.Int("sync.created", summary.Totals.Created),
		attribute.Int("sync.updated", summary.Totals.Updated),
	)

	return summary, nil
}

func (s *syncService) SyncSubjectGroup(ctx context.Context, subjectGroupID uint, academicStart *time.Time, actor Actor) (SyncSummary, error) {
	tracer := otel.Tracer("github.com/sabaq-dev/sabaq-api/internal/service/sync")
	ctx, span := tracer.Start(ctx, "sync.subject_group")
	span.SetAttributes(attribute.Int64("sync.subject_group_id", int64(subjectGroupID)))
	defer span.End()

	if err := s.checkSubjectGroupAccess(ctx, actor, subjectGroupID); err != nil {
		span.SetStatus(codes.Error, "access_denied")
		return SyncSummary{}, err
	}

	group, err := s.courses.GetSubjectGroup(ctx, subjectGroupID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SyncSummary{}, ErrSubjectGroupNotFound
		}
		return SyncSummary{}, err
	}
	if group.CourseID == 0 {
		return SyncSummary{}, ErrNoAssociatedCourse
	}

	templates, err := s.repo.TemplateSections(ctx, group.CourseID)
	if err != nil {
		return SyncSummary{}, err
	}
	if len(templates) == 0 {
		return SyncSummary{}, ErrNoTemplateSections
	}

	start := s.resolveAcademicStart(academicStart)
	summary := SyncSummary{CourseID: group.CourseID, AcademicStartDate: start}

	target := s.syncOneTarget(ctx, templates, group.ID, start)
	summary.Targets = append(summary.Targets, target)
	summary.Totals.merge(target.Report)

	s.recordSync(ctx, actor, "subject_group.synced", "subject_group", subjectGroupID, summary)

	return summary, nil
}

// syncOneTarget runs the planner for one subject group. Each target is
// its own failure domain: an error is reported in the summary instead
// of aborting the remaining targets of a fan-out.
func (s *syncService) syncOneTarget(ctx context.Context, templates []models.CourseSection, subjectGroupID uint, academicStart time.Time) TargetSync {
	target := TargetSync{SubjectGroupID: subjectGroupID}

	timer := observability.SyncDuration().WithLabelValues("subject_group")
	started := s.now()

	// One transaction per target: a failed target rolls back whole,
	// already-committed targets stay committed.
	err := s.repo.WithinTx(ctx, func(repo repository.SyncRepository) error {
		var report SyncReport
		for _, template := range templates {
			sectionReport, err := s.syncSectionTree(ctx, repo, template, subjectGroupID, academicStart)
			report.merge(sectionReport)
			if err != nil {
				return err
			}
		}
		target.Report = report
		return nil
	})
	if err != nil {
		s.logger.Error().Err(err).
			Uint("subject_group_id", subjectGroupID).
			Msg("subject group sync failed")
		target.Report = SyncReport{}
		target.Error = err.Error()
	}

	timer.Observe(s.now().Sub(started).Seconds())
	if target.Error == "" {
		observability.SyncRuns().WithLabelValues("ok").Inc()
	} else {
		observability.SyncRuns().WithLabelValues("failed").Inc()
	}

	s.invalidateStatusCache(ctx, subjectGroupID)

	return target
}

func (s *syncService) resolveAcademicStart(explicit *time.Time) time.Time {
	if explicit != nil {
		return *explicit
	}
	start, _ := AcademicYearBounds(s.now())
	return start
}

func (s *syncService) checkCourseAccess(ctx context.Context, actor Actor, courseID uint) error {
	if s.access == nil {
		return nil
	}
	ok, err := s.access.CanManageCourse(ctx, actor, courseID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

func (s *syncService) checkSubjectGroupAccess(ctx context.Context, actor Actor, subjectGroupID uint) error {
	if s.access == nil {
		return nil
	}
	ok, err := s.access.CanManageSubjectGroup(ctx, actor, subjectGroupID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrPermissionDenied
	}
	return nil
}

func (s *syncService) recordSync(ctx context.Context, actor Actor, action, entityType string, entityID uint, summary SyncSummary) {
	id := entityID
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   &id,
		Metadata: map[string]interface{}{
			"created":   summary.Totals.Created,
			"updated":   summary.Totals.Updated,
			"preserved": summary.Totals.Preserved,
			"deleted":   summary.Totals.Deleted,
			"targets":   len(summary.Targets),
		},
	})
}
