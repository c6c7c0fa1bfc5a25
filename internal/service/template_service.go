package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/sabaq-dev/sabaq-api/internal/models"
	"github.com/sabaq-dev/sabaq-api/internal/repository"
)

const (
	templateEventsSubject = "sabaq.templates.events"
	templateEventsQueue   = "sabaq-template-sync"
)

// TemplateEventKind names what happened to a template unit.
type TemplateEventKind string

const (
	TemplateEventCourseCreated     TemplateEventKind = "course.created"
	TemplateEventResourceCreated   TemplateEventKind = "template_resource.created"
	TemplateEventAssignmentCreated TemplateEventKind = "template_assignment.created"
)

// TemplateEvent rides the event bus between the entity services and
// the sync engine.
type TemplateEvent struct {
	Kind    TemplateEventKind `json:"kind"`
	UnitID  uint              `json:"unit_id"`
	SentAt  time.Time         `json:"sent_at"`
	Attempt int               `json:"attempt,omitempty"`
}

// TemplateService bootstraps course templates and relays template
// change events to the propagation side of the sync engine. With no
// NATS connection events are handled in process.
type TemplateService interface {
	EnsureTemplateSections(ctx context.Context, courseID uint, academicStart *time.Time) (int, error)
	NotifyCourseCreated(ctx context.Context, courseID uint) error
	NotifyTemplateResourceCreated(ctx context.Context, resourceID uint) error
	NotifyTemplateAssignmentCreated(ctx context.Context, assignmentID uint) error
	Start(ctx context.Context)
}

type templateService struct {
	courses  repository.CourseRepository
	sections repository.SectionRepository
	sync     SyncService
	nats     *nats.Conn
	logger   zerolog.Logger
	now      func() time.Time
}

// NewTemplateService constructs the template service. natsConn may be
// nil; events then short-circuit to the local handler.
func NewTemplateService(
	courses repository.CourseRepository,
	sections repository.SectionRepository,
	syncService SyncService,
	natsConn *nats.Conn,
	logger zerolog.Logger,
) TemplateService {
	return &templateService{
		courses:  courses,
		sections: sections,
		sync:     syncService,
		nats:     natsConn,
		logger:   logger.With().Str("component", "template_service").Logger(),
		now:      time.Now,
	}
}

// EnsureTemplateSections seeds a freshly created course with its
// template skeleton: one dateless general section plus one section per
// academic week. Courses that already carry template sections are left
// untouched, so the bootstrap is safe to replay.
func (s *templateService) EnsureTemplateSections(ctx context.Context, courseID uint, academicStart *time.Time) (int, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCourseNotFound
		}
		return 0, err
	}

	existing, err := s.sections.ListTemplates(ctx, courseID)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}

	var start, end time.Time
	if academicStart != nil {
		start = *academicStart
		_, end = AcademicYearBounds(start)
	} else {
		start, end = AcademicYearBounds(s.now())
	}

	general := models.CourseSection{
		CourseID: &courseID,
		Title:    GeneralSectionTitle,
		Position: 0,
	}
	sections := append([]models.CourseSection{general}, WeeklyTemplateSections(courseID, start, end)...)

	if err := s.sections.CreateBatch(ctx, sections); err != nil {
		return 0, err
	}

	s.logger.Info().
		Uint("course_id", courseID).
		Int("sections", len(sections)).
		Msg("course template bootstrapped")

	return len(sections), nil
}

func (s *templateService) NotifyCourseCreated(ctx context.Context, courseID uint) error {
	return s.publish(ctx, TemplateEvent{Kind: TemplateEventCourseCreated, UnitID: courseID})
}

func (s *templateService) NotifyTemplateResourceCreated(ctx context.Context, resourceID uint) error {
	return s.publish(ctx, TemplateEvent{Kind: TemplateEventResourceCreated, UnitID: resourceID})
}

func (s *templateService) NotifyTemplateAssignmentCreated(ctx context.Context, assignmentID uint) error {
	return s.publish(ctx, TemplateEvent{Kind: TemplateEventAssignmentCreated, UnitID: assignmentID})
}

func (s *templateService) publish(ctx context.Context, event TemplateEvent) error {
	event.SentAt = s.now()

	if s.nats == nil {
		s.handleEvent(ctx, event)
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.nats.Publish(templateEventsSubject, payload)
}

// Start subscribes to the template event subject. One consumer per
// queue group handles each event even when several API nodes run.
func (s *templateService) Start(ctx context.Context) {
	if s.nats == nil {
		return
	}

	sub, err := s.nats.QueueSubscribe(templateEventsSubject, templateEventsQueue, func(msg *nats.Msg) {
		var event TemplateEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			s.logger.Error().Err(err).Msg("malformed template event")
			return
		}
		s.handleEvent(context.Background(), event)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to template events subject")
		return
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
}

func (s *templateService) handleEvent(ctx context.Context, event TemplateEvent) {
	var err error
	switch event.Kind {
	case TemplateEventCourseCreated:
		_, err = s.EnsureTemplateSections(ctx, event.UnitID, nil)
	case TemplateEventResourceCreated:
		_, err = s.sync.PropagateTemplateResource(ctx, event.UnitID)
	case TemplateEventAssignmentCreated:
		_, err = s.sync.PropagateTemplateAssignment(ctx, event.UnitID)
	default:
		s.logger.Warn().Str("kind", string(event.Kind)).Msg("unknown template event kind")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).
			Str("kind", string(event.Kind)).
			Uint("unit_id", event.UnitID).
			Msg("template event handling failed")
	}
}
