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

// CourseService manages courses and their subject groups.
type CourseService interface {
	Get(ctx context.Context, id uint) (models.Course, error)
	Create(ctx context.Context, payload dto.CourseCreateRequest, actor Actor) (models.Course, error)
	AddSubjectGroup(ctx context.Context, courseID uint, payload dto.SubjectGroupCreateRequest, actor Actor) (models.SubjectGroup, error)
}

type courseService struct {
	courses   repository.CourseRepository
	templates TemplateService
	validator *validator.Validate
	activity  ActivityRecorder
	logger    zerolog.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(
	courses repository.CourseRepository,
	templates TemplateService,
	validate *validator.Validate,
	activity ActivityRecorder,
	logger zerolog.Logger,
) CourseService {
	return &courseService{
		courses:   courses,
		templates: templates,
		validator: validate,
		activity:  activity,
		logger:    logger.With().Str("component", "course_service").Logger(),
	}
}

func (s *courseService) Get(ctx context.Context, id uint) (models.Course, error) {
	course, err := s.courses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Course{}, ErrCourseNotFound
		}
		return models.Course{}, err
	}
	return course, nil
}

// Create stores the course and kicks off the template bootstrap, which
// seeds the general section plus one section per academic week.
func (s *courseService) Create(ctx context.Context, payload dto.CourseCreateRequest, actor Actor) (models.Course, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.Course{}, err
	}

	course := models.Course{
		CourseCode:  payload.CourseCode,
		Name:        payload.Name,
		Description: payload.Description,
		Grade:       payload.Grade,
	}
	if err := s.courses.Create(ctx, &course); err != nil {
		return models.Course{}, err
	}

	if s.templates != nil {
		if err := s.templates.NotifyCourseCreated(ctx, course.ID); err != nil {
			s.logger.Warn().Err(err).Uint("course_id", course.ID).Msg("course created event publish failed")
		}
	}

	courseID := course.ID
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "course.created",
		EntityType: "course",
		EntityID:   &courseID,
	})

	return course, nil
}

func (s *courseService) AddSubjectGroup(ctx context.Context, courseID uint, payload dto.SubjectGroupCreateRequest, actor Actor) (models.SubjectGroup, error) {
	if err := s.validator.Struct(payload); err != nil {
		return models.SubjectGroup{}, err
	}

	if _, err := s.Get(ctx, courseID); err != nil {
		return models.SubjectGroup{}, err
	}

	group := models.SubjectGroup{
		CourseID:    courseID,
		ClassroomID: payload.ClassroomID,
		TeacherID:   payload.TeacherID,
	}
	if err := s.courses.CreateSubjectGroup(ctx, &group); err != nil {
		return models.SubjectGroup{}, err
	}

	groupID := group.ID
	recordActivity(ctx, s.activity, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "subject_group.created",
		EntityType: "subject_group",
		EntityID:   &groupID,
	})

	return group, nil
}
