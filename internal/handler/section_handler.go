package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/service"
	"github.com/sabaq-dev/sabaq-api/internal/utils"
)

// SectionHandler wires course-section HTTP routes.
type SectionHandler struct {
	service   service.SectionService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewSectionHandler constructs the handler.
func NewSectionHandler(service service.SectionService, validator *validator.Validate, logger zerolog.Logger) *SectionHandler {
	return &SectionHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "section_handler").Logger(),
	}
}

// Register attaches section endpoints to the router group.
func (h *SectionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/reorder", h.reorder)
}

// list supports either ?course_id= (template sections) or
// ?subject_group_id= (derived sections).
func (h *SectionHandler) list(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid course_id")
	}
	subjectGroupID, err := parseQueryUint(c, "subject_group_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid subject_group_id")
	}

	switch {
	case courseID != 0:
		sections, err := h.service.ListTemplates(c.Context(), courseID)
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, "sections retrieved", dto.NewSectionResponseSlice(sections))
	case subjectGroupID != 0:
		sections, err := h.service.ListBySubjectGroup(c.Context(), subjectGroupID)
		if err != nil {
			return h.handleError(c, err)
		}
		return utils.SendSuccess(c, "sections retrieved", dto.NewSectionResponseSlice(sections))
	default:
		return utils.SendError(c, fiber.StatusBadRequest, "course_id or subject_group_id is required")
	}
}

func (h *SectionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	section, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "section retrieved", dto.NewSectionResponse(section))
}

func (h *SectionHandler) create(c *fiber.Ctx) error {
	var payload dto.SectionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	section, err := h.service.Create(c.Context(), payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "section created", dto.NewSectionResponse(section))
}

func (h *SectionHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SectionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	section, err := h.service.Update(c.Context(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "section updated", dto.NewSectionResponse(section))
}

func (h *SectionHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "section deleted", fiber.Map{"id": id})
}

func (h *SectionHandler) reorder(c *fiber.Ctx) error {
	var payload dto.ReorderRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.service.Reorder(c.Context(), payload, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sections reordered", nil)
}

func (h *SectionHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrSectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "section not found")
	case errors.Is(err, service.ErrSectionScope):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *SectionHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
