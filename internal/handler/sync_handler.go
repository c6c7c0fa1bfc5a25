package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/service"
	"github.com/sabaq-dev/sabaq-api/internal/utils"
)

// SyncHandler wires template sync and link management HTTP routes.
type SyncHandler struct {
	sync     service.SyncService
	links    service.LinkService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewSyncHandler constructs the handler.
func NewSyncHandler(sync service.SyncService, links service.LinkService, validate *validator.Validate, logger zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		sync:     sync,
		links:    links,
		validate: validate,
		logger:   logger.With().Str("component", "sync_handler").Logger(),
	}
}

// Register attaches sync endpoints to the router group.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/courses/:id/sync", h.syncCourse)
	router.Post("/subject-groups/:id/sync", h.syncSubjectGroup)
	router.Get("/subject-groups/:id/sync-status", h.status)
	router.Post("/units/unlink", h.unlink)
	router.Post("/units/relink", h.relink)
}

func (h *SyncHandler) syncCourse(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	summary, err := h.sync.SyncCourse(c.Context(), id, payload.AcademicStartDate, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "course synced", summary)
}

func (h *SyncHandler) syncSubjectGroup(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SyncRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	summary, err := h.sync.SyncSubjectGroup(c.Context(), id, payload.AcademicStartDate, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "subject group synced", summary)
}

func (h *SyncHandler) status(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	report, err := h.sync.Status(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "sync status retrieved", report)
}

func (h *SyncHandler) unlink(c *fiber.Ctx) error {
	return h.link(c, h.links.Unlink, "unit unlinked")
}

func (h *SyncHandler) relink(c *fiber.Ctx) error {
	return h.link(c, h.links.Relink, "unit relinked")
}

type linkOp func(ctx context.Context, unitType service.UnitType, id uint, actor service.Actor) error

func (h *SyncHandler) link(c *fiber.Ctx, op linkOp, message string) error {
	var payload dto.LinkRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := op(c.Context(), service.UnitType(payload.UnitType), payload.UnitID, actorFromContext(c)); err != nil {
		switch {
		case errors.Is(err, service.ErrUnitNotFound):
			return utils.SendError(c, fiber.StatusNotFound, "unit not found")
		case errors.Is(err, service.ErrNotDerivedFromTemplate):
			return utils.SendError(c, fiber.StatusConflict, "unit is not derived from a template")
		case errors.Is(err, service.ErrUnknownUnitType):
			return utils.SendError(c, fiber.StatusBadRequest, "unknown unit type")
		default:
			return h.handleError(c, err)
		}
	}

	return utils.SendSuccess(c, message, nil)
}

func (h *SyncHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrCourseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "course not found")
	case errors.Is(err, service.ErrSubjectGroupNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "subject group not found")
	case errors.Is(err, service.ErrNoTemplateSections),
		errors.Is(err, service.ErrNoSubjectGroups),
		errors.Is(err, service.ErrNoAssociatedCourse):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("sync request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
