package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/service"
	"github.com/sabaq-dev/sabaq-api/internal/utils"
	"github.com/sabaq-dev/sabaq-api/pkg/storage"
)

// ResourceHandler wires resource HTTP routes.
type ResourceHandler struct {
	service   service.ResourceService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewResourceHandler constructs the handler.
func NewResourceHandler(service service.ResourceService, validator *validator.Validate, logger zerolog.Logger) *ResourceHandler {
	return &ResourceHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "resource_handler").Logger(),
	}
}

// Register attaches resource endpoints to the router group.
func (h *ResourceHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/file", h.attachFile)
	router.Post("/reorder", h.reorder)
}

func (h *ResourceHandler) list(c *fiber.Ctx) error {
	sectionID, err := parseQueryUint(c, "section_id")
	if err != nil || sectionID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "section_id is required")
	}

	resources, err := h.service.ListBySection(c.Context(), sectionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resources retrieved", dto.NewResourceResponseSlice(resources))
}

func (h *ResourceHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resource, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resource retrieved", dto.NewResourceResponse(resource))
}

func (h *ResourceHandler) create(c *fiber.Ctx) error {
	var payload dto.ResourceCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	resource, err := h.service.Create(c.Context(), payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "resource created", dto.NewResourceResponse(resource))
}

func (h *ResourceHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ResourceUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	resource, err := h.service.Update(c.Context(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resource updated", dto.NewResourceResponse(resource))
}

func (h *ResourceHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "resource deleted", fiber.Map{"id": id})
}

// attachFile expects a multipart form with a single "file" field.
func (h *ResourceHandler) attachFile(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "unable to read uploaded file")
	}
	defer file.Close()

	resource, err := h.service.AttachFile(c.Context(), id, fileHeader.Filename, file, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "file attached", dto.NewResourceResponse(resource))
}

func (h *ResourceHandler) reorder(c *fiber.Ctx) error {
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

	return utils.SendSuccess(c, "resources reordered", nil)
}

func (h *ResourceHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrResourceNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "resource not found")
	case errors.Is(err, service.ErrSectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "section not found")
	case errors.Is(err, service.ErrInvalidResourceType),
		errors.Is(err, service.ErrParentNotDirectory):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrUnsupportedFileType):
		return utils.SendError(c, fiber.StatusUnsupportedMediaType, "unsupported file type")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *ResourceHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
