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

// TestHandler wires test and question HTTP routes.
type TestHandler struct {
	service   service.TestService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewTestHandler constructs the handler.
func NewTestHandler(service service.TestService, validator *validator.Validate, logger zerolog.Logger) *TestHandler {
	return &TestHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "test_handler").Logger(),
	}
}

// Register attaches test endpoints to the router group.
func (h *TestHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Patch("/:id", h.update)
	router.Delete("/:id", h.delete)
	router.Post("/:id/publish", h.publish)
	router.Post("/:id/unpublish", h.unpublish)
	router.Post("/:id/questions", h.addQuestion)
	router.Patch("/questions/:questionID", h.updateQuestion)
	router.Delete("/questions/:questionID", h.deleteQuestion)
	router.Post("/questions/:questionID/options", h.addOption)
	router.Delete("/questions/:questionID/options/:optionID", h.deleteOption)
	router.Post("/questions/reorder", h.reorderQuestions)
}

func (h *TestHandler) list(c *fiber.Ctx) error {
	sectionID, err := parseQueryUint(c, "section_id")
	if err != nil || sectionID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "section_id is required")
	}

	tests, err := h.service.ListBySection(c.Context(), sectionID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "tests retrieved", dto.NewTestResponseSlice(tests))
}

func (h *TestHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	test, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test retrieved", dto.NewTestResponse(test))
}

func (h *TestHandler) create(c *fiber.Ctx) error {
	var payload dto.TestCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	test, err := h.service.Create(c.Context(), payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "test created", dto.NewTestResponse(test))
}

func (h *TestHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TestUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	test, err := h.service.Update(c.Context(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test updated", dto.NewTestResponse(test))
}

func (h *TestHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.Context(), id, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "test deleted", fiber.Map{"id": id})
}

func (h *TestHandler) publish(c *fiber.Ctx) error {
	return h.setPublished(c, true, "test published")
}

func (h *TestHandler) unpublish(c *fiber.Ctx) error {
	return h.setPublished(c, false, "test unpublished")
}

func (h *TestHandler) setPublished(c *fiber.Ctx, published bool, message string) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	test, err := h.service.SetPublished(c.Context(), id, published, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, message, dto.NewTestResponse(test))
}

func (h *TestHandler) addQuestion(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.QuestionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	question, err := h.service.AddQuestion(c.Context(), id, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "question added", dto.NewQuestionResponse(question))
}

func (h *TestHandler) updateQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.QuestionUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	question, err := h.service.UpdateQuestion(c.Context(), questionID, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "question updated", dto.NewQuestionResponse(question))
}

func (h *TestHandler) deleteQuestion(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteQuestion(c.Context(), questionID, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "question deleted", fiber.Map{"id": questionID})
}

func (h *TestHandler) addOption(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.OptionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	option, err := h.service.AddOption(c.Context(), questionID, payload, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "option added", dto.NewOptionResponse(option))
}

func (h *TestHandler) deleteOption(c *fiber.Ctx) error {
	questionID, err := parseUintParam(c, "questionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	optionID, err := parseUintParam(c, "optionID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.DeleteOption(c.Context(), questionID, optionID, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "option deleted", fiber.Map{"id": optionID})
}

func (h *TestHandler) reorderQuestions(c *fiber.Ctx) error {
	var payload dto.ReorderRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	if err := h.service.ReorderQuestions(c.Context(), payload, actorFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "questions reordered", nil)
}

func (h *TestHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "test not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrOptionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "option not found")
	case errors.Is(err, service.ErrSectionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "section not found")
	case errors.Is(err, service.ErrInvalidQuestionType),
		errors.Is(err, service.ErrInvalidOptions),
		errors.Is(err, service.ErrInvalidMatchingPairs):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQuestionHasGradedWork):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *TestHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
