package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/sabaq-dev/sabaq-api/internal/dto"
	"github.com/sabaq-dev/sabaq-api/internal/service"
	"github.com/sabaq-dev/sabaq-api/internal/utils"
)

// AttemptHandler wires test-attempt HTTP routes.
type AttemptHandler struct {
	service   service.AttemptService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAttemptHandler constructs the handler.
func NewAttemptHandler(service service.AttemptService, validator *validator.Validate, logger zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "attempt_handler").Logger(),
	}
}

// Register attaches attempt endpoints to the router group. Grading
// routes are registered separately so the router can guard them with a
// teacher role check.
func (h *AttemptHandler) Register(router fiber.Router) {
	router.Post("/tests/:testID/attempts", h.start)
	router.Get("/attempts/:id", h.get)
	router.Post("/attempts/:id/answers", h.submitAnswer)
	router.Post("/attempts/:id/submit", h.submit)
}

// RegisterGrading attaches manual grading endpoints.
func (h *AttemptHandler) RegisterGrading(router fiber.Router) {
	router.Post("/answers/grade", h.bulkGrade)
	router.Patch("/answers/:answerID/score", h.updateScore)
}

func (h *AttemptHandler) start(c *fiber.Ctx) error {
	testID, err := parseUintParam(c, "testID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.StartAttempt(c.Context(), testID, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "attempt started", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.GetAttempt(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt retrieved", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) submitAnswer(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerSubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	input := service.AnswerInput{
		TextAnswer:        payload.TextAnswer,
		SelectedOptionIDs: payload.SelectedOptionIDs,
		MatchPairs:        datatypes.JSON(payload.MatchPairs),
	}

	answer, err := h.service.SubmitAnswer(c.Context(), id, payload.QuestionID, userIDFromContext(c), input)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer saved", dto.NewAnswerResponse(answer))
}

func (h *AttemptHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	attempt, err := h.service.SubmitAttempt(c.Context(), id, userIDFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "attempt submitted", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) bulkGrade(c *fiber.Ctx) error {
	var payload dto.BulkGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	grades := make([]service.AnswerGrade, 0, len(payload.Grades))
	for _, grade := range payload.Grades {
		grades = append(grades, service.AnswerGrade{
			AnswerID: grade.AnswerID,
			Score:    grade.Score,
			Feedback: grade.Feedback,
		})
	}

	answers, err := h.service.BulkGrade(c.Context(), grades, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	responses := make([]dto.AnswerResponse, 0, len(answers))
	for _, answer := range answers {
		responses = append(responses, dto.NewAnswerResponse(answer))
	}
	return utils.SendSuccess(c, "answers graded", responses)
}

func (h *AttemptHandler) updateScore(c *fiber.Ctx) error {
	answerID, err := parseUintParam(c, "answerID")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AnswerScoreUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return h.handleError(c, err)
	}

	attempt, err := h.service.UpdateAnswerScore(c.Context(), answerID, payload.Score, payload.Feedback, actorFromContext(c))
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "answer score updated", dto.NewAttemptResponse(attempt))
}

func (h *AttemptHandler) handleError(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.Is(err, service.ErrTestNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "test not found")
	case errors.Is(err, service.ErrAttemptNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "attempt not found")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrAnswerNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "answer not found")
	case errors.Is(err, service.ErrTestNotPublished):
		return utils.SendError(c, fiber.StatusConflict, "test is not published")
	case errors.Is(err, service.ErrAttemptAlreadySubmitted):
		return utils.SendError(c, fiber.StatusConflict, "attempt already submitted")
	case errors.Is(err, service.ErrAttemptNotSubmitted):
		return utils.SendError(c, fiber.StatusConflict, "attempt has not been submitted")
	case errors.Is(err, service.ErrMaxAttemptsReached):
		return utils.SendError(c, fiber.StatusConflict, "maximum attempts reached")
	case errors.Is(err, service.ErrScoreOutOfRange):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.As(err, &validationErrors):
		return utils.SendError(c, fiber.StatusBadRequest, validationErrors.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *AttemptHandler) internalError(c *fiber.Ctx, err error) error {
	requestLogger(h.logger, c).Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
