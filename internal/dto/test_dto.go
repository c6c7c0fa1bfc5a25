package dto

import (
	"encoding/json"
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// TestCreateRequest describes the payload for creating a test.
type TestCreateRequest struct {
	SectionID             uint       `json:"section_id" validate:"required"`
	Title                 string     `json:"title" validate:"required,min=1,max=255"`
	Description           string     `json:"description"`
	ScheduledAt           *time.Time `json:"scheduled_at"`
	RevealResultsAt       *time.Time `json:"reveal_results_at"`
	AllowMultipleAttempts bool       `json:"allow_multiple_attempts"`
	MaxAttempts           int        `json:"max_attempts" validate:"omitempty,gte=0"`
	ShowCorrectAnswers    bool       `json:"show_correct_answers"`
}

// TestUpdateRequest describes the payload for updating a test.
type TestUpdateRequest struct {
	Title                 *string    `json:"title" validate:"omitempty,min=1,max=255"`
	Description           *string    `json:"description"`
	ScheduledAt           *time.Time `json:"scheduled_at"`
	RevealResultsAt       *time.Time `json:"reveal_results_at"`
	AllowMultipleAttempts *bool      `json:"allow_multiple_attempts"`
	MaxAttempts           *int       `json:"max_attempts" validate:"omitempty,gte=0"`
	ShowCorrectAnswers    *bool      `json:"show_correct_answers"`
}

// OptionRequest describes one answer choice in a question payload.
type OptionRequest struct {
	Text      string `json:"text" validate:"required"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
	IsCorrect bool   `json:"is_correct"`
	Position  *int   `json:"position" validate:"omitempty,gte=0"`
}

// QuestionCreateRequest describes the payload for adding a question.
type QuestionCreateRequest struct {
	Type              string          `json:"type" validate:"required,oneof=multiple_choice choose_all open_question matching"`
	Text              string          `json:"text" validate:"required"`
	Points            float64         `json:"points" validate:"gt=0"`
	Position          *int            `json:"position" validate:"omitempty,gte=0"`
	SampleAnswer      string          `json:"sample_answer"`
	KeyWords          string          `json:"key_words"`
	CorrectAnswerText string          `json:"correct_answer_text"`
	MatchingPairs     json.RawMessage `json:"matching_pairs"`
	Options           []OptionRequest `json:"options" validate:"omitempty,dive"`
}

// QuestionUpdateRequest describes the payload for updating a question.
type QuestionUpdateRequest struct {
	Text              *string         `json:"text" validate:"omitempty,min=1"`
	Points            *float64        `json:"points" validate:"omitempty,gt=0"`
	SampleAnswer      *string         `json:"sample_answer"`
	KeyWords          *string         `json:"key_words"`
	CorrectAnswerText *string         `json:"correct_answer_text"`
	MatchingPairs     json.RawMessage `json:"matching_pairs"`
}

// OptionResponse is the serialized answer choice representation.
type OptionResponse struct {
	ID        uint   `json:"id"`
	Text      string `json:"text"`
	ImageURL  string `json:"image_url,omitempty"`
	IsCorrect bool   `json:"is_correct"`
	Position  int    `json:"position"`
}

// QuestionResponse is the serialized question representation.
type QuestionResponse struct {
	ID                uint             `json:"id"`
	TestID            uint             `json:"test_id"`
	Type              string           `json:"type"`
	Text              string           `json:"text"`
	Points            float64          `json:"points"`
	Position          int              `json:"position"`
	SampleAnswer      string           `json:"sample_answer,omitempty"`
	KeyWords          string           `json:"key_words,omitempty"`
	CorrectAnswerText string           `json:"correct_answer_text,omitempty"`
	MatchingPairs     json.RawMessage  `json:"matching_pairs,omitempty"`
	Options           []OptionResponse `json:"options,omitempty"`
}

// TestResponse is the serialized representation returned to API clients.
type TestResponse struct {
	ID                     uint               `json:"id"`
	CourseSectionID        uint               `json:"course_section_id"`
	TemplateRefID          *uint              `json:"template_ref_id,omitempty"`
	IsUnlinkedFromTemplate bool               `json:"is_unlinked_from_template"`
	Title                  string             `json:"title"`
	Description            string             `json:"description"`
	IsPublished            bool               `json:"is_published"`
	ScheduledAt            *time.Time         `json:"scheduled_at,omitempty"`
	RevealResultsAt        *time.Time         `json:"reveal_results_at,omitempty"`
	AllowMultipleAttempts  bool               `json:"allow_multiple_attempts"`
	MaxAttempts            int                `json:"max_attempts"`
	ShowCorrectAnswers     bool               `json:"show_correct_answers"`
	TotalPoints            float64            `json:"total_points"`
	Questions              []QuestionResponse `json:"questions,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// NewOptionResponse converts a model into a DTO.
func NewOptionResponse(model models.Option) OptionResponse {
	return OptionResponse{
		ID:        model.ID,
		Text:      model.Text,
		ImageURL:  model.ImageURL,
		IsCorrect: model.IsCorrect,
		Position:  model.Position,
	}
}

// NewQuestionResponse converts a model into a DTO.
func NewQuestionResponse(model models.Question) QuestionResponse {
	options := make([]OptionResponse, 0, len(model.Options))
	for _, option := range model.Options {
		options = append(options, NewOptionResponse(option))
	}

	return QuestionResponse{
		ID:                model.ID,
		TestID:            model.TestID,
		Type:              string(model.Type),
		Text:              model.Text,
		Points:            model.Points,
		Position:          model.Position,
		SampleAnswer:      model.SampleAnswer,
		KeyWords:          model.KeyWords,
		CorrectAnswerText: model.CorrectAnswerText,
		MatchingPairs:     json.RawMessage(model.MatchingPairs),
		Options:           options,
	}
}

// NewTestResponse converts a model into a DTO.
func NewTestResponse(model models.Test) TestResponse {
	questions := make([]QuestionResponse, 0, len(model.Questions))
	for _, question := range model.Questions {
		questions = append(questions, NewQuestionResponse(question))
	}

	return TestResponse{
		ID:                     model.ID,
		CourseSectionID:        model.CourseSectionID,
		TemplateRefID:          model.TemplateRefID,
		IsUnlinkedFromTemplate: model.IsUnlinkedFromTemplate,
		Title:                  model.Title,
		Description:            model.Description,
		IsPublished:            model.IsPublished,
		ScheduledAt:            model.ScheduledAt,
		RevealResultsAt:        model.RevealResultsAt,
		AllowMultipleAttempts:  model.AllowMultipleAttempts,
		MaxAttempts:            model.MaxAttempts,
		ShowCorrectAnswers:     model.ShowCorrectAnswers,
		TotalPoints:            model.TotalPoints(),
		Questions:              questions,
		CreatedAt:              model.CreatedAt,
		UpdatedAt:              model.UpdatedAt,
	}
}

// NewTestResponseSlice converts a slice of models into DTOs.
func NewTestResponseSlice(tests []models.Test) []TestResponse {
	responses := make([]TestResponse, 0, len(tests))
	for _, test := range tests {
		responses = append(responses, NewTestResponse(test))
	}

	return responses
}
