package dto

import (
	"encoding/json"
	"time"

	"github.com/sabaq-dev/sabaq-api/internal/models"
)

// AnswerSubmitRequest describes the payload for answering one question.
type AnswerSubmitRequest struct {
	QuestionID        uint            `json:"question_id" validate:"required"`
	TextAnswer        string          `json:"text_answer"`
	SelectedOptionIDs []uint          `json:"selected_option_ids"`
	MatchPairs        json.RawMessage `json:"match_pairs"`
}

// AnswerGradeRequest is one manual grading decision.
type AnswerGradeRequest struct {
	AnswerID uint    `json:"answer_id" validate:"required"`
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// BulkGradeRequest carries a batch of manual grading decisions.
type BulkGradeRequest struct {
	Grades []AnswerGradeRequest `json:"grades" validate:"required,min=1,dive"`
}

// AnswerScoreUpdateRequest overrides a single answer's score.
type AnswerScoreUpdateRequest struct {
	Score    float64 `json:"score" validate:"gte=0"`
	Feedback string  `json:"feedback"`
}

// AnswerResponse is the serialized answer representation.
type AnswerResponse struct {
	ID                uint            `json:"id"`
	QuestionID        uint            `json:"question_id"`
	TextAnswer        string          `json:"text_answer,omitempty"`
	MatchPairs        json.RawMessage `json:"match_pairs,omitempty"`
	SelectedOptionIDs []uint          `json:"selected_option_ids,omitempty"`
	Score             *float64        `json:"score"`
	MaxScore          *float64        `json:"max_score"`
	IsCorrect         *bool           `json:"is_correct"`
	TeacherFeedback   string          `json:"teacher_feedback,omitempty"`
}

// AttemptResponse is the serialized attempt representation.
type AttemptResponse struct {
	ID            uint             `json:"id"`
	TestID        uint             `json:"test_id"`
	StudentID     uint             `json:"student_id"`
	AttemptNumber int              `json:"attempt_number"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	SubmittedAt   *time.Time       `json:"submitted_at,omitempty"`
	GradedAt      *time.Time       `json:"graded_at,omitempty"`
	Score         *float64         `json:"score"`
	MaxScore      *float64         `json:"max_score"`
	Percentage    *float64         `json:"percentage"`
	IsCompleted   bool             `json:"is_completed"`
	IsGraded      bool             `json:"is_graded"`
	Answers       []AnswerResponse `json:"answers,omitempty"`
}

// NewAnswerResponse converts a model into a DTO.
func NewAnswerResponse(model models.Answer) AnswerResponse {
	selected := make([]uint, 0, len(model.SelectedOptions))
	for _, option := range model.SelectedOptions {
		selected = append(selected, option.ID)
	}

	return AnswerResponse{
		ID:                model.ID,
		QuestionID:        model.QuestionID,
		TextAnswer:        model.TextAnswer,
		MatchPairs:        json.RawMessage(model.MatchPairs),
		SelectedOptionIDs: selected,
		Score:             model.Score,
		MaxScore:          model.MaxScore,
		IsCorrect:         model.IsCorrect,
		TeacherFeedback:   model.TeacherFeedback,
	}
}

// NewAttemptResponse converts a model into a DTO.
func NewAttemptResponse(model models.Attempt) AttemptResponse {
	answers := make([]AnswerResponse, 0, len(model.Answers))
	for _, answer := range model.Answers {
		answers = append(answers, NewAnswerResponse(answer))
	}

	return AttemptResponse{
		ID:            model.ID,
		TestID:        model.TestID,
		StudentID:     model.StudentID,
		AttemptNumber: model.AttemptNumber,
		StartedAt:     model.StartedAt,
		SubmittedAt:   model.SubmittedAt,
		GradedAt:      model.GradedAt,
		Score:         model.Score,
		MaxScore:      model.MaxScore,
		Percentage:    model.Percentage,
		IsCompleted:   model.IsCompleted,
		IsGraded:      model.IsGraded,
		Answers:       answers,
	}
}
