package models

import (
	"time"

	"gorm.io/datatypes"
)

// Attempt is one student's run at a test. Submitting is final; the
// grading engine fills in scores at submit time.
type Attempt struct {
	ID            uint `gorm:"primaryKey" json:"id"`
	TestID        uint `gorm:"not null;index:idx_attempt_test_student,priority:1" json:"test_id"`
	StudentID     uint `gorm:"not null;index:idx_attempt_test_student,priority:2" json:"student_id"`
	AttemptNumber int  `gorm:"not null;default:1" json:"attempt_number"`

	StartedAt   *time.Time `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at"`

	Score      *float64 `json:"score"`
	MaxScore   *float64 `json:"max_score"`
	Percentage *float64 `json:"percentage"`

	IsCompleted bool `gorm:"not null;default:false" json:"is_completed"`
	IsGraded    bool `gorm:"not null;default:false" json:"is_graded"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Test    Test     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Answers []Answer `gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE" json:"answers,omitempty"`
}

// IsSubmitted reports whether the attempt has been finalized.
func (a Attempt) IsSubmitted() bool {
	return a.SubmittedAt != nil
}

// Answer records a student's response to one question. A nil Score
// means the answer still needs manual grading.
type Answer struct {
	ID         uint `gorm:"primaryKey" json:"id"`
	AttemptID  uint `gorm:"not null;uniqueIndex:uq_attempt_question,priority:1" json:"attempt_id"`
	QuestionID uint `gorm:"not null;uniqueIndex:uq_attempt_question,priority:2" json:"question_id"`

	TextAnswer string `gorm:"type:text" json:"text_answer"`

	// Submitted matching pairs: JSON array of {"left": ..., "right": ...}.
	MatchPairs datatypes.JSON `gorm:"type:json" json:"match_pairs"`

	Score           *float64 `json:"score"`
	MaxScore        *float64 `json:"max_score"`
	IsCorrect       *bool    `json:"is_correct"`
	TeacherFeedback string   `gorm:"type:text" json:"teacher_feedback"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Question        Question `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	SelectedOptions []Option `gorm:"many2many:answer_selected_options" json:"selected_options,omitempty"`
}
