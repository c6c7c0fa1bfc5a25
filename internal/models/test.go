package models

import (
	"time"

	"gorm.io/datatypes"
)

// Test is an assessment inside a course section.
type Test struct {
	ID              uint  `gorm:"primaryKey" json:"id"`
	CourseSectionID uint  `gorm:"not null;index:idx_test_target,priority:1" json:"course_section_id"`
	TeacherID       uint  `gorm:"not null" json:"teacher_id"`
	TemplateRefID   *uint `gorm:"index:idx_test_target,priority:2" json:"template_ref_id"`

	IsUnlinkedFromTemplate bool `gorm:"not null;default:false" json:"is_unlinked_from_template"`

	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	IsPublished bool   `gorm:"not null;default:false" json:"is_published"`

	ScheduledAt     *time.Time `json:"scheduled_at"`
	RevealResultsAt *time.Time `json:"reveal_results_at"`

	AllowMultipleAttempts bool `gorm:"not null;default:false" json:"allow_multiple_attempts"`
	MaxAttempts           int  `gorm:"not null;default:1" json:"max_attempts"`
	ShowCorrectAnswers    bool `gorm:"not null;default:false" json:"show_correct_answers"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Questions []Question `gorm:"foreignKey:TestID;constraint:OnDelete:CASCADE" json:"questions,omitempty"`
}

// TotalPoints sums the point values of the preloaded questions.
func (t Test) TotalPoints() float64 {
	var total float64
	for _, q := range t.Questions {
		total += q.Points
	}
	return total
}

// QuestionType is the closed set of supported question kinds. Scoring
// dispatches on it exhaustively; an unknown value is a hard error.
type QuestionType string

const (
	// QuestionTypeMultipleChoice expects exactly one selected option.
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	// QuestionTypeChooseAll awards proportional credit with an
	// all-or-nothing penalty on wrong picks.
	QuestionTypeChooseAll QuestionType = "choose_all"
	// QuestionTypeOpen is free text, auto-graded by keywords or a
	// reference answer when configured.
	QuestionTypeOpen QuestionType = "open_question"
	// QuestionTypeMatching pairs left and right items.
	QuestionTypeMatching QuestionType = "matching"
)

// ValidQuestionType reports whether t names a supported question kind.
func ValidQuestionType(t QuestionType) bool {
	switch t {
	case QuestionTypeMultipleChoice, QuestionTypeChooseAll, QuestionTypeOpen, QuestionTypeMatching:
		return true
	}
	return false
}

// Question belongs to a test. During sync questions are matched by
// (position, type), not by id.
type Question struct {
	ID       uint         `gorm:"primaryKey" json:"id"`
	TestID   uint         `gorm:"not null;index" json:"test_id"`
	Type     QuestionType `gorm:"size:32;not null" json:"type"`
	Text     string       `gorm:"type:text;not null" json:"text"`
	Points   float64      `gorm:"not null;default:1" json:"points"`
	Position int          `gorm:"not null;default:0" json:"position"`

	// Open-question grading configuration.
	SampleAnswer      string `gorm:"type:text" json:"sample_answer"`
	KeyWords          string `gorm:"type:text" json:"key_words"`
	CorrectAnswerText string `gorm:"type:text" json:"correct_answer_text"`

	// Matching configuration: JSON array of {"left": ..., "right": ...}.
	MatchingPairs datatypes.JSON `gorm:"type:json" json:"matching_pairs"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Options []Option `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"options,omitempty"`
}

// Option is an answer choice on a select-style question. Sync matches
// options by position within their question.
type Option struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;index" json:"question_id"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	ImageURL   string    `gorm:"size:1024" json:"image_url"`
	IsCorrect  bool      `gorm:"not null;default:false" json:"is_correct"`
	Position   int       `gorm:"not null;default:0" json:"position"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
