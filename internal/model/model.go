package model

import "time"

// RespondentStatus represents the lifecycle state of a respondent's session.
type RespondentStatus string

const (
	StatusInProgress RespondentStatus = "in_progress"
	StatusSubmitted  RespondentStatus = "submitted"
)

// QuestionType represents how a question is presented to respondents.
type QuestionType string

const (
	// QuestionText is a free-form text question.
	QuestionText QuestionType = "text"
)

// Survey is a named collection of ordered questions.
type Survey struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Question is a single survey question. OrderIndex is zero-based and unique
// within a survey; it is the number respondents see minus one.
type Question struct {
	ID         int64        `json:"id"`
	SurveyID   int64        `json:"survey_id"`
	OrderIndex int          `json:"order_index"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
}

// Guideline holds the scoring instructions for one question. At most one
// guideline exists per question.
type Guideline struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Content    string `json:"content"`
}

// SurveyLink is a shareable signed token granting access to a survey.
type SurveyLink struct {
	ID        int64     `json:"id"`
	SurveyID  int64     `json:"survey_id"`
	Token     string    `json:"token"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Respondent is one participant's pass through a survey.
type Respondent struct {
	ID          int64            `json:"id"`
	LinkID      int64            `json:"link_id"`
	DisplayName string           `json:"display_name,omitempty"`
	Status      RespondentStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}

// Answer is a respondent's answer to one question, together with its scoring
// state. Score is nil until a scoring pass has produced a result. Refs holds
// the zero-based orders of the questions this answer mentions, captured when
// the text was last written; RefWarning records mentions that resolved to
// nothing.
type Answer struct {
	ID           int64     `json:"id"`
	RespondentID int64     `json:"respondent_id"`
	QuestionID   int64     `json:"question_id"`
	Text         string    `json:"answer_text"`
	Flagged      bool      `json:"flagged"`
	Score        *float64  `json:"score"`
	Rationale    string    `json:"rationale,omitempty"`
	LowQuality   bool      `json:"low_quality"`
	Refs         []int     `json:"references,omitempty"`
	RefWarning   string    `json:"reference_warning,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// QuestionInput is used when creating questions, via the API or YAML seed
// files. Guideline is optional; empty means the question starts without one.
type QuestionInput struct {
	Text       string       `json:"text" yaml:"text"`
	OrderIndex int          `json:"order_index" yaml:"order_index"`
	Type       QuestionType `json:"type,omitempty" yaml:"type"`
	Guideline  string       `json:"guideline,omitempty" yaml:"guideline"`
}

// QuestionView combines a question with its guideline for display.
type QuestionView struct {
	Question
	Guideline *Guideline `json:"guideline,omitempty"`
}

// SurveyDetail combines a survey with its questions for display.
type SurveyDetail struct {
	Survey    Survey         `json:"survey"`
	Questions []QuestionView `json:"questions"`
}
