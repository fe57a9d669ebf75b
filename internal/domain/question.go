package domain

import (
	"strings"
	"time"
)

// QuestionType selects how many answers may be marked correct.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "singleChoice"
	QuestionMultipleChoice QuestionType = "multipleChoice"
)

// Alignment controls how the admin UI lays out the answers.
type Alignment string

const (
	AlignmentVertical   Alignment = "vertical"
	AlignmentHorizontal Alignment = "horizontal"
)

// Answer is one selectable answer of a question.
type Answer struct {
	Content string `json:"content"`
	Correct bool   `json:"correct"`
}

// Question is a single exam question.
type Question struct {
	ID                string       `json:"id"`
	Archived          bool         `json:"archived,omitempty"`
	Title             string       `json:"title"`
	AdditionalContent string       `json:"additionalContent,omitempty"`
	Type              QuestionType `json:"type"`
	Answers           []Answer     `json:"answers"`
	Label             string       `json:"label"`
	Alignment         Alignment    `json:"alignment,omitempty"`
	Field             string       `json:"field,omitempty"`
	LastUpdated       *time.Time   `json:"lastUpdated,omitempty"`
}

func (q Question) GetID() string    { return q.ID }
func (q Question) IsArchived() bool { return q.Archived }

// WithID returns a copy of q with the given id. The answers slice is copied
// so the result does not share backing storage with q.
func (q Question) WithID(id string) Question {
	q.ID = id
	if q.Answers != nil {
		q.Answers = append([]Answer(nil), q.Answers...)
	}
	return q
}

// Touch stamps the modification time.
func (q Question) Touch(now time.Time) Question {
	now = now.UTC()
	q.LastUpdated = &now
	return q
}

// SearchText is matched by the listing search box.
func (q Question) SearchText() string {
	return q.Title + " " + q.Label + " " + q.Field
}

// Validate checks the fields the editor requires before a question can be saved.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(q.Label) == "" {
		return invalid("label", "is required")
	}
	switch q.Type {
	case QuestionSingleChoice, QuestionMultipleChoice:
	default:
		return invalid("type", "must be singleChoice or multipleChoice")
	}
	switch q.Alignment {
	case "", AlignmentVertical, AlignmentHorizontal:
	default:
		return invalid("alignment", "must be vertical or horizontal")
	}
	if len(q.Answers) < 2 {
		return invalid("answers", "at least two answers are required")
	}
	correct := 0
	for _, a := range q.Answers {
		if strings.TrimSpace(a.Content) == "" {
			return invalid("answers", "answer content cannot be empty")
		}
		if a.Correct {
			correct++
		}
	}
	if correct == 0 {
		return invalid("answers", "at least one answer must be correct")
	}
	if q.Type == QuestionSingleChoice && correct != 1 {
		return invalid("answers", "a single choice question has exactly one correct answer")
	}
	return nil
}
