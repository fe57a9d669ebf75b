package domain

import (
	"strings"
	"time"
)

// Messages shown to the student when a test ends.
type Messages struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
}

// Emails sent to the student when a test ends.
type Emails struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
}

// Test is an exam composed of existing questions.
type Test struct {
	ID                 string     `json:"id"`
	Archived           bool       `json:"archived,omitempty"`
	Title              string     `json:"title"`
	Field              string     `json:"field"`
	Language           string     `json:"language,omitempty"`
	Intro              string     `json:"intro,omitempty"`
	Questions          []string   `json:"questions"`
	PassingGrade       int        `json:"passingGrade"`
	ShowCorrectAnswers bool       `json:"showCorrectAnswers,omitempty"`
	Messages           Messages   `json:"messages"`
	Emails             Emails     `json:"emails"`
	LastUpdated        *time.Time `json:"lastUpdated,omitempty"`
}

func (t Test) GetID() string    { return t.ID }
func (t Test) IsArchived() bool { return t.Archived }

func (t Test) WithID(id string) Test {
	t.ID = id
	if t.Questions != nil {
		t.Questions = append([]string(nil), t.Questions...)
	}
	return t
}

func (t Test) Touch(now time.Time) Test {
	now = now.UTC()
	t.LastUpdated = &now
	return t
}

func (t Test) SearchText() string {
	return t.Title + " " + t.Field + " " + t.Language
}

// Validate checks the fields a test needs before it can be published.
func (t Test) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return invalid("title", "is required")
	}
	if strings.TrimSpace(t.Field) == "" {
		return invalid("field", "is required")
	}
	if t.PassingGrade < 0 || t.PassingGrade > 100 {
		return invalid("passingGrade", "must be between 0 and 100")
	}
	seen := make(map[string]struct{}, len(t.Questions))
	for _, id := range t.Questions {
		if strings.TrimSpace(id) == "" {
			return invalid("questions", "question id cannot be empty")
		}
		if _, dup := seen[id]; dup {
			return invalid("questions", "question "+id+" appears twice")
		}
		seen[id] = struct{}{}
	}
	return nil
}
