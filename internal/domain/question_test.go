package domain

import (
	"errors"
	"testing"
	"time"
)

func validQuestion() Question {
	return Question{
		Title: "Capital of France?",
		Label: "geography",
		Type:  QuestionSingleChoice,
		Answers: []Answer{
			{Content: "Paris", Correct: true},
			{Content: "Rome"},
		},
	}
}

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(q *Question)
		field  string
	}{
		{"valid single choice", func(q *Question) {}, ""},
		{"valid multiple choice", func(q *Question) {
			q.Type = QuestionMultipleChoice
			q.Answers[1].Correct = true
		}, ""},
		{"missing title", func(q *Question) { q.Title = "  " }, "title"},
		{"missing label", func(q *Question) { q.Label = "" }, "label"},
		{"unknown type", func(q *Question) { q.Type = "essay" }, "type"},
		{"unknown alignment", func(q *Question) { q.Alignment = "diagonal" }, "alignment"},
		{"one answer", func(q *Question) { q.Answers = q.Answers[:1] }, "answers"},
		{"empty answer", func(q *Question) { q.Answers[1].Content = "" }, "answers"},
		{"no correct answer", func(q *Question) { q.Answers[0].Correct = false }, "answers"},
		{"two correct on single choice", func(q *Question) { q.Answers[1].Correct = true }, "answers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			tt.modify(&q)
			err := q.Validate()

			if tt.field == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("expected error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestQuestionWithID(t *testing.T) {
	q := validQuestion()
	q.ID = "old"

	copied := q.WithID("new")
	if copied.ID != "new" || q.ID != "old" {
		t.Errorf("WithID changed the wrong record: copy %s, original %s", copied.ID, q.ID)
	}

	copied.Answers[0].Content = "Lyon"
	if q.Answers[0].Content != "Paris" {
		t.Error("expected answers to be copied, not shared")
	}
}

func TestQuestionTouch(t *testing.T) {
	local := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("IDT", 3*3600))
	q := validQuestion().Touch(local)

	if q.LastUpdated == nil {
		t.Fatal("expected LastUpdated to be set")
	}
	if !q.LastUpdated.Equal(local) || q.LastUpdated.Location() != time.UTC {
		t.Errorf("expected %v in UTC, got %v", local, q.LastUpdated)
	}
}

func TestLifecycleOf(t *testing.T) {
	q := validQuestion()
	if LifecycleOf(q) != Live {
		t.Errorf("expected %s, got %s", Live, LifecycleOf(q))
	}
	q.Archived = true
	if LifecycleOf(q) != Archived {
		t.Errorf("expected %s, got %s", Archived, LifecycleOf(q))
	}
}
