package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"yahalom/internal/domain"
	"yahalom/internal/metrics"
	"yahalom/internal/repository"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newQuestionService(t *testing.T, content string) (*CollectionService[domain.Question], chan Event, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	repo, err := repository.Open[domain.Question](path, "question",
		repository.WithValidator(domain.Question.Validate))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}

	bus := NewEventBus()
	events := make(chan Event, 16)
	bus.Subscribe(events)

	svc := NewCollectionService[domain.Question]("questions", repo, bus)
	svc.now = func() time.Time { return fixedNow }
	return svc, events, path
}

func validQuestion(title string) domain.Question {
	return domain.Question{
		Title: title,
		Label: "geo",
		Type:  domain.QuestionSingleChoice,
		Answers: []domain.Answer{
			{Content: "Paris", Correct: true},
			{Content: "Rome"},
		},
	}
}

func expectEvent(t *testing.T, events <-chan Event, want EventType, id string) {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Type != want {
			t.Fatalf("event type = %s, want %s", ev.Type, want)
		}
		change, ok := ev.Payload.(Change)
		if !ok {
			t.Fatalf("payload = %T, want Change", ev.Payload)
		}
		if change.Collection != "questions" {
			t.Errorf("collection = %s, want questions", change.Collection)
		}
		if id != "" && change.ID != id {
			t.Errorf("id = %s, want %s", change.ID, id)
		}
	default:
		t.Fatalf("expected %s event", want)
	}
}

func TestCreate(t *testing.T) {
	svc, events, _ := newQuestionService(t, "[]")
	ctx := context.Background()

	t.Run("valid question is stored and stamped", func(t *testing.T) {
		q := validQuestion("Capital of France?")
		q.ID = "client-chosen"

		created, err := svc.Create(ctx, q)
		if err != nil {
			t.Fatalf("Create() error: %v", err)
		}
		if created.ID == "" || created.ID == "client-chosen" {
			t.Errorf("ID = %q, want a generated id", created.ID)
		}
		if created.LastUpdated == nil || !created.LastUpdated.Equal(fixedNow) {
			t.Errorf("LastUpdated = %v, want %v", created.LastUpdated, fixedNow)
		}
		expectEvent(t, events, EventCreated, created.ID)
	})

	t.Run("invalid question is rejected", func(t *testing.T) {
		q := validQuestion("")
		_, err := svc.Create(ctx, q)
		if !errors.Is(err, domain.ErrInvalid) {
			t.Fatalf("Create() error = %v, want ErrInvalid", err)
		}
		select {
		case ev := <-events:
			t.Errorf("unexpected event %s", ev.Type)
		default:
		}
	})
}

func TestGet(t *testing.T) {
	svc, _, _ := newQuestionService(t, `[{"id":"a","title":"A"},{"id":"b","title":"B","archived":true}]`)
	ctx := context.Background()

	q, err := svc.Get(ctx, "a")
	if err != nil || q.Title != "A" {
		t.Fatalf("Get(a) = %+v, %v", q, err)
	}

	if _, err := svc.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(archived) error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}

	archived, err := svc.GetAny(ctx, "b")
	if err != nil || !archived.Archived {
		t.Errorf("GetAny(b) = %+v, %v", archived, err)
	}
	if _, err := svc.GetAny(ctx, "zzz"); !errors.Is(err, repository.ErrItemNotFound) {
		t.Errorf("GetAny(unknown) error = %v, want ErrItemNotFound", err)
	}
}

func TestList(t *testing.T) {
	svc, _, _ := newQuestionService(t, `[
		{"id":"1","title":"Capital of France","label":"geo"},
		{"id":"2","title":"Boiling point","label":"physics"},
		{"id":"3","title":"Capital of Peru","label":"geo","archived":true}
	]`)
	ctx := context.Background()

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"1", "2"}},
		{"capital", []string{"1"}},
		{"  PHYSICS ", []string{"2"}},
		{"peru", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			items, err := svc.List(ctx, tt.query)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			ids := make([]string, 0, len(items))
			for _, item := range items {
				ids = append(ids, item.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("List(%q) = %v, want %v", tt.query, ids, tt.want)
			}
		})
	}
}

func TestUpdate(t *testing.T) {
	svc, events, path := newQuestionService(t, "[]")
	ctx := context.Background()

	created, err := svc.Create(ctx, validQuestion("Before"))
	if err != nil {
		t.Fatal(err)
	}
	<-events

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	patch, _ := repository.NewPatch(map[string]any{"title": "After"})
	updated, err := svc.Update(ctx, created.ID, patch)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Title != "After" || updated.Label != "geo" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.LastUpdated == nil || !updated.LastUpdated.Equal(later) {
		t.Errorf("LastUpdated = %v, want %v", updated.LastUpdated, later)
	}
	if _, ok := patch[domain.LastUpdatedField]; ok {
		t.Error("Update() must not modify the caller's patch")
	}
	expectEvent(t, events, EventUpdated, created.ID)

	t.Run("merged record is validated", func(t *testing.T) {
		bad, _ := repository.NewPatch(map[string]any{"answers": []domain.Answer{{Content: "only"}}})
		if _, err := svc.Update(ctx, created.ID, bad); !errors.Is(err, domain.ErrInvalid) {
			t.Fatalf("Update() error = %v, want ErrInvalid", err)
		}
		data, _ := os.ReadFile(path)
		if !strings.Contains(string(data), `"Rome"`) {
			t.Error("rejected update must not reach the file")
		}
	})

	t.Run("archiving through a patch publishes archived", func(t *testing.T) {
		p, _ := repository.NewPatch(map[string]any{"archived": true})
		if _, err := svc.Update(ctx, created.ID, p); err != nil {
			t.Fatal(err)
		}
		expectEvent(t, events, EventArchived, created.ID)
	})

	t.Run("unknown id", func(t *testing.T) {
		if _, err := svc.Update(ctx, "missing", patch); !errors.Is(err, repository.ErrItemNotFound) {
			t.Errorf("Update() error = %v, want ErrItemNotFound", err)
		}
	})
}

func TestArchive(t *testing.T) {
	svc, events, _ := newQuestionService(t, `[{"id":"a","title":"A"}]`)
	ctx := context.Background()

	archived, err := svc.Archive(ctx, "a")
	if err != nil {
		t.Fatalf("Archive() error: %v", err)
	}
	if !archived.Archived {
		t.Error("returned record should be archived")
	}
	expectEvent(t, events, EventArchived, "a")

	items, _ := svc.List(ctx, "")
	if len(items) != 0 {
		t.Errorf("List() = %v, want empty", items)
	}
}

func TestExport(t *testing.T) {
	svc, _, _ := newQuestionService(t, `[{"id":"a","title":"A"},{"id":"b","title":"B","archived":true}]`)
	ctx := context.Background()

	var buf bytes.Buffer
	if err := svc.Export(ctx, "yaml", &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.Contains(buf.String(), "id: b") {
		t.Errorf("export should include archived records:\n%s", buf.String())
	}

	if err := svc.Export(ctx, "csv", &buf); err == nil {
		t.Error("Export() should reject an unknown format")
	}
}

func TestImport(t *testing.T) {
	svc, events, _ := newQuestionService(t, "[]")
	ctx := context.Background()

	good, _ := json.Marshal(validQuestion("Imported"))
	data := `[` + string(good) + `,{"title":"no answers","label":"x","type":"singleChoice"},{"title":5}]`

	result, err := svc.Import(ctx, "json", []byte(data))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if len(result.Created) != 1 {
		t.Errorf("Created = %v, want one id", result.Created)
	}
	if len(result.Failed) != 2 || result.Failed[0].Index != 1 || result.Failed[1].Index != 2 {
		t.Errorf("Failed = %+v, want items 1 and 2", result.Failed)
	}

	expectEvent(t, events, EventCreated, result.Created[0])
	select {
	case ev := <-events:
		if ev.Type != EventImported || ev.Payload.(Change).Count != 1 {
			t.Errorf("event = %+v, want import of 1", ev)
		}
	default:
		t.Error("expected import event")
	}

	if _, err := svc.Import(ctx, "json", []byte(`{"not":"a list"}`)); !errors.Is(err, domain.ErrInvalid) {
		t.Errorf("Import() error = %v, want ErrInvalid", err)
	}
}

func TestStorageErrorsPropagate(t *testing.T) {
	svc, _, path := newQuestionService(t, `{"id":"x"}`)
	ctx := context.Background()

	if _, err := svc.List(ctx, ""); !errors.Is(err, repository.ErrCorrupt) {
		t.Errorf("List() error = %v, want ErrCorrupt", err)
	}
	if _, err := svc.Create(ctx, validQuestion("x")); !errors.Is(err, repository.ErrCorrupt) {
		t.Errorf("Create() error = %v, want ErrCorrupt", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != `{"id":"x"}` {
		t.Errorf("corrupt file was rewritten: %s", data)
	}
}

func TestMetrics(t *testing.T) {
	svc, _, _ := newQuestionService(t, "[]")
	m := metrics.New(prometheus.NewRegistry())
	svc.SetMetrics(m)
	ctx := context.Background()

	if _, err := svc.Create(ctx, validQuestion("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, "nope"); err == nil {
		t.Fatal("expected not found")
	}

	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("questions", "add", metrics.ResultOK)); got != 1 {
		t.Errorf("add ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.StoreOperations.WithLabelValues("questions", "get", metrics.ResultError)); got != 1 {
		t.Errorf("get error = %v, want 1", got)
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 1)
	slow := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	bus.Publish(Event{Type: EventCreated})
	if ev := <-fast; ev.Type != EventCreated {
		t.Errorf("event = %s, want %s", ev.Type, EventCreated)
	}

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventUpdated})
	select {
	case ev := <-fast:
		t.Errorf("unsubscribed channel received %s", ev.Type)
	default:
	}

	var nilBus *EventBus
	nilBus.Publish(Event{Type: EventArchived})
}
