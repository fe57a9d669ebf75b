package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"yahalom/internal/domain"
)

// openTests opens a repository of exams, a type with fields that are not
// omitted when empty.
func openTests(t *testing.T, content string) (*Repository[domain.Test], string) {
	t.Helper()
	path := writeCollection(t, content)
	repo, err := Open[domain.Test](path, "test")
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	return repo, path
}

func assertFile(t *testing.T, path, expected string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read collection: %v", err)
	}
	if string(data) != expected {
		t.Fatalf("collection file mismatch\nexpected: %s\nactual:   %s", expected, data)
	}
}

func TestStoredBytesPreserved(t *testing.T) {
	ctx := context.Background()

	t.Run("update rewrites only the patched field", func(t *testing.T) {
		repo, path := openTests(t,
			`[{"id":"a","title":"Old exam","field":"math"},{"id":"b","title":"Second","field":"art"}]`)

		got, err := repo.Update(ctx, "b", mustPatch(t, map[string]any{"title": "Renamed"}))
		assertNoError(t, err)
		assertEqual(t, "Renamed", got.Title)
		assertEqual(t, "art", got.Field)

		assertFile(t, path,
			`[{"id":"a","title":"Old exam","field":"math"},{"id":"b","title":"Renamed","field":"art"}]`)
	})

	t.Run("delete appends the archived flag", func(t *testing.T) {
		repo, path := openTests(t, `[{"id":"a","title":"Old exam","field":"math"},{"id":"b"}]`)

		_, err := repo.Delete(ctx, "a")
		assertNoError(t, err)

		assertFile(t, path, `[{"id":"a","title":"Old exam","field":"math","archived":true},{"id":"b"}]`)
	})

	t.Run("add leaves existing records alone", func(t *testing.T) {
		content := `[{"id":"a","title":"Old exam","field":"math"}`
		repo, path := openTests(t, content+"]")

		_, err := repo.Add(ctx, domain.Test{Title: "New", Field: "art"})
		assertNoError(t, err)

		data, _ := os.ReadFile(path)
		if len(data) <= len(content) || string(data[:len(content)+1]) != content+"," {
			t.Fatalf("existing record was rewritten: %s", data)
		}
		assertEqual(t, 2, len(readFileItems(t, path)))
	})

	t.Run("formatting inside untouched records survives", func(t *testing.T) {
		repo, path := openTests(t, "[\n  {\"id\": \"a\", \"title\": \"A\"},\n  {\"id\": \"b\"}\n]")

		_, err := repo.Update(ctx, "b", mustPatch(t, map[string]any{"intro": "hello"}))
		assertNoError(t, err)

		assertFile(t, path, `[{"id": "a", "title": "A"},{"id":"b","intro":"hello"}]`)
	})

	t.Run("patched values are compacted", func(t *testing.T) {
		repo, path := openTests(t, `[{"id":"a"}]`)

		_, err := repo.Update(ctx, "a", Patch{"messages": []byte("{\n  \"success\": \"well done\"\n}")})
		assertNoError(t, err)

		assertFile(t, path, `[{"id":"a","messages":{"success":"well done"}}]`)
	})
}

func TestUndecodableRecordIsCorrupt(t *testing.T) {
	ctx := context.Background()
	content := `[{"id":"a","title":"T"},{"id":"b","passingGrade":60.5}]`
	repo, path := openTests(t, content)

	_, err := repo.GetAll(ctx)
	assertErrorIs(t, err, ErrCorrupt)

	var storeErr *Error
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	assertEqual(t, "b", storeErr.ID)
	assertEqual(t, "test", storeErr.Entity)

	_, err = repo.Add(ctx, domain.Test{Title: "New", Field: "math"})
	assertErrorIs(t, err, ErrCorrupt)
	assertFile(t, path, content)
}
