package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"yahalom/internal/domain"
	"yahalom/internal/repository"
	"yahalom/internal/service"
)

func newFieldServer(t *testing.T, content string) (*httptest.Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fields.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	repo, err := repository.Open[domain.StudyField](path, "study field",
		repository.WithValidator(domain.StudyField.Validate))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	svc := service.NewCollectionService[domain.StudyField]("fields", repo, service.NewEventBus())

	mux := http.NewServeMux()
	NewCollectionHandler[domain.StudyField](svc).Register(mux, "/api/fields")
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, path
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[V any](t *testing.T, resp *http.Response) V {
	t.Helper()
	var v V
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestCollectionCRUD(t *testing.T) {
	srv, path := newFieldServer(t, "[]")
	base := srv.URL + "/api/fields"

	resp := do(t, "POST", base, `{"id":"ignored","name":"Mathematics","organization":"Yahalom"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	created := decode[domain.StudyField](t, resp)
	if created.ID == "" || created.ID == "ignored" {
		t.Fatalf("created id = %q, want a generated id", created.ID)
	}
	if loc := resp.Header.Get("Location"); loc != "/api/fields/"+created.ID {
		t.Errorf("Location = %s", loc)
	}

	resp = do(t, "GET", base+"/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", resp.StatusCode)
	}
	if got := decode[domain.StudyField](t, resp); got.Name != "Mathematics" {
		t.Errorf("get = %+v", got)
	}

	resp = do(t, "PATCH", base+"/"+created.ID, `{"name":"Algebra","id":"hijack"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d, want 200", resp.StatusCode)
	}
	updated := decode[domain.StudyField](t, resp)
	if updated.Name != "Algebra" || updated.Organization != "Yahalom" || updated.ID != created.ID {
		t.Errorf("updated = %+v", updated)
	}

	resp = do(t, "GET", base+"?q=alg", "")
	if items := decode[[]domain.StudyField](t, resp); len(items) != 1 {
		t.Errorf("search = %+v, want one match", items)
	}

	resp = do(t, "DELETE", base+"/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", resp.StatusCode)
	}
	if got := decode[domain.StudyField](t, resp); !got.Archived {
		t.Error("delete should return the archived record")
	}

	if resp := do(t, "GET", base+"/"+created.ID, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("get archived status = %d, want 404", resp.StatusCode)
	}
	if resp := do(t, "GET", base+"/"+created.ID+"?archived=true", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("get archived with flag status = %d, want 200", resp.StatusCode)
	}

	resp = do(t, "GET", base, "")
	if items := decode[[]domain.StudyField](t, resp); len(items) != 0 {
		t.Errorf("list = %+v, want empty", items)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"archived":true`) {
		t.Errorf("file should keep the archived record: %s", data)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _ := newFieldServer(t, `[{"id":"f1","name":"Physics"}]`)
	base := srv.URL + "/api/fields"

	tests := []struct {
		name   string
		method string
		url    string
		body   string
		status int
	}{
		{"unknown id on update", "PUT", base + "/nope", `{"name":"x"}`, http.StatusNotFound},
		{"unknown id on delete", "DELETE", base + "/nope", "", http.StatusNotFound},
		{"unknown id on get", "GET", base + "/nope", "", http.StatusNotFound},
		{"validation on create", "POST", base, `{"name":""}`, http.StatusBadRequest},
		{"validation on update", "PUT", base + "/f1", `{"name":" "}`, http.StatusBadRequest},
		{"wrong field type", "PUT", base + "/f1", `{"name":42}`, http.StatusBadRequest},
		{"malformed body", "POST", base, `{"name":`, http.StatusBadRequest},
		{"null patch", "PUT", base + "/f1", `null`, http.StatusBadRequest},
		{"trailing data", "POST", base, `{"name":"a"} {}`, http.StatusBadRequest},
		{"bad export format", "GET", base + "/export?format=xml", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, tt.url, tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			body := decode[ErrorResponse](t, resp)
			if body.Error == "" {
				t.Error("error body should name the failure")
			}
		})
	}
}

func TestStorageFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{"corrupt", `{"id":"a"}`, "Collection file is corrupt"},
		{"unreadable", `[{"id":`, "Failed to read collection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFieldServer(t, tt.content)
			resp := do(t, "GET", srv.URL+"/api/fields", "")
			if resp.StatusCode != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", resp.StatusCode)
			}
			if body := decode[ErrorResponse](t, resp); body.Error != tt.message {
				t.Errorf("error = %q, want %q", body.Error, tt.message)
			}
		})
	}
}

func TestExportImport(t *testing.T) {
	srv, _ := newFieldServer(t, `[{"id":"f1","name":"Physics"},{"id":"f2","name":"Old","archived":true}]`)
	base := srv.URL + "/api/fields"

	resp := do(t, "GET", base+"/export?format=yaml", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/yaml" {
		t.Errorf("Content-Type = %s", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "fields.yaml") {
		t.Errorf("Content-Disposition = %s", cd)
	}
	var exported bytes.Buffer
	exported.ReadFrom(resp.Body)
	if !strings.Contains(exported.String(), "id: f2") {
		t.Errorf("export should include archived records:\n%s", exported.String())
	}

	req, _ := http.NewRequest("POST", base+"/import", strings.NewReader("- name: Chemistry\n- name: \"\"\n"))
	req.Header.Set("Content-Type", "application/yaml")
	importResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer importResp.Body.Close()
	if importResp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", importResp.StatusCode)
	}
	result := decode[service.ImportResult](t, importResp)
	if len(result.Created) != 1 || len(result.Failed) != 1 {
		t.Errorf("import result = %+v, want one created and one failed", result)
	}

	resp = do(t, "GET", base+"?q=chem", "")
	if items := decode[[]domain.StudyField](t, resp); len(items) != 1 {
		t.Errorf("imported record not listed: %+v", items)
	}

	if resp := do(t, "POST", base+"/import", `{"not":"a list"}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("import of a non-list status = %d, want 400", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ok := func(ctx context.Context) error { return nil }
	broken := func(ctx context.Context) error { return repository.ErrCorrupt }

	rec := httptest.NewRecorder()
	Health(map[string]Probe{"questions": ok})(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	Health(map[string]Probe{"questions": ok, "tests": broken})(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", rec.Code)
	}
	var body HealthResponse
	json.NewDecoder(rec.Body).Decode(&body)
	if body.Status != "degraded" || body.Checks["questions"] != "ok" || body.Checks["tests"] == "ok" {
		t.Errorf("body = %+v", body)
	}
}
