package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"yahalom/internal/codec"
	"yahalom/internal/domain"
	"yahalom/internal/repository"
	"yahalom/internal/service"
)

// maxBodyBytes bounds request bodies, imports included
const maxBodyBytes = 10 << 20

// Collection is the service surface a CollectionHandler serves
type Collection[T domain.Entity[T]] interface {
	Name() string
	List(ctx context.Context, query string) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	GetAny(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, patch repository.Patch) (T, error)
	Archive(ctx context.Context, id string) (T, error)
	Export(ctx context.Context, format string, w io.Writer) error
	Import(ctx context.Context, format string, data []byte) (*service.ImportResult, error)
}

// CollectionHandler handles the REST API of one collection
type CollectionHandler[T domain.Entity[T]] struct {
	svc Collection[T]
}

// NewCollectionHandler creates a new collection handler
func NewCollectionHandler[T domain.Entity[T]](svc Collection[T]) *CollectionHandler[T] {
	return &CollectionHandler[T]{svc: svc}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Register adds the collection routes under prefix, e.g. /api/questions
func (h *CollectionHandler[T]) Register(mux *http.ServeMux, prefix string) {
	prefix = strings.TrimSuffix(prefix, "/")

	mux.HandleFunc("GET "+prefix, h.List)
	mux.HandleFunc("POST "+prefix, h.Create)
	mux.HandleFunc("GET "+prefix+"/export", h.Export)
	mux.HandleFunc("POST "+prefix+"/import", h.Import)
	mux.HandleFunc("GET "+prefix+"/{id}", h.Get)
	mux.HandleFunc("PUT "+prefix+"/{id}", h.Update)
	mux.HandleFunc("PATCH "+prefix+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+prefix+"/{id}", h.Archive)
}

// List returns the live records, filtered by the optional q parameter
func (h *CollectionHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, "list", err)
		return
	}

	writeJSON(w, items, http.StatusOK)
}

// Get returns one record. Archived records are only returned with
// ?archived=true.
func (h *CollectionHandler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		item T
		err  error
	)
	if r.URL.Query().Get("archived") == "true" {
		item, err = h.svc.GetAny(r.Context(), id)
	} else {
		item, err = h.svc.Get(r.Context(), id)
	}
	if err != nil {
		h.fail(w, "get", err)
		return
	}

	writeJSON(w, item, http.StatusOK)
}

// Create stores a new record and returns it with its assigned id
func (h *CollectionHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	var item T
	if err := decodeBody(w, r, &item); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.svc.Create(r.Context(), item)
	if err != nil {
		h.fail(w, "create", err)
		return
	}

	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+created.GetID())
	writeJSON(w, created, http.StatusCreated)
}

// Update merges the fields of the body into a record
func (h *CollectionHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var patch repository.Patch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if patch == nil {
		writeError(w, "Invalid request body", "body must be a JSON object", http.StatusBadRequest)
		return
	}

	updated, err := h.svc.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update", err)
		return
	}

	writeJSON(w, updated, http.StatusOK)
}

// Archive soft-deletes a record and returns it
func (h *CollectionHandler[T]) Archive(w http.ResponseWriter, r *http.Request) {
	archived, err := h.svc.Archive(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "archive", err)
		return
	}

	writeJSON(w, archived, http.StatusOK)
}

// Export downloads the whole collection, archived records included
func (h *CollectionHandler[T]) Export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	c, err := codec.ForFormat(format)
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), c.Format(), &buf); err != nil {
		h.fail(w, "export", err)
		return
	}

	w.Header().Set("Content-Type", c.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s.%s", h.svc.Name(), c.Format()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("Failed to write %s export: %v", h.svc.Name(), err)
	}
}

// Import creates one record per item of the uploaded document. The format
// comes from ?format= or, failing that, the Content-Type.
func (h *CollectionHandler[T]) Import(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" && strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = "yaml"
	}
	if _, err := codec.ForFormat(format); err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.svc.Import(r.Context(), format, data)
	if err != nil {
		h.fail(w, "import", err)
		return
	}

	writeJSON(w, result, http.StatusOK)
}

// fail logs server-side failures and writes the matching error reply
func (h *CollectionHandler[T]) fail(w http.ResponseWriter, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Failed to %s %s: %v", op, h.svc.Name(), err)
	}
	writeError(w, msg, err.Error(), status)
}

// statusFor maps service and repository errors to an HTTP status
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		return http.StatusBadRequest, "Validation failed"
	case errors.Is(err, repository.ErrInvalidPatch):
		return http.StatusBadRequest, "Invalid update"
	case errors.Is(err, repository.ErrItemNotFound), errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request cancelled"
	case errors.Is(err, repository.ErrCorrupt):
		return http.StatusInternalServerError, "Collection file is corrupt"
	case errors.Is(err, repository.ErrReadFailure):
		return http.StatusInternalServerError, "Failed to read collection"
	case errors.Is(err, repository.ErrWriteFailure):
		return http.StatusInternalServerError, "Failed to save collection"
	default:
		return http.StatusInternalServerError, "Internal error"
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(v); err != nil {
		return err
	}
	if decoder.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("Failed to encode error response: %v", err)
	}
}
