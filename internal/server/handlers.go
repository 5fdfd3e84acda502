package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"cio-dashboard/internal/db"
	"cio-dashboard/internal/model"
)

const maxBodyBytes = 1 << 20

// Repository is what the handlers need from an entity store. T is the
// record type and I the request payload.
type Repository[T, I any] interface {
	List(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id string) (T, error)
	Create(ctx context.Context, in *I) (T, error)
	Update(ctx context.Context, id string, in *I) (T, error)
	Delete(ctx context.Context, id string) (T, error)
}

// createValidator is implemented by payloads with required create fields.
type createValidator interface {
	Validate() error
}

// resource serves the CRUD routes for one entity.
type resource[T, I any] struct {
	repo   Repository[T, I]
	name   string // singular, capitalised: "Task"
	plural string // for list failures: "priority tasks"
	dev    bool
}

func (h *resource[T, I]) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.List(r.Context())
	if err != nil {
		h.fail(w, r, "fetch "+h.plural, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *resource[T, I]) get(w http.ResponseWriter, r *http.Request) {
	item, err := h.repo.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "fetch "+h.singular(), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *resource[T, I]) create(w http.ResponseWriter, r *http.Request) {
	in := new(I)
	if !decodeBody(w, r, in) {
		return
	}
	if v, ok := any(in).(createValidator); ok {
		if err := v.Validate(); err != nil {
			h.fail(w, r, "create "+h.singular(), err)
			return
		}
	}

	item, err := h.repo.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create "+h.singular(), err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *resource[T, I]) update(w http.ResponseWriter, r *http.Request) {
	in := new(I)
	if !decodeBody(w, r, in) {
		return
	}

	item, err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, "update "+h.singular(), err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *resource[T, I]) delete(w http.ResponseWriter, r *http.Request) {
	if _, err := h.repo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, "delete "+h.singular(), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": h.name + " deleted successfully",
	})
}

func (h *resource[T, I]) singular() string { return strings.ToLower(h.name) }

// fail maps err to a response: validation problems are 400, missing records
// 404, anything else a logged 500 with "Failed to <action>".
func (h *resource[T, I]) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	var verr *model.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, h.name+" not found")
	default:
		serverError(w, r, "Failed to "+action, err, h.dev)
	}
}

// decodeBody reads a JSON object into dst. An empty body decodes as {}.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
