package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/pkg/validator"
)

func listOptions(r *http.Request) (int, *repositories.ListOptions) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, repositories.NewListOptions(page, perPage)
}

// uuidParam reads a path parameter and answers 400 when it is not a UUID.
func uuidParam(w http.ResponseWriter, r *http.Request, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		dto.BadRequest(w, "invalid "+label+" ID")
		return uuid.Nil, false
	}
	return id, true
}

// uuidQuery reads an optional UUID query filter.
func uuidQuery(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		dto.BadRequest(w, "invalid "+name)
		return nil, false
	}
	return &id, true
}

// decode reads an optional JSON body into req and validates it. An empty
// body leaves req at its zero value.
func decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
			dto.BadRequest(w, "invalid request body")
			return false
		}
	}
	if err := validator.Validate(req); err != nil {
		dto.ValidationErrorResponse(w, err)
		return false
	}
	return true
}
