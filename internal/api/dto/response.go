package dto

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/pkg/validator"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/linkflow-ai/flowmirror/internal/scheduler"
)

const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeConflict       = "CONFLICT"
	ErrCodeBadRequest     = "BAD_REQUEST"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeTooManyRequest = "TOO_MANY_REQUESTS"
	ErrCodeServiceUnavail = "SERVICE_UNAVAILABLE"
)

// Response is the envelope of every API answer.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *ErrorData  `json:"error,omitempty"`
	Meta      *Meta       `json:"meta,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

type ErrorData struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
}

type Meta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func write(w http.ResponseWriter, status int, resp Response) {
	resp.Success = status >= 200 && status < 300
	resp.RequestID = w.Header().Get("X-Request-ID")
	resp.Timestamp = time.Now().Unix()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func JSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Data: data})
}

// JSONWithMeta writes a page of a list.
func JSONWithMeta(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	write(w, status, Response{Data: data, Meta: meta})
}

func fail(w http.ResponseWriter, status int, code, message string) {
	write(w, status, Response{Error: &ErrorData{Code: code, Message: message}})
}

func ValidationErrorResponse(w http.ResponseWriter, err error) {
	write(w, http.StatusBadRequest, Response{Error: &ErrorData{
		Code:    ErrCodeValidation,
		Message: "Validation failed",
		Details: validator.FormatErrors(err),
	}})
}

func OK(w http.ResponseWriter, data interface{}) { JSON(w, http.StatusOK, data) }

func Created(w http.ResponseWriter, data interface{}) { JSON(w, http.StatusCreated, data) }

func BadRequest(w http.ResponseWriter, message string) {
	fail(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	fail(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	fail(w, http.StatusForbidden, ErrCodeForbidden, message)
}

// NotFound names the missing resource, e.g. "Workflow".
func NotFound(w http.ResponseWriter, resource string) {
	fail(w, http.StatusNotFound, ErrCodeNotFound, resource+" not found")
}

func Conflict(w http.ResponseWriter, message string) {
	fail(w, http.StatusConflict, ErrCodeConflict, message)
}

func TooManyRequests(w http.ResponseWriter, message string) {
	fail(w, http.StatusTooManyRequests, ErrCodeTooManyRequest, message)
}

func InternalServerError(w http.ResponseWriter, message string) {
	fail(w, http.StatusInternalServerError, ErrCodeInternalServer, message)
}

func ServiceUnavailable(w http.ResponseWriter, message string) {
	fail(w, http.StatusServiceUnavailable, ErrCodeServiceUnavail, message)
}

// HandleServiceError maps sentinel errors to statuses. Anything unknown is
// a 500 with the cause kept out of the body.
func HandleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWorkflowNotFound):
		NotFound(w, "Workflow")
	case errors.Is(err, services.ErrVersionNotFound):
		NotFound(w, "Workflow version")
	case errors.Is(err, services.ErrProviderNotFound), errors.Is(err, reconcile.ErrProviderNotFound):
		NotFound(w, "Provider")
	case errors.Is(err, services.ErrExecutionNotFound):
		NotFound(w, "Execution")
	case errors.Is(err, services.ErrSyncLogNotFound):
		NotFound(w, "Sync log")
	case errors.Is(err, services.ErrProviderExists):
		Conflict(w, err.Error())
	case errors.Is(err, reconcile.ErrInvalidSyncType):
		BadRequest(w, err.Error())
	case errors.Is(err, scheduler.ErrSchedulerRunning), errors.Is(err, scheduler.ErrSchedulerNotRunning):
		Conflict(w, err.Error())
	default:
		if len(validator.FormatErrors(err)) > 0 {
			ValidationErrorResponse(w, err)
			return
		}
		InternalServerError(w, "An unexpected error occurred")
	}
}

// NewMeta builds pagination metadata for a list response.
func NewMeta(page, limit int, total int64) *Meta {
	if page < 1 {
		page = 1
	}
	totalPages := 0
	if limit > 0 {
		totalPages = int(total) / limit
		if int(total)%limit > 0 {
			totalPages++
		}
	}
	return &Meta{
		Page:       page,
		PerPage:    limit,
		Total:      total,
		TotalPages: totalPages,
	}
}
