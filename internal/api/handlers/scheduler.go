package handlers

import (
	"net/http"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/scheduler"
)

type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
}

// NewSchedulerHandler takes nil when this process runs no scheduler.
func NewSchedulerHandler(s *scheduler.Scheduler) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s}
}

func (h *SchedulerHandler) available(w http.ResponseWriter) bool {
	if h.scheduler == nil {
		dto.ServiceUnavailable(w, "scheduler is not running in this process")
		return false
	}
	return true
}

func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	dto.OK(w, h.scheduler.Status())
}

func (h *SchedulerHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	var req dto.StartSchedulerRequest
	if !decode(w, r, &req) {
		return
	}

	interval := time.Duration(req.IntervalMinutes) * time.Minute
	if err := h.scheduler.Start(interval); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, h.scheduler.Status())
}

func (h *SchedulerHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	if err := h.scheduler.Stop(); err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, h.scheduler.Status())
}

// ForceSync runs a sync now and answers with its summary.
func (h *SchedulerHandler) ForceSync(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	summary, err := h.scheduler.ForceSync(r.Context())
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, summary)
}
