package handlers

import (
	"net/http"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
)

type SyncLogHandler struct {
	syncLogSvc *services.SyncLogService
}

func NewSyncLogHandler(syncLogSvc *services.SyncLogService) *SyncLogHandler {
	return &SyncLogHandler{syncLogSvc: syncLogSvc}
}

func (h *SyncLogHandler) List(w http.ResponseWriter, r *http.Request) {
	page, opts := listOptions(r)
	opts.OrderBy = "started_at"

	providerID, ok := uuidQuery(w, r, "provider_id")
	if !ok {
		return
	}
	syncType := r.URL.Query().Get("sync_type")
	if syncType != "" && !models.IsValidSyncType(syncType) {
		dto.BadRequest(w, "invalid sync_type")
		return
	}

	logs, total, err := h.syncLogSvc.List(r.Context(), providerID, syncType, opts)
	if err != nil {
		dto.InternalServerError(w, "failed to list sync logs")
		return
	}

	response := make([]dto.SyncLogResponse, 0, len(logs))
	for i := range logs {
		response = append(response, dto.NewSyncLogResponse(&logs[i]))
	}
	dto.JSONWithMeta(w, http.StatusOK, response, dto.NewMeta(page, opts.Limit, total))
}

func (h *SyncLogHandler) Get(w http.ResponseWriter, r *http.Request) {
	logID, ok := uuidParam(w, r, "syncLogID", "sync log")
	if !ok {
		return
	}
	entry, err := h.syncLogSvc.GetByID(r.Context(), logID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewSyncLogResponse(entry))
}
