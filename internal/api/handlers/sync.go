package handlers

import (
	"net/http"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
)

type SyncHandler struct {
	engine *reconcile.Engine
}

func NewSyncHandler(engine *reconcile.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// SyncAll runs one sync type against every healthy provider and answers
// with per-provider counts. Provider failures are reported in the body,
// not as an error status.
func (h *SyncHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	var req dto.SyncRequest
	if !decode(w, r, &req) {
		return
	}

	summary, err := h.engine.SyncAllProviders(r.Context(), reconcile.SyncOptions{
		SyncType:  req.SyncType,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, summary)
}

func (h *SyncHandler) SyncProvider(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", "provider")
	if !ok {
		return
	}
	var req dto.SyncRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.engine.SyncProviderByID(r.Context(), providerID, reconcile.SyncOptions{
		SyncType:  req.SyncType,
		BatchSize: req.BatchSize,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, result)
}

func (h *SyncHandler) BackfillAIMetrics(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", "provider")
	if !ok {
		return
	}
	var req dto.BackfillRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.engine.BackfillAIMetrics(r.Context(), providerID, req.Limit)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, result)
}
