package handlers

import (
	"net/http"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
)

type ProviderHandler struct {
	providerSvc *services.ProviderService
	workflowSvc *services.WorkflowService
	syncLogSvc  *services.SyncLogService
}

func NewProviderHandler(
	providerSvc *services.ProviderService,
	workflowSvc *services.WorkflowService,
	syncLogSvc *services.SyncLogService,
) *ProviderHandler {
	return &ProviderHandler{
		providerSvc: providerSvc,
		workflowSvc: workflowSvc,
		syncLogSvc:  syncLogSvc,
	}
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.providerSvc.List(r.Context())
	if err != nil {
		dto.InternalServerError(w, "failed to list providers")
		return
	}
	response := make([]dto.ProviderResponse, 0, len(providers))
	for i := range providers {
		response = append(response, dto.NewProviderResponse(&providers[i]))
	}
	dto.OK(w, response)
}

func (h *ProviderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateProviderRequest
	if !decode(w, r, &req) {
		return
	}

	provider, result, err := h.providerSvc.Create(r.Context(), services.CreateProviderInput{
		Name:    req.Name,
		BaseURL: req.BaseURL,
		APIKey:  req.APIKey,
	})
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.Created(w, map[string]interface{}{
		"provider":   dto.NewProviderResponse(provider),
		"connection": result,
	})
}

// Get answers with the provider, its latest run of each sync type and
// its workflow lifecycle counts.
func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", "provider")
	if !ok {
		return
	}
	provider, err := h.providerSvc.GetByID(r.Context(), providerID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	latest, err := h.syncLogSvc.Latest(r.Context(), providerID)
	if err != nil {
		dto.InternalServerError(w, "failed to load sync logs")
		return
	}
	lastRuns := make(map[string]dto.SyncLogResponse, len(latest))
	for syncType, entry := range latest {
		lastRuns[syncType] = dto.NewSyncLogResponse(entry)
	}

	counts, err := h.workflowSvc.LifecycleCounts(r.Context(), providerID)
	if err != nil {
		dto.InternalServerError(w, "failed to count workflows")
		return
	}

	dto.OK(w, map[string]interface{}{
		"provider":  dto.NewProviderResponse(provider),
		"last_runs": lastRuns,
		"workflows": counts,
	})
}

func (h *ProviderHandler) Test(w http.ResponseWriter, r *http.Request) {
	providerID, ok := uuidParam(w, r, "providerID", "provider")
	if !ok {
		return
	}
	provider, result, err := h.providerSvc.TestConnection(r.Context(), providerID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, map[string]interface{}{
		"provider":   dto.NewProviderResponse(provider),
		"connection": result,
	})
}
