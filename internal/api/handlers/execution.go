package handlers

import (
	"net/http"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
)

type ExecutionHandler struct {
	executionSvc *services.ExecutionService
}

func NewExecutionHandler(executionSvc *services.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executionSvc: executionSvc}
}

func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	page, opts := listOptions(r)
	opts.OrderBy = "started_at"

	providerID, ok := uuidQuery(w, r, "provider_id")
	if !ok {
		return
	}
	workflowID, ok := uuidQuery(w, r, "workflow_id")
	if !ok {
		return
	}

	executions, total, err := h.executionSvc.List(r.Context(), repositories.ExecutionFilter{
		ProviderID: providerID,
		WorkflowID: workflowID,
		Status:     r.URL.Query().Get("status"),
	}, opts)
	if err != nil {
		dto.InternalServerError(w, "failed to list executions")
		return
	}

	response := make([]dto.ExecutionResponse, 0, len(executions))
	for i := range executions {
		response = append(response, dto.NewExecutionResponse(&executions[i]))
	}
	dto.JSONWithMeta(w, http.StatusOK, response, dto.NewMeta(page, opts.Limit, total))
}

func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	executionID, ok := uuidParam(w, r, "executionID", "execution")
	if !ok {
		return
	}
	execution, err := h.executionSvc.GetByID(r.Context(), executionID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewExecutionResponse(execution))
}
