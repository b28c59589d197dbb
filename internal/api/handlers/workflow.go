package handlers

import (
	"net/http"
	"strconv"

	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/pkg/validator"
)

type WorkflowHandler struct {
	workflowSvc *services.WorkflowService
	diffSvc     *services.VersionDiffService
}

func NewWorkflowHandler(workflowSvc *services.WorkflowService, diffSvc *services.VersionDiffService) *WorkflowHandler {
	return &WorkflowHandler{
		workflowSvc: workflowSvc,
		diffSvc:     diffSvc,
	}
}

func (h *WorkflowHandler) List(w http.ResponseWriter, r *http.Request) {
	page, opts := listOptions(r)
	providerID, ok := uuidQuery(w, r, "provider_id")
	if !ok {
		return
	}

	lifecycle := r.URL.Query().Get("lifecycle")
	if lifecycle != "" {
		if err := validator.ValidateVar(lifecycle, "lifecycle"); err != nil {
			dto.BadRequest(w, "invalid lifecycle")
			return
		}
	}

	workflows, total, err := h.workflowSvc.List(r.Context(), repositories.WorkflowFilter{
		ProviderID:      providerID,
		LifecycleStatus: lifecycle,
		Search:          validator.SanitizeString(r.URL.Query().Get("search")),
	}, opts)
	if err != nil {
		dto.InternalServerError(w, "failed to list workflows")
		return
	}

	response := make([]dto.WorkflowResponse, 0, len(workflows))
	for i := range workflows {
		response = append(response, dto.NewWorkflowResponse(&workflows[i], false))
	}
	dto.JSONWithMeta(w, http.StatusOK, response, dto.NewMeta(page, opts.Limit, total))
}

func (h *WorkflowHandler) Get(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}
	workflow, err := h.workflowSvc.GetByID(r.Context(), workflowID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewWorkflowResponse(workflow, true))
}

func (h *WorkflowHandler) Versions(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}
	if _, err := h.workflowSvc.GetByID(r.Context(), workflowID); err != nil {
		dto.HandleServiceError(w, err)
		return
	}

	versions, err := h.diffSvc.ListVersions(r.Context(), workflowID)
	if err != nil {
		dto.InternalServerError(w, "failed to list versions")
		return
	}
	response := make([]dto.WorkflowVersionResponse, 0, len(versions))
	for i := range versions {
		resp := dto.NewWorkflowVersionResponse(&versions[i])
		resp.WorkflowData = nil
		response = append(response, resp)
	}
	dto.OK(w, response)
}

// Diff compares ?from with ?to, or ?from with the current definition when
// ?to is absent.
func (h *WorkflowHandler) Diff(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}

	from, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil || from < 1 {
		dto.BadRequest(w, "from must be a positive version number")
		return
	}

	var result *services.DiffResult
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := strconv.Atoi(raw)
		if err != nil || to < 1 {
			dto.BadRequest(w, "to must be a positive version number")
			return
		}
		result, err = h.diffSvc.Compare(r.Context(), workflowID, from, to)
		if err != nil {
			dto.HandleServiceError(w, err)
			return
		}
	} else {
		result, err = h.diffSvc.CompareWithCurrent(r.Context(), workflowID, from)
		if err != nil {
			dto.HandleServiceError(w, err)
			return
		}
	}
	dto.OK(w, result)
}

func (h *WorkflowHandler) Archive(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}
	var req dto.ArchiveWorkflowRequest
	if !decode(w, r, &req) {
		return
	}

	workflow, err := h.workflowSvc.ArchiveWorkflow(r.Context(), workflowID, validator.SanitizeString(req.Reason))
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewWorkflowResponse(workflow, false))
}

func (h *WorkflowHandler) ToggleBackup(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}
	var req dto.ToggleBackupRequest
	if !decode(w, r, &req) {
		return
	}

	workflow, err := h.workflowSvc.ToggleWorkflowBackup(r.Context(), workflowID, *req.Enabled)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, dto.NewWorkflowResponse(workflow, false))
}

func (h *WorkflowHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := uuidParam(w, r, "workflowID", "workflow")
	if !ok {
		return
	}

	workflow, removed, err := h.workflowSvc.DeleteWorkflowBackup(r.Context(), workflowID)
	if err != nil {
		dto.HandleServiceError(w, err)
		return
	}
	dto.OK(w, map[string]interface{}{
		"workflow":          dto.NewWorkflowResponse(workflow, false),
		"snapshots_removed": removed,
	})
}
