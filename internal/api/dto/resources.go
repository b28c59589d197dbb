package dto

import (
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
)

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ts := t.Unix()
	return &ts
}

// Provider responses
type ProviderResponse struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	BaseURL       string      `json:"base_url"`
	IsConnected   bool        `json:"is_connected"`
	HealthStatus  string      `json:"health_status"`
	LastCheckedAt *int64      `json:"last_checked_at,omitempty"`
	LastSyncAt    *int64      `json:"last_sync_at,omitempty"`
	Metadata      models.JSON `json:"metadata,omitempty"`
	CreatedAt     int64       `json:"created_at"`
}

func NewProviderResponse(p *models.Provider) ProviderResponse {
	return ProviderResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		BaseURL:       p.BaseURL,
		IsConnected:   p.IsConnected,
		HealthStatus:  p.HealthStatus,
		LastCheckedAt: unixPtr(p.LastCheckedAt),
		LastSyncAt:    unixPtr(p.LastSyncAt),
		Metadata:      p.Metadata,
		CreatedAt:     p.CreatedAt.Unix(),
	}
}

// Workflow responses
type WorkflowResponse struct {
	ID                 string      `json:"id"`
	ProviderID         string      `json:"provider_id"`
	ProviderWorkflowID string      `json:"provider_workflow_id"`
	Name               string      `json:"name"`
	IsActive           bool        `json:"is_active"`
	Tags               []string    `json:"tags"`
	NodeCount          int         `json:"node_count"`
	LifecycleStatus    string      `json:"lifecycle_status"`
	Version            int         `json:"version"`
	IsPlaceholder      bool        `json:"is_placeholder"`
	BackupEnabled      bool        `json:"backup_enabled"`
	LastBackupAt       *int64      `json:"last_backup_at,omitempty"`
	LastSeenInN8N      *int64      `json:"last_seen_in_n8n,omitempty"`
	ArchivedAt         *int64      `json:"archived_at,omitempty"`
	ArchivedReason     *string     `json:"archived_reason,omitempty"`
	WorkflowData       models.JSON `json:"workflow_data,omitempty"`
	CreatedAt          int64       `json:"created_at"`
	UpdatedAt          int64       `json:"updated_at"`
}

// NewWorkflowResponse leaves out the stored definition unless withData.
func NewWorkflowResponse(wf *models.Workflow, withData bool) WorkflowResponse {
	tags := []string(wf.Tags)
	if tags == nil {
		tags = []string{}
	}
	resp := WorkflowResponse{
		ID:                 wf.ID.String(),
		ProviderID:         wf.ProviderID.String(),
		ProviderWorkflowID: wf.ProviderWorkflowID,
		Name:               wf.Name,
		IsActive:           wf.IsActive,
		Tags:               tags,
		NodeCount:          wf.NodeCount,
		LifecycleStatus:    wf.LifecycleStatus,
		Version:            wf.Version,
		IsPlaceholder:      wf.IsPlaceholder,
		BackupEnabled:      wf.BackupEnabled,
		LastBackupAt:       unixPtr(wf.LastBackupAt),
		LastSeenInN8N:      unixPtr(wf.LastSeenInN8N),
		ArchivedAt:         unixPtr(wf.ArchivedAt),
		ArchivedReason:     wf.ArchivedReason,
		CreatedAt:          wf.CreatedAt.Unix(),
		UpdatedAt:          wf.UpdatedAt.Unix(),
	}
	if withData {
		resp.WorkflowData = wf.WorkflowData
	}
	return resp
}

type WorkflowVersionResponse struct {
	ID           string      `json:"id"`
	Version      int         `json:"version"`
	ChangeNote   *string     `json:"change_note,omitempty"`
	WorkflowData models.JSON `json:"workflow_data,omitempty"`
	CreatedAt    int64       `json:"created_at"`
}

func NewWorkflowVersionResponse(v *models.WorkflowVersion) WorkflowVersionResponse {
	return WorkflowVersionResponse{
		ID:           v.ID.String(),
		Version:      v.Version,
		ChangeNote:   v.ChangeNote,
		WorkflowData: v.WorkflowData,
		CreatedAt:    v.CreatedAt.Unix(),
	}
}

// Execution responses
type ExecutionResponse struct {
	ID                  string   `json:"id"`
	ProviderID          string   `json:"provider_id"`
	WorkflowID          string   `json:"workflow_id"`
	ProviderExecutionID string   `json:"provider_execution_id"`
	ProviderWorkflowID  string   `json:"provider_workflow_id"`
	Status              string   `json:"status"`
	Mode                string   `json:"mode"`
	Finished            bool     `json:"finished"`
	StartedAt           *int64   `json:"started_at,omitempty"`
	StoppedAt           *int64   `json:"stopped_at,omitempty"`
	DurationMs          *int64   `json:"duration_ms,omitempty"`
	RetryOf             *string  `json:"retry_of,omitempty"`
	RetrySuccessID      *string  `json:"retry_success_id,omitempty"`
	AITotalTokens       *int     `json:"ai_total_tokens,omitempty"`
	AIInputTokens       *int     `json:"ai_input_tokens,omitempty"`
	AIOutputTokens      *int     `json:"ai_output_tokens,omitempty"`
	AICost              *float64 `json:"ai_cost,omitempty"`
	AIProvider          *string  `json:"ai_provider,omitempty"`
	AIModel             *string  `json:"ai_model,omitempty"`
}

func NewExecutionResponse(e *models.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:                  e.ID.String(),
		ProviderID:          e.ProviderID.String(),
		WorkflowID:          e.WorkflowID.String(),
		ProviderExecutionID: e.ProviderExecutionID,
		ProviderWorkflowID:  e.ProviderWorkflowID,
		Status:              e.Status,
		Mode:                e.Mode,
		Finished:            e.Finished,
		StartedAt:           unixPtr(e.StartedAt),
		StoppedAt:           unixPtr(e.StoppedAt),
		DurationMs:          e.DurationMs,
		RetryOf:             e.RetryOf,
		RetrySuccessID:      e.RetrySuccessID,
		AITotalTokens:       e.AITotalTokens,
		AIInputTokens:       e.AIInputTokens,
		AIOutputTokens:      e.AIOutputTokens,
		AICost:              e.AICost,
		AIProvider:          e.AIProvider,
		AIModel:             e.AIModel,
	}
}

// Sync log responses
type SyncLogResponse struct {
	ID               string      `json:"id"`
	ProviderID       string      `json:"provider_id"`
	SyncType         string      `json:"sync_type"`
	Status           string      `json:"status"`
	RecordsProcessed int         `json:"records_processed"`
	RecordsInserted  int         `json:"records_inserted"`
	RecordsUpdated   int         `json:"records_updated"`
	ErrorMessage     *string     `json:"error_message,omitempty"`
	Cursor           *string     `json:"cursor,omitempty"`
	Metadata         models.JSON `json:"metadata,omitempty"`
	StartedAt        int64       `json:"started_at"`
	CompletedAt      *int64      `json:"completed_at,omitempty"`
}

func NewSyncLogResponse(l *models.SyncLog) SyncLogResponse {
	return SyncLogResponse{
		ID:               l.ID.String(),
		ProviderID:       l.ProviderID.String(),
		SyncType:         l.SyncType,
		Status:           l.Status,
		RecordsProcessed: l.RecordsProcessed,
		RecordsInserted:  l.RecordsInserted,
		RecordsUpdated:   l.RecordsUpdated,
		ErrorMessage:     l.ErrorMessage,
		Cursor:           l.Cursor,
		Metadata:         l.Metadata,
		StartedAt:        l.StartedAt.Unix(),
		CompletedAt:      unixPtr(l.CompletedAt),
	}
}
