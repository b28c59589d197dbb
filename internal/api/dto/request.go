package dto

// Sync
type SyncRequest struct {
	SyncType  string `json:"sync_type" validate:"required,synctype"`
	BatchSize int    `json:"batch_size,omitempty" validate:"omitempty,min=1,max=1000"`
}

type BackfillRequest struct {
	Limit int `json:"limit,omitempty" validate:"omitempty,min=1,max=1000"`
}

// Scheduler
type StartSchedulerRequest struct {
	IntervalMinutes int `json:"interval_minutes,omitempty" validate:"omitempty,min=1,max=1440"`
}

// Provider
type CreateProviderRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	BaseURL string `json:"base_url" validate:"required,baseurl"`
	APIKey  string `json:"api_key" validate:"required"`
}

// Workflow
type ArchiveWorkflowRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

type ToggleBackupRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
