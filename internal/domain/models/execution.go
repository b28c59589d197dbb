package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Execution struct {
	ID                  uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProviderID          uuid.UUID  `gorm:"type:varchar(36);not null;uniqueIndex:idx_executions_provider_remote,priority:1" json:"provider_id"`
	WorkflowID          uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"workflow_id"`
	ProviderExecutionID string     `gorm:"size:64;not null;uniqueIndex:idx_executions_provider_remote,priority:2" json:"provider_execution_id"`
	ProviderWorkflowID  string     `gorm:"size:64;not null;index" json:"provider_workflow_id"`
	Status              string     `gorm:"size:20;not null;default:unknown;index" json:"status"`
	Mode                string     `gorm:"size:20;not null;default:unknown" json:"mode"`
	StartedAt           *time.Time `gorm:"index" json:"started_at,omitempty"`
	StoppedAt           *time.Time `json:"stopped_at,omitempty"`
	DurationMs          *int64     `json:"duration_ms,omitempty"`
	Finished            bool       `gorm:"not null;default:false" json:"finished"`
	RetryOf             *string    `gorm:"size:64" json:"retry_of,omitempty"`
	RetrySuccessID      *string    `gorm:"size:64" json:"retry_success_id,omitempty"`

	AITotalTokens  *int     `json:"ai_total_tokens,omitempty"`
	AIInputTokens  *int     `json:"ai_input_tokens,omitempty"`
	AIOutputTokens *int     `json:"ai_output_tokens,omitempty"`
	AICost         *float64 `json:"ai_cost,omitempty"`
	AIProvider     *string  `gorm:"size:64" json:"ai_provider,omitempty"`
	AIModel        *string  `gorm:"size:128" json:"ai_model,omitempty"`

	RawData   JSON      `gorm:"type:text" json:"raw_data,omitempty"`
	Metadata  JSON      `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE" json:"-"`
	Workflow *Workflow `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Execution) TableName() string {
	return "executions"
}

func (e *Execution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// HasAIMetrics reports whether token usage has been extracted.
func (e *Execution) HasAIMetrics() bool {
	return e.AITotalTokens != nil
}
