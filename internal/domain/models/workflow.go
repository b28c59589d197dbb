package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow mirrors one remote workflow definition. CreatedAt and UpdatedAt
// hold the remote timestamps; UpdatedAt is the change-detection key.
type Workflow struct {
	ID                 uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProviderID         uuid.UUID  `gorm:"type:varchar(36);not null;uniqueIndex:idx_workflows_provider_remote,priority:1" json:"provider_id"`
	ProviderWorkflowID string     `gorm:"size:64;not null;uniqueIndex:idx_workflows_provider_remote,priority:2" json:"provider_workflow_id"`
	Name               string     `gorm:"size:255;not null" json:"name"`
	IsActive           bool       `gorm:"not null;default:false" json:"is_active"`
	Tags               StringList `gorm:"type:text" json:"tags"`
	NodeCount          int        `gorm:"not null;default:0" json:"node_count"`
	WorkflowData       JSON       `gorm:"type:text" json:"workflow_data,omitempty"`
	LifecycleStatus    string     `gorm:"size:32;not null;default:active;index" json:"lifecycle_status"`
	LastSeenInN8N      *time.Time `gorm:"column:last_seen_in_n8n" json:"last_seen_in_n8n,omitempty"`
	BackupEnabled      bool       `gorm:"not null;default:false" json:"backup_enabled"`
	LastBackupAt       *time.Time `json:"last_backup_at,omitempty"`
	ArchivedAt         *time.Time `json:"archived_at,omitempty"`
	ArchivedReason     *string    `gorm:"type:text" json:"archived_reason,omitempty"`
	IsPlaceholder      bool       `gorm:"not null;default:false" json:"is_placeholder"`
	Version            int        `gorm:"not null;default:1" json:"version"`
	CreatedAt          time.Time  `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime:false" json:"updated_at"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Workflow) TableName() string {
	return "workflows"
}

func (w *Workflow) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.LifecycleStatus == "" {
		w.LifecycleStatus = LifecycleActive
	}
	if w.Version == 0 {
		w.Version = 1
	}
	return nil
}

// Content returns the nodes and connections that drive version bumps.
func (w *Workflow) Content() (nodes interface{}, connections interface{}) {
	if w.WorkflowData == nil {
		return nil, nil
	}
	return w.WorkflowData["nodes"], w.WorkflowData["connections"]
}

// WorkflowVersion is a snapshot written every time the content of a
// workflow changes upstream.
type WorkflowVersion struct {
	ID           uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	WorkflowID   uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex:idx_workflow_versions_version,priority:1" json:"workflow_id"`
	Version      int       `gorm:"not null;uniqueIndex:idx_workflow_versions_version,priority:2" json:"version"`
	WorkflowData JSON      `gorm:"type:text" json:"workflow_data"`
	ChangeNote   *string   `gorm:"type:text" json:"change_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	Workflow *Workflow `gorm:"foreignKey:WorkflowID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WorkflowVersion) TableName() string {
	return "workflow_versions"
}

func (v *WorkflowVersion) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
