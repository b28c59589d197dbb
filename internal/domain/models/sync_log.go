package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncLog records one reconciliation run for one provider and sync type.
// Rows are created running and completed exactly once.
type SyncLog struct {
	ID               uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	ProviderID       uuid.UUID  `gorm:"type:varchar(36);not null;index:idx_sync_logs_provider_type,priority:1" json:"provider_id"`
	SyncType         string     `gorm:"size:20;not null;index:idx_sync_logs_provider_type,priority:2" json:"sync_type"`
	Status           string     `gorm:"size:20;not null;default:running;index" json:"status"`
	RecordsProcessed int        `gorm:"not null;default:0" json:"records_processed"`
	RecordsInserted  int        `gorm:"not null;default:0" json:"records_inserted"`
	RecordsUpdated   int        `gorm:"not null;default:0" json:"records_updated"`
	ErrorMessage     *string    `gorm:"type:text" json:"error_message,omitempty"`
	Cursor           *string    `gorm:"type:text" json:"cursor,omitempty"`
	Metadata         JSON       `gorm:"type:text" json:"metadata,omitempty"`
	StartedAt        time.Time  `gorm:"not null;index:idx_sync_logs_provider_type,priority:3" json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	Provider *Provider `gorm:"foreignKey:ProviderID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}

func (l *SyncLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = SyncStatusRunning
	}
	if l.StartedAt.IsZero() {
		l.StartedAt = time.Now()
	}
	return nil
}

// SyncCounts is the tally written when a run completes.
type SyncCounts struct {
	Processed int
	Inserted  int
	Updated   int
	Extra     JSON
}
