package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Provider is a configured connection to one remote n8n instance.
type Provider struct {
	ID              uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          *uuid.UUID `gorm:"type:varchar(36);index" json:"user_id,omitempty"`
	Name            string     `gorm:"size:255;not null" json:"name"`
	BaseURL         string     `gorm:"size:512;not null" json:"base_url"`
	APIKeyEncrypted string     `gorm:"type:text;not null" json:"-"`
	IsConnected     bool       `gorm:"not null;default:false;index" json:"is_connected"`
	HealthStatus    string     `gorm:"size:20;not null;default:healthy;index" json:"health_status"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	LastSyncAt      *time.Time `json:"last_sync_at,omitempty"`
	Metadata        JSON       `gorm:"type:text" json:"metadata,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Provider) TableName() string {
	return "providers"
}

func (p *Provider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.HealthStatus == "" {
		p.HealthStatus = HealthHealthy
	}
	return nil
}

// Syncable reports whether the provider takes part in scheduled syncs.
func (p *Provider) Syncable() bool {
	return p.IsConnected && p.HealthStatus == HealthHealthy
}
