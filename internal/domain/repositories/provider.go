package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"gorm.io/gorm"
)

type ProviderRepository struct {
	*BaseRepository[models.Provider]
}

func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{
		BaseRepository: NewBaseRepository[models.Provider](db),
	}
}

// FindSyncable returns connected providers whose health is healthy.
func (r *ProviderRepository) FindSyncable(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.DB().WithContext(ctx).
		Where("is_connected = ? AND health_status = ?", true, models.HealthHealthy).
		Order("created_at ASC").
		Find(&providers).Error
	return providers, err
}

func (r *ProviderRepository) FindUnhealthy(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.DB().WithContext(ctx).
		Where("is_connected = ? OR health_status <> ?", false, models.HealthHealthy).
		Order("created_at ASC").
		Find(&providers).Error
	return providers, err
}

func (r *ProviderRepository) FindByBaseURL(ctx context.Context, baseURL string) (*models.Provider, error) {
	var provider models.Provider
	err := r.DB().WithContext(ctx).Where("base_url = ?", baseURL).First(&provider).Error
	if err != nil {
		return nil, err
	}
	return &provider, nil
}

func (r *ProviderRepository) List(ctx context.Context) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.DB().WithContext(ctx).Order("created_at ASC").Find(&providers).Error
	return providers, err
}

// UpdateHealth records the outcome of a connectivity check or sync run.
// A non-empty message is kept in metadata as last_error; an empty one
// clears it.
func (r *ProviderRepository) UpdateHealth(ctx context.Context, id uuid.UUID, connected bool, status, message string) error {
	return r.Transaction(ctx, func(tx *gorm.DB) error {
		var provider models.Provider
		if err := tx.First(&provider, "id = ?", id).Error; err != nil {
			return err
		}

		now := time.Now()
		meta := provider.Metadata
		if meta == nil {
			meta = models.JSON{}
		}
		if message != "" {
			meta["last_error"] = message
			meta["last_error_at"] = now.Format(time.RFC3339)
		} else {
			delete(meta, "last_error")
			delete(meta, "last_error_at")
		}

		return tx.Model(&models.Provider{}).Where("id = ?", id).Updates(map[string]interface{}{
			"is_connected":    connected,
			"health_status":   status,
			"last_checked_at": now,
			"metadata":        meta,
		}).Error
	})
}

func (r *ProviderRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{"last_sync_at": at})
}
