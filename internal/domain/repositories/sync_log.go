package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"gorm.io/gorm"
)

// ErrSyncLogClosed is returned when writing to a completed sync log.
var ErrSyncLogClosed = errors.New("sync log already completed")

type SyncLogRepository struct {
	*BaseRepository[models.SyncLog]
}

func NewSyncLogRepository(db *gorm.DB) *SyncLogRepository {
	return &SyncLogRepository{
		BaseRepository: NewBaseRepository[models.SyncLog](db),
	}
}

// Start appends a running log for the provider and sync type.
func (r *SyncLogRepository) Start(ctx context.Context, providerID uuid.UUID, syncType string, cursor *string) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		ProviderID: providerID,
		SyncType:   syncType,
		Status:     models.SyncStatusRunning,
		Cursor:     cursor,
		StartedAt:  time.Now(),
	}
	if err := r.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// SaveCursor stores the resume cursor of a running log.
func (r *SyncLogRepository) SaveCursor(ctx context.Context, id uuid.UUID, cursor *string, processed int) error {
	result := r.DB().WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"cursor":            cursor,
			"records_processed": processed,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncLogClosed
	}
	return nil
}

// Complete moves a running log to its terminal status. A log can only be
// completed once.
func (r *SyncLogRepository) Complete(ctx context.Context, id uuid.UUID, status string, counts models.SyncCounts, errMsg string) error {
	updates := map[string]interface{}{
		"status":            status,
		"records_processed": counts.Processed,
		"records_inserted":  counts.Inserted,
		"records_updated":   counts.Updated,
		"completed_at":      time.Now(),
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	if counts.Extra != nil {
		updates["metadata"] = counts.Extra
	}

	result := r.DB().WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", id, models.SyncStatusRunning).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSyncLogClosed
	}
	return nil
}

// Latest returns the most recent log for the provider and sync type.
func (r *SyncLogRepository) Latest(ctx context.Context, providerID uuid.UUID, syncType string) (*models.SyncLog, error) {
	var entry models.SyncLog
	err := r.DB().WithContext(ctx).
		Where("provider_id = ? AND sync_type = ?", providerID, syncType).
		Order("started_at DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// FailRunning closes every log still marked running. Used at startup to
// close runs whose process died.
func (r *SyncLogRepository) FailRunning(ctx context.Context, reason string) (int64, error) {
	result := r.DB().WithContext(ctx).Model(&models.SyncLog{}).
		Where("status = ?", models.SyncStatusRunning).
		Updates(map[string]interface{}{
			"status":        models.SyncStatusError,
			"error_message": reason,
			"completed_at":  time.Now(),
		})
	return result.RowsAffected, result.Error
}

func (r *SyncLogRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB().WithContext(ctx).
		Where("status <> ? AND completed_at < ?", models.SyncStatusRunning, cutoff).
		Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}

func (r *SyncLogRepository) List(ctx context.Context, providerID *uuid.UUID, syncType string, opts *ListOptions) ([]models.SyncLog, int64, error) {
	var logs []models.SyncLog
	var total int64

	query := r.DB().WithContext(ctx).Model(&models.SyncLog{})
	if providerID != nil {
		query = query.Where("provider_id = ?", *providerID)
	}
	if syncType != "" {
		query = query.Where("sync_type = ?", syncType)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := opts.apply(query).Find(&logs).Error
	return logs, total, err
}
