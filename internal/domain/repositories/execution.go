package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExecutionRepository struct {
	*BaseRepository[models.Execution]
}

func NewExecutionRepository(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{
		BaseRepository: NewBaseRepository[models.Execution](db),
	}
}

var executionUpsertColumns = []string{
	"workflow_id",
	"provider_workflow_id",
	"status",
	"mode",
	"started_at",
	"stopped_at",
	"duration_ms",
	"finished",
	"retry_of",
	"retry_success_id",
	"metadata",
	"updated_at",
}

var executionDataColumns = []string{
	"raw_data",
	"ai_total_tokens",
	"ai_input_tokens",
	"ai_output_tokens",
	"ai_cost",
	"ai_provider",
	"ai_model",
}

// Upsert inserts the execution or overwrites the stored row with the same
// natural key. Payload and AI columns are only overwritten when withData is
// set, so a page fetched without data keeps earlier extractions.
func (r *ExecutionRepository) Upsert(ctx context.Context, execution *models.Execution, withData bool) error {
	columns := executionUpsertColumns
	if withData {
		columns = append(append([]string{}, executionUpsertColumns...), executionDataColumns...)
	}

	return r.DB().WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}, {Name: "provider_execution_id"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).
		Create(execution).Error
}

func (r *ExecutionRepository) FindByProviderExecutionID(ctx context.Context, providerID uuid.UUID, remoteID string) (*models.Execution, error) {
	var execution models.Execution
	err := r.DB().WithContext(ctx).
		Where("provider_id = ? AND provider_execution_id = ?", providerID, remoteID).
		First(&execution).Error
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

// ExistingRemoteIDs returns which of the remote ids are already stored.
func (r *ExecutionRepository) ExistingRemoteIDs(ctx context.Context, providerID uuid.UUID, remoteIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return existing, nil
	}

	var ids []string
	err := r.DB().WithContext(ctx).Model(&models.Execution{}).
		Where("provider_id = ? AND provider_execution_id IN ?", providerID, remoteIDs).
		Pluck("provider_execution_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		existing[id] = true
	}
	return existing, nil
}

// FindMissingAIMetrics returns finished executions with no extraction yet.
func (r *ExecutionRepository) FindMissingAIMetrics(ctx context.Context, providerID uuid.UUID, limit int) ([]models.Execution, error) {
	var executions []models.Execution
	err := r.DB().WithContext(ctx).
		Where("provider_id = ? AND ai_total_tokens IS NULL AND status <> ?", providerID, models.ExecutionStatusRunning).
		Order("started_at DESC").
		Limit(limit).
		Find(&executions).Error
	return executions, err
}

type ExecutionFilter struct {
	ProviderID *uuid.UUID
	WorkflowID *uuid.UUID
	Status     string
}

func (r *ExecutionRepository) List(ctx context.Context, filter ExecutionFilter, opts *ListOptions) ([]models.Execution, int64, error) {
	var executions []models.Execution
	var total int64

	query := r.DB().WithContext(ctx).Model(&models.Execution{}).Omit("raw_data")
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.WorkflowID != nil {
		query = query.Where("workflow_id = ?", *filter.WorkflowID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := opts.apply(query).Find(&executions).Error
	return executions, total, err
}

// DeleteFinishedBefore removes executions that stopped before cutoff.
func (r *ExecutionRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.DB().WithContext(ctx).
		Where("stopped_at IS NOT NULL AND stopped_at < ? AND status <> ?", cutoff, models.ExecutionStatusRunning).
		Delete(&models.Execution{})
	return result.RowsAffected, result.Error
}
