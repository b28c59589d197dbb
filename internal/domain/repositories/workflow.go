package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkflowRepository struct {
	*BaseRepository[models.Workflow]
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{
		BaseRepository: NewBaseRepository[models.Workflow](db),
	}
}

type WorkflowFilter struct {
	ProviderID      *uuid.UUID
	LifecycleStatus string
	Search          string
}

func (r *WorkflowRepository) List(ctx context.Context, filter WorkflowFilter, opts *ListOptions) ([]models.Workflow, int64, error) {
	var workflows []models.Workflow
	var total int64

	query := r.DB().WithContext(ctx).Model(&models.Workflow{})
	if filter.ProviderID != nil {
		query = query.Where("provider_id = ?", *filter.ProviderID)
	}
	if filter.LifecycleStatus != "" {
		query = query.Where("lifecycle_status = ?", filter.LifecycleStatus)
	}
	if filter.Search != "" {
		query = query.Where("name LIKE ?", "%"+filter.Search+"%")
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := opts.apply(query).Find(&workflows).Error
	return workflows, total, err
}

// FindByProviderWorkflowID looks a workflow up by its natural key.
func (r *WorkflowRepository) FindByProviderWorkflowID(ctx context.Context, providerID uuid.UUID, remoteID string) (*models.Workflow, error) {
	var workflow models.Workflow
	err := r.DB().WithContext(ctx).
		Where("provider_id = ? AND provider_workflow_id = ?", providerID, remoteID).
		First(&workflow).Error
	if err != nil {
		return nil, err
	}
	return &workflow, nil
}

// MapByProviderWorkflowIDs resolves remote ids to local ids.
func (r *WorkflowRepository) MapByProviderWorkflowIDs(ctx context.Context, providerID uuid.UUID, remoteIDs []string) (map[string]uuid.UUID, error) {
	result := make(map[string]uuid.UUID, len(remoteIDs))
	if len(remoteIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		ID                 uuid.UUID
		ProviderWorkflowID string
	}
	err := r.DB().WithContext(ctx).Model(&models.Workflow{}).
		Select("id", "provider_workflow_id").
		Where("provider_id = ? AND provider_workflow_id IN ?", providerID, remoteIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.ProviderWorkflowID] = row.ID
	}
	return result, nil
}

// CreateIfAbsent inserts the workflow unless its natural key is taken.
// It reports whether a row was written.
func (r *WorkflowRepository) CreateIfAbsent(ctx context.Context, workflow *models.Workflow) (bool, error) {
	result := r.DB().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}, {Name: "provider_workflow_id"}},
			DoNothing: true,
		}).
		Create(workflow)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FindActiveMissing returns active workflows of the provider whose remote
// id is not in seen.
func (r *WorkflowRepository) FindActiveMissing(ctx context.Context, providerID uuid.UUID, seen []string) ([]models.Workflow, error) {
	var workflows []models.Workflow
	query := r.DB().WithContext(ctx).
		Where("provider_id = ? AND lifecycle_status = ?", providerID, models.LifecycleActive)
	if len(seen) > 0 {
		query = query.Where("provider_workflow_id NOT IN ?", seen)
	}
	err := query.Find(&workflows).Error
	return workflows, err
}

func (r *WorkflowRepository) Archive(ctx context.Context, id uuid.UUID, lifecycle, reason string, at time.Time) error {
	return r.UpdateFields(ctx, id, map[string]interface{}{
		"lifecycle_status": lifecycle,
		"archived_at":      at,
		"archived_reason":  reason,
	})
}

// FindBackupCandidates pages through active workflows with backups on,
// ordered by remote id and starting after the given one.
func (r *WorkflowRepository) FindBackupCandidates(ctx context.Context, providerID uuid.UUID, after string, limit int) ([]models.Workflow, error) {
	var workflows []models.Workflow
	err := r.DB().WithContext(ctx).
		Where("provider_id = ? AND backup_enabled = ? AND lifecycle_status = ? AND is_placeholder = ?",
			providerID, true, models.LifecycleActive, false).
		Where("provider_workflow_id > ?", after).
		Order("provider_workflow_id ASC").
		Limit(limit).
		Find(&workflows).Error
	return workflows, err
}

func (r *WorkflowRepository) CountByLifecycle(ctx context.Context, providerID uuid.UUID) (map[string]int64, error) {
	var rows []struct {
		LifecycleStatus string
		Count           int64
	}
	err := r.DB().WithContext(ctx).Model(&models.Workflow{}).
		Select("lifecycle_status, COUNT(*) AS count").
		Where("provider_id = ?", providerID).
		Group("lifecycle_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.LifecycleStatus] = row.Count
	}
	return counts, nil
}

type WorkflowVersionRepository struct {
	*BaseRepository[models.WorkflowVersion]
}

func NewWorkflowVersionRepository(db *gorm.DB) *WorkflowVersionRepository {
	return &WorkflowVersionRepository{
		BaseRepository: NewBaseRepository[models.WorkflowVersion](db),
	}
}

func (r *WorkflowVersionRepository) FindByWorkflowID(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowVersion, error) {
	var versions []models.WorkflowVersion
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("version DESC").
		Find(&versions).Error
	return versions, err
}

func (r *WorkflowVersionRepository) FindByWorkflowAndVersion(ctx context.Context, workflowID uuid.UUID, version int) (*models.WorkflowVersion, error) {
	var v models.WorkflowVersion
	err := r.DB().WithContext(ctx).
		Where("workflow_id = ? AND version = ?", workflowID, version).
		First(&v).Error
	if err != nil {
		return nil, err
	}
	return &v, nil
}
