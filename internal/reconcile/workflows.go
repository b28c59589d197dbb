package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
	outcomeUpdated
)

// SyncWorkflows fetches the full remote workflow list, reconciles every
// entry and then archives local workflows that are no longer listed.
func (e *Engine) SyncWorkflows(ctx context.Context, provider *models.Provider) (*WorkflowResult, error) {
	r, err := e.startRun(ctx, provider, models.SyncTypeWorkflows, nil)
	if err != nil {
		return nil, err
	}

	result := &WorkflowResult{Errors: []string{}}
	runErr := e.syncWorkflows(ctx, provider, r, result)

	e.finishRun(ctx, provider, r, models.SyncCounts{
		Processed: result.Synced,
		Inserted:  result.Created,
		Updated:   result.Updated,
		Extra: models.JSON{
			"archived": result.Archived,
			"skipped":  result.Skipped,
			"errors":   errorSample(result.Errors),
		},
	}, runErr)

	metrics.RecordEntities("workflow", "created", result.Created)
	metrics.RecordEntities("workflow", "updated", result.Updated)
	metrics.RecordEntities("workflow", "skipped", result.Skipped)
	metrics.RecordEntities("workflow", "archived", result.Archived)
	metrics.RecordEntities("workflow", "error", len(result.Errors))

	return result, runErr
}

func (e *Engine) syncWorkflows(ctx context.Context, provider *models.Provider, r *run, result *WorkflowResult) error {
	client, err := e.client(provider)
	if err != nil {
		return err
	}

	remote, err := client.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	now := e.now()
	seen := make([]string, 0, len(remote))
	unidentified := 0

	for i := range remote {
		if err := ctx.Err(); err != nil {
			return err
		}

		wf := &remote[i]
		id := wf.ID.String()
		if id == "" {
			unidentified++
			result.Errors = append(result.Errors, fmt.Sprintf("workflow at position %d has no id", i))
			continue
		}
		// listed means present upstream, even when the body is unreadable
		seen = append(seen, id)

		if wf.Err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", id, wf.Err))
			continue
		}

		out, _, err := e.applyWorkflow(ctx, provider.ID, wf, now, r.logger)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", id, err))
			continue
		}

		result.Synced++
		switch out {
		case outcomeCreated:
			result.Created++
		case outcomeUpdated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if unidentified > 0 {
		result.Errors = append(result.Errors, "archival skipped: remote list contained workflows without ids")
		return nil
	}

	archived, errs := e.archiveMissing(ctx, provider.ID, seen, now, r.logger)
	result.Archived = archived
	result.Errors = append(result.Errors, errs...)
	return nil
}

// applyWorkflow reconciles one remote workflow with its local row and
// returns the row as stored afterwards.
func (e *Engine) applyWorkflow(ctx context.Context, providerID uuid.UUID, wf *n8n.Workflow, now time.Time, l zerolog.Logger) (outcome, *models.Workflow, error) {
	remoteID := wf.ID.String()
	incoming := workflowData(wf)

	existing, err := e.workflows.FindByProviderWorkflowID(ctx, providerID, remoteID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := &models.Workflow{
			ProviderID:         providerID,
			ProviderWorkflowID: remoteID,
			Name:               wf.Name,
			IsActive:           wf.Active,
			Tags:               models.StringList(wf.TagNames()),
			NodeCount:          nodeCount(wf),
			WorkflowData:       incoming,
			LifecycleStatus:    models.LifecycleActive,
			LastSeenInN8N:      &now,
			Version:            1,
			CreatedAt:          remoteOr(wf.CreatedAt, now),
			UpdatedAt:          wf.UpdatedAt,
		}

		created, err := e.createWorkflow(ctx, row)
		if err != nil {
			return outcomeSkipped, nil, err
		}
		if created {
			l.Debug().Str("workflow_id", remoteID).Msg("Workflow created")
			return outcomeCreated, row, nil
		}
		// another writer inserted it first
		existing, err = e.workflows.FindByProviderWorkflowID(ctx, providerID, remoteID)
		if err != nil {
			return outcomeSkipped, nil, err
		}
	} else if err != nil {
		return outcomeSkipped, nil, err
	}

	if existing.IsPlaceholder {
		if err := e.fillPlaceholder(ctx, existing, wf, incoming, now); err != nil {
			return outcomeSkipped, nil, err
		}
		l.Debug().Str("workflow_id", remoteID).Msg("Placeholder workflow filled in")
		return outcomeCreated, existing, nil
	}

	// rows whose retained content was dropped take the update path to refill it
	if sameInstant(existing.UpdatedAt, wf.UpdatedAt) && existing.WorkflowData != nil {
		if err := e.refreshSeen(ctx, existing, wf, now); err != nil {
			return outcomeSkipped, nil, err
		}
		return outcomeSkipped, existing, nil
	}

	changed := existing.WorkflowData != nil && contentChanged(existing.WorkflowData, incoming)
	version := existing.Version
	var note *string
	if changed {
		version++
		summary := services.DiffWorkflowData(existing.WorkflowData, incoming).Summary.String()
		note = &summary
		l.Info().
			Str("workflow_id", remoteID).
			Int("version", version).
			Str("changes", summary).
			Msg("Workflow content changed")
	}

	fields := map[string]interface{}{
		"name":             wf.Name,
		"is_active":        wf.Active,
		"tags":             models.StringList(wf.TagNames()),
		"node_count":       nodeCount(wf),
		"workflow_data":    incoming,
		"updated_at":       wf.UpdatedAt,
		"last_seen_in_n8n": now,
		"lifecycle_status": models.LifecycleActive,
		"archived_at":      nil,
		"archived_reason":  nil,
		"version":          version,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Workflow{}).Where("id = ?", existing.ID).Updates(fields).Error; err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return insertVersion(tx, existing.ID, version, incoming, note)
	})
	if err != nil {
		return outcomeSkipped, nil, err
	}

	existing.Name = wf.Name
	existing.IsActive = wf.Active
	existing.Tags = models.StringList(wf.TagNames())
	existing.NodeCount = nodeCount(wf)
	existing.WorkflowData = incoming
	existing.UpdatedAt = wf.UpdatedAt
	existing.LastSeenInN8N = &now
	existing.LifecycleStatus = models.LifecycleActive
	existing.ArchivedAt = nil
	existing.ArchivedReason = nil
	existing.Version = version
	return outcomeUpdated, existing, nil
}

// createWorkflow inserts a new row together with its first version.
func (e *Engine) createWorkflow(ctx context.Context, row *models.Workflow) (bool, error) {
	var created bool
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		created, err = repositories.NewWorkflowRepository(tx).CreateIfAbsent(ctx, row)
		if err != nil || !created {
			return err
		}
		return insertVersion(tx, row.ID, row.Version, row.WorkflowData, nil)
	})
	return created, err
}

// fillPlaceholder turns a stub created for orphaned executions into a real
// mirror. The version stays where it is.
func (e *Engine) fillPlaceholder(ctx context.Context, row *models.Workflow, wf *n8n.Workflow, incoming models.JSON, now time.Time) error {
	fields := map[string]interface{}{
		"name":             wf.Name,
		"is_active":        wf.Active,
		"tags":             models.StringList(wf.TagNames()),
		"node_count":       nodeCount(wf),
		"workflow_data":    incoming,
		"created_at":       remoteOr(wf.CreatedAt, row.CreatedAt),
		"updated_at":       wf.UpdatedAt,
		"last_seen_in_n8n": now,
		"lifecycle_status": models.LifecycleActive,
		"archived_at":      nil,
		"archived_reason":  nil,
		"is_placeholder":   false,
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Workflow{}).Where("id = ?", row.ID).Updates(fields).Error; err != nil {
			return err
		}
		return insertVersion(tx, row.ID, row.Version, incoming, nil)
	})
	if err != nil {
		return err
	}

	row.Name = wf.Name
	row.IsActive = wf.Active
	row.Tags = models.StringList(wf.TagNames())
	row.NodeCount = nodeCount(wf)
	row.WorkflowData = incoming
	row.UpdatedAt = wf.UpdatedAt
	row.LastSeenInN8N = &now
	row.LifecycleStatus = models.LifecycleActive
	row.ArchivedAt = nil
	row.ArchivedReason = nil
	row.IsPlaceholder = false
	return nil
}

// refreshSeen is the unchanged-timestamp path: only last_seen_in_n8n and
// the active flag move. A row archived because it vanished upstream is
// restored.
func (e *Engine) refreshSeen(ctx context.Context, row *models.Workflow, wf *n8n.Workflow, now time.Time) error {
	fields := map[string]interface{}{
		"last_seen_in_n8n": now,
		"is_active":        wf.Active,
	}
	resurrect := row.LifecycleStatus != models.LifecycleActive &&
		row.ArchivedReason != nil && *row.ArchivedReason == ReasonVanished
	if resurrect {
		fields["lifecycle_status"] = models.LifecycleActive
		fields["archived_at"] = nil
		fields["archived_reason"] = nil
	}

	if err := e.workflows.UpdateFields(ctx, row.ID, fields); err != nil {
		return err
	}

	row.LastSeenInN8N = &now
	row.IsActive = wf.Active
	if resurrect {
		row.LifecycleStatus = models.LifecycleActive
		row.ArchivedAt = nil
		row.ArchivedReason = nil
	}
	return nil
}

// archiveMissing archives active workflows the remote no longer lists.
// Backed up workflows keep their content as deleted_from_n8n.
func (e *Engine) archiveMissing(ctx context.Context, providerID uuid.UUID, seen []string, now time.Time, l zerolog.Logger) (int, []string) {
	missing, err := e.workflows.FindActiveMissing(ctx, providerID, seen)
	if err != nil {
		return 0, []string{fmt.Sprintf("archival: %v", err)}
	}

	var errs []string
	archived := 0
	for _, wf := range missing {
		lifecycle := models.LifecycleArchived
		if wf.BackupEnabled {
			lifecycle = models.LifecycleDeletedFromN8N
		}
		if err := e.workflows.Archive(ctx, wf.ID, lifecycle, ReasonVanished, now); err != nil {
			errs = append(errs, fmt.Sprintf("archive workflow %s: %v", wf.ProviderWorkflowID, err))
			continue
		}
		archived++
		l.Info().
			Str("workflow_id", wf.ProviderWorkflowID).
			Str("lifecycle_status", lifecycle).
			Msg("Workflow archived")
	}
	return archived, errs
}

func insertVersion(tx *gorm.DB, workflowID uuid.UUID, version int, data models.JSON, note *string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.WorkflowVersion{
		WorkflowID:   workflowID,
		Version:      version,
		WorkflowData: data,
		ChangeNote:   note,
	}).Error
}

func remoteOr(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	return t
}

// errorSample keeps sync log metadata bounded.
func errorSample(errs []string) []string {
	const limit = 20
	if len(errs) > limit {
		return errs[:limit]
	}
	return errs
}
