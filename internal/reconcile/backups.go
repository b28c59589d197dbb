package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
)

// SyncBackups refetches every backup-enabled workflow individually, applies
// it like the workflow sync does, and writes a snapshot of each version to
// the backup store once.
func (e *Engine) SyncBackups(ctx context.Context, provider *models.Provider, batchSize int) (*BackupResult, error) {
	if batchSize <= 0 {
		batchSize = e.opts.BackupBatchSize
	}

	r, err := e.startRun(ctx, provider, models.SyncTypeBackups, nil)
	if err != nil {
		return nil, err
	}

	result := &BackupResult{Errors: []string{}}
	runErr := e.syncBackups(ctx, provider, r, batchSize, result)

	e.finishRun(ctx, provider, r, models.SyncCounts{
		Processed: result.Synced,
		Updated:   result.Updated,
		Extra: models.JSON{
			"stored":   result.Stored,
			"archived": result.Archived,
			"store":    e.backups.Name(),
			"errors":   errorSample(result.Errors),
		},
	}, runErr)

	metrics.RecordEntities("backup", "stored", result.Stored)
	metrics.RecordEntities("backup", "archived", result.Archived)
	metrics.RecordEntities("backup", "error", len(result.Errors))

	return result, runErr
}

func (e *Engine) syncBackups(ctx context.Context, provider *models.Provider, r *run, batchSize int, result *BackupResult) error {
	client, err := e.client(provider)
	if err != nil {
		return err
	}

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := e.workflows.FindBackupCandidates(ctx, provider.ID, after, batchSize)
		if err != nil {
			return fmt.Errorf("failed to load backup candidates: %w", err)
		}
		if len(batch) == 0 {
			return nil
		}
		after = batch[len(batch)-1].ProviderWorkflowID

		for i := range batch {
			row := &batch[i]
			remoteID := row.ProviderWorkflowID

			wf, err := client.GetWorkflow(ctx, remoteID)
			switch {
			case n8n.IsNotFound(err):
				now := e.now()
				if err := e.workflows.Archive(ctx, row.ID, models.LifecycleDeletedFromN8N, ReasonVanished, now); err != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", remoteID, err))
					continue
				}
				result.Archived++
				r.logger.Info().Str("workflow_id", remoteID).Msg("Backed up workflow removed upstream")
				continue
			case n8n.IsFatal(err):
				return err
			case err != nil:
				result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", remoteID, err))
				continue
			}

			now := e.now()
			out, stored, err := e.applyWorkflow(ctx, provider.ID, wf, now, r.logger)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", remoteID, err))
				continue
			}
			result.Synced++
			if out == outcomeUpdated {
				result.Updated++
			}
			if e.backups.Name() == backup.StoreNone {
				continue
			}

			written, err := e.storeSnapshot(ctx, provider.ID.String(), stored)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("snapshot %s: %v", remoteID, err))
				continue
			}
			if written {
				result.Stored++
			}

			if err := e.workflows.UpdateFields(ctx, stored.ID, map[string]interface{}{"last_backup_at": now}); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("workflow %s: %v", remoteID, err))
			}
		}

		if len(batch) < batchSize {
			return nil
		}
	}
}

// storeSnapshot writes the current version once. Snapshot keys carry the
// version number, so an existing key means nothing changed since.
func (e *Engine) storeSnapshot(ctx context.Context, providerID string, row *models.Workflow) (bool, error) {
	key := backup.SnapshotKey(e.opts.BackupPrefix, providerID, row.ProviderWorkflowID, row.Version)
	exists, err := e.backups.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	body, err := json.MarshalIndent(row.WorkflowData, "", "  ")
	if err != nil {
		return false, err
	}
	if err := e.backups.Put(ctx, key, body); err != nil {
		return false, err
	}
	return true, nil
}
