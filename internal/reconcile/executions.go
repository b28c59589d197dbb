package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/aimetrics"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	"gorm.io/gorm"
)

// SyncExecutions pages through remote executions starting at the cursor
// left by the previous executions run of this provider. The cursor is
// persisted after every page, so a run that terminates early resumes where
// it stopped.
func (e *Engine) SyncExecutions(ctx context.Context, provider *models.Provider, batchSize int) (*ExecutionResult, error) {
	if batchSize <= 0 {
		batchSize = e.opts.ExecutionBatchSize
	}

	resume, err := e.resumeCursor(ctx, provider.ID)
	if err != nil {
		return nil, err
	}

	r, err := e.startRun(ctx, provider, models.SyncTypeExecutions, optionalString(resume))
	if err != nil {
		return nil, err
	}

	result := &ExecutionResult{Errors: []string{}}
	runErr := e.syncExecutions(ctx, provider, r, resume, batchSize, result)

	e.finishRun(ctx, provider, r, models.SyncCounts{
		Processed: result.Synced,
		Inserted:  result.Inserted,
		Updated:   result.Updated,
		Extra: models.JSON{
			"pages":        result.Pages,
			"placeholders": result.Placeholders,
			"ai_extracted": result.AIExtracted,
			"errors":       errorSample(result.Errors),
		},
	}, runErr)

	metrics.RecordEntities("execution", "inserted", result.Inserted)
	metrics.RecordEntities("execution", "updated", result.Updated)
	metrics.RecordEntities("execution", "error", len(result.Errors))
	metrics.RecordEntities("workflow", "placeholder", result.Placeholders)

	return result, runErr
}

// resumeCursor reads the cursor of the latest executions log, whatever
// its status.
func (e *Engine) resumeCursor(ctx context.Context, providerID uuid.UUID) (string, error) {
	prev, err := e.syncLogs.Latest(ctx, providerID, models.SyncTypeExecutions)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load previous sync log: %w", err)
	}
	if prev.Cursor == nil {
		return "", nil
	}
	return *prev.Cursor, nil
}

func (e *Engine) syncExecutions(ctx context.Context, provider *models.Provider, r *run, cursor string, batchSize int, result *ExecutionResult) error {
	client, err := e.client(provider)
	if err != nil {
		return err
	}

	reset := false
	for result.Pages < e.opts.MaxExecutionPages {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := client.ListExecutions(ctx, n8n.ListExecutionsParams{
			Cursor:      cursor,
			Limit:       batchSize,
			IncludeData: e.opts.IncludeExecutionData,
		})
		if err != nil {
			if result.Pages == 0 && cursor != "" && !reset && n8n.IsCursorRejected(err) {
				r.logger.Warn().Err(err).Msg("Stored cursor rejected, restarting from the newest page")
				cursor = ""
				reset = true
				if err := e.syncLogs.SaveCursor(ctx, r.log.ID, nil, result.Synced); err != nil {
					return fmt.Errorf("failed to persist cursor: %w", err)
				}
				continue
			}
			return fmt.Errorf("failed to fetch executions page %d: %w", result.Pages+1, err)
		}
		result.Pages++

		if len(page.Data) == 0 {
			cursor = ""
		} else {
			// the cursor stays on the last committed page
			if err := e.applyExecutionPage(ctx, provider.ID, page.Data, result); err != nil {
				return fmt.Errorf("executions page %d: %w", result.Pages, err)
			}
			cursor = page.NextCursor
		}

		if err := e.syncLogs.SaveCursor(ctx, r.log.ID, optionalString(cursor), result.Synced); err != nil {
			return fmt.Errorf("failed to persist cursor: %w", err)
		}
		r.logger.Debug().
			Int("page", result.Pages).
			Int("items", len(page.Data)).
			Bool("exhausted", cursor == "").
			Msg("Executions page committed")

		if cursor == "" {
			break
		}
	}

	result.Cursor = cursor
	return nil
}

// applyExecutionPage upserts one page. Referenced workflows that are not
// mirrored yet get placeholder rows first, so no execution is orphaned.
// Item failures land in result.Errors; an error is returned only when the
// page as a whole could not be resolved, before anything was written.
func (e *Engine) applyExecutionPage(ctx context.Context, providerID uuid.UUID, items []n8n.Execution, result *ExecutionResult) error {
	workflowIDs := make([]string, 0, len(items))
	executionIDs := make([]string, 0, len(items))
	seenWorkflow := make(map[string]bool)
	for i := range items {
		if items[i].Err != nil || items[i].ID == "" {
			continue
		}
		executionIDs = append(executionIDs, items[i].ID.String())
		if wid := items[i].WorkflowID.String(); wid != "" && !seenWorkflow[wid] {
			seenWorkflow[wid] = true
			workflowIDs = append(workflowIDs, wid)
		}
	}

	local, err := e.workflows.MapByProviderWorkflowIDs(ctx, providerID, workflowIDs)
	if err != nil {
		return fmt.Errorf("resolve workflows: %w", err)
	}
	existing, err := e.executions.ExistingRemoteIDs(ctx, providerID, executionIDs)
	if err != nil {
		return fmt.Errorf("resolve executions: %w", err)
	}

	for _, wid := range workflowIDs {
		if _, ok := local[wid]; ok {
			continue
		}
		id, created, err := e.ensurePlaceholder(ctx, providerID, wid)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("placeholder workflow %s: %v", wid, err))
			continue
		}
		local[wid] = id
		if created {
			result.Placeholders++
		}
	}

	for i := range items {
		ex := &items[i]
		id := ex.ID.String()

		switch {
		case ex.Err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("execution %s: %v", id, ex.Err))
			continue
		case id == "":
			result.Errors = append(result.Errors, "execution without id")
			continue
		}

		workflowID, ok := local[ex.WorkflowID.String()]
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("execution %s: workflow %q unavailable", id, ex.WorkflowID))
			continue
		}

		row := toExecution(providerID, workflowID, ex)
		withData := ex.Data != nil
		var m aimetrics.Metrics
		if withData {
			m = aimetrics.Extract(ex.Data)
			applyMetrics(row, m)
			if m.Found {
				result.AIExtracted++
			}
		}

		if err := e.executions.Upsert(ctx, row, withData); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("execution %s: %v", id, err))
			continue
		}

		result.Synced++
		if existing[id] {
			result.Updated++
			continue
		}
		result.Inserted++
		if m.Found {
			metrics.RecordAIUsage(m.Provider, m.InputTokens, m.OutputTokens, m.Cost)
		}
	}
	return nil
}

func (e *Engine) ensurePlaceholder(ctx context.Context, providerID uuid.UUID, remoteID string) (uuid.UUID, bool, error) {
	now := e.now()
	reason := ReasonPlaceholder
	row := &models.Workflow{
		ProviderID:         providerID,
		ProviderWorkflowID: remoteID,
		Name:               "Workflow " + remoteID,
		LifecycleStatus:    models.LifecycleArchived,
		ArchivedAt:         &now,
		ArchivedReason:     &reason,
		IsPlaceholder:      true,
		Version:            1,
		CreatedAt:          now,
	}

	created, err := e.workflows.CreateIfAbsent(ctx, row)
	if err != nil {
		return uuid.Nil, false, err
	}
	if created {
		return row.ID, true, nil
	}

	stored, err := e.workflows.FindByProviderWorkflowID(ctx, providerID, remoteID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return stored.ID, false, nil
}

func toExecution(providerID, workflowID uuid.UUID, ex *n8n.Execution) *models.Execution {
	status := normalizeStatus(ex)
	mode := normalizeMode(ex.Mode)

	row := &models.Execution{
		ProviderID:          providerID,
		WorkflowID:          workflowID,
		ProviderExecutionID: ex.ID.String(),
		ProviderWorkflowID:  ex.WorkflowID.String(),
		Status:              status,
		Mode:                mode,
		StartedAt:           ex.StartedAt,
		StoppedAt:           ex.StoppedAt,
		DurationMs:          durationMs(status, ex.StartedAt, ex.StoppedAt),
		Finished:            ex.Finished,
		RetryOf:             optionalID(ex.RetryOf),
		RetrySuccessID:      optionalID(ex.RetrySuccessID),
	}

	meta := models.JSON{}
	if ex.WaitTill != nil {
		meta["wait_till"] = ex.WaitTill.UTC().Format(time.RFC3339)
	}
	if status == models.ExecutionStatusUnknown && ex.Status != "" {
		meta["raw_status"] = ex.Status
	}
	if mode == models.ExecutionModeUnknown && ex.Mode != "" {
		meta["raw_mode"] = ex.Mode
	}
	if len(meta) > 0 {
		row.Metadata = meta
	}
	if ex.Data != nil {
		row.RawData = models.JSON(ex.Data)
	}
	return row
}

// applyMetrics stores zeros when nothing was found, which marks the
// execution as already examined.
func applyMetrics(row *models.Execution, m aimetrics.Metrics) {
	total, in, out, cost := m.TotalTokens, m.InputTokens, m.OutputTokens, m.Cost
	row.AITotalTokens = &total
	row.AIInputTokens = &in
	row.AIOutputTokens = &out
	row.AICost = &cost
	row.AIProvider = optionalString(m.Provider)
	row.AIModel = optionalString(m.Model)
}

// BackfillAIMetrics fetches result data for stored executions that were
// synced without it and fills in their AI columns.
func (e *Engine) BackfillAIMetrics(ctx context.Context, providerID uuid.UUID, limit int) (*BackfillResult, error) {
	if limit <= 0 {
		limit = e.opts.ExecutionBatchSize
	}

	provider, err := e.providers.FindByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	client, err := e.client(provider)
	if err != nil {
		return nil, err
	}

	pending, err := e.executions.FindMissingAIMetrics(ctx, provider.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	result := &BackfillResult{Errors: []string{}}
	for _, row := range pending {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		remote, err := client.GetExecution(ctx, row.ProviderExecutionID, true)
		if err != nil {
			if n8n.IsFatal(err) {
				return result, err
			}
			result.Errors = append(result.Errors, fmt.Sprintf("execution %s: %v", row.ProviderExecutionID, err))
			continue
		}

		m := aimetrics.Extract(remote.Data)
		applyMetrics(&row, m)
		fields := map[string]interface{}{
			"ai_total_tokens":  row.AITotalTokens,
			"ai_input_tokens":  row.AIInputTokens,
			"ai_output_tokens": row.AIOutputTokens,
			"ai_cost":          row.AICost,
			"ai_provider":      row.AIProvider,
			"ai_model":         row.AIModel,
		}
		if remote.Data != nil {
			fields["raw_data"] = models.JSON(remote.Data)
		}
		if err := e.executions.UpdateFields(ctx, row.ID, fields); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("execution %s: %v", row.ProviderExecutionID, err))
			continue
		}

		result.Checked++
		if m.Found {
			result.Filled++
			metrics.RecordAIUsage(m.Provider, m.InputTokens, m.OutputTokens, m.Cost)
		}
	}

	l := logger.WithSync(provider.ID.String(), "ai_backfill")
	l.Info().
		Int("checked", result.Checked).
		Int("filled", result.Filled).
		Int("errors", len(result.Errors)).
		Msg("AI metrics backfill finished")
	return result, nil
}
