package services

import (
	"context"
	"fmt"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// RetentionResult counts rows removed by one cleanup pass.
type RetentionResult struct {
	Executions int64 `json:"executions"`
	SyncLogs   int64 `json:"sync_logs"`
}

type RetentionService struct {
	executionRepo *repositories.ExecutionRepository
	syncLogRepo   *repositories.SyncLogRepository
	now           func() time.Time
}

func NewRetentionService(executionRepo *repositories.ExecutionRepository, syncLogRepo *repositories.SyncLogRepository) *RetentionService {
	return &RetentionService{
		executionRepo: executionRepo,
		syncLogRepo:   syncLogRepo,
		now:           time.Now,
	}
}

// Cleanup removes finished executions and completed sync logs older than
// the given number of days. A non-positive day count keeps that table.
// Workflows and their versions are never pruned.
func (s *RetentionService) Cleanup(ctx context.Context, executionDays, syncLogDays int) (*RetentionResult, error) {
	result := &RetentionResult{}
	now := s.now()

	if executionDays > 0 {
		n, err := s.executionRepo.DeleteFinishedBefore(ctx, now.AddDate(0, 0, -executionDays))
		if err != nil {
			return result, fmt.Errorf("failed to prune executions: %w", err)
		}
		result.Executions = n
		metrics.RecordRetention("executions", n)
	}

	if syncLogDays > 0 {
		n, err := s.syncLogRepo.DeleteCompletedBefore(ctx, now.AddDate(0, 0, -syncLogDays))
		if err != nil {
			return result, fmt.Errorf("failed to prune sync logs: %w", err)
		}
		result.SyncLogs = n
		metrics.RecordRetention("sync_logs", n)
	}

	log.Info().
		Int64("executions", result.Executions).
		Int64("sync_logs", result.SyncLogs).
		Msg("Retention cleanup finished")
	return result, nil
}
