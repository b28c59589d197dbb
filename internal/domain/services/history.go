package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"gorm.io/gorm"
)

var (
	ErrExecutionNotFound = errors.New("execution not found")
	ErrSyncLogNotFound   = errors.New("sync log not found")
)

type ExecutionService struct {
	executionRepo *repositories.ExecutionRepository
}

func NewExecutionService(executionRepo *repositories.ExecutionRepository) *ExecutionService {
	return &ExecutionService{executionRepo: executionRepo}
}

func (s *ExecutionService) List(ctx context.Context, filter repositories.ExecutionFilter, opts *repositories.ListOptions) ([]models.Execution, int64, error) {
	return s.executionRepo.List(ctx, filter, opts)
}

func (s *ExecutionService) GetByID(ctx context.Context, id uuid.UUID) (*models.Execution, error) {
	execution, err := s.executionRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return execution, nil
}

type SyncLogService struct {
	syncLogRepo *repositories.SyncLogRepository
}

func NewSyncLogService(syncLogRepo *repositories.SyncLogRepository) *SyncLogService {
	return &SyncLogService{syncLogRepo: syncLogRepo}
}

func (s *SyncLogService) List(ctx context.Context, providerID *uuid.UUID, syncType string, opts *repositories.ListOptions) ([]models.SyncLog, int64, error) {
	return s.syncLogRepo.List(ctx, providerID, syncType, opts)
}

func (s *SyncLogService) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncLog, error) {
	entry, err := s.syncLogRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSyncLogNotFound
		}
		return nil, err
	}
	return entry, nil
}

// Latest returns the newest log of each sync type for a provider. Types
// that never ran are absent from the map.
func (s *SyncLogService) Latest(ctx context.Context, providerID uuid.UUID) (map[string]*models.SyncLog, error) {
	out := make(map[string]*models.SyncLog)
	for _, syncType := range []string{
		models.SyncTypeWorkflows,
		models.SyncTypeExecutions,
		models.SyncTypeBackups,
		models.SyncTypeFull,
	} {
		entry, err := s.syncLogRepo.Latest(ctx, providerID, syncType)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[syncType] = entry
	}
	return out, nil
}
