package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"gorm.io/gorm"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

const ReasonManual = "archived by operator"

type WorkflowService struct {
	workflowRepo *repositories.WorkflowRepository
	backups      backup.Store
	backupRoot   string
	now          func() time.Time
}

func NewWorkflowService(workflowRepo *repositories.WorkflowRepository, backups backup.Store, backupRoot string) *WorkflowService {
	if workflowRepo == nil {
		panic("workflow service: workflowRepo is required")
	}
	if backups == nil {
		backups = backup.NoopStore{}
	}
	return &WorkflowService{
		workflowRepo: workflowRepo,
		backups:      backups,
		backupRoot:   backupRoot,
		now:          time.Now,
	}
}

func (s *WorkflowService) GetByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	workflow, err := s.workflowRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, err
	}
	return workflow, nil
}

func (s *WorkflowService) List(ctx context.Context, filter repositories.WorkflowFilter, opts *repositories.ListOptions) ([]models.Workflow, int64, error) {
	return s.workflowRepo.List(ctx, filter, opts)
}

// ArchiveWorkflow archives a mirrored workflow by hand. The next sync only
// restores it if the remote definition changes.
func (s *WorkflowService) ArchiveWorkflow(ctx context.Context, id uuid.UUID, reason string) (*models.Workflow, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonManual
	}

	workflow, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.workflowRepo.Archive(ctx, id, models.LifecycleArchived, reason, now); err != nil {
		return nil, fmt.Errorf("failed to archive workflow: %w", err)
	}

	workflow.LifecycleStatus = models.LifecycleArchived
	workflow.ArchivedAt = &now
	workflow.ArchivedReason = &reason

	l := logger.WithWorkflowID(workflow.ProviderWorkflowID)
	l.Info().
		Str("provider_id", workflow.ProviderID.String()).
		Str("reason", reason).
		Msg("Workflow archived")
	return workflow, nil
}

func (s *WorkflowService) ToggleWorkflowBackup(ctx context.Context, id uuid.UUID, enabled bool) (*models.Workflow, error) {
	workflow, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.workflowRepo.UpdateFields(ctx, id, map[string]interface{}{"backup_enabled": enabled}); err != nil {
		return nil, fmt.Errorf("failed to update backup flag: %w", err)
	}
	workflow.BackupEnabled = enabled
	return workflow, nil
}

// DeleteWorkflowBackup removes every stored snapshot and turns backups
// off. A workflow kept only because it was backed up loses its retained
// content and becomes a plain archived row.
func (s *WorkflowService) DeleteWorkflowBackup(ctx context.Context, id uuid.UUID) (*models.Workflow, int, error) {
	workflow, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}

	prefix := backup.WorkflowPrefix(s.backupRoot, workflow.ProviderID.String(), workflow.ProviderWorkflowID)
	removed, err := s.backups.DeletePrefix(ctx, prefix)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}

	fields := map[string]interface{}{
		"backup_enabled": false,
		"last_backup_at": nil,
	}
	if workflow.LifecycleStatus == models.LifecycleDeletedFromN8N {
		fields["lifecycle_status"] = models.LifecycleArchived
		fields["workflow_data"] = nil
		fields["node_count"] = 0
	}
	if err := s.workflowRepo.UpdateFields(ctx, id, fields); err != nil {
		return nil, removed, fmt.Errorf("failed to clear backup state: %w", err)
	}

	workflow.BackupEnabled = false
	workflow.LastBackupAt = nil
	if workflow.LifecycleStatus == models.LifecycleDeletedFromN8N {
		workflow.LifecycleStatus = models.LifecycleArchived
		workflow.WorkflowData = nil
		workflow.NodeCount = 0
	}

	l := logger.WithWorkflowID(workflow.ProviderWorkflowID)
	l.Info().
		Int("snapshots_removed", removed).
		Str("store", s.backups.Name()).
		Msg("Workflow backup deleted")
	return workflow, removed, nil
}

// LifecycleCounts reports how many workflows of a provider sit in each
// lifecycle state.
func (s *WorkflowService) LifecycleCounts(ctx context.Context, providerID uuid.UUID) (map[string]int64, error) {
	return s.workflowRepo.CountByLifecycle(ctx, providerID)
}
