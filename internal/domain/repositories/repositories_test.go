package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/pkg/database/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedProvider(t *testing.T, db *gorm.DB) *models.Provider {
	t.Helper()
	p := &models.Provider{
		Name:            "primary",
		BaseURL:         "https://n8n.example.com",
		APIKeyEncrypted: "x",
		IsConnected:     true,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func TestWorkflowRepository_CreateIfAbsent(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repositories.NewWorkflowRepository(db)
	provider := seedProvider(t, db)

	first := &models.Workflow{ProviderID: provider.ID, ProviderWorkflowID: "42", Name: "one"}
	created, err := repo.CreateIfAbsent(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &models.Workflow{ProviderID: provider.ID, ProviderWorkflowID: "42", Name: "two"}
	created, err = repo.CreateIfAbsent(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Model(&models.Workflow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	stored, err := repo.FindByProviderWorkflowID(ctx, provider.ID, "42")
	require.NoError(t, err)
	assert.Equal(t, "one", stored.Name)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, models.LifecycleActive, stored.LifecycleStatus)
}

func TestWorkflowRepository_FindActiveMissing(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	repo := repositories.NewWorkflowRepository(db)
	provider := seedProvider(t, db)

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, repo.Create(ctx, &models.Workflow{ProviderID: provider.ID, ProviderWorkflowID: id, Name: id}))
	}
	archived := &models.Workflow{ProviderID: provider.ID, ProviderWorkflowID: "4", Name: "4", LifecycleStatus: models.LifecycleArchived}
	require.NoError(t, repo.Create(ctx, archived))

	t.Run("excludes seen ids", func(t *testing.T) {
		missing, err := repo.FindActiveMissing(ctx, provider.ID, []string{"1", "3"})
		require.NoError(t, err)
		require.Len(t, missing, 1)
		assert.Equal(t, "2", missing[0].ProviderWorkflowID)
	})

	t.Run("empty remote list returns every active row", func(t *testing.T) {
		missing, err := repo.FindActiveMissing(ctx, provider.ID, nil)
		require.NoError(t, err)
		assert.Len(t, missing, 3)
	})
}

func TestExecutionRepository_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	workflows := repositories.NewWorkflowRepository(db)
	executions := repositories.NewExecutionRepository(db)

	wf := &models.Workflow{ProviderID: provider.ID, ProviderWorkflowID: "7", Name: "wf"}
	require.NoError(t, workflows.Create(ctx, wf))

	started := time.Now().Add(-time.Minute).UTC()
	tokens := 10
	running := &models.Execution{
		ProviderID:          provider.ID,
		WorkflowID:          wf.ID,
		ProviderExecutionID: "100",
		ProviderWorkflowID:  "7",
		Status:              models.ExecutionStatusRunning,
		Mode:                models.ExecutionModeTrigger,
		StartedAt:           &started,
		AITotalTokens:       &tokens,
	}
	require.NoError(t, executions.Upsert(ctx, running, true))

	stopped := started.Add(30 * time.Second)
	duration := int64(30000)
	done := &models.Execution{
		ProviderID:          provider.ID,
		WorkflowID:          wf.ID,
		ProviderExecutionID: "100",
		ProviderWorkflowID:  "7",
		Status:              models.ExecutionStatusSuccess,
		Mode:                models.ExecutionModeTrigger,
		StartedAt:           &started,
		StoppedAt:           &stopped,
		DurationMs:          &duration,
		Finished:            true,
	}
	require.NoError(t, executions.Upsert(ctx, done, false))

	var all []models.Execution
	require.NoError(t, db.Find(&all).Error)
	require.Len(t, all, 1)
	assert.Equal(t, models.ExecutionStatusSuccess, all[0].Status)
	require.NotNil(t, all[0].DurationMs)
	assert.Equal(t, int64(30000), *all[0].DurationMs)
	assert.True(t, all[0].Finished)
	// metrics survive a page fetched without data
	require.NotNil(t, all[0].AITotalTokens)
	assert.Equal(t, 10, *all[0].AITotalTokens)

	existing, err := executions.ExistingRemoteIDs(ctx, provider.ID, []string{"100", "101"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"100": true}, existing)
}

func TestSyncLogRepository_CompletesOnce(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	repo := repositories.NewSyncLogRepository(db)

	entry, err := repo.Start(ctx, provider.ID, models.SyncTypeExecutions, nil)
	require.NoError(t, err)

	cursor := "page-2"
	require.NoError(t, repo.SaveCursor(ctx, entry.ID, &cursor, 100))

	require.NoError(t, repo.Complete(ctx, entry.ID, models.SyncStatusSuccess, models.SyncCounts{Processed: 100, Inserted: 90, Updated: 10}, ""))

	err = repo.Complete(ctx, entry.ID, models.SyncStatusError, models.SyncCounts{}, "late")
	assert.ErrorIs(t, err, repositories.ErrSyncLogClosed)

	err = repo.SaveCursor(ctx, entry.ID, nil, 0)
	assert.ErrorIs(t, err, repositories.ErrSyncLogClosed)

	latest, err := repo.Latest(ctx, provider.ID, models.SyncTypeExecutions)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusSuccess, latest.Status)
	assert.Equal(t, 90, latest.RecordsInserted)
	require.NotNil(t, latest.Cursor)
	assert.Equal(t, "page-2", *latest.Cursor)
	assert.Nil(t, latest.ErrorMessage)
}

func TestSyncLogRepository_FailRunning(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	repo := repositories.NewSyncLogRepository(db)

	_, err := repo.Start(ctx, provider.ID, models.SyncTypeWorkflows, nil)
	require.NoError(t, err)

	n, err := repo.FailRunning(ctx, "interrupted")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	latest, err := repo.Latest(ctx, provider.ID, models.SyncTypeWorkflows)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, latest.Status)
	require.NotNil(t, latest.ErrorMessage)
	assert.Equal(t, "interrupted", *latest.ErrorMessage)
}

func TestProviderRepository_UpdateHealth(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	repo := repositories.NewProviderRepository(db)

	require.NoError(t, repo.UpdateHealth(ctx, provider.ID, true, models.HealthError, "401 unauthorized"))

	syncable, err := repo.FindSyncable(ctx)
	require.NoError(t, err)
	assert.Empty(t, syncable)

	stored, err := repo.FindByID(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, "401 unauthorized", stored.Metadata["last_error"])
	assert.NotNil(t, stored.LastCheckedAt)

	require.NoError(t, repo.UpdateHealth(ctx, provider.ID, true, models.HealthHealthy, ""))
	syncable, err = repo.FindSyncable(ctx)
	require.NoError(t, err)
	assert.Len(t, syncable, 1)
	_, hasErr := syncable[0].Metadata["last_error"]
	assert.False(t, hasErr)
}
