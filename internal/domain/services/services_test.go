package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
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

func seedWorkflow(t *testing.T, db *gorm.DB, provider *models.Provider, remoteID, lifecycle string) *models.Workflow {
	t.Helper()
	wf := &models.Workflow{
		ProviderID:         provider.ID,
		ProviderWorkflowID: remoteID,
		Name:               "Workflow " + remoteID,
		NodeCount:          2,
		WorkflowData:       models.JSON{"nodes": []interface{}{"a", "b"}},
		LifecycleStatus:    lifecycle,
		BackupEnabled:      true,
		CreatedAt:          time.Now(),
		UpdatedAt:          time.Now(),
	}
	require.NoError(t, db.Create(wf).Error)
	return wf
}

func TestWorkflowService_Archive(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	wf := seedWorkflow(t, db, provider, "1", models.LifecycleActive)

	svc := NewWorkflowService(repositories.NewWorkflowRepository(db), nil, "")
	archived, err := svc.ArchiveWorkflow(ctx, wf.ID, "  ")
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleArchived, archived.LifecycleStatus)

	stored, err := svc.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleArchived, stored.LifecycleStatus)
	require.NotNil(t, stored.ArchivedReason)
	assert.Equal(t, ReasonManual, *stored.ArchivedReason)
	assert.NotNil(t, stored.ArchivedAt)

	_, err = svc.ArchiveWorkflow(ctx, provider.ID, "")
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestWorkflowService_DeleteBackup(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	live := seedWorkflow(t, db, provider, "1", models.LifecycleActive)
	gone := seedWorkflow(t, db, provider, "2", models.LifecycleDeletedFromN8N)

	store := backup.NewMemoryStore()
	for _, wf := range []*models.Workflow{live, gone} {
		for v := 1; v <= 2; v++ {
			key := backup.SnapshotKey("backups", provider.ID.String(), wf.ProviderWorkflowID, v)
			require.NoError(t, store.Put(ctx, key, []byte("{}")))
		}
	}

	svc := NewWorkflowService(repositories.NewWorkflowRepository(db), store, "backups")

	wf, removed, err := svc.DeleteWorkflowBackup(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.False(t, wf.BackupEnabled)
	assert.Equal(t, models.LifecycleActive, wf.LifecycleStatus)
	assert.Len(t, store.Keys(), 2)

	wf, removed, err = svc.DeleteWorkflowBackup(ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Empty(t, store.Keys())

	stored, err := svc.GetByID(ctx, gone.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleArchived, stored.LifecycleStatus)
	assert.False(t, stored.BackupEnabled)
	assert.Nil(t, stored.WorkflowData)
	assert.Zero(t, stored.NodeCount)
	assert.Nil(t, stored.LastBackupAt)
}

func TestWorkflowService_ToggleBackup(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	wf := seedWorkflow(t, db, provider, "1", models.LifecycleActive)

	svc := NewWorkflowService(repositories.NewWorkflowRepository(db), nil, "")
	_, err := svc.ToggleWorkflowBackup(ctx, wf.ID, false)
	require.NoError(t, err)

	stored, err := svc.GetByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.False(t, stored.BackupEnabled)

	counts, err := svc.LifecycleCounts(ctx, provider.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.LifecycleActive])
}

func TestHealthFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		connected bool
		status    string
	}{
		{"ok", nil, true, models.HealthHealthy},
		{"rate limited", &n8n.APIError{StatusCode: http.StatusTooManyRequests}, true, models.HealthWarning},
		{"server error", &n8n.APIError{StatusCode: http.StatusBadGateway}, true, models.HealthWarning},
		{"unauthorized", &n8n.APIError{StatusCode: http.StatusUnauthorized}, false, models.HealthError},
		{"not found", &n8n.APIError{StatusCode: http.StatusNotFound}, false, models.HealthError},
		{"other", assert.AnError, false, models.HealthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connected, status := HealthFromError(tt.err)
			assert.Equal(t, tt.connected, connected)
			assert.Equal(t, tt.status, status)
		})
	}
}

// fakeInstance answers every API call with the configured status code.
func fakeInstance(t *testing.T, status *atomic.Int32, wantKey string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(n8n.APIKeyHeader) != wantKey {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		code := int(status.Load())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"data":[],"nextCursor":null}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProviderService(t *testing.T, db *gorm.DB) *ProviderService {
	t.Helper()
	enc, err := crypto.NewEncryptor("test-secret")
	require.NoError(t, err)
	return NewProviderService(repositories.NewProviderRepository(db), enc, n8n.NewFactory(http.DefaultClient), time.Second)
}

func TestProviderService_CreateAndTest(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newProviderService(t, db)

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := fakeInstance(t, &status, "secret-key")

	provider, result, err := svc.Create(ctx, CreateProviderInput{Name: " Prod ", BaseURL: srv.URL + "/", APIKey: "secret-key"})
	require.NoError(t, err)
	assert.Equal(t, "Prod", provider.Name)
	assert.Equal(t, srv.URL, provider.BaseURL)
	assert.NotEqual(t, "secret-key", provider.APIKeyEncrypted)
	assert.True(t, result.Connected)
	assert.Equal(t, models.HealthHealthy, result.HealthStatus)

	_, _, err = svc.Create(ctx, CreateProviderInput{Name: "again", BaseURL: srv.URL, APIKey: "secret-key"})
	assert.ErrorIs(t, err, ErrProviderExists)

	status.Store(http.StatusServiceUnavailable)
	_, result, err = svc.TestConnection(ctx, provider.ID)
	require.NoError(t, err)
	assert.True(t, result.Connected)
	assert.Equal(t, models.HealthWarning, result.HealthStatus)

	status.Store(http.StatusUnauthorized)
	_, result, err = svc.TestConnection(ctx, provider.ID)
	require.NoError(t, err)
	assert.False(t, result.Connected)
	assert.Equal(t, models.HealthError, result.HealthStatus)
	assert.NotEmpty(t, result.Message)

	stored, err := svc.GetByID(ctx, provider.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsConnected)
	assert.Equal(t, models.HealthError, stored.HealthStatus)

	status.Store(http.StatusOK)
	recovered, err := svc.CheckUnhealthy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
}

func TestProviderService_CreateRejectsInvalidInput(t *testing.T) {
	svc := newProviderService(t, dbtest.Open(t))
	_, _, err := svc.Create(context.Background(), CreateProviderInput{Name: "x", BaseURL: "not a url", APIKey: "k"})
	assert.Error(t, err)
}

func TestProviderService_UnreachableHost(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newProviderService(t, db)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, result, err := svc.Create(ctx, CreateProviderInput{Name: "down", BaseURL: url, APIKey: "k"})
	require.NoError(t, err)
	assert.False(t, result.Connected)
	assert.Equal(t, models.HealthError, result.HealthStatus)
}

func TestProviderService_EnsureDefault(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	svc := newProviderService(t, db)

	provider, err := svc.EnsureDefault(ctx, config.N8NConfig{})
	require.NoError(t, err)
	assert.Nil(t, provider)

	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := fakeInstance(t, &status, "new-key")

	first, err := svc.EnsureDefault(ctx, config.N8NConfig{BaseURL: srv.URL, APIKey: "old-key"})
	require.NoError(t, err)
	assert.Equal(t, "n8n", first.Name)
	assert.Equal(t, models.HealthError, first.HealthStatus)

	second, err := svc.EnsureDefault(ctx, config.N8NConfig{ProviderName: "main", BaseURL: srv.URL, APIKey: "new-key"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "main", second.Name)
	assert.Equal(t, models.HealthHealthy, second.HealthStatus)

	providers, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, providers, 1)
}

func TestRetentionService_Cleanup(t *testing.T) {
	ctx := context.Background()
	db := dbtest.Open(t)
	provider := seedProvider(t, db)
	wf := seedWorkflow(t, db, provider, "1", models.LifecycleActive)

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -40)
	recent := now.AddDate(0, 0, -2)

	for i, stopped := range []*time.Time{&old, &recent, nil} {
		status := models.ExecutionStatusSuccess
		if stopped == nil {
			status = models.ExecutionStatusRunning
		}
		require.NoError(t, db.Create(&models.Execution{
			ProviderID:          provider.ID,
			WorkflowID:          wf.ID,
			ProviderExecutionID: string(rune('a' + i)),
			ProviderWorkflowID:  "1",
			Status:              status,
			StoppedAt:           stopped,
		}).Error)
	}
	require.NoError(t, db.Create(&models.SyncLog{
		ProviderID:  provider.ID,
		SyncType:    models.SyncTypeWorkflows,
		Status:      models.SyncStatusSuccess,
		StartedAt:   old,
		CompletedAt: &old,
	}).Error)
	require.NoError(t, db.Create(&models.SyncLog{
		ProviderID: provider.ID,
		SyncType:   models.SyncTypeWorkflows,
		Status:     models.SyncStatusRunning,
		StartedAt:  old,
	}).Error)

	svc := NewRetentionService(repositories.NewExecutionRepository(db), repositories.NewSyncLogRepository(db))
	svc.now = func() time.Time { return now }

	result, err := svc.Cleanup(ctx, 30, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Executions)
	assert.Equal(t, int64(1), result.SyncLogs)

	var executions, logs int64
	require.NoError(t, db.Model(&models.Execution{}).Count(&executions).Error)
	require.NoError(t, db.Model(&models.SyncLog{}).Count(&logs).Error)
	assert.Equal(t, int64(2), executions)
	assert.Equal(t, int64(1), logs)

	result, err = svc.Cleanup(ctx, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, result.Executions)
}
