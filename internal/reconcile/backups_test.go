package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/linkflow-ai/flowmirror/internal/pkg/backup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enableBackup(t *testing.T, h *harness, remoteID string) *models.Workflow {
	t.Helper()
	wf := h.workflow(t, remoteID)
	require.NoError(t, h.engine.workflows.UpdateFields(context.Background(), wf.ID, map[string]interface{}{"backup_enabled": true}))
	return wf
}

func TestSyncBackups_StoresEachVersionOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	c := h.client()
	c.setWorkflows(
		remoteWorkflow("1", "backed up", base, "a"),
		remoteWorkflow("2", "not backed up", base, "a"),
	)
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	enableBackup(t, h, "1")

	result, err := h.engine.SyncBackups(ctx, h.provider, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Stored)
	assert.Empty(t, result.Errors)

	key := backup.SnapshotKey("workflows", h.provider.ID.String(), "1", 1)
	body, ok := h.store.Get(key)
	require.True(t, ok, "missing %s in %v", key, h.store.Keys())

	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &snapshot))
	assert.Equal(t, "backed up", snapshot["name"])

	wf := h.workflow(t, "1")
	assert.NotNil(t, wf.LastBackupAt)
	assert.Nil(t, h.workflow(t, "2").LastBackupAt)

	again, err := h.engine.SyncBackups(ctx, h.provider, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Stored)

	// a content change upstream yields a second snapshot
	c.setWorkflows(
		remoteWorkflow("1", "backed up", base.Add(time.Minute), "a", "b"),
		remoteWorkflow("2", "not backed up", base, "a"),
	)
	changed, err := h.engine.SyncBackups(ctx, h.provider, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, changed.Updated)
	assert.Equal(t, 1, changed.Stored)
	assert.Len(t, h.store.Keys(), 2)
	assert.Equal(t, 2, h.workflow(t, "1").Version)
}

func TestSyncBackups_NoStoreRefreshesOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.engine.backups = backup.NoopStore{}
	h.client().setWorkflows(remoteWorkflow("1", "backed up", base, "a"))
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	enableBackup(t, h, "1")

	h.client().setWorkflows(remoteWorkflow("1", "backed up", base.Add(time.Minute), "a", "b"))
	result, err := h.engine.SyncBackups(ctx, h.provider, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Updated)
	assert.Zero(t, result.Stored)

	wf := h.workflow(t, "1")
	assert.Nil(t, wf.LastBackupAt)
	assert.Equal(t, 2, wf.NodeCount)
}

func TestSyncBackups_PagesThroughCandidates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	var remote []n8n.Workflow
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		remote = append(remote, remoteWorkflow(id, id, base, "n"))
	}
	h.client().setWorkflows(remote...)
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	for _, wf := range remote {
		enableBackup(t, h, wf.ID.String())
	}

	result, err := h.engine.SyncBackups(ctx, h.provider, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, result.Synced)
	assert.Equal(t, 5, result.Stored)
}

func TestSyncBackups_ArchivesVanishedWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	c := h.client()
	c.setWorkflows(
		remoteWorkflow("1", "gone", base, "a"),
		remoteWorkflow("2", "flaky", base, "a"),
	)
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	enableBackup(t, h, "1")
	enableBackup(t, h, "2")

	c.getErr["1"] = &n8n.APIError{StatusCode: http.StatusNotFound}
	c.getErr["2"] = &n8n.APIError{StatusCode: http.StatusServiceUnavailable}

	result, err := h.engine.SyncBackups(ctx, h.provider, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Archived)
	assert.Len(t, result.Errors, 1)

	gone := h.workflow(t, "1")
	assert.Equal(t, models.LifecycleDeletedFromN8N, gone.LifecycleStatus)
	require.NotNil(t, gone.ArchivedReason)
	assert.Equal(t, ReasonVanished, *gone.ArchivedReason)

	assert.Equal(t, models.LifecycleActive, h.workflow(t, "2").LifecycleStatus)
}

func TestSyncBackups_AuthErrorTerminates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	c := h.client()
	c.setWorkflows(remoteWorkflow("1", "one", base, "a"))
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	enableBackup(t, h, "1")

	c.getErr["1"] = &n8n.APIError{StatusCode: http.StatusUnauthorized}
	_, err = h.engine.SyncBackups(ctx, h.provider, 0)
	require.Error(t, err)
	assert.True(t, n8n.IsAuthError(err))

	entry, err := h.engine.syncLogs.Latest(ctx, h.provider.ID, models.SyncTypeBackups)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, entry.Status)
}
