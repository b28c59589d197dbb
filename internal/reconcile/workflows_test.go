package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/domain/repositories"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/linkflow-ai/flowmirror/internal/n8n"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 9, 30, 0, 123_000_000, time.UTC)

func TestSyncWorkflows_CreatesThenSkips(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(
		remoteWorkflow("1", "Orders", base, "a", "b"),
		remoteWorkflow("2", "Invoices", base, "c"),
	)

	first, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Synced)
	assert.Equal(t, 2, first.Created)
	assert.Empty(t, first.Errors)

	wf := h.workflow(t, "1")
	assert.Equal(t, "Orders", wf.Name)
	assert.Equal(t, 2, wf.NodeCount)
	assert.Equal(t, 1, wf.Version)
	assert.Equal(t, models.LifecycleActive, wf.LifecycleStatus)
	assert.True(t, wf.UpdatedAt.Equal(base))
	require.Len(t, h.versions(t, wf), 1)

	second, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 2, second.Skipped)

	again := h.workflow(t, "1")
	assert.Equal(t, 1, again.Version)
	assert.Len(t, h.versions(t, again), 1)
	require.NotNil(t, again.LastSeenInN8N)
}

func TestSyncWorkflows_ContentChangeBumpsVersion(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(remoteWorkflow("1", "Orders", base, "a"))
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)

	// W1: an added node under a new timestamp is a new version
	h.client().setWorkflows(remoteWorkflow("1", "Orders", base.Add(time.Minute), "a", "b"))
	result, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	wf := h.workflow(t, "1")
	assert.Equal(t, 2, wf.Version)
	assert.Equal(t, 2, wf.NodeCount)

	versions := h.versions(t, wf)
	require.Len(t, versions, 2)
	latest := versions[0]
	if latest.Version != 2 {
		latest = versions[1]
	}
	assert.Equal(t, 2, latest.Version)
	require.NotNil(t, latest.ChangeNote)
	assert.Contains(t, *latest.ChangeNote, "nodes +1")

	// a rename alone is an update without a new version
	h.client().setWorkflows(remoteWorkflow("1", "Orders v2", base.Add(2*time.Minute), "a", "b"))
	result, err = h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	wf = h.workflow(t, "1")
	assert.Equal(t, "Orders v2", wf.Name)
	assert.Equal(t, 2, wf.Version)
	assert.Len(t, h.versions(t, wf), 2)
}

func TestSyncWorkflows_ArchivesMissing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(
		remoteWorkflow("1", "kept", base, "a"),
		remoteWorkflow("2", "backed up", base, "a"),
		remoteWorkflow("3", "plain", base, "a"),
	)
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	require.NoError(t, h.engine.workflows.UpdateFields(ctx, h.workflow(t, "2").ID, map[string]interface{}{"backup_enabled": true}))

	h.client().setWorkflows(remoteWorkflow("1", "kept", base, "a"))
	result, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Archived)

	backedUp := h.workflow(t, "2")
	assert.Equal(t, models.LifecycleDeletedFromN8N, backedUp.LifecycleStatus)
	require.NotNil(t, backedUp.ArchivedReason)
	assert.Equal(t, ReasonVanished, *backedUp.ArchivedReason)
	assert.NotNil(t, backedUp.WorkflowData)

	plain := h.workflow(t, "3")
	assert.Equal(t, models.LifecycleArchived, plain.LifecycleStatus)
	assert.NotNil(t, plain.ArchivedAt)

	assert.Equal(t, models.LifecycleActive, h.workflow(t, "1").LifecycleStatus)

	// reappearing with the same timestamp restores it
	h.client().setWorkflows(
		remoteWorkflow("1", "kept", base, "a"),
		remoteWorkflow("3", "plain", base, "a"),
	)
	result, err = h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Skipped)

	plain = h.workflow(t, "3")
	assert.Equal(t, models.LifecycleActive, plain.LifecycleStatus)
	assert.Nil(t, plain.ArchivedReason)
	assert.Nil(t, plain.ArchivedAt)
}

func TestSyncWorkflows_ReappearingAfterBackupDeleteRefillsContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(remoteWorkflow("1", "kept", base, "a"), remoteWorkflow("2", "backed up", base, "a", "b"))
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	require.NoError(t, h.engine.workflows.UpdateFields(ctx, h.workflow(t, "2").ID, map[string]interface{}{"backup_enabled": true}))

	h.client().setWorkflows(remoteWorkflow("1", "kept", base, "a"))
	_, err = h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	require.Equal(t, models.LifecycleDeletedFromN8N, h.workflow(t, "2").LifecycleStatus)

	workflows := services.NewWorkflowService(repositories.NewWorkflowRepository(h.db), h.store, "snapshots")
	_, _, err = workflows.DeleteWorkflowBackup(ctx, h.workflow(t, "2").ID)
	require.NoError(t, err)
	require.Nil(t, h.workflow(t, "2").WorkflowData)

	h.client().setWorkflows(remoteWorkflow("1", "kept", base, "a"), remoteWorkflow("2", "backed up", base, "a", "b"))
	result, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	wf := h.workflow(t, "2")
	assert.Equal(t, models.LifecycleActive, wf.LifecycleStatus)
	assert.NotNil(t, wf.WorkflowData)
	assert.Equal(t, 2, wf.NodeCount)
	assert.Equal(t, 1, wf.Version)
	assert.Len(t, h.versions(t, wf), 1)
}

func TestSyncWorkflows_ManualArchiveSurvivesUnchangedSync(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(remoteWorkflow("1", "one", base, "a"))
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)

	wf := h.workflow(t, "1")
	require.NoError(t, h.engine.workflows.Archive(ctx, wf.ID, models.LifecycleArchived, "retired by operator", time.Now()))

	_, err = h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleArchived, h.workflow(t, "1").LifecycleStatus)

	// a real upstream change brings it back
	h.client().setWorkflows(remoteWorkflow("1", "one", base.Add(time.Second), "a"))
	_, err = h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)
	assert.Equal(t, models.LifecycleActive, h.workflow(t, "1").LifecycleStatus)
}

func TestSyncWorkflows_ItemErrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, DefaultOptions())
	h.client().setWorkflows(
		remoteWorkflow("1", "one", base, "a"),
		remoteWorkflow("2", "two", base, "a"),
	)
	_, err := h.engine.SyncWorkflows(ctx, h.provider)
	require.NoError(t, err)

	t.Run("unreadable item still counts as present", func(t *testing.T) {
		h.client().setWorkflows(
			remoteWorkflow("1", "one", base, "a"),
			n8n.Workflow{ID: "2", Err: errors.New("malformed workflow payload")},
		)
		result, err := h.engine.SyncWorkflows(ctx, h.provider)
		require.NoError(t, err)
		assert.Len(t, result.Errors, 1)
		assert.Equal(t, 0, result.Archived)
		assert.Equal(t, models.LifecycleActive, h.workflow(t, "2").LifecycleStatus)
	})

	t.Run("item without id disables archival", func(t *testing.T) {
		h.client().setWorkflows(n8n.Workflow{Err: errors.New("malformed workflow payload")})
		result, err := h.engine.SyncWorkflows(ctx, h.provider)
		require.NoError(t, err)
		assert.Equal(t, 0, result.Archived)
		assert.Len(t, result.Errors, 2)
		assert.Equal(t, models.LifecycleActive, h.workflow(t, "1").LifecycleStatus)
	})
}
