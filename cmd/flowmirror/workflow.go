package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/spf13/cobra"
)

func (c *cli) newWorkflowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Administer mirrored workflows",
	}

	backup := &cobra.Command{
		Use:   "backup",
		Short: "Control content snapshots of a workflow",
	}
	backup.AddCommand(
		c.workflowAction("enable <workflow-id>", "Enable snapshots", func(ctx context.Context, a *app.App, id uuid.UUID) (interface{}, error) {
			wf, err := a.Services.Workflow.ToggleWorkflowBackup(ctx, id, true)
			if err != nil {
				return nil, err
			}
			return dto.NewWorkflowResponse(wf, false), nil
		}),
		c.workflowAction("disable <workflow-id>", "Disable snapshots", func(ctx context.Context, a *app.App, id uuid.UUID) (interface{}, error) {
			wf, err := a.Services.Workflow.ToggleWorkflowBackup(ctx, id, false)
			if err != nil {
				return nil, err
			}
			return dto.NewWorkflowResponse(wf, false), nil
		}),
		c.workflowAction("delete <workflow-id>", "Remove stored snapshots and disable backup", func(ctx context.Context, a *app.App, id uuid.UUID) (interface{}, error) {
			wf, removed, err := a.Services.Workflow.DeleteWorkflowBackup(ctx, id)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{
				"workflow":          dto.NewWorkflowResponse(wf, false),
				"snapshots_removed": removed,
			}, nil
		}),
	)

	var reason string
	archive := c.workflowAction("archive <workflow-id>", "Archive a workflow", func(ctx context.Context, a *app.App, id uuid.UUID) (interface{}, error) {
		wf, err := a.Services.Workflow.ArchiveWorkflow(ctx, id, reason)
		if err != nil {
			return nil, err
		}
		return dto.NewWorkflowResponse(wf, false), nil
	})
	archive.Flags().StringVar(&reason, "reason", "", "Why the workflow is archived")

	cmd.AddCommand(archive, backup)
	return cmd
}

type workflowFunc func(ctx context.Context, a *app.App, id uuid.UUID) (interface{}, error)

// workflowAction builds a command that takes one workflow id.
func (c *cli) workflowAction(use, short string, fn workflowFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid workflow id %q", args[0])
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := fn(cmd.Context(), a, id)
			if err != nil {
				return err
			}
			return c.print(out)
		},
	}
}
