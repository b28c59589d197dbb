package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/domain/models"
	"github.com/linkflow-ai/flowmirror/internal/pkg/validator"
	"github.com/linkflow-ai/flowmirror/internal/reconcile"
	"github.com/spf13/cobra"
)

func (c *cli) newSyncCommand() *cobra.Command {
	var (
		opts       reconcile.SyncOptions
		providerID string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync against every healthy provider, or a single provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validator.Validate(opts); err != nil {
				return fmt.Errorf("invalid sync options: %w", err)
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if providerID != "" {
				id, err := uuid.Parse(providerID)
				if err != nil {
					return fmt.Errorf("invalid provider id %q", providerID)
				}
				result, err := a.Engine.SyncProviderByID(cmd.Context(), id, opts)
				if err != nil {
					return err
				}
				if err := c.print(result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("sync failed: %s", result.Error)
				}
				return nil
			}

			summary, err := a.Engine.SyncAllProviders(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := c.print(summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d providers failed", summary.Failed, summary.Providers)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.SyncType, "type", "t", models.SyncTypeFull, "Sync type: executions, workflows, backups or full")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "Page size for remote listings (default from config)")
	cmd.Flags().StringVar(&providerID, "provider", "", "Only sync this provider, whatever its health")
	return cmd
}

func (c *cli) newBackfillCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ai-backfill <provider-id>",
		Short: "Fill AI usage metrics for stored executions that lack them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid provider id %q", args[0])
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Engine.BackfillAIMetrics(cmd.Context(), id, limit)
			if err != nil {
				return err
			}
			return c.print(result)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum executions to examine")
	return cmd
}
