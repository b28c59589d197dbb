package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/linkflow-ai/flowmirror/internal/pkg/config"
	"github.com/linkflow-ai/flowmirror/internal/pkg/logger"
	"github.com/spf13/cobra"
)

// cli holds state shared by every subcommand.
type cli struct {
	configFile string
	verbose    bool
	out        io.Writer
	cfg        *config.Config
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:          "flowmirror",
		Short:        "Mirror and reconcile n8n workflows and executions",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFrom(c.configFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			// stdout carries command output
			logger.InitWithWriter(os.Stderr, cfg.App.Environment, cfg.App.Debug || c.verbose)
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&c.configFile, "config", "", "Path to configuration file (default: ./configs/config.yaml)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.newSyncCommand(),
		c.newBackfillCommand(),
		c.newProviderCommand(),
		c.newWorkflowCommand(),
		c.newMigrateCommand(),
		c.newTokenCommand(),
	)
	return root
}

// open wires the application without Redis; commands never elect a leader.
func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, app.Options{Migrate: true, SkipRedis: true})
}

func (c *cli) print(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
