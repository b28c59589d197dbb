package main

import (
	"fmt"
	"time"

	"github.com/linkflow-ai/flowmirror/internal/app"
	"github.com/linkflow-ai/flowmirror/internal/pkg/crypto"
	"github.com/spf13/cobra"
)

func (c *cli) newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, app.Options{Migrate: true, SkipRedis: true})
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintf(c.out, "Database migrated (driver=%s)\n", c.cfg.Database.Driver)
			return nil
		},
	}
}

func (c *cli) newTokenCommand() *cobra.Command {
	var subject, scope string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, expiresAt, err := app.NewJWTManager(c.cfg).GenerateToken(subject, scope)
			if err != nil {
				return err
			}
			return c.print(map[string]interface{}{
				"token":      token,
				"expires_at": expiresAt.UTC().Format(time.RFC3339),
			})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().StringVar(&scope, "scope", crypto.ScopeAdmin, "Token scope")
	return cmd
}
