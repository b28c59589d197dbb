package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/linkflow-ai/flowmirror/internal/api/dto"
	"github.com/linkflow-ai/flowmirror/internal/domain/services"
	"github.com/spf13/cobra"
)

func (c *cli) newProviderCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage remote n8n instances",
	}
	cmd.AddCommand(c.newProviderAddCommand(), c.newProviderTestCommand(), c.newProviderListCommand())
	return cmd
}

func (c *cli) newProviderAddCommand() *cobra.Command {
	var input services.CreateProviderInput

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a provider and test its connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			provider, conn, err := a.Services.Provider.Create(cmd.Context(), input)
			if err != nil {
				return err
			}
			return c.print(map[string]interface{}{
				"provider":   dto.NewProviderResponse(provider),
				"connection": conn,
			})
		},
	}
	cmd.Flags().StringVar(&input.Name, "name", "n8n", "Display name")
	cmd.Flags().StringVar(&input.BaseURL, "base-url", "", "Instance base URL, e.g. https://n8n.example.com")
	cmd.Flags().StringVar(&input.APIKey, "api-key", "", "Public API key")
	_ = cmd.MarkFlagRequired("base-url")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

func (c *cli) newProviderTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "test <provider-id>",
		Short: "Test a provider's connection and record its health",
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

			_, conn, err := a.Services.Provider.TestConnection(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := c.print(conn); err != nil {
				return err
			}
			if !conn.Connected {
				return fmt.Errorf("provider unreachable: %s", conn.Message)
			}
			return nil
		},
	}
}

func (c *cli) newProviderListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List providers with their health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			providers, err := a.Services.Provider.List(cmd.Context())
			if err != nil {
				return err
			}
			out := make([]dto.ProviderResponse, len(providers))
			for i := range providers {
				out[i] = dto.NewProviderResponse(&providers[i])
			}
			return c.print(out)
		},
	}
}
