package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/benvon/family-planner/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "family-planner-configure",
		Short:        "Operator tool for the Family Planner API",
		Long:         "Configure OIDC, CORS and rate limits, run migrations, and manage destination catalogs",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		commands.NewOIDCCmd(),
		commands.NewListCmd(),
		commands.NewTestCmd(),
		commands.NewCorsCmd(),
		commands.NewRatelimitCmd(),
		commands.NewMigrateCmd(),
		commands.NewCatalogCmd(),
		commands.NewGenerateCmd(),
		commands.NewEnrichCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
