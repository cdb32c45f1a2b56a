package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	app := &app{}
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Plan a family trip from the command line",
		Long: "Single-user planner over a YAML destination catalog. State is kept in a local " +
			"SQLite file (PLANNER_STATE); the catalog is read from PLANNER_CATALOG.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVar(&app.catalogPath, "catalog", "", "Catalog YAML file (overrides PLANNER_CATALOG)")
	rootCmd.PersistentFlags().StringVar(&app.statePath, "state", "", "State database (overrides PLANNER_STATE)")

	rootCmd.AddCommand(
		newActivitiesCmd(app),
		newStatusCmd(app),
		newToggleCmd(app),
		newStatsCmd(app),
		newNoteCmd(app),
		newDaysCmd(app),
		newDayCmd(app),
		newTravelCmd(app),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
