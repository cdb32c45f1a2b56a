package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long:  "Create missing tables and indexes. Safe to run repeatedly.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Schema is up to date.")
			return nil
		},
	}
}
