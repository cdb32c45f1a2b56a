package commands

import (
	"fmt"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/database"
	"github.com/spf13/cobra"
)

// NewCatalogCmd creates the catalog command with import and list subcommands
func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage destination catalogs",
	}
	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogListCmd())
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a destination catalog from YAML",
		Long:  "Load a destination with its activities, weather and templates. Re-importing a destination replaces its catalog.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}

			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			id, err := database.NewDestinationRepository(db).ImportCatalog(cmd.Context(), bundle.Import(nil))
			if err != nil {
				return err
			}
			fmt.Printf("Imported %s (%s): %d activities, %d templates\n",
				bundle.Destination.Name, id, len(bundle.Activities), len(bundle.Templates))
			return nil
		},
	}
}

func newCatalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			destinations, err := database.NewDestinationRepository(db).ListDestinations(cmd.Context())
			if err != nil {
				return err
			}
			if len(destinations) == 0 {
				fmt.Println("No destinations")
				return nil
			}
			for _, d := range destinations {
				fmt.Printf("  %s  %s, %s\n", d.ID, d.Name, d.Country)
			}
			return nil
		},
	}
}
