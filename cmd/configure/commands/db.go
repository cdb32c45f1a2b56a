// Package commands implements the subcommands of the configure tool.
package commands

import (
	"fmt"
	"os"

	"github.com/benvon/family-planner/internal/config"
	"github.com/benvon/family-planner/internal/database"
)

// openDatabase loads configuration and connects; the returned func closes the connection
func openDatabase() (*database.DB, *config.Config, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, cfg, func() {
		if err := db.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
	}, nil
}
