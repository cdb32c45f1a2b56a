package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/config"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/benvon/family-planner/internal/validation"
	"github.com/benvon/family-planner/internal/workers"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// enqueue publishes one job and closes the connection
func enqueue(ctx context.Context, job *queue.Job) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	q, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL, zap.NewNop())
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()
	return q.Enqueue(ctx, job)
}

// NewGenerateCmd creates the generate command
func NewGenerateCmd() *cobra.Command {
	var req ai.GenerateRequest

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Queue AI generation of a destination catalog",
		Long:  "Publish a generation job for the worker. The generated catalog is stored once the job completes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req = req.Normalize()
			if err := validation.Validate.Struct(req); err != nil {
				return fmt.Errorf("invalid destination: %s", validation.FieldErrors(err))
			}
			job, err := workers.NewGenerateJob(uuid.Nil, req)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := enqueue(ctx, job); err != nil {
				return err
			}
			fmt.Printf("Queued generation of %s (job %s)\n", req.Name, job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Destination name (required)")
	cmd.Flags().StringVar(&req.Country, "country", "", "Country (required)")
	cmd.Flags().StringVar(&req.Region, "region", "", "Region")
	cmd.Flags().Float64Var(&req.Lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&req.Lng, "lng", 0, "Longitude")
	return cmd
}

// NewEnrichCmd creates the enrich command
func NewEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <destination-id>",
		Short: "Queue place enrichment of a destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid destination id: %w", err)
			}

			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			bundle, err := catalog.NewService(database.NewDestinationRepository(db), nil, zap.NewNop()).Bundle(ctx, id)
			if err != nil {
				return err
			}
			job := workers.NewEnrichJob(uuid.Nil, id)
			if err := enqueue(ctx, job); err != nil {
				return err
			}
			fmt.Printf("Queued enrichment of %s (job %s)\n", bundle.Destination.Name, job.ID)
			return nil
		},
	}
}
