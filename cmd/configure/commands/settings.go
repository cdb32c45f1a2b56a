package commands

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/spf13/cobra"
	"github.com/ulule/limiter/v3"
)

// Both settings are read from the database by running servers on their
// reload interval, so changes apply without a restart.

// NewCorsCmd manages the origins allowed to call the planner API
func NewCorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cors",
		Short: "Manage the origins allowed to call the API",
	}
	cmd.AddCommand(newCorsShowCmd(), newCorsSetCmd())
	return cmd
}

func newCorsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Aliases: []string{"list"},
		Short:   "Show the stored CORS configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			c, err := database.NewSettingsRepository(db).GetCORS(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read CORS settings: %w", err)
			}
			if c == nil {
				fmt.Printf("Nothing stored; servers allow FRONTEND_URL (%s)\n", cfg.FrontendURL)
				return nil
			}
			for _, origin := range database.AllowedOriginsSlice(c.AllowedOrigins) {
				fmt.Printf("origin       %s\n", origin)
			}
			fmt.Printf("credentials  %v\n", c.AllowCredentials)
			fmt.Printf("max-age      %ds\n", c.MaxAge)
			return nil
		},
	}
}

func newCorsSetCmd() *cobra.Command {
	var origins []string
	var allowCreds bool
	var maxAge int
	cmd := &cobra.Command{
		Use:   "set --origin https://planner.example.com [--origin ...]",
		Short: "Replace the allowed origins",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := validOrigins(origins)
			if err != nil {
				return err
			}
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}
			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			c := &models.CorsConfig{
				AllowedOrigins:   strings.Join(list, ","),
				AllowCredentials: allowCreds,
				MaxAge:           maxAge,
			}
			if err := database.NewSettingsRepository(db).SetCORS(cmd.Context(), c); err != nil {
				return fmt.Errorf("failed to store CORS settings: %w", err)
			}
			fmt.Printf("Allowed %d origins\n", len(list))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&origins, "origin", nil, "Allowed origin; repeat or comma-separate (required)")
	cmd.Flags().BoolVar(&allowCreds, "allow-credentials", true, "Allow credentials")
	cmd.Flags().IntVar(&maxAge, "max-age", 86400, "Preflight cache lifetime in seconds")
	_ = cmd.MarkFlagRequired("origin")
	return cmd
}

// validOrigins accepts "*" or scheme://host[:port] origins with no path
func validOrigins(raw []string) ([]string, error) {
	list := database.AllowedOriginsSlice(strings.Join(raw, ","))
	if len(list) == 0 {
		return nil, fmt.Errorf("at least one --origin is required")
	}
	for _, origin := range list {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return nil, fmt.Errorf("invalid origin %q: want scheme://host[:port]", origin)
		}
	}
	return list, nil
}

// NewRatelimitCmd manages the per-caller API rate limit
func NewRatelimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Manage the per-caller rate limit (e.g. 5-S, 100-M)",
	}
	cmd.AddCommand(newRatelimitShowCmd(), newRatelimitSetCmd())
	return cmd
}

func newRatelimitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "show",
		Aliases: []string{"list"},
		Short:   "Show the stored rate limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			c, err := database.NewSettingsRepository(db).GetRateLimit(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read rate limit: %w", err)
			}
			if c == nil {
				fmt.Printf("Nothing stored; servers use RATE_LIMIT_DEFAULT (%s)\n", cfg.DefaultRateLimit)
				return nil
			}
			fmt.Printf("rate  %s\n", c.Rate)
			return nil
		},
	}
}

func newRatelimitSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <rate>",
		Short: "Set the rate limit, e.g. 5-S, 100-M or 1000-H",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rate := strings.ToUpper(strings.TrimSpace(args[0]))
			parsed, err := limiter.NewRateFromFormatted(rate)
			if err != nil {
				return fmt.Errorf("invalid rate %q: %w", rate, err)
			}
			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := database.NewSettingsRepository(db).SetRateLimit(cmd.Context(), &models.RatelimitConfig{Rate: rate}); err != nil {
				return fmt.Errorf("failed to store rate limit: %w", err)
			}
			fmt.Printf("Rate limit set to %d requests per %s\n", parsed.Limit, parsed.Period)
			return nil
		},
	}
}
