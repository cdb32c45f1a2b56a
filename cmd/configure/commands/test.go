package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/services/oidc"
	"github.com/spf13/cobra"
)

// NewTestCmd creates the test command
func NewTestCmd() *cobra.Command {
	var provider string

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test OIDC configuration",
		Long:  "Resolve the provider's endpoints and fetch its signing keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			if provider == "" {
				return fmt.Errorf("--provider is required")
			}

			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			oidcProvider := oidc.NewProvider(database.NewOIDCConfigRepository(db))
			oidcConfig, err := oidcProvider.GetConfig(ctx, provider)
			if err != nil {
				return fmt.Errorf("failed to get OIDC config: %w", err)
			}

			fmt.Printf("Testing OIDC configuration for provider: %s\n", provider)
			fmt.Printf("Issuer: %s\n", oidcConfig.Issuer)

			endpoints := oidcProvider.Endpoints(ctx, oidcConfig)
			fmt.Printf("\nAuthorization endpoint: %s\n", endpoints.AuthorizationEndpoint)
			fmt.Printf("Token endpoint: %s\n", endpoints.TokenEndpoint)
			fmt.Printf("JWKS endpoint: %s\n", endpoints.JWKSURI)

			keys, err := oidc.NewJWKSManager().GetJWKS(ctx, endpoints.JWKSURI)
			if err != nil {
				return fmt.Errorf("failed to fetch JWKS: %w", err)
			}
			if keys.Len() == 0 {
				return fmt.Errorf("JWKS at %s has no keys", endpoints.JWKSURI)
			}
			fmt.Printf("✓ JWKS endpoint returned %d signing keys\n", keys.Len())

			fmt.Println("\n✓ OIDC configuration test passed")
			return nil
		},
	}

	cmd.Flags().StringVar(&provider, "provider", "", "Provider name to test (required)")

	return cmd
}
