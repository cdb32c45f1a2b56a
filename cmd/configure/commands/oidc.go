package commands

import (
	"fmt"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/spf13/cobra"
)

// NewOIDCCmd creates the OIDC configuration command
func NewOIDCCmd() *cobra.Command {
	var issuer, domain, clientID, clientSecret, redirectURI, jwksURL string

	cmd := &cobra.Command{
		Use:   "oidc <provider-name>",
		Short: "Configure OIDC provider",
		Long: "Create or replace an OIDC provider. Endpoints are discovered from the issuer; " +
			"--jwks-url overrides the discovered key set.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := strings.TrimSpace(args[0])
			if provider == "" {
				return fmt.Errorf("provider name cannot be empty")
			}
			if issuer == "" || clientID == "" || redirectURI == "" {
				return fmt.Errorf("required flags: --issuer, --client-id, --redirect-uri (--client-secret is optional for public clients)")
			}

			db, _, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			oidcConfig := &models.OIDCConfig{
				Provider:    provider,
				Issuer:      strings.TrimRight(issuer, "/"),
				ClientID:    clientID,
				RedirectURI: redirectURI,
			}
			if domain != "" {
				oidcConfig.Domain = &domain
			}
			if clientSecret != "" {
				oidcConfig.ClientSecret = &clientSecret
			}
			if jwksURL != "" {
				oidcConfig.JWKSUrl = &jwksURL
			}

			if err := database.NewOIDCConfigRepository(db).Upsert(cmd.Context(), oidcConfig); err != nil {
				return err
			}
			fmt.Printf("Saved OIDC configuration for provider: %s\n", provider)
			return nil
		},
	}

	cmd.Flags().StringVar(&issuer, "issuer", "", "OIDC issuer URL (required)")
	cmd.Flags().StringVar(&domain, "domain", "", "OAuth2 domain (optional, e.g. a Cognito hosted UI domain)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID (required)")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret (optional for public clients using PKCE)")
	cmd.Flags().StringVar(&redirectURI, "redirect-uri", "", "OAuth2 redirect URI (required)")
	cmd.Flags().StringVar(&jwksURL, "jwks-url", "", "JWKS URL (optional, discovered from the issuer by default)")

	return cmd
}
