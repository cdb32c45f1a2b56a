package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/benvon/family-planner/internal/database"
	"github.com/spf13/cobra"
)

// NewListCmd lists the OIDC providers users can sign in with
func NewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured OIDC providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cfg, closeDB, err := openDatabase()
			if err != nil {
				return err
			}
			defer closeDB()

			configs, err := database.NewOIDCConfigRepository(db).GetAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list OIDC configs: %w", err)
			}
			if len(configs) == 0 {
				fmt.Println("No OIDC providers configured; add one with 'oidc'")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tISSUER\tCLIENT ID\tCLIENT\tJWKS")
			for _, c := range configs {
				kind := "public (PKCE)"
				if c.ClientSecret != nil {
					kind = "confidential"
				}
				jwks := "discovered"
				if c.JWKSUrl != nil {
					jwks = *c.JWKSUrl
				}
				name := c.Provider
				if c.Provider == cfg.OIDCProvider {
					name += " *"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, c.Issuer, c.ClientID, kind, jwks)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Println("\n* used by servers (OIDC_PROVIDER)")
			return nil
		},
	}
}
