package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mandi/backend/internal/infrastructure/auth"
)

func newTokenCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue access tokens for clerks and operators",
	}

	var (
		tenant   string
		actor    string
		username string
		roles    []string
		ttl      time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Sign an access token with the configured JWT secret",
		Example: `  ledgerctl token issue --tenant <id> --actor clerk-7 --role clerk
  ledgerctl token issue --tenant <id> --actor ops --role admin --ttl 15m`,
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}
			for _, r := range roles {
				if r != auth.RoleClerk && r != auth.RoleAdmin {
					return fmt.Errorf("unknown role %q, want %s or %s", r, auth.RoleClerk, auth.RoleAdmin)
				}
			}
			cfg, err := e.config()
			if err != nil {
				return err
			}
			token, expiresAt, err := auth.NewJWTService(cfg.JWT).IssueAccessToken(auth.IssueInput{
				TenantID: tenantID,
				ActorID:  actor,
				Username: username,
				Roles:    roles,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			e.logger().Info("access token issued")
			fmt.Fprintln(e.out, token)
			fmt.Fprintf(e.out, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	issue.Flags().StringVar(&tenant, "tenant", "", "Tenant the token is scoped to")
	issue.Flags().StringVar(&actor, "actor", "", "Subject of the token")
	issue.Flags().StringVar(&username, "username", "", "Display name")
	issue.Flags().StringSliceVar(&roles, "role", []string{auth.RoleClerk}, "Roles granted (clerk, admin)")
	issue.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime, zero uses jwt.access_token_expiration")
	_ = issue.MarkFlagRequired("tenant")
	_ = issue.MarkFlagRequired("actor")

	cmd.AddCommand(issue)
	return cmd
}
