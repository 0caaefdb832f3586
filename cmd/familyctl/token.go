package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/familyshare/familyshare/internal/auth"
	"github.com/familyshare/familyshare/internal/model"
)

func createTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mints access tokens for local testing",
	}

	var (
		secret string
		issuer string
		role   string
		ttl    time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "Prints a signed access token for user-id",
		Long: `Prints a signed access token for user-id. The account backend issues real
tokens; use this for local development and smoke tests only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("AUTH_JWT_SECRET is required (set the env var or pass --secret)")
			}
			if role != "" && role != model.RoleModerator {
				return fmt.Errorf("unknown role %q", role)
			}
			if ttl <= 0 {
				return errors.New("--ttl must be positive")
			}

			token, err := auth.NewVerifier(secret, issuer).Issue(args[0], role, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	issue.Flags().StringVar(&secret, "secret", os.Getenv("AUTH_JWT_SECRET"), "HMAC signing secret")
	issue.Flags().StringVar(&issuer, "issuer", os.Getenv("AUTH_JWT_ISSUER"), "token issuer")
	issue.Flags().StringVar(&role, "role", "", "role claim (empty or moderator)")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	cmd.AddCommand(issue)

	return cmd
}
