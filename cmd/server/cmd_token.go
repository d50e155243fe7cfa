package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lukasbauer/apriori/internal/httpapi"
)

func newTokenCommand() *cobra.Command {
	var subject, email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin API token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _ := setup()
			if ttl <= 0 {
				ttl = cfg.JWTExpiry
			}
			tok, err := httpapi.IssueAdminToken(cfg.JWTSecret, subject, email, ttl, time.Now())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "ops", "Token subject")
	cmd.Flags().StringVar(&email, "email", "", "Operator email, used as the default HR device owner")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_EXPIRY)")
	return cmd
}
