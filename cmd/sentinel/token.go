package main

import (
	"fmt"
	"time"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/middleware"

	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token signed with server.auth_secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ttl := cfg.Server.TokenTTL
		if tokenTTL > 0 {
			ttl = tokenTTL
		}

		token, expiresAt, err := middleware.IssueToken(cfg.Server.AuthSecret, tokenSubject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintln(cmd.ErrOrStderr(), yellow("expires "+expiresAt.Format(time.RFC3339)))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "analyst", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default server.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
